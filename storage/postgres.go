package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresConfig contains PostgreSQL connection settings used when no DSN is given.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
	seq BIGSERIAL PRIMARY KEY,
	signature VARCHAR(128) NOT NULL UNIQUE,
	key VARCHAR(128) NOT NULL,
	server TEXT NOT NULL,
	timestamp BIGINT NOT NULL,
	channel TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_posts_channel ON posts(channel, seq);

CREATE TABLE IF NOT EXISTS profiles (
	key VARCHAR(128) PRIMARY KEY,
	server TEXT NOT NULL,
	timestamp BIGINT NOT NULL,
	name TEXT NOT NULL,
	metadata TEXT,
	signature VARCHAR(128) NOT NULL,
	updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
	key VARCHAR(128) PRIMARY KEY,
	lastrequest BIGINT NOT NULL
);
`

var postgresQueries = queries{
	schema: postgresSchema,
	insertPost: `
	INSERT INTO posts (signature, key, server, timestamp, channel, content, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (signature) DO NOTHING`,
	listPosts: `
	SELECT key, server, timestamp, channel, content, metadata, signature
	FROM posts ORDER BY seq`,
	listByChannel: `
	SELECT key, server, timestamp, channel, content, metadata, signature
	FROM posts WHERE channel = $1 ORDER BY seq`,
	upsertProfile: `
	INSERT INTO profiles (key, server, timestamp, name, metadata, signature, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (key) DO UPDATE SET
		server = EXCLUDED.server,
		timestamp = EXCLUDED.timestamp,
		name = EXCLUDED.name,
		metadata = EXCLUDED.metadata,
		signature = EXCLUDED.signature,
		updated_at = NOW()`,
	getProfile: `
	SELECT key, server, timestamp, name, metadata, signature
	FROM profiles WHERE key = $1`,
	recordRequest: `
	INSERT INTO users (key, lastrequest) VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET lastrequest = EXCLUDED.lastrequest
	WHERE EXCLUDED.lastrequest > users.lastrequest`,
	classify: classifyPostgresError,
}

// classifyPostgresError maps SQLSTATE class 22 (data exception, e.g. 22021
// for a NUL byte in text) to ErrInvalidContent.
func classifyPostgresError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "22" {
		return fmt.Errorf("%w: %s (%s)", ErrInvalidContent, pqErr.Message, pqErr.Code)
	}
	return err
}

// OpenPostgres connects to PostgreSQL using dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &sqlStore{db: db, q: postgresQueries}

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.migrate(migrateCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}
