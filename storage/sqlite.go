package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	signature TEXT NOT NULL UNIQUE,
	key TEXT NOT NULL,
	server TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	channel TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_posts_channel ON posts(channel, seq);

CREATE TABLE IF NOT EXISTS profiles (
	key TEXT PRIMARY KEY,
	server TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	name TEXT NOT NULL,
	metadata TEXT,
	signature TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	key TEXT PRIMARY KEY,
	lastrequest INTEGER NOT NULL
);
`

var sqliteQueries = queries{
	schema: sqliteSchema,
	insertPost: `
	INSERT INTO posts (signature, key, server, timestamp, channel, content, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (signature) DO NOTHING`,
	listPosts: `
	SELECT key, server, timestamp, channel, content, metadata, signature
	FROM posts ORDER BY seq`,
	listByChannel: `
	SELECT key, server, timestamp, channel, content, metadata, signature
	FROM posts WHERE channel = ? ORDER BY seq`,
	upsertProfile: `
	INSERT INTO profiles (key, server, timestamp, name, metadata, signature)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
		server = excluded.server,
		timestamp = excluded.timestamp,
		name = excluded.name,
		metadata = excluded.metadata,
		signature = excluded.signature`,
	getProfile: `
	SELECT key, server, timestamp, name, metadata, signature
	FROM profiles WHERE key = ?`,
	recordRequest: `
	INSERT INTO users (key, lastrequest) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET lastrequest = excluded.lastrequest
	WHERE excluded.lastrequest > users.lastrequest`,
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the schema. The special path ":memory:" yields a private database.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	inMemory := path == ":memory:"
	dsn := path
	if !inMemory {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &sqlStore{db: db, q: sqliteQueries}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}
