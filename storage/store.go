package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/flashbots/lay/protocol"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleTimestamp is returned by RecordRequest when the timestamp is not
	// strictly greater than the last one recorded for the key.
	ErrStaleTimestamp = errors.New("timestamp not newer than last request")

	// ErrTimestampRange is returned for timestamps the SQL backends cannot represent.
	ErrTimestampRange = errors.New("timestamp out of range")

	// ErrInvalidContent is returned when the backend refuses a value it cannot
	// store, such as a NUL byte in a PostgreSQL text column.
	ErrInvalidContent = errors.New("content cannot be stored")
)

// PostFilter narrows ListPosts. The zero value matches every post.
type PostFilter struct {
	Channel string
}

func (f PostFilter) matches(post *protocol.Post) bool {
	return f.Channel == "" || f.Channel == post.Channel
}

// Store persists the relay state: the append-only post log, the profile table
// and the anti-replay ledger. Implementations must be safe for concurrent use.
type Store interface {
	// SavePost appends a post. Saving an envelope with a signature that is
	// already stored is a no-op and returns nil.
	SavePost(ctx context.Context, post *protocol.Signed[protocol.Post]) error

	// ListPosts returns posts in the order they were accepted.
	ListPosts(ctx context.Context, filter PostFilter) ([]*protocol.Signed[protocol.Post], error)

	// SaveProfile replaces the profile stored for the envelope key.
	SaveProfile(ctx context.Context, profile *protocol.Signed[protocol.Profile]) error

	// GetProfile returns the stored profile envelope or ErrNotFound.
	GetProfile(ctx context.Context, key string) (*protocol.Signed[protocol.Profile], error)

	// RecordRequest atomically checks timestamp against the ledger entry for key
	// and stores it. It returns ErrStaleTimestamp if timestamp <= the stored value.
	RecordRequest(ctx context.Context, key string, timestamp uint64) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and configures a Store implementation.
type Config struct {
	Driver string `yaml:"driver" env:"LAY_STORE_DRIVER"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	// For postgres, an empty DSN is built from Postgres.
	DSN string `yaml:"dsn" env:"DATABASE_URL"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// Open creates the store described by cfg and applies schema migrations.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.DSN)
	case DriverPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Postgres.ConnectionString()
		}
		return OpenPostgres(ctx, dsn)
	case DriverMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func toInt64(ts uint64) (int64, error) {
	if ts > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrTimestampRange, ts)
	}
	return int64(ts), nil
}
