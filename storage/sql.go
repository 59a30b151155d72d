package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flashbots/lay/protocol"
)

// queries holds the dialect specific statements used by sqlStore.
type queries struct {
	schema        string
	insertPost    string
	listPosts     string
	listByChannel string
	upsertProfile string
	getProfile    string
	recordRequest string

	// classify maps driver errors caused by the submitted values to
	// ErrInvalidContent. Nil keeps errors as they are.
	classify func(error) error
}

// sqlStore implements Store on top of database/sql for both SQLite and PostgreSQL.
type sqlStore struct {
	db *sql.DB
	q  queries
}

func (s *sqlStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.q.schema)
	return err
}

func (s *sqlStore) SavePost(ctx context.Context, post *protocol.Signed[protocol.Post]) error {
	ts, err := toInt64(post.Timestamp)
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(post.Data.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.q.insertPost,
		post.Signature,
		post.Key,
		post.Server,
		ts,
		post.Data.Channel,
		post.Data.Content,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("inserting post: %w", s.classify(err))
	}
	return nil
}

func (s *sqlStore) ListPosts(ctx context.Context, filter PostFilter) ([]*protocol.Signed[protocol.Post], error) {
	var (
		rows *sql.Rows
		err  error
	)
	if filter.Channel != "" {
		rows, err = s.db.QueryContext(ctx, s.q.listByChannel, filter.Channel)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q.listPosts)
	}
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var result []*protocol.Signed[protocol.Post]
	for rows.Next() {
		var (
			post     protocol.Signed[protocol.Post]
			ts       int64
			metadata sql.NullString
		)
		if err := rows.Scan(&post.Key, &post.Server, &ts, &post.Data.Channel,
			&post.Data.Content, &metadata, &post.Signature); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		post.Timestamp = uint64(ts)
		if post.Data.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		result = append(result, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	return result, nil
}

func (s *sqlStore) SaveProfile(ctx context.Context, profile *protocol.Signed[protocol.Profile]) error {
	ts, err := toInt64(profile.Timestamp)
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(profile.Data.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.q.upsertProfile,
		profile.Key,
		profile.Server,
		ts,
		profile.Data.Name,
		metadata,
		profile.Signature,
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", s.classify(err))
	}
	return nil
}

func (s *sqlStore) GetProfile(ctx context.Context, key string) (*protocol.Signed[protocol.Profile], error) {
	var (
		profile  protocol.Signed[protocol.Profile]
		ts       int64
		metadata sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q.getProfile, key).Scan(
		&profile.Key, &profile.Server, &ts, &profile.Data.Name, &metadata, &profile.Signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	profile.Timestamp = uint64(ts)
	if profile.Data.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RecordRequest relies on a conditional upsert: the row is only written when
// the new timestamp is greater, so zero affected rows means a replay.
func (s *sqlStore) RecordRequest(ctx context.Context, key string, timestamp uint64) error {
	ts, err := toInt64(timestamp)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.q.recordRequest, key, ts)
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}
	if n == 0 {
		return ErrStaleTimestamp
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) classify(err error) error {
	if s.q.classify == nil {
		return err
	}
	return s.q.classify(err)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// encodeMetadata stores metadata as canonical JSON so it reproduces the
// signed bytes when read back.
func encodeMetadata(m protocol.Metadata) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := protocol.CanonicalJSON(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeMetadata(v sql.NullString) (protocol.Metadata, error) {
	if !v.Valid {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(v.String)))
	dec.UseNumber()
	var m protocol.Metadata
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return m, nil
}
