package storage

import (
	"context"
	"sync"

	"github.com/flashbots/lay/protocol"
)

// InMemoryStore implements Store without a database. State is lost on restart,
// so it is meant for tests and throwaway relays.
type InMemoryStore struct {
	mu       sync.Mutex
	posts    []*protocol.Signed[protocol.Post]
	seen     map[string]struct{}
	profiles map[string]*protocol.Signed[protocol.Profile]
	ledger   map[string]uint64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		seen:     make(map[string]struct{}),
		profiles: make(map[string]*protocol.Signed[protocol.Profile]),
		ledger:   make(map[string]uint64),
	}
}

// SavePost appends a post unless its signature is already stored.
func (s *InMemoryStore) SavePost(ctx context.Context, post *protocol.Signed[protocol.Post]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[post.Signature]; exists {
		return nil
	}
	copied := *post
	s.seen[post.Signature] = struct{}{}
	s.posts = append(s.posts, &copied)
	return nil
}

// ListPosts returns copies of the stored posts in insertion order.
func (s *InMemoryStore) ListPosts(ctx context.Context, filter PostFilter) ([]*protocol.Signed[protocol.Post], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*protocol.Signed[protocol.Post], 0, len(s.posts))
	for _, post := range s.posts {
		if !filter.matches(&post.Data) {
			continue
		}
		copied := *post
		result = append(result, &copied)
	}
	return result, nil
}

// SaveProfile stores a profile, replacing any previous one for the key.
func (s *InMemoryStore) SaveProfile(ctx context.Context, profile *protocol.Signed[protocol.Profile]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *profile
	s.profiles[profile.Key] = &copied
	return nil
}

// GetProfile returns the profile stored for key.
func (s *InMemoryStore) GetProfile(ctx context.Context, key string) (*protocol.Signed[protocol.Profile], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *profile
	return &copied, nil
}

// RecordRequest checks and updates the ledger under the store lock.
func (s *InMemoryStore) RecordRequest(ctx context.Context, key string, timestamp uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.ledger[key]; ok && timestamp <= last {
		return ErrStaleTimestamp
	}
	s.ledger[key] = timestamp
	return nil
}

// Ping only checks ctx; the memory store is always reachable.
func (s *InMemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}
