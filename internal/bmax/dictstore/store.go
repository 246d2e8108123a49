// Package dictstore keeps field dictionary snapshots in redis so that a
// restarted or additional searcher does not rescan the index to rebuild them.
package dictstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/resilience"
)

const keyPrefix = "bmax:dict:"

// Client is the subset of the redis client the store uses.
type Client interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Store reads and writes snapshots keyed by generation and field.
type Store struct {
	client Client
	ttl    time.Duration
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(client Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		logger: slog.Default().With("component", "dictionary-store"),
	}
}

// LoadSnapshot returns nil data when no snapshot exists.
func (s *Store) LoadSnapshot(ctx context.Context, field string, generation uint64) ([]byte, error) {
	key := Key(field, generation)
	data, err := s.client.GetBytes(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", key, err)
	}
	s.logger.Debug("snapshot loaded", "key", key, "bytes", len(data))
	return data, nil
}

// SaveSnapshot writes data, retrying transient failures.
func (s *Store) SaveSnapshot(ctx context.Context, field string, generation uint64, data []byte) error {
	key := Key(field, generation)
	err := resilience.Retry(ctx, "dictionary-snapshot", s.retry, func(ctx context.Context) error {
		return s.client.Set(ctx, key, data, s.ttl)
	})
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", key, err)
	}
	return nil
}

// Key is the redis key of a snapshot.
func Key(field string, generation uint64) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, generation, field)
}
