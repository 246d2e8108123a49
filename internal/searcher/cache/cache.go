// Package cache stores search results in redis. Keys combine the canonical
// request parameters with the index generation, so a flush makes every
// earlier entry unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the redis client the cache uses.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	cfg := resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		// a missing key is an answer, not an outage
		IsFailure: func(err error) bool { return !pkgredis.IsNilError(err) },
	}
	if m != nil {
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("result-cache", cfg),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.GetBytes(ctx, key)
		return err
	})
	if err != nil || data == nil {
		if err != nil && !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.ResultCacheHits.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.ResultCacheMisses.Inc()
	}
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error { return c.store.Set(ctx, key, data, c.ttl) }); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req at generation, computing
// and storing it on a miss. Concurrent misses for one key compute once.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req params.Params,
	generation uint64,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := BuildKey(req, generation)
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

// Stats reports the hit and miss counts and the breaker state.
func (c *QueryCache) Stats() (hits, misses int64, state string) {
	return c.hits.Load(), c.misses.Load(), c.breaker.State().String()
}

// BuildKey hashes the canonical parameters and the generation.
func BuildKey(req params.Params, generation uint64) string {
	raw := fmt.Sprintf("%s|gen=%d", req.Canonical(), generation)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// IsOpen reports whether err came from an open breaker.
func IsOpen(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen)
}
