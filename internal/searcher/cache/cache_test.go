package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.data[key], nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value.([]byte)
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func req(kv ...string) params.Params {
	p := params.Params{}
	for i := 0; i+1 < len(kv); i += 2 {
		p.Add(kv[i], kv[i+1])
	}
	return p
}

func result(id string) *executor.SearchResult {
	return &executor.SearchResult{Query: "q", TotalHits: 1, Results: []ranker.ScoredDoc{{DocID: id, Score: 1.5}}}
}

func TestBuildKeyDependsOnParamsAndGeneration(t *testing.T) {
	a := BuildKey(req("q", "red", "qf", "title"), 1)
	assert.True(t, strings.HasPrefix(a, keyPrefix))
	assert.Equal(t, a, BuildKey(req("qf", "title", "q", "red"), 1), "parameter order does not matter")
	assert.NotEqual(t, a, BuildKey(req("q", "red", "qf", "title"), 2))
	assert.NotEqual(t, a, BuildKey(req("q", "blue", "qf", "title"), 1))
}

func TestGetOrComputeCachesPerGeneration(t *testing.T) {
	c := New(newMemStore(), time.Minute, metrics.NewUnregistered())
	ctx := context.Background()
	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return result("d1"), nil
	}

	res, hit, err := c.GetOrCompute(ctx, req("q", "red"), 1, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "d1", res.Results[0].DocID)

	res, hit, err = c.GetOrCompute(ctx, req("q", "red"), 1, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "d1", res.Results[0].DocID)
	assert.Equal(t, 1.5, res.Results[0].Score)

	_, hit, err = c.GetOrCompute(ctx, req("q", "red"), 2, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), calls.Load())

	hits, misses, state := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, "closed", strings.ToLower(state))
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), req("q", "x"), 1, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, hit, err := c.GetOrCompute(context.Background(), req("q", "x"), 1, func() (*executor.SearchResult, error) {
		return result("d2"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStoreFailureFallsBackToCompute(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, time.Minute, nil)

	for i := 0; i < 10; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), req("q", "x"), 1, func() (*executor.SearchResult, error) {
			return result("d1"), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "d1", res.Results[0].DocID)
	}
	_, _, state := c.Stats()
	assert.Equal(t, "open", strings.ToLower(state))
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = []byte("x")
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), BuildKey(req("q", "a"), 1), result("d1"))
	c.Set(context.Background(), BuildKey(req("q", "b"), 1), result("d2"))

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, store.data, "other:key")
}
