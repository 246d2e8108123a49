package boostcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query/querytest"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/valuecache"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
)

// countingSource yields doc*factor and counts how often it is asked.
type countingSource struct {
	factor float64
	loads  atomic.Int32
	reads  atomic.Int32
}

func (s *countingSource) String() string { return fmt.Sprintf("counting(%g)", s.factor) }

func (s *countingSource) Values(*query.Context) (query.FloatValues, error) {
	s.loads.Add(1)
	return query.FloatValuesFunc(func(doc uint32) float64 {
		s.reads.Add(1)
		return float64(doc) * s.factor
	}), nil
}

func segment(id string, base uint32, docs int) *querytest.Segment {
	seg := querytest.NewSegment(id, base)
	for i := 0; i < docs; i++ {
		seg.Add(map[string]string{"body": "x"})
	}
	return seg
}

func TestKeyIsOrderSensitiveConcatenation(t *testing.T) {
	assert.Equal(t, Key([]string{"a", "b"}), Key([]string{"a", "b"}))
	assert.NotEqual(t, Key([]string{"a", "b"}), Key([]string{"b", "a"}))
	assert.Equal(t, Key([]string{"ab"}), Key([]string{"a", "b"}))

	k, err := ParseKey(FormatKey(0x00ab12cd))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00ab12cd), k)
	assert.Equal(t, "00ab12cd", FormatKey(0x00ab12cd))

	_, err = ParseKey("zz")
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestComputeOrReuseIsIdempotent(t *testing.T) {
	r := NewRegion(BoostCache, WithMetrics(metrics.NewUnregistered()))
	compiles := 0
	compile := func(exprs []string) (query.ValueSource, error) {
		compiles++
		return query.Const{Value: 2}, nil
	}
	exprs := []string{"field(popularity)", "2"}

	k1, hit, err := r.ComputeOrReuse(exprs, compile, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	k2, hit, err := r.ComputeOrReuse(exprs, compile, 10)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, k1, k2)
	assert.Equal(t, Key(exprs), k1)
	assert.Equal(t, 1, compiles)
	assert.Equal(t, 1, r.Len())
}

func TestCachedValuesComputedAtMostOnce(t *testing.T) {
	src := &countingSource{factor: 1.5}
	cached, err := NewCachingValueSource(src, valuecache.HintDense, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "cached(counting(1.5))", cached.String())
	assert.Zero(t, cached.Stats().Capacity)

	seg := segment("s1", 10, 5)
	vals, err := cached.Values(seg.Context())
	require.NoError(t, err)
	assert.Equal(t, 4.5, vals.FloatVal(3))
	assert.Equal(t, 4.5, vals.FloatVal(3))
	assert.Equal(t, int32(1), src.reads.Load())

	again, err := cached.Values(seg.Context())
	require.NoError(t, err)
	assert.Equal(t, 4.5, again.FloatVal(3))
	assert.Equal(t, int32(1), src.reads.Load())
	assert.Equal(t, int32(2), src.loads.Load(), "a partly cached segment loads the wrapped values")

	for doc := uint32(0); doc < 5; doc++ {
		again.FloatVal(doc)
	}
	full, err := cached.Values(seg.Context())
	require.NoError(t, err)
	assert.Equal(t, 6.0, full.FloatVal(4))
	assert.Equal(t, int32(2), src.loads.Load(), "a fully cached segment never loads the wrapped values")
	assert.Equal(t, int32(5), src.reads.Load())

	stats := cached.Stats()
	assert.Equal(t, 5, stats.Size)
	assert.Equal(t, 101, stats.Capacity)
}

type failingSource struct{ err error }

func (s failingSource) String() string { return "failing" }

func (s failingSource) Values(*query.Context) (query.FloatValues, error) { return nil, s.err }

func TestCachedValuesReportWrappedFailure(t *testing.T) {
	boom := errors.New("field popularity missing")
	cached, err := NewCachingValueSource(failingSource{err: boom}, valuecache.HintDense, 10, 0)
	require.NoError(t, err)

	_, err = cached.Values(segment("s1", 0, 3).Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "s1")
	assert.Zero(t, cached.Stats().Size, "nothing is cached for a failed load")
}

func TestCachedValuesUseGlobalDocNumbers(t *testing.T) {
	src := &countingSource{factor: 1}
	cached, err := NewCachingValueSource(src, valuecache.HintDense, 100, 0)
	require.NoError(t, err)

	first, err := cached.Values(segment("s1", 0, 5).Context())
	require.NoError(t, err)
	second, err := cached.Values(segment("s2", 5, 5).Context())
	require.NoError(t, err)

	assert.Equal(t, 2.0, first.FloatVal(2))
	assert.Equal(t, 2.0, second.FloatVal(2), "local doc 2 of s2 is global doc 7")
	assert.Equal(t, int32(2), src.reads.Load())
	assert.Equal(t, 2, cached.Stats().Size)
}

func TestUnaddressableSegmentsAreNotCached(t *testing.T) {
	src := &countingSource{factor: 1}
	cached, err := NewCachingValueSource(src, valuecache.HintDense, 100, 0)
	require.NoError(t, err)

	seg := segment("buffer", 0, 3).SetAddressable(false)
	vals, err := cached.Values(seg.Context())
	require.NoError(t, err)
	vals.FloatVal(1)
	vals.FloatVal(1)
	assert.Equal(t, int32(2), src.reads.Load())
	assert.Zero(t, cached.Stats().Size)
}

func TestDocsBeyondCapacityAreComputed(t *testing.T) {
	src := &countingSource{factor: 1}
	cached, err := NewCachingValueSource(src, valuecache.HintDense, 4, 0)
	require.NoError(t, err)

	vals, err := cached.Values(segment("s1", 3, 5).Context())
	require.NoError(t, err)
	assert.Equal(t, 4.0, vals.FloatVal(4))
	assert.Equal(t, 4.0, vals.FloatVal(4))
	assert.Equal(t, int32(2), src.reads.Load())
}

func TestPackedLayoutsQuantize(t *testing.T) {
	for _, hint := range []valuecache.Hint{valuecache.HintOffsetPacked, valuecache.HintSparse} {
		t.Run(hint.String(), func(t *testing.T) {
			src := &countingSource{factor: 0.33333}
			cached, err := NewCachingValueSource(src, hint, 50, valuecache.DefaultPrecision)
			require.NoError(t, err)
			vals, err := cached.Values(segment("s1", 0, 10).Context())
			require.NoError(t, err)
			assert.InDelta(t, 3*0.33333, vals.FloatVal(3), 1.0/valuecache.DefaultPrecision)
			assert.InDelta(t, 3*0.33333, vals.FloatVal(3), 1.0/valuecache.DefaultPrecision)
			assert.Equal(t, int32(1), src.reads.Load())
		})
	}

	_, err := NewCachingValueSource(&countingSource{}, valuecache.Hint(7), 10, 0)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestLookupOfUnknownKeyFails(t *testing.T) {
	r := NewRegion(BQCache)
	_, err := r.Lookup(42)
	assert.True(t, errors.Is(err, apperrors.ErrMissingCacheEntry))

	c := NewCoordinator(nil, r)
	_, err = c.Resolve(BQCache, FormatKey(42))
	assert.True(t, errors.Is(err, apperrors.ErrMissingCacheEntry))
	_, err = c.Resolve("other.cache", FormatKey(42))
	assert.True(t, errors.Is(err, apperrors.ErrMissingCacheEntry))
}

func TestResetDropsEntriesOnNewGeneration(t *testing.T) {
	r := NewRegion(BoostCache)
	compile := func([]string) (query.ValueSource, error) { return query.Const{Value: 1}, nil }
	key, _, err := r.ComputeOrReuse([]string{"1"}, compile, 10)
	require.NoError(t, err)

	c := NewCoordinator(metrics.NewUnregistered(), r)
	c.Reset(0)
	_, err = c.Resolve(BoostCache, FormatKey(key))
	require.NoError(t, err, "same generation keeps entries")

	c.Reset(1)
	assert.Equal(t, uint64(1), r.Generation())
	_, err = c.Resolve(BoostCache, FormatKey(key))
	assert.True(t, errors.Is(err, apperrors.ErrMissingCacheEntry))
}

func TestConcurrentComputeOrReuseAgreesOnKey(t *testing.T) {
	r := NewRegion(BoostCache)
	var compiles atomic.Int32
	compile := func([]string) (query.ValueSource, error) {
		compiles.Add(1)
		return query.Const{Value: 3}, nil
	}

	var wg sync.WaitGroup
	keys := make([]uint32, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, _, err := r.ComputeOrReuse([]string{"3"}, compile, 10)
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, r.Len())
	assert.GreaterOrEqual(t, compiles.Load(), int32(1))
}

func compileConsts(exprs []string) (query.ValueSource, error) {
	sources := make([]query.ValueSource, len(exprs))
	for i, e := range exprs {
		var v float64
		if _, err := fmt.Sscanf(e, "%g", &v); err != nil {
			return nil, fmt.Errorf("%w: %q is not a function", apperrors.ErrCompilation, e)
		}
		sources[i] = query.Const{Value: v}
	}
	return query.ProductOf(sources...), nil
}

func TestBoostComponentReplacesParameter(t *testing.T) {
	r := NewRegion(BoostCache)
	comp := NewBoostComponent(r, compileConsts)
	req := params.Params{BoostCache: {"true"}, params.Boost: {"2", "3"}}

	msg, err := comp.Prepare(context.Background(), req, 100)
	require.NoError(t, err)
	key := FormatKey(Key([]string{"2", "3"}))
	assert.Equal(t, []string{"cached(boost.cache," + key + ")"}, req.GetAll(params.Boost))
	assert.Equal(t, []string{"2", "3"}, req.GetAll("boost.cached"))
	assert.Contains(t, msg, "Created entry "+key)

	src, err := NewCoordinator(nil, r).Resolve(BoostCache, key)
	require.NoError(t, err)
	vals, err := src.Values(segment("s1", 0, 2).Context())
	require.NoError(t, err)
	assert.Equal(t, 6.0, vals.FloatVal(1))

	again := params.Params{BoostCache: {"true"}, params.Boost: {"2", "3"}}
	msg, err = comp.Prepare(context.Background(), again, 100)
	require.NoError(t, err)
	assert.Equal(t, req.GetAll(params.Boost), again.GetAll(params.Boost))
	assert.Contains(t, msg, "Cache hit")
}

func TestBoostQueryComponentReference(t *testing.T) {
	comp := NewBoostQueryComponent(NewRegion(BQCache), compileConsts)
	req := params.Params{BQCache: {"on"}, params.BQ: {"5"}}
	_, err := comp.Prepare(context.Background(), req, 10)
	require.NoError(t, err)
	assert.Equal(t, "{!func}cached(bq.cache,"+FormatKey(Key([]string{"5"}))+")", req.Get(params.BQ))
}

func TestComponentFallsBackOnCompileFailure(t *testing.T) {
	r := NewRegion(BoostCache, WithMetrics(metrics.NewUnregistered()))
	comp := NewBoostComponent(r, compileConsts)
	req := params.Params{BoostCache: {"true"}, params.Boost: {"2", "title:shoe"}}

	msg, err := comp.Prepare(context.Background(), req, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "title:shoe"}, req.GetAll(params.Boost))
	assert.False(t, req.Has("boost.cached"))
	assert.Contains(t, msg, "Could not compile")
	assert.Zero(t, r.Len())
}

func TestComponentDisabledOrEmpty(t *testing.T) {
	comp := NewBoostComponent(NewRegion(BoostCache), compileConsts)

	req := params.Params{params.Boost: {"2"}}
	msg, err := comp.Prepare(context.Background(), req, 10)
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "2", req.Get(params.Boost))

	req = params.Params{BoostCache: {"true"}}
	msg, err = comp.Prepare(context.Background(), req, 10)
	require.NoError(t, err)
	assert.Empty(t, msg)

	_, err = comp.Prepare(context.Background(), params.Params{BoostCache: {"maybe"}}, 10)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestCoordinatorStats(t *testing.T) {
	r := NewRegion(BoostCache)
	_, _, err := r.ComputeOrReuse([]string{"2"}, compileConsts, 10)
	require.NoError(t, err)
	c := NewCoordinator(metrics.NewUnregistered(), r, NewRegion(BQCache))

	stats := c.Stats()
	require.Len(t, stats[BoostCache], 1)
	assert.Equal(t, []string{"2"}, stats[BoostCache][0].Expressions)
	assert.Empty(t, stats[BQCache])
	assert.Equal(t, 1, c.Invalidate())
	assert.Zero(t, r.Len())
}
