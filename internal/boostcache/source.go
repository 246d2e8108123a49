package boostcache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/valuecache"
)

// CachingValueSource memoizes the values of a source by global document
// number (segment doc base plus local number). Values of segments that are
// not addressable, or that lie beyond the cache capacity, are computed on
// every read.
type CachingValueSource struct {
	source    query.ValueSource
	hint      valuecache.Hint
	maxDoc    int
	precision float64

	once  sync.Once
	ready atomic.Bool
	cache valuecache.FloatCache
	err   error

	complete sync.Map // segment id -> struct{}
}

// NewCachingValueSource returns a source caching up to maxDoc+1 documents.
// The cache itself is allocated on the first addressable read.
func NewCachingValueSource(source query.ValueSource, hint valuecache.Hint, maxDoc int, precision float64) (*CachingValueSource, error) {
	if maxDoc < 0 {
		maxDoc = 0
	}
	// Validate the hint up front rather than on first read.
	if _, err := valuecache.New(hint, 0, precision); err != nil {
		return nil, err
	}
	return &CachingValueSource{source: source, hint: hint, maxDoc: maxDoc, precision: precision}, nil
}

func (c *CachingValueSource) String() string {
	return "cached(" + c.source.String() + ")"
}

// Source is the wrapped source.
func (c *CachingValueSource) Source() query.ValueSource { return c.source }

func (c *CachingValueSource) values() (valuecache.FloatCache, error) {
	c.once.Do(func() {
		var fc valuecache.FloatCache
		fc, c.err = valuecache.New(c.hint, c.maxDoc, c.precision)
		if c.err == nil {
			c.cache = valuecache.Synchronized(fc)
			c.ready.Store(true)
		}
	})
	return c.cache, c.err
}

// Stats describes the backing cache. It is zero until the first cached read.
func (c *CachingValueSource) Stats() valuecache.Stats {
	if !c.ready.Load() {
		return valuecache.Stats{}
	}
	return valuecache.StatsOf(c.cache)
}

// Values serves cached values of addressable segments and computes the rest
// through the wrapped source. The wrapped values are loaded up front, so a
// failure is returned here, unless every document of the segment is already
// cached.
func (c *CachingValueSource) Values(ctx *query.Context) (query.FloatValues, error) {
	seg := ctx.Segment
	if !seg.Addressable() {
		return c.source.Values(ctx)
	}
	fc, err := c.values()
	if err != nil {
		return nil, err
	}

	var inner query.FloatValues
	if !c.covers(fc, seg) {
		if inner, err = c.source.Values(ctx); err != nil {
			return nil, fmt.Errorf("boost values of segment %s: %w", seg.ID(), err)
		}
	}

	base := seg.DocBase()
	limit := uint32(fc.Capacity())
	return query.FloatValuesFunc(func(doc uint32) float64 {
		global := base + doc
		if global < limit {
			if v, ok := fc.Get(global); ok {
				return float64(v)
			}
		}
		if inner == nil {
			// covered segments have every document cached
			return 0
		}
		v := inner.FloatVal(doc)
		if global >= limit {
			return v
		}
		fc.Set(global, float32(v))
		if got, ok := fc.Get(global); ok {
			return float64(got)
		}
		return v
	}), nil
}

// covers reports whether every document of seg is cached. A covered
// segment is remembered since its documents never change number.
func (c *CachingValueSource) covers(fc valuecache.FloatCache, seg query.Segment) bool {
	if _, ok := c.complete.Load(seg.ID()); ok {
		return true
	}
	base := seg.DocBase()
	end := base + seg.MaxDoc()
	if end > uint32(fc.Capacity()) {
		return false
	}
	for doc := base; doc < end; doc++ {
		if !fc.HasValue(doc) {
			return false
		}
	}
	c.complete.Store(seg.ID(), struct{}{})
	return true
}
