// Package boostcache replaces repeated boost expressions by a reference to a
// single compiled, per-document cached function. Entries are keyed by a
// 32-bit murmur3 hash of the expressions and live for one index generation.
package boostcache

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/valuecache"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
)

// CompileFunc turns boost expressions into one value source. It returns an
// error wrapping apperrors.ErrCompilation when an expression is not a
// function.
type CompileFunc func(exprs []string) (query.ValueSource, error)

// Key hashes exprs in order. Hash collisions are not detected.
func Key(exprs []string) uint32 {
	h := murmur3.New32()
	for _, e := range exprs {
		h.Write([]byte(e))
	}
	return h.Sum32()
}

// FormatKey renders a key the way it appears in cached(...) references.
func FormatKey(key uint32) string {
	return fmt.Sprintf("%08x", key)
}

// ParseKey is the inverse of FormatKey.
func ParseKey(s string) (uint32, error) {
	k, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, apperrors.Configf("malformed boost cache key %q", s)
	}
	return uint32(k), nil
}

// Entry is one compiled boost.
type Entry struct {
	Key         uint32
	Expressions []string
	Source      *CachingValueSource
}

// EntryStats describes an entry for the stats endpoint.
type EntryStats struct {
	Key         string           `json:"key"`
	Expressions []string         `json:"expressions"`
	Cache       valuecache.Stats `json:"cache"`
}

// Region holds the entries of one named cache ("boost.cache", "bq.cache")
// for one index generation.
type Region struct {
	name      string
	hint      valuecache.Hint
	precision float64
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu         sync.RWMutex
	generation uint64
	entries    map[uint32]*Entry
	group      singleflight.Group
}

// RegionOption configures a Region.
type RegionOption func(*Region)

// WithHint selects the value cache layout of new entries.
func WithHint(h valuecache.Hint) RegionOption {
	return func(r *Region) { r.hint = h }
}

// WithPrecision sets the float quantization of the packed layouts.
func WithPrecision(p float64) RegionOption {
	return func(r *Region) { r.precision = p }
}

func WithMetrics(m *metrics.Metrics) RegionOption {
	return func(r *Region) { r.metrics = m }
}

func NewRegion(name string, opts ...RegionOption) *Region {
	r := &Region{
		name:      name,
		hint:      valuecache.HintDense,
		precision: valuecache.DefaultPrecision,
		entries:   make(map[uint32]*Entry),
		logger:    slog.Default().With("component", "boost-cache", "cache", name),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Region) Name() string { return r.name }

// ComputeOrReuse returns the key of exprs, compiling and storing them on the
// first call. Concurrent misses for the same key compile once. hit reports
// whether the entry already existed.
func (r *Region) ComputeOrReuse(exprs []string, compile CompileFunc, maxDocHint int) (key uint32, hit bool, err error) {
	key = Key(exprs)
	r.mu.RLock()
	_, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		r.count("hit")
		return key, true, nil
	}

	// The new source has not been read yet, so it is valid for whichever
	// generation is current when it is stored.
	_, err, _ = r.group.Do(FormatKey(key), func() (any, error) {
		source, err := compile(exprs)
		if err != nil {
			return nil, err
		}
		cached, err := NewCachingValueSource(source, r.hint, maxDocHint, r.precision)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.entries[key]; !ok {
			r.entries[key] = &Entry{Key: key, Expressions: append([]string(nil), exprs...), Source: cached}
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrCompilation) {
			r.count("compile_error")
			if r.metrics != nil {
				r.metrics.BoostCacheCompileFail.Inc()
			}
		}
		return 0, false, err
	}
	r.count("miss")
	r.logger.Debug("boost cache entry created", "key", FormatKey(key), "expressions", exprs)
	return key, false, nil
}

// Lookup returns the source stored under key.
func (r *Region) Lookup(key uint32) (*CachingValueSource, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s(%s)", apperrors.ErrMissingCacheEntry, r.name, FormatKey(key))
	}
	return e.Source, nil
}

// Reset drops all entries when generation differs from the current one.
func (r *Region) Reset(generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation == r.generation {
		return
	}
	dropped := len(r.entries)
	r.generation = generation
	r.entries = make(map[uint32]*Entry)
	r.logger.Info("boost cache reset", "generation", generation, "dropped", dropped)
}

// Invalidate drops all entries without changing the generation.
func (r *Region) Invalidate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = make(map[uint32]*Entry)
	return n
}

func (r *Region) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Len is the number of entries.
func (r *Region) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stats lists the entries ordered by key.
func (r *Region) Stats() []EntryStats {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	out := make([]EntryStats, len(entries))
	for i, e := range entries {
		out[i] = EntryStats{Key: FormatKey(e.Key), Expressions: e.Expressions, Cache: e.Source.Stats()}
	}
	return out
}

// Bytes is the estimated memory held by all entries.
func (r *Region) Bytes() int64 {
	var total int64
	for _, s := range r.Stats() {
		total += s.Cache.Bytes
	}
	return total
}

func (r *Region) count(result string) {
	if r.metrics != nil {
		r.metrics.BoostCacheLookups.WithLabelValues(r.name, result).Inc()
	}
}

// Coordinator owns the named regions and resolves cached(name,key)
// references.
type Coordinator struct {
	regions map[string]*Region
	metrics *metrics.Metrics
}

func NewCoordinator(m *metrics.Metrics, regions ...*Region) *Coordinator {
	c := &Coordinator{regions: make(map[string]*Region, len(regions)), metrics: m}
	for _, r := range regions {
		c.regions[r.name] = r
	}
	return c
}

// Region returns the named region.
func (c *Coordinator) Region(name string) (*Region, bool) {
	r, ok := c.regions[name]
	return r, ok
}

// Resolve returns the cached source referenced by cached(name,key).
func (c *Coordinator) Resolve(name, key string) (query.ValueSource, error) {
	r, ok := c.regions[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown cache %q", apperrors.ErrMissingCacheEntry, name)
	}
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	src, err := r.Lookup(k)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Reset moves every region to generation.
func (c *Coordinator) Reset(generation uint64) {
	for _, r := range c.regions {
		r.Reset(generation)
	}
	c.updateBytes()
}

// Invalidate empties every region and returns the number of dropped entries.
func (c *Coordinator) Invalidate() int {
	n := 0
	for _, r := range c.regions {
		n += r.Invalidate()
	}
	c.updateBytes()
	return n
}

// Stats lists the entries of every region by region name.
func (c *Coordinator) Stats() map[string][]EntryStats {
	out := make(map[string][]EntryStats, len(c.regions))
	for name, r := range c.regions {
		out[name] = r.Stats()
	}
	c.updateBytes()
	return out
}

func (c *Coordinator) updateBytes() {
	if c.metrics == nil {
		return
	}
	var total int64
	for _, r := range c.regions {
		total += r.Bytes()
	}
	c.metrics.ValueCacheBytes.Set(float64(total))
}
