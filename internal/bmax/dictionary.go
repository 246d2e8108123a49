package bmax

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/vellum"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
)

// FieldTermsDictionary answers whether a field may contain a term. The zero
// value is the unknown dictionary, which may contain anything.
type FieldTermsDictionary struct {
	fst  *vellum.FST
	data []byte
	// pending reports terms indexed after the dictionary was built.
	pending func(term string) bool
}

// Unknown is the dictionary of a field whose terms have not been collected.
var Unknown = FieldTermsDictionary{}

// LoadDictionary wraps a serialized finite state set.
func LoadDictionary(data []byte) (FieldTermsDictionary, error) {
	fst, err := vellum.Load(data)
	if err != nil {
		return Unknown, fmt.Errorf("loading field dictionary: %w", err)
	}
	return FieldTermsDictionary{fst: fst, data: data}, nil
}

// Known reports whether the dictionary holds the field's terms.
func (d FieldTermsDictionary) Known() bool { return d.fst != nil }

// MayContain is true unless the dictionary is known and lacks term.
func (d FieldTermsDictionary) MayContain(term string) bool {
	if d.fst == nil {
		return true
	}
	ok, err := d.fst.Contains([]byte(term))
	if err != nil || ok {
		return true
	}
	return d.pending != nil && d.pending(term)
}

// Len is the number of terms of a known dictionary.
func (d FieldTermsDictionary) Len() int {
	if d.fst == nil {
		return 0
	}
	return d.fst.Len()
}

// Bytes is the serialized form accepted by LoadDictionary.
func (d FieldTermsDictionary) Bytes() []byte { return d.data }

func (d FieldTermsDictionary) String() string {
	return fmt.Sprintf("FieldTermsDictionary{known=%t, size=%d}", d.Known(), d.Len())
}

// TermSource enumerates the distinct indexed terms of a field in
// lexicographic order.
type TermSource interface {
	ForEachIndexedTerm(field string, fn func(term string) error) error
}

// BuildDictionary collects the terms of field into a finite state set. Terms
// arriving out of order or repeated are skipped with a warning; the rest
// still form a usable dictionary.
func BuildDictionary(ctx context.Context, source TermSource, field string, logger *slog.Logger) (FieldTermsDictionary, error) {
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return Unknown, fmt.Errorf("creating dictionary builder: %w", err)
	}

	var last []byte
	skipped := 0
	err = source.ForEachIndexedTerm(field, func(term string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := []byte(term)
		if last != nil && bytes.Compare(key, last) <= 0 {
			skipped++
			logger.Warn("skipping out of order term", "field", field, "term", term, "previous", string(last))
			return nil
		}
		if err := builder.Insert(key, 0); err != nil {
			if errors.Is(err, vellum.ErrOutOfOrder) {
				skipped++
				logger.Warn("skipping out of order term", "field", field, "term", term)
				return nil
			}
			return err
		}
		last = key
		return nil
	})
	if err != nil {
		return Unknown, fmt.Errorf("collecting terms of %s: %w", field, err)
	}
	if err := builder.Close(); err != nil {
		return Unknown, fmt.Errorf("finishing dictionary of %s: %w", field, err)
	}
	if skipped > 0 {
		logger.Warn("field dictionary built with skipped terms", "field", field, "skipped", skipped)
	}
	return LoadDictionary(buf.Bytes())
}

// PendingTerms reports terms that are searchable but were not part of the
// term source at generation: those of segments flushed later and of an
// unflushed index buffer.
type PendingTerms interface {
	HasTermAfter(field, term string, generation uint64) bool
}

// DictionaryLookup returns the dictionary of a field without blocking.
type DictionaryLookup interface {
	Dictionary(field string) FieldTermsDictionary
}

// SnapshotStore persists serialized dictionaries per index generation.
// LoadSnapshot returns nil data when there is no snapshot.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, field string, generation uint64) ([]byte, error)
	SaveSnapshot(ctx context.Context, field string, generation uint64, data []byte) error
}

// DictionaryCache holds at most one dictionary per field for the current
// index generation. Lookups never block: a missing dictionary is reported as
// Unknown while it is built in the background.
type DictionaryCache struct {
	source  TermSource
	pending PendingTerms
	store   SnapshotStore
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger
	group   singleflight.Group

	mu         sync.RWMutex
	generation uint64
	dicts      map[string]FieldTermsDictionary
}

// DictionaryOption configures a DictionaryCache.
type DictionaryOption func(*DictionaryCache)

// WithSnapshotStore loads and saves built dictionaries through s.
func WithSnapshotStore(s SnapshotStore) DictionaryOption {
	return func(c *DictionaryCache) { c.store = s }
}

// WithPendingTerms makes every known dictionary also accept the terms p
// reports for its generation.
func WithPendingTerms(p PendingTerms) DictionaryOption {
	return func(c *DictionaryCache) { c.pending = p }
}

func WithDictionaryMetrics(m *metrics.Metrics) DictionaryOption {
	return func(c *DictionaryCache) { c.metrics = m }
}

// WithBuildTimeout bounds a single background build.
func WithBuildTimeout(d time.Duration) DictionaryOption {
	return func(c *DictionaryCache) { c.timeout = d }
}

func NewDictionaryCache(source TermSource, opts ...DictionaryOption) *DictionaryCache {
	c := &DictionaryCache{
		source:  source,
		timeout: time.Minute,
		logger:  slog.Default().With("component", "field-dictionary"),
		dicts:   make(map[string]FieldTermsDictionary),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dictionary returns the cached dictionary of field, or Unknown after
// scheduling its build.
func (c *DictionaryCache) Dictionary(field string) FieldTermsDictionary {
	c.mu.RLock()
	d, ok := c.dicts[field]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return c.withPending(field, d, gen)
	}
	c.group.DoChan(buildKey(gen, field), func() (any, error) {
		return c.build(context.Background(), field, gen)
	})
	return Unknown
}

// Get returns the dictionary of field, building it if needed.
func (c *DictionaryCache) Get(ctx context.Context, field string) (FieldTermsDictionary, error) {
	c.mu.RLock()
	d, ok := c.dicts[field]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return c.withPending(field, d, gen), nil
	}
	v, err, _ := c.group.Do(buildKey(gen, field), func() (any, error) {
		return c.build(ctx, field, gen)
	})
	if err != nil {
		return Unknown, err
	}
	return c.withPending(field, v.(FieldTermsDictionary), gen), nil
}

// withPending overlays the terms that reached the index after gen, the
// generation d was built for. The overlay is bound to gen rather than to the
// cache's current generation so a dictionary handed out before a flush stays
// complete after it.
func (c *DictionaryCache) withPending(field string, d FieldTermsDictionary, gen uint64) FieldTermsDictionary {
	if c.pending == nil || !d.Known() {
		return d
	}
	p := c.pending
	d.pending = func(term string) bool { return p.HasTermAfter(field, term, gen) }
	return d
}

// Warm builds the dictionaries of fields concurrently.
func (c *DictionaryCache) Warm(ctx context.Context, fields []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, field := range fields {
		g.Go(func() error {
			_, err := c.Get(ctx, field)
			return err
		})
	}
	return g.Wait()
}

// Reset drops every dictionary and starts a new generation. Builds still
// running for an older generation are discarded when they finish.
func (c *DictionaryCache) Reset(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation = generation
	c.dicts = make(map[string]FieldTermsDictionary)
}

// Generation is the generation the cached dictionaries belong to.
func (c *DictionaryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Sizes returns the term count of every cached dictionary. Unknown ones
// report -1.
func (c *DictionaryCache) Sizes() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.dicts))
	for field, d := range c.dicts {
		if d.Known() {
			out[field] = d.Len()
		} else {
			out[field] = -1
		}
	}
	return out
}

// Fields lists the fields with a cached dictionary.
func (c *DictionaryCache) Fields() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.dicts))
	for field := range c.dicts {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// build produces the dictionary of field for gen. A failed build is cached
// as Unknown so it is attempted at most once per generation.
func (c *DictionaryCache) build(ctx context.Context, field string, gen uint64) (FieldTermsDictionary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	d, source, err := c.loadOrBuild(ctx, field, gen)
	status := "ok"
	if err != nil {
		status = "error"
		c.logger.Error("field dictionary build failed", "field", field, "generation", gen, "error", err)
	}
	if c.metrics != nil {
		c.metrics.DictionaryBuilds.WithLabelValues(source, status).Inc()
		c.metrics.DictionaryBuildTime.Observe(time.Since(start).Seconds())
	}

	c.mu.Lock()
	if c.generation == gen {
		c.dicts[field] = d
	}
	c.mu.Unlock()

	if err == nil {
		c.logger.Info("field dictionary ready",
			"field", field, "generation", gen, "terms", d.Len(), "source", source,
			"duration", time.Since(start))
	}
	return d, err
}

func (c *DictionaryCache) loadOrBuild(ctx context.Context, field string, gen uint64) (FieldTermsDictionary, string, error) {
	if c.store != nil {
		data, err := c.store.LoadSnapshot(ctx, field, gen)
		switch {
		case err != nil:
			c.logger.Warn("loading dictionary snapshot failed", "field", field, "error", err)
		case data != nil:
			d, err := LoadDictionary(data)
			if err == nil {
				return d, "snapshot", nil
			}
			c.logger.Warn("discarding corrupt dictionary snapshot", "field", field, "error", err)
		}
	}

	d, err := BuildDictionary(ctx, c.source, field, c.logger)
	if err != nil {
		return Unknown, "index", err
	}
	if c.store != nil {
		if err := c.store.SaveSnapshot(ctx, field, gen, d.Bytes()); err != nil {
			c.logger.Warn("saving dictionary snapshot failed", "field", field, "error", err)
		}
	}
	return d, "index", nil
}

func buildKey(gen uint64, field string) string {
	return fmt.Sprintf("%d/%s", gen, field)
}
