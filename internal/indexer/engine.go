package indexer

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
)

// Engine indexes documents into an in-memory buffer and flushes it into
// immutable segment files. The generation is the sequence number of the
// newest flushed segment: it changes exactly when the set of flushed
// segments changes, and survives restarts.
type Engine struct {
	cfg      config.IndexConfig
	analyzer index.Analyzer
	writer   *segment.Writer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	flushMu sync.Mutex

	mu         sync.RWMutex
	mem        *index.MemoryIndex
	flushing   *index.MemoryIndex
	readers    []*segment.Reader
	deleted    map[string]*roaring.Bitmap
	live       map[string]docRef
	generation uint64
	nextSeq    uint64
	listeners  []func(generation uint64)
}

// docRef locates the live copy of a document.
type docRef struct {
	leaf string
	doc  uint32
}

// Option configures an Engine.
type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(cfg config.IndexConfig, analyzer index.Analyzer, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		cfg:      cfg,
		analyzer: analyzer,
		writer:   segment.NewWriter(cfg.DataDir),
		logger:   slog.Default().With("component", "indexer"),
		deleted:  make(map[string]*roaring.Bitmap),
		live:     make(map[string]docRef),
		nextSeq:  1,
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.mem = index.NewMemoryIndex(e.nextSeq)
	e.nextSeq++
	if e.metrics != nil {
		e.metrics.IndexGeneration.Set(float64(e.generation))
	}
	return e, nil
}

// IndexDocument adds doc to the buffer. A document indexed again under the
// same id replaces the earlier copy.
func (e *Engine) IndexDocument(doc index.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document without id")
	}
	analyzed, err := index.Analyze(doc, e.analyzer)
	if err != nil {
		return err
	}
	e.mu.Lock()
	mem := e.mem
	local := mem.Add(analyzed)
	replaced := false
	if prev, ok := e.live[doc.ID]; ok {
		e.markDeleted(prev)
		replaced = true
	}
	e.live[doc.ID] = docRef{leaf: mem.Name(), doc: local}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed in memory",
		"doc_id", doc.ID,
		"fields", len(doc.Fields),
		"replaced", replaced,
		"mem_size", mem.Size(),
	)
	if e.cfg.SegmentMaxSize > 0 && mem.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", mem.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// markDeleted must be called with e.mu held.
func (e *Engine) markDeleted(ref docRef) {
	bm := e.deleted[ref.leaf]
	if bm == nil {
		bm = roaring.New()
		e.deleted[ref.leaf] = bm
	}
	bm.Add(ref.doc)
}

// Flush writes the buffer into a new segment and advances the generation.
// A buffer whose write failed is retried first and stays searchable
// meanwhile.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	if e.flushing == nil {
		if e.mem.DocCount() == 0 {
			e.mu.Unlock()
			return nil
		}
		e.flushing = e.mem
		e.mem = index.NewMemoryIndex(e.nextSeq)
		e.nextSeq++
	}
	buf := e.flushing
	e.mu.Unlock()

	start := time.Now()
	name, err := e.writer.Write(buf.Seq(), buf.Snapshot())
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("opening new segment for reading: %w", err)
	}

	e.mu.Lock()
	e.readers = append(e.readers, reader)
	e.flushing = nil
	e.generation = reader.Seq()
	generation := e.generation
	listeners := slices.Clone(e.listeners)
	segments := len(e.readers)
	e.mu.Unlock()

	e.countFlush("ok")
	if e.metrics != nil {
		e.metrics.IndexGeneration.Set(float64(generation))
	}
	e.logger.Info("segment flushed",
		"segment", name,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", segments,
		"generation", generation,
		"duration", time.Since(start),
	)
	for _, fn := range listeners {
		fn(generation)
	}
	return nil
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

// OnGeneration registers fn to run after every generation change.
func (e *Engine) OnGeneration(fn func(generation uint64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// Snapshot returns a consistent read view over all flushed segments and the
// buffered documents, in global document order.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := &Snapshot{Generation: e.generation, lengths: make(map[string]float64)}
	var base uint32
	add := func(seg LeafSegment) {
		leaf := Leaf{Segment: seg}
		if bm := e.deleted[seg.ID()]; bm != nil && !bm.IsEmpty() {
			leaf.Deleted = bm.Clone()
		}
		s.Leaves = append(s.Leaves, leaf)
		base += seg.MaxDoc()
	}
	for _, r := range e.readers {
		add(&segmentLeaf{Reader: r, base: base})
	}
	for _, m := range []*index.MemoryIndex{e.flushing, e.mem} {
		if m != nil {
			add(m.View(base))
		}
	}
	s.maxDoc = base
	for _, leaf := range s.Leaves {
		s.liveDocs += int(leaf.Segment.MaxDoc())
		if leaf.Deleted != nil {
			s.liveDocs -= int(leaf.Deleted.GetCardinality())
		}
	}
	return s
}

// MaxDoc is one greater than the largest global document number.
func (e *Engine) MaxDoc() int {
	return int(e.Snapshot().MaxDoc())
}

// HasTermAfter reports whether term occurs in field in a segment flushed
// after generation or in the unflushed buffer. Together with the terms of
// generation it covers every term a later snapshot can match, whatever
// flushes happen in between.
func (e *Engine) HasTermAfter(field, term string, generation uint64) bool {
	e.mu.RLock()
	mem, flushing := e.mem, e.flushing
	var newer []*segment.Reader
	for i := len(e.readers) - 1; i >= 0 && e.readers[i].Seq() > generation; i-- {
		newer = append(newer, e.readers[i])
	}
	e.mu.RUnlock()

	for _, r := range newer {
		if r.DocFreq(field, term) > 0 {
			return true
		}
	}
	if flushing != nil && flushing.HasTerm(field, term) {
		return true
	}
	return mem.HasTerm(field, term)
}

// ForEachIndexedTerm calls fn with every distinct term of field across the
// flushed segments, in ascending order.
func (e *Engine) ForEachIndexedTerm(field string, fn func(term string) error) error {
	e.mu.RLock()
	readers := append([]*segment.Reader(nil), e.readers...)
	e.mu.RUnlock()

	h := make(termHeap, 0, len(readers))
	for _, r := range readers {
		if terms := r.FieldTerms(field); len(terms) > 0 {
			h = append(h, &termCursor{terms: terms})
		}
	}
	heap.Init(&h)
	last, started := "", false
	for h.Len() > 0 {
		c := h[0]
		term := c.terms[c.pos]
		c.pos++
		if c.pos == len(c.terms) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
		if started && term == last {
			continue
		}
		if err := fn(term); err != nil {
			return err
		}
		last, started = term, true
	}
	return nil
}

type termCursor struct {
	terms []string
	pos   int
}

type termHeap []*termCursor

func (h termHeap) Len() int { return len(h) }
func (h termHeap) Less(i, j int) bool { return h[i].terms[h[i].pos] < h[j].terms[h[j].pos] }
func (h termHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *termHeap) Push(x any) { *h = append(*h, x.(*termCursor)) }

func (h *termHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// EngineStats summarizes the index for the stats endpoint.
type EngineStats struct {
	Generation   uint64 `json:"generation"`
	Segments     int    `json:"segments"`
	LiveDocs     int    `json:"live_docs"`
	DeletedDocs  int    `json:"deleted_docs"`
	BufferedDocs int    `json:"buffered_docs"`
	BufferBytes  int64  `json:"buffer_bytes"`
}

func (e *Engine) Stats() EngineStats {
	snap := e.Snapshot()
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := EngineStats{
		Generation:   snap.Generation,
		Segments:     len(e.readers),
		LiveDocs:     snap.LiveDocs(),
		DeletedDocs:  int(snap.MaxDoc()) - snap.LiveDocs(),
		BufferedDocs: e.mem.DocCount(),
		BufferBytes:  e.mem.Size(),
	}
	if e.flushing != nil {
		st.BufferedDocs += e.flushing.DocCount()
		st.BufferBytes += e.flushing.Size()
	}
	return st
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}

// loadExistingSegments opens the segment files in sequence order. Segment
// deletions are not persisted: a document id appearing in a later segment
// hides its copies in earlier ones.
func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			if _, ok := segment.ParseSeq(entry.Name()); ok {
				segFiles = append(segFiles, entry.Name())
			}
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		for doc := uint32(0); doc < reader.DocCount(); doc++ {
			id := reader.ExternalID(doc)
			if prev, ok := e.live[id]; ok {
				e.markDeleted(prev)
			}
			e.live[id] = docRef{leaf: reader.Name(), doc: doc}
		}
		e.generation = reader.Seq()
		e.nextSeq = reader.Seq() + 1
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete",
		"segments_loaded", len(e.readers),
		"generation", e.generation,
		"live_docs", len(e.live),
	)
	return nil
}
