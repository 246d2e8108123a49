// Package index holds the in-memory write buffer of the index engine.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// MemoryIndex buffers analyzed documents until they are flushed into a
// segment. Documents are numbered in insertion order and keep their numbers
// in the flushed segment. Postings are only ever appended, so a View taken
// earlier stays consistent while documents are added.
type MemoryIndex struct {
	seq uint64

	mu       sync.RWMutex
	postings map[string]map[string][]query.Posting
	lengths  map[string][]uint32
	ids      []string
	size     int64
}

// NewMemoryIndex returns an empty buffer that will become segment seq.
func NewMemoryIndex(seq uint64) *MemoryIndex {
	return &MemoryIndex{
		seq:      seq,
		postings: make(map[string]map[string][]query.Posting),
		lengths:  make(map[string][]uint32),
	}
}

// Seq is the sequence number of the segment this buffer becomes.
func (m *MemoryIndex) Seq() uint64 { return m.seq }

// Name identifies the buffer and later its segment.
func (m *MemoryIndex) Name() string { return SegmentName(m.seq) }

// SegmentName is the name shared by a buffer and the segment it is flushed to.
func SegmentName(seq uint64) string { return fmt.Sprintf("seg_%020d", seq) }

// AnalyzedDocument is a document broken into positioned terms per field.
type AnalyzedDocument struct {
	ID     string
	fields map[string]analyzedField
}

type analyzedField struct {
	length    uint32
	positions map[string][]uint32
}

// Analyze tokenizes every field of doc.
func Analyze(doc Document, analyzer Analyzer) (*AnalyzedDocument, error) {
	a := &AnalyzedDocument{ID: doc.ID, fields: make(map[string]analyzedField, len(doc.Fields))}
	for field, text := range doc.Fields {
		tokens, err := analyzer.AnalyzeField(field, text)
		if err != nil {
			return nil, fmt.Errorf("analyzing field %s of %s: %w", field, doc.ID, err)
		}
		af := analyzedField{positions: make(map[string][]uint32)}
		for _, tok := range tokens {
			af.positions[tok.Term] = append(af.positions[tok.Term], uint32(tok.Position))
		}
		if n := len(tokens); n > 0 {
			af.length = uint32(tokens[n-1].Position + 1)
		}
		a.fields[field] = af
	}
	return a, nil
}

// AddDocument analyzes doc and appends it, returning its local number.
func (m *MemoryIndex) AddDocument(doc Document, analyzer Analyzer) (uint32, error) {
	a, err := Analyze(doc, analyzer)
	if err != nil {
		return 0, err
	}
	return m.Add(a), nil
}

// Add appends an analyzed document and returns its local number.
func (m *MemoryIndex) Add(a *AnalyzedDocument) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	local := uint32(len(m.ids))
	m.ids = append(m.ids, a.ID)
	m.size += int64(len(a.ID) + 16)
	for field, af := range a.fields {
		byTerm := m.postings[field]
		if byTerm == nil {
			byTerm = make(map[string][]query.Posting)
			m.postings[field] = byTerm
		}
		for term, pos := range af.positions {
			byTerm[term] = append(byTerm[term], query.Posting{Doc: local, Freq: uint32(len(pos)), Positions: pos})
			m.size += int64(len(term) + len(pos)*4 + 48)
		}
		lengths := m.lengths[field]
		for uint32(len(lengths)) < local {
			lengths = append(lengths, 0)
		}
		m.lengths[field] = append(lengths, af.length)
	}
	return local
}

// Size is the approximate memory held by the buffer in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// HasTerm reports whether any buffered document has term in field.
func (m *MemoryIndex) HasTerm(field, term string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.postings[field][term]
	return ok
}

// Snapshot returns the buffer's content in segment order.
func (m *MemoryIndex) Snapshot() *SegmentData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.ids)
	data := &SegmentData{
		IDs:     append([]string(nil), m.ids...),
		Lengths: make(map[string][]uint32, len(m.lengths)),
	}
	for field, lengths := range m.lengths {
		padded := make([]uint32, n)
		copy(padded, lengths)
		data.Lengths[field] = padded
	}
	for field, byTerm := range m.postings {
		for term, postings := range byTerm {
			data.Terms = append(data.Terms, TermEntry{
				Field:    field,
				Term:     term,
				Postings: append([]query.Posting(nil), postings...),
			})
		}
	}
	sort.Slice(data.Terms, func(i, j int) bool {
		a, b := data.Terms[i], data.Terms[j]
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Term < b.Term
	})
	return data
}

// View returns a fixed view of the documents buffered so far, numbered from
// docBase.
func (m *MemoryIndex) View(docBase uint32) *View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &View{m: m, base: docBase, maxDoc: uint32(len(m.ids))}
}

// View is a query.Segment over a prefix of a MemoryIndex. It is not
// addressable: the buffer's documents change number space when flushed
// under a different doc base, and the buffer keeps growing.
type View struct {
	m      *MemoryIndex
	base   uint32
	maxDoc uint32
}

func (v *View) ID() string { return v.m.Name() }
func (v *View) DocBase() uint32 { return v.base }
func (v *View) MaxDoc() uint32 { return v.maxDoc }
func (v *View) Addressable() bool { return false }

func (v *View) Postings(field, term string) ([]query.Posting, error) {
	v.m.mu.RLock()
	postings := v.m.postings[field][term]
	v.m.mu.RUnlock()
	n := sort.Search(len(postings), func(i int) bool { return postings[i].Doc >= v.maxDoc })
	return postings[:n], nil
}

func (v *View) FieldLength(field string, doc uint32) uint32 {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	if lengths := v.m.lengths[field]; doc < v.maxDoc && int(doc) < len(lengths) {
		return lengths[doc]
	}
	return 0
}

// DocFreq is the number of documents of the view containing term.
func (v *View) DocFreq(field, term string) int {
	postings, _ := v.Postings(field, term)
	return len(postings)
}

// TotalFieldLength sums the field lengths of the view's documents.
func (v *View) TotalFieldLength(field string) uint64 {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	var total uint64
	for i, l := range v.m.lengths[field] {
		if uint32(i) >= v.maxDoc {
			break
		}
		total += uint64(l)
	}
	return total
}

// ExternalID returns the id doc was indexed under.
func (v *View) ExternalID(doc uint32) string {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	if doc < v.maxDoc {
		return v.m.ids[doc]
	}
	return ""
}
