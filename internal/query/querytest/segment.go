// Package querytest provides a small in-memory segment for exercising
// scoring expressions in tests.
package querytest

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// Segment holds whitespace-tokenized documents. Document numbers are the
// order of Add calls.
type Segment struct {
	id          string
	base        uint32
	addressable bool
	postings    map[string]map[string][]query.Posting
	lengths     map[string][]uint32
	maxDoc      uint32
}

// NewSegment returns an empty addressable segment.
func NewSegment(id string, docBase uint32) *Segment {
	return &Segment{
		id:          id,
		base:        docBase,
		addressable: true,
		postings:    make(map[string]map[string][]query.Posting),
		lengths:     make(map[string][]uint32),
	}
}

// SetAddressable changes the segment's Addressable answer.
func (s *Segment) SetAddressable(v bool) *Segment {
	s.addressable = v
	return s
}

// Add appends a document given as field -> whitespace separated terms and
// returns its local number.
func (s *Segment) Add(fields map[string]string) uint32 {
	doc := s.maxDoc
	s.maxDoc++
	for field, text := range fields {
		terms := strings.Fields(text)
		byTerm := s.postings[field]
		if byTerm == nil {
			byTerm = make(map[string][]query.Posting)
			s.postings[field] = byTerm
		}
		positions := make(map[string][]uint32)
		for pos, term := range terms {
			positions[term] = append(positions[term], uint32(pos))
		}
		for term, pos := range positions {
			byTerm[term] = append(byTerm[term], query.Posting{Doc: doc, Freq: uint32(len(pos)), Positions: pos})
		}
		lengths := s.lengths[field]
		for uint32(len(lengths)) < doc {
			lengths = append(lengths, 0)
		}
		s.lengths[field] = append(lengths, uint32(len(terms)))
	}
	return doc
}

func (s *Segment) ID() string { return s.id }
func (s *Segment) DocBase() uint32 { return s.base }
func (s *Segment) MaxDoc() uint32 { return s.maxDoc }
func (s *Segment) Addressable() bool { return s.addressable }

func (s *Segment) Postings(field, term string) ([]query.Posting, error) {
	return s.postings[field][term], nil
}

func (s *Segment) FieldLength(field string, doc uint32) uint32 {
	lengths := s.lengths[field]
	if int(doc) < len(lengths) {
		return lengths[doc]
	}
	return 0
}

// Terms returns the sorted distinct terms of field.
func (s *Segment) Terms(field string) []string {
	out := make([]string, 0, len(s.postings[field]))
	for term := range s.postings[field] {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// NumDocs implements query.Stats over this segment alone.
func (s *Segment) NumDocs() int { return int(s.maxDoc) }

func (s *Segment) DocFreq(field, term string) int {
	return len(s.postings[field][term])
}

func (s *Segment) AvgFieldLength(field string) float64 {
	lengths := s.lengths[field]
	if len(lengths) == 0 {
		return 0
	}
	total := 0
	for _, l := range lengths {
		total += int(l)
	}
	return float64(total) / float64(s.maxDoc)
}

// Context returns a scoring context using the segment as its own statistics.
func (s *Segment) Context() *query.Context {
	return &query.Context{Segment: s, Stats: s}
}
