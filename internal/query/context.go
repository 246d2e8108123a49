// Package query is the scoring expression model the query parsers produce and
// the executor evaluates. Expressions are evaluated one index segment at a
// time: Scorer returns the set of matching segment-local documents and their
// scores.
package query

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Posting is one document entry of a term's posting list. Positions are
// ascending.
type Posting struct {
	Doc       uint32
	Freq      uint32
	Positions []uint32
}

// Segment is the read view of one index segment.
type Segment interface {
	// ID identifies the segment for as long as its documents keep their
	// numbers.
	ID() string
	// DocBase is the global number of the segment's first document.
	DocBase() uint32
	// MaxDoc is one greater than the largest local document number.
	MaxDoc() uint32
	// Postings returns the postings of term in field, ordered by Doc.
	Postings(field, term string) ([]Posting, error)
	// FieldLength is the number of tokens doc has in field.
	FieldLength(field string, doc uint32) uint32
	// Addressable reports whether per-document values computed for this
	// segment can be memoized under its ID.
	Addressable() bool
}

// Stats are collection-wide statistics used for scoring, so that a term
// scores the same whichever segment it is found in.
type Stats interface {
	NumDocs() int
	DocFreq(field, term string) int
	AvgFieldLength(field string) float64
}

// Context carries what a scorer needs to evaluate against one segment.
type Context struct {
	Segment Segment
	Stats   Stats
}

// Scorer is an expression evaluated on one segment.
type Scorer interface {
	// Docs is the set of matching local documents. Callers must not modify it.
	Docs() *roaring.Bitmap
	// Score is only meaningful for documents in Docs.
	Score(doc uint32) float64
}

// Expression is a node of a scoring expression tree.
type Expression interface {
	String() string
	Scorer(ctx *Context) (Scorer, error)
}

// mapScorer is the scorer most nodes produce: a doc set plus a score table.
type mapScorer struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

func newMapScorer() *mapScorer {
	return &mapScorer{docs: roaring.New(), scores: make(map[uint32]float64)}
}

func (s *mapScorer) add(doc uint32, score float64) {
	s.docs.Add(doc)
	s.scores[doc] += score
}

func (s *mapScorer) Docs() *roaring.Bitmap { return s.docs }
func (s *mapScorer) Score(doc uint32) float64 { return s.scores[doc] }

// emptyScorer matches nothing.
type emptyScorer struct{}

func (emptyScorer) Docs() *roaring.Bitmap { return roaring.New() }
func (emptyScorer) Score(uint32) float64 { return 0 }

// constScorer matches docs with a fixed score.
type constScorer struct {
	docs  *roaring.Bitmap
	score float64
}

func (s constScorer) Docs() *roaring.Bitmap { return s.docs }
func (s constScorer) Score(uint32) float64 { return s.score }

func allDocs(seg Segment) *roaring.Bitmap {
	bm := roaring.New()
	if seg.MaxDoc() > 0 {
		bm.AddRange(0, uint64(seg.MaxDoc()))
	}
	return bm
}
