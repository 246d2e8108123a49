package index

import (
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// Document is the unit of indexing: an external id plus named text fields.
type Document struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// TermEntry is one term of one field with its postings.
type TermEntry struct {
	Field    string
	Term     string
	Postings []query.Posting
}

// SegmentData is everything a flushed segment holds. Terms are sorted by
// field, then term.
type SegmentData struct {
	IDs     []string
	Lengths map[string][]uint32
	Terms   []TermEntry
}

// Analyzer produces positioned tokens for a field.
type Analyzer interface {
	AnalyzeField(field, text string) ([]analysis.Token, error)
}
