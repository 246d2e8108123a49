package bmax

import (
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
)

// PhraseField configures one phrase proximity bonus. WordGrams 0 builds one
// phrase of the whole query; n >= 2 builds one phrase per window of n terms.
type PhraseField struct {
	Field     string
	WordGrams int
	Slop      int
	Boost     float64
}

// QueryModel is everything the Builder needs for one request. It is not
// modified once built.
type QueryModel struct {
	Terms               []AnalyzedTerm
	FieldBoosts         params.FieldBoosts
	SubtopicFieldBoosts params.FieldBoosts

	SynonymBoost          float64
	SubtopicBoost         float64
	TieBreaker            float64
	PhraseBoostTieBreaker float64
	PhraseFields          []PhraseField

	// InspectTerms drops clauses for terms the field dictionary knows are
	// absent from the field.
	InspectTerms bool
}

// TermTexts returns the term texts in query order.
func (m *QueryModel) TermTexts() []string {
	out := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		out[i] = t.Text
	}
	return out
}

// AllSynonyms returns every synonym of every term, without duplicates.
func (m *QueryModel) AllSynonyms() []string {
	set := newOrderedSet("")
	for _, t := range m.Terms {
		set.add(t.Synonyms...)
	}
	return set.values()
}

// AllSubtopics returns every subtopic of every term, without duplicates.
func (m *QueryModel) AllSubtopics() []string {
	set := newOrderedSet("")
	for _, t := range m.Terms {
		set.add(t.Subtopics...)
	}
	return set.values()
}
