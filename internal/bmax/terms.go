// Package bmax builds the scoring expression of a free-text query: every
// analyzed query term becomes a required disjunction over the query fields,
// its synonyms and its subtopics, optionally joined by boost queries, boost
// functions and a phrase proximity bonus.
package bmax

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// Wildcard is the query string matching every document.
const Wildcard = "*:*"

// expansionField is the field context passed to the expansion analyzers.
const expansionField = "bmax"

// AnalyzedTerm is one query term with its expansions. Synonyms and subtopics
// keep first-seen order.
type AnalyzedTerm struct {
	Text      string   `json:"term"`
	Synonyms  []string `json:"synonyms,omitempty"`
	Subtopics []string `json:"subtopics,omitempty"`
}

// ExpandOptions configures Expand. Only QueryAnalyzer is required.
type ExpandOptions struct {
	QueryAnalyzer    analysis.Analyzer
	SynonymAnalyzer  analysis.Analyzer
	SubtopicAnalyzer analysis.Analyzer
	// ExtraSynonyms are request supplied synonyms merged into the analyzed
	// ones, see ParseExtraSynonyms.
	ExtraSynonyms map[string][]string
}

// Expand analyzes raw into terms. The wildcard query yields no terms. Any
// analyzer failure fails the whole expansion.
func Expand(raw string, opts ExpandOptions) ([]AnalyzedTerm, error) {
	if opts.QueryAnalyzer == nil {
		return nil, apperrors.Configf("no query parsing analyzer configured")
	}
	if strings.TrimSpace(raw) == Wildcard {
		return nil, nil
	}

	texts, err := analysis.Collect(opts.QueryAnalyzer, raw, expansionField)
	if err != nil {
		return nil, expansionError(raw, err)
	}

	terms := make([]AnalyzedTerm, 0, len(texts))
	for _, text := range texts {
		term := AnalyzedTerm{Text: text}

		synonyms := newOrderedSet(text)
		if opts.SynonymAnalyzer != nil {
			tokens, err := opts.SynonymAnalyzer.Tokenize(text, expansionField)
			if err != nil {
				return nil, expansionError(text, err)
			}
			synonyms.add(tokens...)
		}
		synonyms.add(opts.ExtraSynonyms[text]...)
		term.Synonyms = synonyms.values()

		if opts.SubtopicAnalyzer != nil {
			// the term matches at full weight already, so it is never its own subtopic
			subtopics := newOrderedSet(text)
			for _, source := range append([]string{text}, term.Synonyms...) {
				tokens, err := opts.SubtopicAnalyzer.Tokenize(source, expansionField)
				if err != nil {
					return nil, expansionError(source, err)
				}
				subtopics.add(tokens...)
			}
			term.Subtopics = subtopics.values()
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func expansionError(text string, err error) error {
	return fmt.Errorf("%w: analyzing %q: %w", apperrors.ErrExpansion, text, err)
}

// ParseExtraSynonyms parses "a,b=>x,y|c=>z". Groups without exactly one "=>"
// are skipped. Every term on the left receives the synonyms on the right.
func ParseExtraSynonyms(s string) map[string][]string {
	out := make(map[string][]string)
	for _, group := range strings.Split(s, "|") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		sides := strings.Split(group, "=>")
		if len(sides) != 2 {
			continue
		}
		synonyms := splitTrim(sides[1])
		if len(synonyms) == 0 {
			continue
		}
		for _, term := range splitTrim(sides[0]) {
			out[term] = append(out[term], synonyms...)
		}
	}
	return out
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// orderedSet collects distinct strings in insertion order, never admitting
// the excluded value.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet(exclude string) *orderedSet {
	return &orderedSet{seen: map[string]struct{}{exclude: {}}}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok || v == "" {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) values() []string { return s.items }
