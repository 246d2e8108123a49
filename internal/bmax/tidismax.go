package bmax

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// TermDisMax builds the term inspecting dismax used for boost and penalize
// term sets: every term is an optional dismax over the fields, each field
// clause scaled by its boost. Unlike the main query, field boosts may be
// negative.
type TermDisMax struct {
	QueryAnalyzer analysis.Analyzer
	FieldAnalyzer analysis.Analyzer
	Dictionaries  DictionaryLookup
}

// TermDisMaxOptions are the per-query settings of TermDisMax.Build.
type TermDisMaxOptions struct {
	Fields         params.FieldBoosts
	TieBreaker     float64
	MinShouldMatch int
	InspectTerms   bool
}

// Build returns the expression for text and the number of term clauses.
func (t *TermDisMax) Build(text string, opts TermDisMaxOptions) (query.Expression, int, error) {
	if strings.TrimSpace(text) == Wildcard {
		return query.MatchAll{}, 0, nil
	}
	terms, err := analysis.Collect(t.QueryAnalyzer, text, expansionField)
	if err != nil {
		return nil, 0, expansionError(text, err)
	}
	return t.BuildTerms(terms, opts)
}

// BuildTerms is Build for terms that are already analyzed.
func (t *TermDisMax) BuildTerms(terms []string, opts TermDisMaxOptions) (query.Expression, int, error) {
	clauses := make([]query.Clause, 0, len(terms))
	count := 0
	for _, term := range terms {
		var disjuncts []query.Expression
		for _, fb := range opts.Fields {
			tokens, err := analysis.Collect(t.FieldAnalyzer, term, fb.Field)
			if err != nil {
				return nil, 0, expansionError(term, err)
			}
			dict := Unknown
			if opts.InspectTerms && t.Dictionaries != nil {
				dict = t.Dictionaries.Dictionary(fb.Field)
			}
			for _, tok := range tokens {
				if !dict.MayContain(tok) {
					continue
				}
				var clause query.Expression = &query.TermSet{Field: fb.Field, Terms: []string{tok}}
				if fb.Explicit {
					clause = &query.Boost{Expr: clause, Factor: fb.Boost}
				}
				disjuncts = append(disjuncts, clause)
				count++
			}
		}
		clauses = append(clauses, query.Clause{
			Expr:  &query.DisMax{Disjuncts: disjuncts, TieBreaker: opts.TieBreaker},
			Occur: query.Should,
		})
	}
	return &query.Boolean{Clauses: clauses, MinShouldMatch: opts.MinShouldMatch}, count, nil
}
