package bmax

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// userTermBoost is the extra weight of a term's own text.
const userTermBoost = 1.0

// Builder turns a QueryModel into a scoring expression. A Builder is used for
// one Build call.
type Builder struct {
	model         *QueryModel
	fieldAnalyzer analysis.Analyzer
	dictionaries  DictionaryLookup

	boostQueries   []query.Expression
	boostFunctions []query.Expression
	multiplicative []query.ValueSource
	matchNone      bool

	clauses int
}

// NewBuilder returns a builder analyzing every term per field with
// fieldAnalyzer.
func NewBuilder(model *QueryModel, fieldAnalyzer analysis.Analyzer) *Builder {
	return &Builder{model: model, fieldAnalyzer: fieldAnalyzer}
}

// WithDictionaries enables term inspection against d when the model asks
// for it.
func (b *Builder) WithDictionaries(d DictionaryLookup) *Builder {
	b.dictionaries = d
	return b
}

// WithBoostQueries adds optional clauses next to the term clauses.
func (b *Builder) WithBoostQueries(qs ...query.Expression) *Builder {
	b.boostQueries = append(b.boostQueries, qs...)
	return b
}

// WithBoostFunctions adds optional additive function clauses.
func (b *Builder) WithBoostFunctions(fs ...query.Expression) *Builder {
	b.boostFunctions = append(b.boostFunctions, fs...)
	return b
}

// WithMultiplicativeBoosts multiplies the final score by the product of vs.
func (b *Builder) WithMultiplicativeBoosts(vs ...query.ValueSource) *Builder {
	b.multiplicative = append(b.multiplicative, vs...)
	return b
}

// WithMatchNoneForEmptyQuery makes a query without terms match nothing
// instead of everything.
func (b *Builder) WithMatchNoneForEmptyQuery(v bool) *Builder {
	b.matchNone = v
	return b
}

// ClauseCount is the number of term clauses the last Build produced.
func (b *Builder) ClauseCount() int { return b.clauses }

// Build assembles the expression.
func (b *Builder) Build() (query.Expression, error) {
	b.clauses = 0
	inner, err := b.buildWrapping()
	if err != nil {
		return nil, err
	}
	if len(b.multiplicative) == 0 {
		return inner, nil
	}
	return &query.FunctionBoost{Expr: inner, Source: query.ProductOf(b.multiplicative...)}, nil
}

func (b *Builder) buildWrapping() (query.Expression, error) {
	if len(b.model.Terms) == 0 {
		if b.matchNone {
			return query.MatchNone{}, nil
		}
		return query.MatchAll{}, nil
	}

	clauses := make([]query.Clause, 0, len(b.model.Terms)+len(b.boostQueries)+len(b.boostFunctions)+1)
	for _, term := range b.model.Terms {
		dm, err := b.buildDisMax(term)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, query.Clause{Expr: dm, Occur: query.Must})
	}
	for _, q := range b.boostQueries {
		clauses = append(clauses, query.Clause{Expr: q, Occur: query.Should})
	}
	for _, f := range b.boostFunctions {
		clauses = append(clauses, query.Clause{Expr: f, Occur: query.Should})
	}
	phrase, err := b.buildPhraseBonus()
	if err != nil {
		return nil, err
	}
	if phrase != nil {
		clauses = append(clauses, query.Clause{Expr: phrase, Occur: query.Should})
	}
	return &query.Boolean{Clauses: clauses}, nil
}

// buildDisMax collects the clauses of one term over every field: the term
// itself, its synonyms and, on the subtopic fields, its subtopics.
func (b *Builder) buildDisMax(term AnalyzedTerm) (*query.DisMax, error) {
	m := b.model
	var disjuncts []query.Expression
	add := func(field string, fieldBoost float64, text string, extra float64) error {
		clause, err := b.buildTermClause(field, fieldBoost, text, extra)
		if err != nil {
			return err
		}
		if clause != nil {
			disjuncts = append(disjuncts, clause)
		}
		return nil
	}

	for _, fb := range m.FieldBoosts {
		if err := add(fb.Field, fb.Boost, term.Text, userTermBoost); err != nil {
			return nil, err
		}
		for _, syn := range term.Synonyms {
			if err := add(fb.Field, fb.Boost, syn, m.SynonymBoost); err != nil {
				return nil, err
			}
		}
	}
	if len(term.Subtopics) > 0 {
		for _, fb := range m.SubtopicFieldBoosts {
			for _, sub := range term.Subtopics {
				if err := add(fb.Field, fb.Boost, sub, m.SubtopicBoost); err != nil {
					return nil, err
				}
			}
		}
	}
	return &query.DisMax{Disjuncts: disjuncts, TieBreaker: m.TieBreaker}, nil
}

// buildTermClause analyzes text for field and returns a weighted term set, or
// nil when no term is left or the weight is not positive.
func (b *Builder) buildTermClause(field string, fieldBoost float64, text string, extra float64) (query.Expression, error) {
	weight := fieldBoost * extra
	if weight <= 0 {
		return nil, nil
	}
	tokens, err := b.fieldAnalyzer.Tokenize(text, field)
	if err != nil {
		return nil, expansionError(text, err)
	}

	dict := Unknown
	if b.model.InspectTerms && b.dictionaries != nil {
		dict = b.dictionaries.Dictionary(field)
	}
	terms := tokens[:0:0]
	for _, t := range tokens {
		if dict.MayContain(t) {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}
	b.clauses++
	return withBoost(&query.TermSet{Field: field, Terms: terms}, weight), nil
}

// buildPhraseBonus returns the proximity bonus of all phrase fields, or nil.
func (b *Builder) buildPhraseBonus() (query.Expression, error) {
	m := b.model
	if len(m.PhraseFields) == 0 || len(m.Terms) < 2 {
		return nil, nil
	}
	texts := m.TermTexts()
	memo := make(map[int][]string, 2)

	var disjuncts []query.Expression
	for _, pf := range m.PhraseFields {
		shingles, ok := memo[pf.WordGrams]
		if !ok {
			shingles = Shingles(texts, pf.WordGrams)
			memo[pf.WordGrams] = shingles
		}

		var phrases []query.Expression
		for _, shingle := range shingles {
			q, err := b.buildPhrase(pf.Field, shingle, pf.Slop)
			if err != nil {
				return nil, err
			}
			if q != nil {
				phrases = append(phrases, q)
			}
		}

		switch len(phrases) {
		case 0:
		case 1:
			disjuncts = append(disjuncts, withBoost(phrases[0], pf.Boost))
		default:
			clauses := make([]query.Clause, len(phrases))
			for i, p := range phrases {
				clauses[i] = query.Clause{Expr: p, Occur: query.Should}
			}
			disjuncts = append(disjuncts, withBoost(&query.Boolean{Clauses: clauses, MinShouldMatch: 1}, pf.Boost))
		}
	}

	switch len(disjuncts) {
	case 0:
		return nil, nil
	case 1:
		return disjuncts[0], nil
	default:
		return &query.DisMax{Disjuncts: disjuncts, TieBreaker: m.PhraseBoostTieBreaker}, nil
	}
}

// buildPhrase analyzes a shingle for field. A single remaining token becomes
// a term query.
func (b *Builder) buildPhrase(field, shingle string, slop int) (query.Expression, error) {
	tokens, err := b.fieldAnalyzer.Tokenize(shingle, field)
	if err != nil {
		return nil, expansionError(shingle, err)
	}
	switch len(tokens) {
	case 0:
		return nil, nil
	case 1:
		return &query.TermSet{Field: field, Terms: tokens}, nil
	default:
		return &query.Phrase{Field: field, Terms: tokens, Slop: slop}, nil
	}
}

// Shingles returns the word n-grams of terms. n == 0 yields the whole
// sequence; n larger than the sequence yields nothing.
func Shingles(terms []string, n int) []string {
	if n == 0 {
		return []string{strings.Join(terms, " ")}
	}
	if n < 1 || n > len(terms) {
		return nil
	}
	out := make([]string, 0, len(terms)-n+1)
	for i := 0; i+n <= len(terms); i++ {
		out = append(out, strings.Join(terms[i:i+n], " "))
	}
	return out
}

func withBoost(e query.Expression, factor float64) query.Expression {
	if factor == 1 {
		return e
	}
	return &query.Boost{Expr: e, Factor: factor}
}
