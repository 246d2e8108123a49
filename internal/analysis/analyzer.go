// Package analysis turns text into terms. A Chain is one tokenizer followed
// by an ordered list of token filters; a Registry holds the named chains
// ("field types") and maps index fields onto them.
package analysis

import (
	"fmt"
)

// Analyzer tokenizes text for a field. Implementations must be deterministic
// for identical input and field.
type Analyzer interface {
	Tokenize(text, field string) ([]string, error)
}

// Token is a term and its position in the analyzed text. Tokens injected by
// filters (synonyms) share the position of the token they were derived from.
type Token struct {
	Term     string
	Position int
}

// Tokenizer splits raw text into positioned tokens.
type Tokenizer interface {
	Tokenize(text string) ([]Token, error)
}

// Filter rewrites a token stream.
type Filter interface {
	Filter(tokens []Token) ([]Token, error)
}

// FilterFunc adapts a per-term mapping into a Filter. Returning "" drops the
// token.
type FilterFunc func(term string) string

func (f FilterFunc) Filter(tokens []Token) ([]Token, error) {
	out := tokens[:0]
	for _, tok := range tokens {
		if term := f(tok.Term); term != "" {
			tok.Term = term
			out = append(out, tok)
		}
	}
	return out, nil
}

// Chain is a named tokenizer plus filters.
type Chain struct {
	name      string
	tokenizer Tokenizer
	filters   []Filter
}

// NewChain assembles a chain from parts.
func NewChain(name string, tokenizer Tokenizer, filters ...Filter) *Chain {
	return &Chain{name: name, tokenizer: tokenizer, filters: filters}
}

func (c *Chain) Name() string {
	return c.name
}

// Analyze returns the positioned tokens of text. Positions are compacted so
// that removed tokens leave no gaps.
func (c *Chain) Analyze(text string) ([]Token, error) {
	tokens, err := c.tokenizer.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: tokenizing: %w", c.name, err)
	}
	for _, f := range c.filters {
		tokens, err = f.Filter(tokens)
		if err != nil {
			return nil, fmt.Errorf("analyzer %s: filtering: %w", c.name, err)
		}
	}
	compact(tokens)
	return tokens, nil
}

// Tokenize implements Analyzer. The field is ignored: a Chain already is the
// analyzer of one field type.
func (c *Chain) Tokenize(text, _ string) ([]string, error) {
	tokens, err := c.Analyze(text)
	if err != nil {
		return nil, err
	}
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms, nil
}

func compact(tokens []Token) {
	next, last := -1, -1
	for i := range tokens {
		if tokens[i].Position != last {
			last = tokens[i].Position
			next++
		}
		tokens[i].Position = next
	}
}

// Collect returns the distinct terms of text in first-seen order.
func Collect(a Analyzer, text, field string) ([]string, error) {
	terms, err := a.Tokenize(text, field)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out, nil
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(text, field string) ([]string, error)

func (f AnalyzerFunc) Tokenize(text, field string) ([]string, error) {
	return f(text, field)
}
