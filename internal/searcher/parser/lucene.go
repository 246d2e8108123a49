package parser

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// parseLucene parses a small subset of the lucene syntax: optional clauses
// separated by whitespace or OR, each one of
//
//	term  field:term  field:(t1 OR t2)  field:"a phrase"  *:*
//
// optionally prefixed by + (required) and suffixed by ^boost. Unqualified
// terms search the df field, or the first qf field.
func (p *Parser) parseLucene(s string, req params.Params) (query.Expression, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return query.MatchNone{}, nil
	}
	if s == bmax.Wildcard {
		return query.MatchAll{}, nil
	}
	chunks, err := splitClauses(s)
	if err != nil {
		return nil, err
	}
	var clauses []query.Clause
	for _, chunk := range chunks {
		if chunk == "OR" || chunk == "||" {
			continue
		}
		occur := query.Should
		switch chunk[0] {
		case '+':
			occur = query.Must
			chunk = chunk[1:]
		case '-':
			return nil, apperrors.Configf("query %q: prohibited clauses are not supported", s)
		}
		expr, err := p.luceneClause(chunk, req)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, query.Clause{Expr: expr, Occur: occur})
	}
	if len(clauses) == 0 {
		return query.MatchNone{}, nil
	}
	if len(clauses) == 1 && clauses[0].Occur == query.Should {
		return clauses[0].Expr, nil
	}
	return &query.Boolean{Clauses: clauses}, nil
}

func (p *Parser) luceneClause(chunk string, req params.Params) (query.Expression, error) {
	if chunk == bmax.Wildcard {
		return query.MatchAll{}, nil
	}
	body, boost, err := splitBoost(chunk)
	if err != nil {
		return nil, err
	}

	field, value, qualified := "", body, false
	if i := strings.IndexByte(body, ':'); i > 0 && !strings.ContainsAny(body[:i], "(\"") {
		field, value, qualified = body[:i], body[i+1:], true
	}
	if !qualified {
		if field = req.Get(DefaultField); field == "" {
			fields, err := params.ParseFieldBoosts(req.GetAll(params.QF)...)
			if err != nil {
				return nil, err
			}
			if len(fields) == 0 {
				return nil, apperrors.Configf("term %q has no field and neither %s nor %s is set", chunk, DefaultField, params.QF)
			}
			field = fields[0].Field
		}
	}

	var expr query.Expression
	switch {
	case strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")"):
		var terms []string
		for _, t := range strings.Fields(value[1 : len(value)-1]) {
			if t == "OR" || t == "||" {
				continue
			}
			tokens, err := analysis.Collect(p.field, t, field)
			if err != nil {
				return nil, err
			}
			terms = append(terms, tokens...)
		}
		expr = &query.TermSet{Field: field, Terms: terms}
	case strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) > 1:
		tokens, err := analysis.Collect(p.field, value[1:len(value)-1], field)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 1 {
			expr = &query.TermSet{Field: field, Terms: tokens}
		} else {
			expr = &query.Phrase{Field: field, Terms: tokens}
		}
	default:
		tokens, err := analysis.Collect(p.field, value, field)
		if err != nil {
			return nil, err
		}
		expr = &query.TermSet{Field: field, Terms: tokens}
	}
	if boost != 1 {
		expr = &query.Boost{Expr: expr, Factor: boost}
	}
	return expr, nil
}

// splitBoost separates a trailing ^boost.
func splitBoost(chunk string) (string, float64, error) {
	i := strings.LastIndexByte(chunk, '^')
	if i < 0 || strings.ContainsAny(chunk[i:], `)"`) {
		return chunk, 1, nil
	}
	b, err := strconv.ParseFloat(chunk[i+1:], 64)
	if err != nil {
		return "", 0, apperrors.Configf("clause %q has a malformed boost", chunk)
	}
	return chunk[:i], b, nil
}

// splitClauses splits on whitespace outside parentheses and quotes.
func splitClauses(s string) ([]string, error) {
	var out []string
	depth, quoted, start := 0, false, -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, apperrors.Configf("query %q has unbalanced parentheses", s)
			}
		case (c == ' ' || c == '\t') && depth == 0:
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if depth != 0 || quoted {
		return nil, apperrors.Configf("query %q has unbalanced parentheses or quotes", s)
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out, nil
}
