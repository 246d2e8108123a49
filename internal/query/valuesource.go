package query

import (
	"strings"
)

// FloatValues yields one float per segment-local document.
type FloatValues interface {
	FloatVal(doc uint32) float64
}

// FloatValuesFunc adapts a function to FloatValues.
type FloatValuesFunc func(doc uint32) float64

func (f FloatValuesFunc) FloatVal(doc uint32) float64 { return f(doc) }

// ValueSource produces per-document values for a segment. Function queries
// and multiplicative boosts are built from value sources.
type ValueSource interface {
	String() string
	Values(ctx *Context) (FloatValues, error)
}

// Const yields the same value for every document.
type Const struct {
	Value float64
}

func (c Const) String() string { return formatFloat(c.Value) }

func (c Const) Values(*Context) (FloatValues, error) {
	v := c.Value
	return FloatValuesFunc(func(uint32) float64 { return v }), nil
}

// QueryValue yields the score of Expr for matching documents and Default for
// all others.
type QueryValue struct {
	Expr    Expression
	Default float64
}

func (q *QueryValue) String() string {
	return "query(" + q.Expr.String() + ",def=" + formatFloat(q.Default) + ")"
}

func (q *QueryValue) Values(ctx *Context) (FloatValues, error) {
	s, err := q.Expr.Scorer(ctx)
	if err != nil {
		return nil, err
	}
	docs, def := s.Docs(), q.Default
	return FloatValuesFunc(func(doc uint32) float64 {
		if docs.Contains(doc) {
			return s.Score(doc)
		}
		return def
	}), nil
}

// Product multiplies its sources.
type Product struct {
	Sources []ValueSource
}

func (p *Product) String() string {
	parts := make([]string, len(p.Sources))
	for i, s := range p.Sources {
		parts[i] = s.String()
	}
	return "product(" + strings.Join(parts, ",") + ")"
}

func (p *Product) Values(ctx *Context) (FloatValues, error) {
	vals := make([]FloatValues, len(p.Sources))
	for i, s := range p.Sources {
		v, err := s.Values(ctx)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return FloatValuesFunc(func(doc uint32) float64 {
		out := 1.0
		for _, v := range vals {
			out *= v.FloatVal(doc)
		}
		return out
	}), nil
}

// ProductOf returns the single source itself, or a Product of several.
func ProductOf(sources ...ValueSource) ValueSource {
	if len(sources) == 1 {
		return sources[0]
	}
	return &Product{Sources: sources}
}
