// Package parser turns the query strings of a search request (q, bq, bf,
// boost, rq) into scoring expressions. Strings may start with local params
// selecting the parser: {!bmax}, {!tidismax}, {!dismax}, {!func},
// {!lucene}; without them a minimal field:term syntax applies.
package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// Query parser names accepted in local params.
const (
	TypeBmax     = "bmax"
	TypeTiDisMax = "tidismax"
	TypeDisMax   = "dismax"
	TypeFunc     = "func"
	TypeLucene   = "lucene"
	TypeRerank   = "rerank"
)

// Rerank defaults.
const (
	DefaultRerankDocs   = 200
	DefaultRerankWeight = 2.0
)

// DefaultField names the field of unqualified terms in the lucene syntax.
const DefaultField = "df"

// CacheResolver resolves cached(name,key) references.
type CacheResolver interface {
	Resolve(name, key string) (query.ValueSource, error)
}

// Parser parses request query strings.
type Parser struct {
	bmax     *bmax.Parser
	field    analysis.Analyzer
	caches   CacheResolver
	defaults config.BmaxConfig
}

// New returns a Parser. caches may be nil, in which case cached(...)
// references do not resolve.
func New(bp *bmax.Parser, fieldAnalyzer analysis.Analyzer, caches CacheResolver, defaults config.BmaxConfig) *Parser {
	return &Parser{bmax: bp, field: fieldAnalyzer, caches: caches, defaults: defaults}
}

// ParseQuery parses s as a query.
func (p *Parser) ParseQuery(ctx context.Context, s string, req params.Params) (query.Expression, error) {
	lp, local, err := params.ParseLocalParams(s, req)
	if err != nil {
		return nil, err
	}
	if !local {
		return p.parseLucene(s, req)
	}
	switch lp.Type {
	case TypeTiDisMax, TypeDisMax:
		return p.parseTermDisMax(ctx, lp, req)
	case TypeBmax:
		return p.parseBmax(ctx, lp, req)
	case TypeFunc:
		src, err := p.ParseFunction(lp.Body, req)
		if err != nil {
			return nil, err
		}
		return &query.FunctionQuery{Source: src}, nil
	case TypeLucene, "":
		return p.parseLucene(lp.Body, req)
	default:
		return nil, apperrors.Configf("unknown query parser %q", lp.Type)
	}
}

// parseTermDisMax reads qf, mm, tie and bq from the local params, falling
// back to the request for qf and tie.
func (p *Parser) parseTermDisMax(ctx context.Context, lp params.LocalParams, req params.Params) (query.Expression, error) {
	qf, ok := lp.Args[params.QF]
	if !ok {
		qf = strings.Join(req.GetAll(params.QF), " ")
	}
	fields, err := params.ParseFieldBoosts(qf)
	if err != nil {
		return nil, err
	}
	opts := bmax.TermDisMaxOptions{Fields: fields}
	if opts.MinShouldMatch, err = intArg(lp, params.MM, 0); err != nil {
		return nil, err
	}
	tie, err := req.Float(params.Tie, p.defaults.TieBreaker)
	if err != nil {
		return nil, err
	}
	if opts.TieBreaker, err = floatArg(lp, params.Tie, tie); err != nil {
		return nil, err
	}
	if opts.InspectTerms, err = req.Bool(bmax.ParamInspectTerms, p.defaults.InspectTerms); err != nil {
		return nil, err
	}
	expr, _, err := p.bmax.TermDisMax().Build(lp.Body, opts)
	if err != nil {
		return nil, err
	}
	if bq := strings.TrimSpace(lp.Arg(params.BQ, "")); bq != "" {
		extra, err := p.ParseQuery(ctx, bq, req)
		if err != nil {
			return nil, err
		}
		expr = &query.Boolean{Clauses: []query.Clause{
			{Expr: expr, Occur: query.Must},
			{Expr: extra, Occur: query.Should},
		}}
	}
	return expr, nil
}

// parseBmax runs the bmax parser with the local params overriding the
// request. Nested bmax queries never request their own rerank pass.
func (p *Parser) parseBmax(ctx context.Context, lp params.LocalParams, req params.Params) (query.Expression, error) {
	sub := req.Clone()
	for k, v := range lp.Args {
		sub.Set(k, v)
	}
	sub.Set(bmax.ParamBoostDownEnable, "false")
	res, err := p.bmax.Parse(ctx, lp.Body, sub, bmax.Boosts{})
	if err != nil {
		return nil, err
	}
	return res.Expression, nil
}

func intArg(lp params.LocalParams, key string, def int) (int, error) {
	v, ok := lp.Args[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, apperrors.Configf("local param %s: %q is not an integer", key, v)
	}
	return n, nil
}

func floatArg(lp params.LocalParams, key string, def float64) (float64, error) {
	v, ok := lp.Args[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, apperrors.Configf("local param %s: %q is not a number", key, v)
	}
	return f, nil
}

// Rerank is a parsed rq parameter.
type Rerank struct {
	Query  query.Expression
	Docs   int
	Weight float64
}

// ParseRerank parses the rq parameter. It returns nil when there is none.
func (p *Parser) ParseRerank(ctx context.Context, req params.Params) (*Rerank, error) {
	rq := strings.TrimSpace(req.Get(params.RQ))
	if rq == "" {
		return nil, nil
	}
	lp, local, err := params.ParseLocalParams(rq, req)
	if err != nil {
		return nil, err
	}
	if !local || lp.Type != TypeRerank {
		return nil, apperrors.Configf("rq %q is not a rerank query", rq)
	}
	qstr := lp.Arg("reRankQuery", "")
	if strings.TrimSpace(qstr) == "" {
		return nil, apperrors.Configf("rq %q has no reRankQuery", rq)
	}
	rr := &Rerank{}
	if rr.Docs, err = intArg(lp, "reRankDocs", DefaultRerankDocs); err != nil {
		return nil, err
	}
	if rr.Weight, err = floatArg(lp, "reRankWeight", DefaultRerankWeight); err != nil {
		return nil, err
	}
	if rr.Docs < 1 {
		return nil, apperrors.Configf("rq %q: reRankDocs must be positive", rq)
	}
	if rr.Query, err = p.ParseQuery(ctx, qstr, req); err != nil {
		return nil, err
	}
	return rr, nil
}

// Boosts parses bq, bf and boost.
func (p *Parser) Boosts(ctx context.Context, req params.Params) (bmax.Boosts, error) {
	var b bmax.Boosts
	for _, s := range req.GetAll(params.BQ) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		q, err := p.ParseQuery(ctx, s, req)
		if err != nil {
			return b, fmt.Errorf("parsing bq: %w", err)
		}
		b.Queries = append(b.Queries, q)
	}
	for _, s := range req.GetAll(params.BF) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		src, err := p.ParseFunction(s, req)
		if err != nil {
			return b, fmt.Errorf("parsing bf: %w", err)
		}
		b.Functions = append(b.Functions, &query.FunctionQuery{Source: src})
	}
	for _, s := range req.GetAll(params.Boost) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		src, err := p.ParseFunction(s, req)
		if err != nil {
			return b, fmt.Errorf("parsing boost: %w", err)
		}
		b.Multiplicative = append(b.Multiplicative, src)
	}
	return b, nil
}

// CompileBoost compiles boost expressions into the product of their
// functions.
func (p *Parser) CompileBoost(req params.Params) func(exprs []string) (query.ValueSource, error) {
	return func(exprs []string) (query.ValueSource, error) {
		sources := make([]query.ValueSource, 0, len(exprs))
		for _, e := range exprs {
			src, err := p.ParseFunction(e, req)
			if err != nil {
				return nil, compileError(e, err)
			}
			sources = append(sources, src)
		}
		return query.ProductOf(sources...), nil
	}
}

// CompileBoostQuery compiles boost queries into the product of their query
// values, each 1 for documents the query does not match.
func (p *Parser) CompileBoostQuery(ctx context.Context, req params.Params) func(exprs []string) (query.ValueSource, error) {
	return func(exprs []string) (query.ValueSource, error) {
		sources := make([]query.ValueSource, 0, len(exprs))
		for _, e := range exprs {
			q, err := p.ParseQuery(ctx, e, req)
			if err != nil {
				return nil, compileError(e, err)
			}
			sources = append(sources, &query.QueryValue{Expr: q, Default: 1.0})
		}
		return query.ProductOf(sources...), nil
	}
}

func compileError(expr string, err error) error {
	return fmt.Errorf("%w: %q: %v", apperrors.ErrCompilation, expr, err)
}
