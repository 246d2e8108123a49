package booster

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

// Name is the component name and the prefix of its parameters.
const Name = "bmax.booster"

// Request parameters.
const (
	ParamEnable           = Name
	ParamSynonyms         = Name + ".synonyms"
	ParamBoost            = Name + ".boost"
	ParamBoostExtra       = Name + ".boost.extra"
	ParamBoostFactor      = Name + ".boost.factor"
	ParamBoostFields      = Name + ".boost.qf"
	ParamBoostStrategy    = Name + ".boost.strategy"
	ParamBoostDocs        = Name + ".boost.docs"
	ParamPenalize         = Name + ".penalize"
	ParamPenalizeExtra    = Name + ".penalize.extra"
	ParamPenalizeFactor   = Name + ".penalize.factor"
	ParamPenalizeFields   = Name + ".penalize.qf"
	ParamPenalizeStrategy = Name + ".penalize.strategy"
	ParamPenalizeDocs     = Name + ".penalize.docs"
)

// Debug keys.
const (
	DebugBoostTerms    = Name + ".boost.terms"
	DebugPenalizeTerms = Name + ".penalize.terms"
)

// Analyzers used by the component. Query is required. A nil Boost or
// Penalize analyzer falls back to Query.
type Analyzers struct {
	Query    analysis.Analyzer
	Synonym  analysis.Analyzer
	Boost    analysis.Analyzer
	Penalize analysis.Analyzer
}

// AnalyzersFromRegistry resolves the analyzers named in cfg.
func AnalyzersFromRegistry(reg *analysis.Registry, cfg config.BoosterConfig) (Analyzers, error) {
	var a Analyzers
	for _, r := range []struct {
		name string
		dst  *analysis.Analyzer
	}{
		{cfg.QueryParsingAnalyzer, &a.Query},
		{cfg.SynonymAnalyzer, &a.Synonym},
		{cfg.BoostTermAnalyzer, &a.Boost},
		{cfg.PenalizeTermAnalyzer, &a.Penalize},
	} {
		an, err := reg.Optional(r.name)
		if err != nil {
			return Analyzers{}, apperrors.Configf("booster analyzers: %v", err)
		}
		*r.dst = an
	}
	return a, nil
}

// Component rewrites request parameters with boost and penalize terms.
type Component struct {
	analyzers Analyzers
	defaults  config.BoosterConfig
}

func NewComponent(a Analyzers, defaults config.BoosterConfig) (*Component, error) {
	if a.Query == nil {
		return nil, apperrors.Configf("booster: no query parsing analyzer configured")
	}
	if a.Boost == nil {
		a.Boost = a.Query
	}
	if a.Penalize == nil {
		a.Penalize = a.Query
	}
	if _, err := ParseKind(defaults.BoostStrategy); err != nil {
		return nil, err
	}
	if _, err := ParseKind(defaults.PenalizeStrategy); err != nil {
		return nil, err
	}
	return &Component{analyzers: a, defaults: defaults}, nil
}

// Applies reports whether the component runs for req: it must be enabled, the
// query must not be the match-all query and results must be sorted by
// descending score.
func Applies(req params.Params) (bool, error) {
	enabled, err := req.Bool(ParamEnable, false)
	if err != nil || !enabled {
		return false, err
	}
	q, ok := req.Lookup(params.Q)
	if !ok || strings.TrimSpace(q) == "*:*" {
		return false, nil
	}
	sort := strings.ToLower(req.Get(params.Sort))
	return sort == "" || (strings.Contains(sort, "score") && strings.Contains(sort, "desc")), nil
}

// Prepare rewrites req in place when the component applies and returns the
// debug entries. Boost terms are applied before penalize terms, so a boost
// rerank wins over a penalize rerank.
func (c *Component) Prepare(ctx context.Context, req params.Params) (map[string]string, error) {
	ok, err := Applies(req)
	if err != nil || !ok {
		return nil, err
	}
	q, err := c.parseQuery(req)
	if err != nil {
		return nil, err
	}

	boost, err := c.strategy(req, false)
	if err != nil {
		return nil, err
	}
	penalize, err := c.strategy(req, true)
	if err != nil {
		return nil, err
	}

	debug := make(map[string]string)
	for _, s := range []struct {
		strategy *Strategy
		key      string
	}{
		{boost, DebugBoostTerms},
		{penalize, DebugPenalizeTerms},
	} {
		if s.strategy == nil {
			continue
		}
		terms, err := s.strategy.Apply(q, req)
		if err != nil {
			return nil, err
		}
		if terms != "" {
			debug[s.key] = terms
		}
	}
	logger.FromContext(ctx).Debug("booster applied", "query", q, "debug", debug)
	return debug, nil
}

// parseQuery analyzes q with the query parsing analyzer and appends the
// synonyms of the result when enabled.
func (c *Component) parseQuery(req params.Params) (string, error) {
	raw := req.Get(params.Q)
	terms, err := analysis.Collect(c.analyzers.Query, raw, "")
	if err != nil {
		return "", fmt.Errorf("%w: analyzing %q: %w", apperrors.ErrExpansion, raw, err)
	}
	q := strings.Join(terms, " ")

	synonyms, err := req.Bool(ParamSynonyms, true)
	if err != nil {
		return "", err
	}
	if synonyms && c.analyzers.Synonym != nil {
		syns, err := analysis.Collect(c.analyzers.Synonym, q, "")
		if err != nil {
			return "", fmt.Errorf("%w: analyzing synonyms of %q: %w", apperrors.ErrExpansion, q, err)
		}
		q += " " + strings.Join(syns, " ")
	}
	return q, nil
}

// termSet names the parameters and defaults of the boost or penalize side.
type termSet struct {
	enable, extra, factor, fields, strategy, docs string

	defFactor float64
	defDocs   int
	defKind   string
	queryType string
	analyzer  analysis.Analyzer
	sign      float64
}

func (c *Component) termSet(penalize bool) termSet {
	d := c.defaults
	if penalize {
		return termSet{
			enable: ParamPenalize, extra: ParamPenalizeExtra, factor: ParamPenalizeFactor,
			fields: ParamPenalizeFields, strategy: ParamPenalizeStrategy, docs: ParamPenalizeDocs,
			defFactor: d.PenalizeFactor, defDocs: d.PenalizeDocs, defKind: d.PenalizeStrategy,
			queryType: d.PenalizeQueryType, analyzer: c.analyzers.Penalize, sign: -1,
		}
	}
	return termSet{
		enable: ParamBoost, extra: ParamBoostExtra, factor: ParamBoostFactor,
		fields: ParamBoostFields, strategy: ParamBoostStrategy, docs: ParamBoostDocs,
		defFactor: d.BoostFactor, defDocs: d.BoostDocs, defKind: d.BoostStrategy,
		queryType: d.BoostQueryType, analyzer: c.analyzers.Boost, sign: 1,
	}
}

// strategy reads the boost (or penalize) settings from req. It returns nil
// when the term set is disabled.
func (c *Component) strategy(req params.Params, penalize bool) (*Strategy, error) {
	ts := c.termSet(penalize)
	enabled, err := req.Bool(ts.enable, true)
	if err != nil || !enabled {
		return nil, err
	}
	s := &Strategy{QueryType: ts.queryType, Analyzer: ts.analyzer, Extra: req.Get(ts.extra)}
	if s.Kind, err = ParseKind(firstNonEmpty(req.Get(ts.strategy), ts.defKind)); err != nil {
		return nil, err
	}
	if s.Factor, err = req.Float(ts.factor, ts.defFactor); err != nil {
		return nil, err
	}
	s.Factor = ts.sign * math.Abs(s.Factor)
	if s.Docs, err = req.Int(ts.docs, ts.defDocs); err != nil {
		return nil, err
	}
	fields := req.GetAll(ts.fields)
	if len(fields) == 0 {
		fields = req.GetAll(params.QF)
	}
	if s.Fields, err = params.ParseFieldBoosts(fields...); err != nil {
		return nil, err
	}
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
