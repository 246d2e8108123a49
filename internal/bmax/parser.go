package bmax

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

// Request parameters read by the parser.
const (
	ParamPhraseFields        = "pf"
	ParamPhraseFields2       = "pf2"
	ParamPhraseFields3       = "pf3"
	ParamPhraseSlop          = "ps"
	ParamPhraseSlop2         = "ps2"
	ParamPhraseSlop3         = "ps3"
	ParamPhraseBoostTie      = "bmax.phraseBoost.tie"
	ParamSynonymEnable       = "bmax.synonym.enable"
	ParamSynonymBoost        = "bmax.synonym.boost"
	ParamSynonymExtra        = "bmax.synonym.extra"
	ParamSubtopicEnable      = "bmax.subtopic.enable"
	ParamSubtopicBoost       = "bmax.subtopic.boost"
	ParamSubtopicFields      = "bmax.subtopic.qf"
	ParamInspectTerms        = "bmax.inspectTerms"
	ParamEmptyQueryMatchNone = "bmax.emptyQuery.matchNone"
	ParamBoostUpEnable       = "bmax.boostUpTerm.enable"
	ParamBoostUpFields       = "bmax.boostUpTerm.qf"
	ParamBoostUpExtra        = "bmax.boostUpTerm.extra"
	ParamBoostDownEnable     = "bmax.boostDownTerm.enable"
	ParamBoostDownWeight     = "bmax.boostDownTerm.weight"
	ParamBoostDownExtra      = "bmax.boostDownTerm.extra"

	// ParamRerankQuery holds the query a rerank pass refers to as $rqq.
	ParamRerankQuery = "rqq"
)

// boostDownDocs is the rerank window of the boost-down pass.
const boostDownDocs = 400

// Analyzers are the analyzers the parser uses. Only Query and Field are
// required.
type Analyzers struct {
	Query     analysis.Analyzer
	Synonym   analysis.Analyzer
	Subtopic  analysis.Analyzer
	BoostUp   analysis.Analyzer
	BoostDown analysis.Analyzer
	// Field analyzes a term for a given index field.
	Field analysis.Analyzer
}

// AnalyzersFromRegistry resolves the analyzers named in cfg.
func AnalyzersFromRegistry(reg *analysis.Registry, cfg config.BmaxConfig) (Analyzers, error) {
	var a Analyzers
	var err error
	resolve := func(name string, dst *analysis.Analyzer) {
		if err != nil {
			return
		}
		*dst, err = reg.Optional(name)
	}
	resolve(cfg.QueryParsingAnalyzer, &a.Query)
	resolve(cfg.SynonymAnalyzer, &a.Synonym)
	resolve(cfg.SubtopicAnalyzer, &a.Subtopic)
	resolve(cfg.BoostUpAnalyzer, &a.BoostUp)
	resolve(cfg.BoostDownAnalyzer, &a.BoostDown)
	if err != nil {
		return Analyzers{}, apperrors.Configf("bmax analyzers: %v", err)
	}
	a.Field = reg.FieldAnalyzer()
	return a, nil
}

// Boosts are the already parsed boost parameters of a request.
type Boosts struct {
	// Queries are optional clauses (bq).
	Queries []query.Expression
	// Functions are optional additive function clauses (bf).
	Functions []query.Expression
	// Multiplicative values scale the final score (boost).
	Multiplicative []query.ValueSource
}

// Result is a parsed bmax query plus what debugging output reports about it.
type Result struct {
	Expression     query.Expression
	Model          *QueryModel
	ClauseCount    int
	BoostUpTerms   []string
	BoostDownTerms []string
}

// Parser parses bmax requests.
type Parser struct {
	analyzers    Analyzers
	defaults     config.BmaxConfig
	dictionaries DictionaryLookup
}

// NewParser returns a parser. dictionaries may be nil, which disables term
// inspection.
func NewParser(a Analyzers, defaults config.BmaxConfig, dictionaries DictionaryLookup) (*Parser, error) {
	if a.Query == nil {
		return nil, apperrors.Configf("bmax: no query parsing analyzer configured")
	}
	if a.Field == nil {
		return nil, apperrors.Configf("bmax: no field analyzer configured")
	}
	return &Parser{analyzers: a, defaults: defaults, dictionaries: dictionaries}, nil
}

// TermDisMax returns a term inspecting dismax builder sharing the parser's
// analyzers and dictionaries.
func (p *Parser) TermDisMax() *TermDisMax {
	return &TermDisMax{
		QueryAnalyzer: p.analyzers.Query,
		FieldAnalyzer: p.analyzers.Field,
		Dictionaries:  p.dictionaries,
	}
}

// Parse builds the expression for qstr. The boost-down pass is requested by
// adding rq and rqq to req unless req already asks for a rerank.
func (p *Parser) Parse(ctx context.Context, qstr string, req params.Params, boosts Boosts) (*Result, error) {
	model, err := p.Model(qstr, req)
	if err != nil {
		return nil, err
	}
	matchNone, err := req.Bool(ParamEmptyQueryMatchNone, p.defaults.MatchNoneForEmptyQuery)
	if err != nil {
		return nil, err
	}

	res := &Result{Model: model}
	boostQueries := boosts.Queries
	if strings.TrimSpace(qstr) != Wildcard {
		up, err := p.boostUpClause(qstr, req, model)
		if err != nil {
			return nil, err
		}
		if up != nil {
			boostQueries = append(append([]query.Expression(nil), boostQueries...), up.expr)
			res.BoostUpTerms = up.terms
		}
		if res.BoostDownTerms, err = p.appendRerank(ctx, qstr, req, model); err != nil {
			return nil, err
		}
	}

	b := NewBuilder(model, p.analyzers.Field).
		WithDictionaries(p.dictionaries).
		WithBoostQueries(boostQueries...).
		WithBoostFunctions(boosts.Functions...).
		WithMultiplicativeBoosts(boosts.Multiplicative...).
		WithMatchNoneForEmptyQuery(matchNone)
	expr, err := b.Build()
	if err != nil {
		return nil, err
	}
	res.Expression = expr
	res.ClauseCount = b.ClauseCount()

	logger.FromContext(ctx).Debug("bmax query built",
		"terms", model.TermTexts(),
		"synonyms", model.AllSynonyms(),
		"subtopics", model.AllSubtopics(),
		"clauses", res.ClauseCount)
	return res, nil
}

// Model reads the query model from the request.
func (p *Parser) Model(qstr string, req params.Params) (*QueryModel, error) {
	d := p.defaults
	m := &QueryModel{}
	var err error

	if m.FieldBoosts, err = params.ParseFieldBoosts(req.GetAll(params.QF)...); err != nil {
		return nil, err
	}
	if m.TieBreaker, err = req.Float(params.Tie, d.TieBreaker); err != nil {
		return nil, err
	}
	if m.PhraseBoostTieBreaker, err = req.Float(ParamPhraseBoostTie, m.TieBreaker); err != nil {
		return nil, err
	}
	if m.SynonymBoost, err = req.Float(ParamSynonymBoost, d.SynonymBoost); err != nil {
		return nil, err
	}
	if m.SubtopicBoost, err = req.Float(ParamSubtopicBoost, d.SubtopicBoost); err != nil {
		return nil, err
	}
	if m.InspectTerms, err = req.Bool(ParamInspectTerms, d.InspectTerms); err != nil {
		return nil, err
	}
	synonymsOn, err := req.Bool(ParamSynonymEnable, true)
	if err != nil {
		return nil, err
	}
	subtopicsOn, err := req.Bool(ParamSubtopicEnable, true)
	if err != nil {
		return nil, err
	}

	if subtopicsOn {
		if req.Has(ParamSubtopicFields) {
			if m.SubtopicFieldBoosts, err = params.ParseFieldBoosts(req.GetAll(ParamSubtopicFields)...); err != nil {
				return nil, err
			}
		} else {
			m.SubtopicFieldBoosts = m.FieldBoosts
		}
	}
	if m.PhraseFields, err = parsePhraseParams(req); err != nil {
		return nil, err
	}

	opts := ExpandOptions{QueryAnalyzer: p.analyzers.Query}
	if synonymsOn {
		opts.SynonymAnalyzer = p.analyzers.Synonym
		if extra, ok := req.Lookup(ParamSynonymExtra); ok {
			opts.ExtraSynonyms = ParseExtraSynonyms(extra)
		}
	}
	if subtopicsOn {
		opts.SubtopicAnalyzer = p.analyzers.Subtopic
	}
	if m.Terms, err = Expand(qstr, opts); err != nil {
		return nil, err
	}
	if len(m.Terms) > 0 && len(m.FieldBoosts) == 0 {
		return nil, apperrors.Configf("bmax: no query fields given (%s)", params.QF)
	}
	return m, nil
}

type boostUp struct {
	expr  query.Expression
	terms []string
}

// boostUpClause builds the optional dismax over boost-up terms.
func (p *Parser) boostUpClause(qstr string, req params.Params, m *QueryModel) (*boostUp, error) {
	enabled, err := req.Bool(ParamBoostUpEnable, true)
	if err != nil || !enabled {
		return nil, err
	}
	terms, err := collectWithExtras(p.analyzers.BoostUp, qstr, req.Get(ParamBoostUpExtra))
	if err != nil || len(terms) == 0 {
		return nil, err
	}
	fields := m.FieldBoosts
	if req.Has(ParamBoostUpFields) {
		if fields, err = params.ParseFieldBoosts(req.GetAll(ParamBoostUpFields)...); err != nil {
			return nil, err
		}
	}
	expr, _, err := p.TermDisMax().BuildTerms(terms, TermDisMaxOptions{
		Fields:       fields,
		TieBreaker:   m.TieBreaker,
		InspectTerms: m.InspectTerms,
	})
	if err != nil {
		return nil, err
	}
	return &boostUp{expr: expr, terms: terms}, nil
}

// appendRerank requests the boost-down rerank pass. An rq already present
// wins and the boost-down terms are only reported.
func (p *Parser) appendRerank(ctx context.Context, qstr string, req params.Params, m *QueryModel) ([]string, error) {
	enabled, err := req.Bool(ParamBoostDownEnable, true)
	if err != nil || !enabled {
		return nil, err
	}
	terms, err := collectWithExtras(p.analyzers.BoostDown, qstr, req.Get(ParamBoostDownExtra))
	if err != nil || len(terms) == 0 {
		return terms, err
	}
	weight, err := req.Float(ParamBoostDownWeight, p.defaults.BoostDownTermWeight)
	if err != nil {
		return nil, err
	}
	if req.Has(params.RQ) {
		logger.FromContext(ctx).Debug("rerank already requested, ignoring boost-down terms", "terms", terms)
		return terms, nil
	}

	joined := strings.Join(terms, " OR ")
	parts := make([]string, len(m.FieldBoosts))
	for i, fb := range m.FieldBoosts {
		parts[i] = fb.Field + ":(" + joined + ")"
	}
	req.Set(params.RQ, fmt.Sprintf("{!rerank reRankQuery=$%s reRankDocs=%d reRankWeight=%.1f}",
		ParamRerankQuery, boostDownDocs, -math.Abs(weight)))
	req.Set(ParamRerankQuery, strings.Join(parts, " OR "))
	return terms, nil
}

// collectWithExtras analyzes text with a (which may be nil) and appends the
// comma separated extras.
func collectWithExtras(a analysis.Analyzer, text, extras string) ([]string, error) {
	set := newOrderedSet("")
	if a != nil {
		terms, err := analysis.Collect(a, text, expansionField)
		if err != nil {
			return nil, expansionError(text, err)
		}
		set.add(terms...)
	}
	set.add(params.SplitList(extras)...)
	return set.values(), nil
}

// parsePhraseParams reads pf, pf2 and pf3 with their slops. Entries take the
// form field, field^boost, field~slop or field~slop^boost.
func parsePhraseParams(req params.Params) ([]PhraseField, error) {
	slop, err := req.Int(ParamPhraseSlop, 0)
	if err != nil {
		return nil, err
	}
	specs := []struct {
		fields, slop string
		wordGrams    int
	}{
		{ParamPhraseFields, ParamPhraseSlop, 0},
		{ParamPhraseFields2, ParamPhraseSlop2, 2},
		{ParamPhraseFields3, ParamPhraseSlop3, 3},
	}
	var out []PhraseField
	for _, spec := range specs {
		if !req.Has(spec.fields) {
			continue
		}
		s, err := req.Int(spec.slop, slop)
		if err != nil {
			return nil, err
		}
		for _, value := range req.GetAll(spec.fields) {
			for _, entry := range strings.Fields(value) {
				pf, err := parsePhraseField(entry, spec.wordGrams, s)
				if err != nil {
					return nil, err
				}
				out = append(out, pf)
			}
		}
	}
	return out, nil
}

func parsePhraseField(entry string, wordGrams, slop int) (PhraseField, error) {
	pf := PhraseField{WordGrams: wordGrams, Slop: slop, Boost: 1.0}
	rest, boost, hasBoost := strings.Cut(entry, "^")
	if hasBoost {
		b, err := strconv.ParseFloat(boost, 64)
		if err != nil {
			return pf, apperrors.Configf("phrase field %q has a malformed boost", entry)
		}
		pf.Boost = b
	}
	field, s, hasSlop := strings.Cut(rest, "~")
	if hasSlop {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return pf, apperrors.Configf("phrase field %q has a malformed slop", entry)
		}
		pf.Slop = n
	}
	if field == "" {
		return pf, apperrors.Configf("phrase field %q has no field name", entry)
	}
	pf.Field = field
	return pf, nil
}
