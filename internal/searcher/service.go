// Package searcher runs search requests end to end: request rewriting by the
// booster and the boost caches, bmax parsing, execution against an index
// snapshot and result caching.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/boostcache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/booster"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/tracing"
)

// ParamLimit is the number of results to return.
const ParamLimit = "limit"

// SnapshotSource provides the index view a request runs against.
type SnapshotSource interface {
	Snapshot() *indexer.Snapshot
}

// Service runs search requests.
type Service struct {
	index   SnapshotSource
	bmax    *bmax.Parser
	parser  *parser.Parser
	booster *booster.Component
	caches  *boostcache.Coordinator
	exec    *executor.Executor
	results *cache.QueryCache
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBooster enables the booster component.
func WithBooster(b *booster.Component) Option { return func(s *Service) { s.booster = b } }

// WithBoostCaches enables the boost.cache and bq.cache components.
func WithBoostCaches(c *boostcache.Coordinator) Option { return func(s *Service) { s.caches = c } }

// WithResultCache caches whole responses.
func WithResultCache(c *cache.QueryCache) Option { return func(s *Service) { s.results = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func New(index SnapshotSource, bp *bmax.Parser, qp *parser.Parser, exec *executor.Executor, cfg config.SearchConfig, opts ...Option) *Service {
	s := &Service{
		index:  index,
		bmax:   bp,
		parser: qp,
		exec:   exec,
		cfg:    cfg,
		logger: logger.WithComponent("search-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	return s
}

// Search runs req. The request is never modified; rewriting happens on a
// copy. The boolean reports a result cache hit.
func (s *Service) Search(ctx context.Context, req params.Params) (*executor.SearchResult, bool, error) {
	start := time.Now()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if _, ok := req.Lookup(params.Q); !ok {
		return nil, false, apperrors.New(apperrors.ErrInvalidInput, 400, "query parameter 'q' is required")
	}

	snap := s.index.Snapshot()
	var (
		result *executor.SearchResult
		hit    bool
		err    error
	)
	debug, _ := req.Bool(params.Debug, false)
	if s.results != nil && !debug {
		result, hit, err = s.results.GetOrCompute(ctx, req, snap.Generation, func() (*executor.SearchResult, error) {
			return s.run(ctx, req.Clone(), snap)
		})
	} else {
		result, err = s.run(ctx, req.Clone(), snap)
	}

	status := "miss"
	if hit {
		status = "hit"
	}
	s.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
		return nil, false, err
	}
	s.metrics.SearchQueriesTotal.WithLabelValues("ok").Inc()
	return result, hit, nil
}

// run executes the pipeline on req, which it owns.
func (s *Service) run(ctx context.Context, req params.Params, snap *indexer.Snapshot) (*executor.SearchResult, error) {
	log := logger.FromContext(ctx)
	limit, err := s.limit(req)
	if err != nil {
		return nil, err
	}
	debug, err := req.Bool(params.Debug, false)
	if err != nil {
		return nil, err
	}
	original := req.Clone()
	var dbg executor.Debug

	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(log)
		if debug {
			dbg.Timing = span.Timings()
		}
	}()

	if s.booster != nil {
		end := tracing.Stage(ctx, "booster")
		entries, err := s.booster.Prepare(ctx, req)
		end()
		if err != nil {
			return nil, fmt.Errorf("booster: %w", err)
		}
		dbg.Booster = entries
	}
	if s.caches != nil {
		end := tracing.Stage(ctx, "boost_caches")
		dbg.Caches, err = s.prepareCaches(ctx, req, snap)
		end()
		if err != nil {
			return nil, err
		}
	}

	end := tracing.Stage(ctx, "parse")
	boosts, err := s.parser.Boosts(ctx, req)
	if err != nil {
		return nil, err
	}
	qstr := req.Get(params.Q)
	if strings.HasPrefix(strings.TrimSpace(qstr), "{!") {
		expr, err := s.parser.ParseQuery(ctx, qstr, req)
		end()
		if err != nil {
			return nil, err
		}
		dbg.Expression = expr.String()
		return s.execute(ctx, req, snap, expr, limit, query.CountTerms(expr), debug, &dbg, original)
	}

	res, err := s.bmax.Parse(ctx, qstr, req, boosts)
	end()
	if err != nil {
		return nil, err
	}
	clauses := res.ClauseCount
	dbg.Expression = res.Expression.String()
	dbg.Terms = res.Model.TermTexts()
	dbg.Synonyms = res.Model.AllSynonyms()
	dbg.Subtopics = res.Model.AllSubtopics()
	dbg.BoostUpTerms = res.BoostUpTerms
	dbg.BoostDownTerms = res.BoostDownTerms
	log.Debug("query parsed", "q", qstr, "clauses", clauses)
	return s.execute(ctx, req, snap, res.Expression, limit, clauses, debug, &dbg, original)
}

func (s *Service) execute(
	ctx context.Context,
	req params.Params,
	snap *indexer.Snapshot,
	expr query.Expression,
	limit, clauses int,
	debug bool,
	dbg *executor.Debug,
	original params.Params,
) (*executor.SearchResult, error) {
	s.metrics.QueryClauseCount.Observe(float64(clauses))
	rr, err := s.parser.ParseRerank(ctx, req)
	if err != nil {
		return nil, err
	}
	end := tracing.Stage(ctx, "execute")
	result, err := s.exec.Execute(ctx, snap, executor.Request{Expr: expr, Limit: limit, Rerank: rr})
	end()
	if err != nil {
		return nil, err
	}
	result.Query = original.Get(params.Q)
	if result.Results == nil {
		result.Results = []ranker.ScoredDoc{}
	}
	if debug {
		dbg.ClauseCount = clauses
		if rr != nil {
			dbg.Rerank = fmt.Sprintf("%s docs=%d weight=%s", rr.Query.String(), rr.Docs, params.FormatFloat(rr.Weight))
		}
		dbg.Params = debugParams(req)
		result.Debug = dbg
	}
	return result, nil
}

// prepareCaches runs the boost cache components. Compilation resolves $refs
// against the request being rewritten.
func (s *Service) prepareCaches(ctx context.Context, req params.Params, snap *indexer.Snapshot) (map[string]string, error) {
	var components []*boostcache.Component
	if r, ok := s.caches.Region(boostcache.BoostCache); ok {
		components = append(components, boostcache.NewBoostComponent(r, s.parser.CompileBoost(req)))
	}
	if r, ok := s.caches.Region(boostcache.BQCache); ok {
		components = append(components, boostcache.NewBoostQueryComponent(r, s.parser.CompileBoostQuery(ctx, req)))
	}
	var out map[string]string
	for _, c := range components {
		msg, err := c.Prepare(ctx, req, int(snap.MaxDoc()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		if msg == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[c.Name()] = msg
	}
	return out, nil
}

func (s *Service) limit(req params.Params) (int, error) {
	limit := s.cfg.DefaultLimit
	if limit < 1 {
		limit = 10
	}
	if v := req.Get(ParamLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, apperrors.New(apperrors.ErrInvalidInput, 400, "limit must be a positive integer")
		}
		limit = n
	}
	if s.cfg.MaxResults > 0 && limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	return limit, nil
}

// debugParams reports the rewritten parameters that drive scoring.
func debugParams(req params.Params) map[string]string {
	out := make(map[string]string)
	for _, k := range []string{params.Q, params.QF, params.BQ, params.BF, params.Boost, params.RQ, bmax.ParamRerankQuery,
		params.Boost + ".cached", params.BQ + ".cached"} {
		if vs := req.GetAll(k); len(vs) > 0 {
			out[k] = strings.Join(vs, " | ")
		}
	}
	return out
}
