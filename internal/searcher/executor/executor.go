// Package executor evaluates a scoring expression against an index snapshot,
// one goroutine per segment, and keeps the best hits.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/ranker"
)

// SearchResult is the response body of a search.
type SearchResult struct {
	Query      string             `json:"query"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
	Generation uint64             `json:"generation"`
	Debug      *Debug             `json:"debug,omitempty"`
}

// Debug is the debugging output of a search.
type Debug struct {
	Expression     string            `json:"expression"`
	ClauseCount    int               `json:"clause_count"`
	Terms          []string          `json:"terms,omitempty"`
	Synonyms       []string          `json:"synonyms,omitempty"`
	Subtopics      []string          `json:"subtopics,omitempty"`
	BoostUpTerms   []string          `json:"boost_up_terms,omitempty"`
	BoostDownTerms []string          `json:"boost_down_terms,omitempty"`
	Rerank         string            `json:"rerank,omitempty"`
	Booster        map[string]string `json:"booster,omitempty"`
	Caches         map[string]string `json:"caches,omitempty"`
	Params         map[string]string `json:"params,omitempty"`

	// Timing is milliseconds per pipeline stage, keyed by span path.
	Timing map[string]float64 `json:"timing,omitempty"`
}

// Request is one evaluation.
type Request struct {
	Expr   query.Expression
	Limit  int
	Rerank *parser.Rerank
}

type Executor struct {
	maxParallel int
	logger      *slog.Logger
}

// New returns an executor scoring at most maxParallel segments at once; 0
// means no limit.
func New(maxParallel int) *Executor {
	return &Executor{
		maxParallel: maxParallel,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// Execute scores every live document matching req.Expr. With a rerank, the
// top req.Rerank.Docs hits are rescored before the result is cut to
// req.Limit.
func (e *Executor) Execute(ctx context.Context, snap *indexer.Snapshot, req Request) (*SearchResult, error) {
	keep := req.Limit
	if req.Rerank != nil && req.Rerank.Docs > keep {
		keep = req.Rerank.Docs
	}

	perLeaf := make([][]ranker.ScoredDoc, len(snap.Leaves))
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for i := range snap.Leaves {
		i := i
		if snap.Leaves[i].Segment.MaxDoc() == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hits, n, err := scoreLeaf(snap, i, req.Expr, keep)
			if err != nil {
				return fmt.Errorf("scoring segment %s: %w", snap.Leaves[i].Segment.ID(), err)
			}
			perLeaf[i] = hits
			total.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits := merger.Merge(perLeaf, keep)
	if req.Rerank != nil {
		var err error
		if hits, err = ranker.Rerank(snap, hits, req.Rerank.Query, req.Rerank.Docs, req.Rerank.Weight); err != nil {
			return nil, fmt.Errorf("reranking: %w", err)
		}
	}
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	e.logger.Debug("query executed",
		"segments", len(snap.Leaves),
		"total_hits", total.Load(),
		"returned", len(hits),
		"reranked", req.Rerank != nil,
	)
	return &SearchResult{
		TotalHits:  int(total.Load()),
		Results:    hits,
		Generation: snap.Generation,
	}, nil
}

func scoreLeaf(snap *indexer.Snapshot, i int, expr query.Expression, keep int) ([]ranker.ScoredDoc, int, error) {
	leaf := snap.Leaves[i]
	scorer, err := expr.Scorer(snap.Context(i))
	if err != nil {
		return nil, 0, err
	}
	base := leaf.Segment.DocBase()
	top := merger.NewTopN(keep)
	matched := 0
	it := scorer.Docs().Iterator()
	for it.HasNext() {
		doc := it.Next()
		if doc >= leaf.Segment.MaxDoc() || !leaf.IsLive(doc) {
			continue
		}
		matched++
		top.Push(ranker.ScoredDoc{
			DocID: leaf.Segment.ExternalID(doc),
			Doc:   base + doc,
			Score: scorer.Score(doc),
		})
	}
	return top.Sorted(), matched, nil
}
