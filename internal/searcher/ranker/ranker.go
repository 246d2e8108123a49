// Package ranker holds scored hits and the rerank pass that rescores the top
// of a result list with a second query.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// ScoredDoc is one hit. Doc is the global document number within the
// snapshot the hit was produced from.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Doc   uint32  `json:"-"`
	Score float64 `json:"score"`
}

// Less orders hits by descending score, then ascending document number.
func Less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

// Rerank rescores the first window hits as score + weight * rerank score,
// where the rerank score is 0 for documents rq does not match, and sorts
// them. The rescored hits stay ahead of the rest, which keep their order.
func Rerank(snap *indexer.Snapshot, hits []ScoredDoc, rq query.Expression, window int, weight float64) ([]ScoredDoc, error) {
	if window > len(hits) {
		window = len(hits)
	}
	top := hits[:window]

	byLeaf := make(map[int][]int)
	for i, h := range top {
		leaf := leafIndex(snap, h.Doc)
		if leaf < 0 {
			continue
		}
		byLeaf[leaf] = append(byLeaf[leaf], i)
	}
	for leaf, idx := range byLeaf {
		scorer, err := rq.Scorer(snap.Context(leaf))
		if err != nil {
			return nil, err
		}
		base := snap.Leaves[leaf].Segment.DocBase()
		docs := scorer.Docs()
		for _, i := range idx {
			local := top[i].Doc - base
			if docs.Contains(local) {
				top[i].Score += weight * scorer.Score(local)
			}
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return Less(top[i], top[j]) })
	return hits, nil
}

func leafIndex(snap *indexer.Snapshot, doc uint32) int {
	i := sort.Search(len(snap.Leaves), func(i int) bool {
		seg := snap.Leaves[i].Segment
		return seg.DocBase()+seg.MaxDoc() > doc
	})
	if i == len(snap.Leaves) {
		return -1
	}
	return i
}
