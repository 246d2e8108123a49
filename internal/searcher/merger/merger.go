// Package merger keeps the best hits of several per-segment result lists.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/ranker"
)

// TopN collects at most n hits, keeping the best seen so far.
type TopN struct {
	n int
	h scoredDocHeap
}

func NewTopN(n int) *TopN {
	if n <= 0 {
		n = 10
	}
	return &TopN{n: n}
}

func (t *TopN) Push(doc ranker.ScoredDoc) {
	if len(t.h) < t.n {
		heap.Push(&t.h, doc)
		return
	}
	if ranker.Less(doc, t.h[0]) {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

// Sorted drains the collector, best hit first.
func (t *TopN) Sorted() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

// Merge returns the best limit hits of all lists, best first.
func Merge(segmentResults [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	t := NewTopN(limit)
	for _, results := range segmentResults {
		for _, doc := range results {
			t.Push(doc)
		}
	}
	return t.Sorted()
}

// scoredDocHeap is a min-heap: the worst kept hit is at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ranker.Less(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
