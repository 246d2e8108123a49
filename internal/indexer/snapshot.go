package indexer

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// LeafSegment is a segment of a Snapshot: a flushed segment or a view of the
// buffer.
type LeafSegment interface {
	query.Segment
	DocFreq(field, term string) int
	TotalFieldLength(field string) uint64
	ExternalID(doc uint32) string
}

// Leaf is one segment and its deleted local documents. Deleted is nil when
// every document is live.
type Leaf struct {
	Segment LeafSegment
	Deleted *roaring.Bitmap
}

// IsLive reports whether the local document doc is live.
func (l Leaf) IsLive(doc uint32) bool {
	return l.Deleted == nil || !l.Deleted.Contains(doc)
}

// segmentLeaf places a flushed segment in the global document space.
type segmentLeaf struct {
	*segment.Reader
	base uint32
}

func (s *segmentLeaf) ID() string { return s.Name() }
func (s *segmentLeaf) DocBase() uint32 { return s.base }
func (s *segmentLeaf) MaxDoc() uint32 { return s.DocCount() }
func (s *segmentLeaf) Addressable() bool { return true }

// Snapshot is a point-in-time view of the index. It provides the
// collection statistics used for scoring: document counts include deleted
// documents so that scores do not shift while replaced documents await
// compaction.
type Snapshot struct {
	Generation uint64
	Leaves     []Leaf

	maxDoc   uint32
	liveDocs int

	mu      sync.Mutex
	lengths map[string]float64
}

var _ query.Stats = (*Snapshot)(nil)

func (s *Snapshot) NumDocs() int { return int(s.maxDoc) }

// MaxDoc is one greater than the largest global document number.
func (s *Snapshot) MaxDoc() uint32 { return s.maxDoc }

func (s *Snapshot) LiveDocs() int { return s.liveDocs }

func (s *Snapshot) DocFreq(field, term string) int {
	n := 0
	for _, leaf := range s.Leaves {
		n += leaf.Segment.DocFreq(field, term)
	}
	return n
}

func (s *Snapshot) AvgFieldLength(field string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if avg, ok := s.lengths[field]; ok {
		return avg
	}
	var total uint64
	for _, leaf := range s.Leaves {
		total += leaf.Segment.TotalFieldLength(field)
	}
	avg := 0.0
	if s.maxDoc > 0 {
		avg = float64(total) / float64(s.maxDoc)
	}
	s.lengths[field] = avg
	return avg
}

// Locate returns the leaf holding the global document doc and its local
// number.
func (s *Snapshot) Locate(doc uint32) (Leaf, uint32, bool) {
	i := sort.Search(len(s.Leaves), func(i int) bool {
		seg := s.Leaves[i].Segment
		return seg.DocBase()+seg.MaxDoc() > doc
	})
	if i == len(s.Leaves) {
		return Leaf{}, 0, false
	}
	leaf := s.Leaves[i]
	return leaf, doc - leaf.Segment.DocBase(), true
}

// ExternalID returns the id of the global document doc.
func (s *Snapshot) ExternalID(doc uint32) string {
	leaf, local, ok := s.Locate(doc)
	if !ok {
		return ""
	}
	return leaf.Segment.ExternalID(local)
}

// Context returns the scoring context of leaf i.
func (s *Snapshot) Context(i int) *query.Context {
	return &query.Context{Segment: s.Leaves[i].Segment, Stats: s}
}
