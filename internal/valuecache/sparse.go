package valuecache

import (
	"github.com/bits-and-blooms/bitset"
)

const bucketSize = 64

// Sparse groups ids into buckets of 64. An occupancy bitset records written
// ids and each bucket allocates its own OffsetGrowable on first write, so
// memory follows the number of touched buckets rather than the id range.
type Sparse struct {
	occupied *bitset.BitSet
	buckets  []*OffsetGrowable
	count    int
}

// NewSparse returns a cache for count ids.
func NewSparse(count int) *Sparse {
	return &Sparse{
		occupied: bitset.New(uint(count)),
		buckets:  make([]*OffsetGrowable, (count+bucketSize-1)/bucketSize),
		count:    count,
	}
}

func (s *Sparse) Set(doc uint32, v int64) {
	if int(doc) >= s.count {
		panic("valuecache: index out of range")
	}
	i := doc / bucketSize
	if s.buckets[i] == nil {
		s.buckets[i] = NewOffsetGrowable(2, bucketSize)
	}
	s.occupied.Set(uint(doc))
	s.buckets[i].Set(doc%bucketSize, v)
}

func (s *Sparse) Get(doc uint32) (int64, bool) {
	if !s.occupied.Test(uint(doc)) {
		return 0, false
	}
	return s.buckets[doc/bucketSize].Get(doc % bucketSize)
}

func (s *Sparse) HasValue(doc uint32) bool { return s.occupied.Test(uint(doc)) }

// Size is the number of written ids across all buckets.
func (s *Sparse) Size() int { return int(s.occupied.Count()) }

func (s *Sparse) Capacity() int { return s.count }

// BitsPerValue is the widest bucket's width.
func (s *Sparse) BitsPerValue() int {
	widest := 0
	for _, b := range s.buckets {
		if b != nil && b.BitsPerValue() > widest {
			widest = b.BitsPerValue()
		}
	}
	return widest
}

// Buckets is the number of allocated buckets.
func (s *Sparse) Buckets() int {
	n := 0
	for _, b := range s.buckets {
		if b != nil {
			n++
		}
	}
	return n
}

func (s *Sparse) EstimatedBytes() int64 {
	bytes := int64(s.occupied.BinaryStorageSize()) + int64(len(s.buckets))*8
	for _, b := range s.buckets {
		if b != nil {
			bytes += b.EstimatedBytes()
		}
	}
	return bytes
}
