package valuecache

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// OffsetGrowable stores value - min in a GrowableWriter, where min is the
// smallest value written so far. Lowering the minimum rewrites every stored
// value against the new base, so widths stay small for clustered values.
type OffsetGrowable struct {
	values *GrowableWriter
	filled *bitset.BitSet
	min    int64
	size   int
}

// NewOffsetGrowable returns a cache for count ids starting at startBits bits
// per value.
func NewOffsetGrowable(startBits, count int) *OffsetGrowable {
	return &OffsetGrowable{
		values: NewGrowableWriter(startBits, count),
		filled: bitset.New(uint(count)),
		min:    math.MaxInt64,
	}
}

// Min is the current offset base.
func (o *OffsetGrowable) Min() int64 { return o.min }

func (o *OffsetGrowable) Set(doc uint32, v int64) {
	if v < o.min {
		o.rebase(v)
	}
	o.values.Set(int(doc), uint64(v)-uint64(o.min))
	if !o.filled.Test(uint(doc)) {
		o.filled.Set(uint(doc))
		o.size++
	}
}

// rebase shifts every stored value up by the distance between the old and
// the new minimum.
func (o *OffsetGrowable) rebase(newMin int64) {
	if o.size > 0 {
		diff := uint64(o.min) - uint64(newMin)
		for i, ok := o.filled.NextSet(0); ok; i, ok = o.filled.NextSet(i + 1) {
			o.values.Set(int(i), o.values.Get(int(i))+diff)
		}
	}
	o.min = newMin
}

func (o *OffsetGrowable) Get(doc uint32) (int64, bool) {
	if !o.filled.Test(uint(doc)) {
		return 0, false
	}
	return int64(o.values.Get(int(doc)) + uint64(o.min)), true
}

func (o *OffsetGrowable) HasValue(doc uint32) bool { return o.filled.Test(uint(doc)) }
func (o *OffsetGrowable) Size() int { return o.size }
func (o *OffsetGrowable) Capacity() int { return o.values.Len() }
func (o *OffsetGrowable) BitsPerValue() int { return o.values.BitsPerValue() }

func (o *OffsetGrowable) EstimatedBytes() int64 {
	return o.values.EstimatedBytes() + int64(o.filled.BinaryStorageSize()) + 16
}
