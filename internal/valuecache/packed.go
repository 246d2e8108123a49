package valuecache

import (
	"math/bits"
)

// GrowableWriter is a fixed-length array of unsigned integers bit-packed into
// 64-bit blocks. Its width grows to fit the largest value written; growing
// repacks every value.
type GrowableWriter struct {
	bitsPerValue int
	count        int
	blocks       []uint64
}

// NewGrowableWriter returns a writer for count values starting at
// startBits bits per value.
func NewGrowableWriter(startBits, count int) *GrowableWriter {
	if startBits < 1 {
		startBits = 1
	}
	if startBits > 64 {
		startBits = 64
	}
	return &GrowableWriter{
		bitsPerValue: startBits,
		count:        count,
		blocks:       make([]uint64, blocksFor(startBits, count)),
	}
}

func blocksFor(bitsPerValue, count int) int {
	return (bitsPerValue*count + 63) / 64
}

// bitsRequired is the width needed to store v; at least one bit.
func bitsRequired(v uint64) int {
	if v == 0 {
		return 1
	}
	return bits.Len64(v)
}

func (w *GrowableWriter) BitsPerValue() int { return w.bitsPerValue }
func (w *GrowableWriter) Len() int { return w.count }

// Get returns the value at index i.
func (w *GrowableWriter) Get(i int) uint64 {
	return get(w.blocks, w.bitsPerValue, i)
}

// Set stores v at index i, widening the array first if v does not fit.
func (w *GrowableWriter) Set(i int, v uint64) {
	if i < 0 || i >= w.count {
		panic("valuecache: index out of range")
	}
	if need := bitsRequired(v); need > w.bitsPerValue {
		w.grow(need)
	}
	set(w.blocks, w.bitsPerValue, i, v)
}

func (w *GrowableWriter) grow(bitsPerValue int) {
	blocks := make([]uint64, blocksFor(bitsPerValue, w.count))
	for i := 0; i < w.count; i++ {
		set(blocks, bitsPerValue, i, get(w.blocks, w.bitsPerValue, i))
	}
	w.blocks = blocks
	w.bitsPerValue = bitsPerValue
}

// EstimatedBytes is the size of the packed blocks plus the header.
func (w *GrowableWriter) EstimatedBytes() int64 {
	return int64(len(w.blocks))*8 + 32
}

func mask(bitsPerValue int) uint64 {
	if bitsPerValue == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitsPerValue) - 1
}

func get(blocks []uint64, bitsPerValue, i int) uint64 {
	pos := i * bitsPerValue
	block, shift := pos>>6, pos&63
	m := mask(bitsPerValue)
	v := blocks[block] >> shift
	if shift+bitsPerValue > 64 {
		v |= blocks[block+1] << (64 - shift)
	}
	return v & m
}

func set(blocks []uint64, bitsPerValue, i int, v uint64) {
	pos := i * bitsPerValue
	block, shift := pos>>6, pos&63
	m := mask(bitsPerValue)
	v &= m
	blocks[block] = blocks[block]&^(m<<shift) | v<<shift
	if shift+bitsPerValue > 64 {
		spill := 64 - shift
		blocks[block+1] = blocks[block+1]&^(m>>spill) | v>>spill
	}
}
