// Package valuecache memoizes one value per segment-local document id.
//
// Three layouts trade lookup cost against memory: Dense is a plain float32
// array, OffsetGrowable bit-packs integers stored relative to a running
// minimum, and Sparse allocates packed 64-id buckets only where values are
// written. Floats are stored in the packed layouts as round(v * precision).
//
// Caches are not safe for concurrent writers; wrap them with Synchronized
// when values are filled from several goroutines.
package valuecache

import (
	"fmt"
	"math"
	"sync"

	"github.com/dustin/go-humanize"

	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// DefaultPrecision is the float quantization of the packed caches.
const DefaultPrecision = 10000

// Hint selects a cache layout.
type Hint int

const (
	HintDense Hint = iota
	HintOffsetPacked
	HintSparse
)

func (h Hint) String() string {
	switch h {
	case HintDense:
		return "dense"
	case HintOffsetPacked:
		return "offset-packed"
	case HintSparse:
		return "sparse"
	default:
		return fmt.Sprintf("hint(%d)", int(h))
	}
}

// FloatCache maps document ids to float32 values.
type FloatCache interface {
	// Get returns the value of doc and whether one was written.
	Get(doc uint32) (float32, bool)
	Set(doc uint32, v float32)
	HasValue(doc uint32) bool
	// Size is the number of ids holding a value.
	Size() int
	// Capacity is the number of addressable ids.
	Capacity() int
	EstimatedBytes() int64
}

// LongCache maps document ids to int64 values.
type LongCache interface {
	Get(doc uint32) (int64, bool)
	Set(doc uint32, v int64)
	HasValue(doc uint32) bool
	Size() int
	Capacity() int
	BitsPerValue() int
	EstimatedBytes() int64
}

// New returns an empty float cache of the hinted layout able to hold ids
// 0..maxDoc. A non-positive precision uses DefaultPrecision.
func New(hint Hint, maxDoc int, precision float64) (FloatCache, error) {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	switch hint {
	case HintDense:
		return NewDense(maxDoc), nil
	case HintOffsetPacked:
		return NewFloatCache(NewOffsetGrowable(2, maxDoc+1), precision), nil
	case HintSparse:
		return NewFloatCache(NewSparse(maxDoc+1), precision), nil
	default:
		return nil, apperrors.Configf("unknown value cache hint %d", int(hint))
	}
}

// Dense is a float32 array with NaN marking unset entries.
type Dense struct {
	values []float32
	size   int
}

// NewDense returns a cache for ids 0..maxDoc.
func NewDense(maxDoc int) *Dense {
	values := make([]float32, maxDoc+1)
	nan := float32(math.NaN())
	for i := range values {
		values[i] = nan
	}
	return &Dense{values: values}
}

func (d *Dense) Get(doc uint32) (float32, bool) {
	v := d.values[doc]
	return v, !isNaN(v)
}

func (d *Dense) Set(doc uint32, v float32) {
	was := !isNaN(d.values[doc])
	d.values[doc] = v
	switch now := !isNaN(v); {
	case now && !was:
		d.size++
	case !now && was:
		d.size--
	}
}

func (d *Dense) HasValue(doc uint32) bool { return !isNaN(d.values[doc]) }
func (d *Dense) Size() int { return d.size }
func (d *Dense) Capacity() int { return len(d.values) }
func (d *Dense) EstimatedBytes() int64 { return int64(len(d.values)) * 4 }

func isNaN(v float32) bool { return v != v }

// floatCache stores floats in a LongCache as round(v * precision).
type floatCache struct {
	longs     LongCache
	precision float64
}

// NewFloatCache adapts longs to floats with the given precision. Non-finite
// values are not stored; values beyond the int64 range once scaled saturate.
func NewFloatCache(longs LongCache, precision float64) FloatCache {
	return &floatCache{longs: longs, precision: precision}
}

func (f *floatCache) Get(doc uint32) (float32, bool) {
	l, ok := f.longs.Get(doc)
	if !ok {
		return float32(math.NaN()), false
	}
	return float32(float64(l) / f.precision), true
}

func (f *floatCache) Set(doc uint32, v float32) {
	if q, ok := f.quantize(v); ok {
		f.longs.Set(doc, q)
	}
}

func (f *floatCache) quantize(v float32) (int64, bool) {
	x := float64(v)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	q := math.Round(x * f.precision)
	switch {
	case q >= math.MaxInt64:
		return math.MaxInt64, true
	case q <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(q), true
}

func (f *floatCache) HasValue(doc uint32) bool { return f.longs.HasValue(doc) }
func (f *floatCache) Size() int { return f.longs.Size() }
func (f *floatCache) Capacity() int { return f.longs.Capacity() }
func (f *floatCache) EstimatedBytes() int64 { return f.longs.EstimatedBytes() + 16 }

// Synchronized guards c with a read-write mutex. Readers proceed in parallel;
// writers, including a rebase triggered by a new minimum, are serialized.
func Synchronized(c FloatCache) FloatCache {
	if _, ok := c.(*lockedCache); ok {
		return c
	}
	return &lockedCache{c: c}
}

type lockedCache struct {
	mu sync.RWMutex
	c  FloatCache
}

func (l *lockedCache) Get(doc uint32) (float32, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c.Get(doc)
}

func (l *lockedCache) Set(doc uint32, v float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Set(doc, v)
}

func (l *lockedCache) HasValue(doc uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c.HasValue(doc)
}

func (l *lockedCache) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c.Size()
}

func (l *lockedCache) Capacity() int { return l.c.Capacity() }

func (l *lockedCache) EstimatedBytes() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.c.EstimatedBytes()
}

// Stats describes a cache for observability.
type Stats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Bytes    int64 `json:"bytes"`
}

// StatsOf snapshots c.
func StatsOf(c FloatCache) Stats {
	return Stats{Size: c.Size(), Capacity: c.Capacity(), Bytes: c.EstimatedBytes()}
}

func (s Stats) String() string {
	return fmt.Sprintf("%s/%s values, %s",
		humanize.Comma(int64(s.Size)), humanize.Comma(int64(s.Capacity)), humanize.IBytes(uint64(s.Bytes)))
}
