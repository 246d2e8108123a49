package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/metrics"
)

func newEngine(t testing.TB, dir string) *Engine {
	t.Helper()
	reg, err := analysis.NewRegistry(config.Default().Analysis)
	require.NoError(t, err)
	e, err := NewEngine(config.IndexConfig{DataDir: dir, SegmentMaxSize: 1 << 30}, reg, WithMetrics(metrics.NewUnregistered()))
	require.NoError(t, err)
	return e
}

func doc(id, title, body string) index.Document {
	return index.Document{ID: id, Fields: map[string]string{"title": title, "body": body}}
}

func terms(t *testing.T, e *Engine, field string) []string {
	t.Helper()
	var out []string
	require.NoError(t, e.ForEachIndexedTerm(field, func(term string) error {
		out = append(out, term)
		return nil
	}))
	return out
}

func TestIndexFlushAndSearchableSegments(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.IndexDocument(doc("d1", "Red Apple", "a fresh red apple")))
	require.NoError(t, e.IndexDocument(doc("d2", "Green Pear", "the pear is green")))

	snap := e.Snapshot()
	assert.Equal(t, uint64(0), snap.Generation)
	assert.Equal(t, 2, snap.LiveDocs())
	assert.Equal(t, 2, snap.DocFreq("title", "red")+snap.DocFreq("title", "pear"))
	assert.True(t, e.HasTermAfter("title", "red", 0))
	assert.Empty(t, terms(t, e, "title"), "buffered terms are not in flushed dictionaries")

	require.NoError(t, e.Flush())
	assert.Equal(t, uint64(1), e.Generation())
	assert.True(t, e.HasTermAfter("title", "red", 0), "flushed after generation 0")
	assert.False(t, e.HasTermAfter("title", "red", 1))
	assert.Equal(t, []string{"apple", "green", "pear", "red"}, terms(t, e, "title"))

	snap = e.Snapshot()
	require.Len(t, snap.Leaves, 2)
	seg := snap.Leaves[0].Segment
	assert.True(t, seg.Addressable())
	assert.Equal(t, uint32(0), seg.DocBase())
	assert.Equal(t, uint32(2), seg.MaxDoc())

	postings, err := seg.Postings("body", "pear")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, uint32(1), postings[0].Doc)
	assert.Equal(t, []uint32{0}, postings[0].Positions)
	assert.Equal(t, uint32(2), seg.FieldLength("body", 1), "stop words are not counted")
	assert.Equal(t, "d2", snap.ExternalID(1))
}

func TestFlushOfEmptyBufferKeepsGeneration(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.Close()
	require.NoError(t, e.Flush())
	assert.Equal(t, uint64(0), e.Generation())
}

func TestGenerationListenersRunAfterFlush(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.Close()
	var seen []uint64
	e.OnGeneration(func(g uint64) { seen = append(seen, g) })

	require.NoError(t, e.IndexDocument(doc("d1", "one", "")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("d2", "two", "")))
	require.NoError(t, e.Flush())
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestReindexReplacesEarlierCopy(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.IndexDocument(doc("d1", "old title", "")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("d1", "new title", "")))

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.LiveDocs())
	assert.Equal(t, uint32(2), snap.MaxDoc())
	assert.False(t, snap.Leaves[0].IsLive(0))
	assert.True(t, snap.Leaves[len(snap.Leaves)-1].IsLive(0))

	st := e.Stats()
	assert.Equal(t, 1, st.DeletedDocs)
	assert.Equal(t, 1, st.BufferedDocs)
}

func TestReopenRestoresGenerationAndDeletions(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir)
	require.NoError(t, e.IndexDocument(doc("d1", "alpha", "")))
	require.NoError(t, e.IndexDocument(doc("d2", "beta", "")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("d1", "gamma", "")))
	require.NoError(t, e.Close())

	reopened := newEngine(t, dir)
	defer reopened.Close()
	assert.Equal(t, uint64(2), reopened.Generation(), "close flushed the buffered copy")
	snap := reopened.Snapshot()
	assert.Equal(t, 2, snap.LiveDocs())
	assert.False(t, snap.Leaves[0].IsLive(0), "d1 was replaced by the later segment")
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, terms(t, reopened, "title"))

	require.NoError(t, reopened.IndexDocument(doc("d3", "delta", "")))
	require.NoError(t, reopened.Flush())
	assert.Equal(t, uint64(3), reopened.Generation())
}

func TestForEachIndexedTermMergesSegments(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.Close()
	require.NoError(t, e.IndexDocument(doc("d1", "kiwi mango", "")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("d2", "apple mango zucchini", "")))
	require.NoError(t, e.Flush())

	assert.Equal(t, []string{"apple", "kiwi", "mango", "zucchini"}, terms(t, e, "title"))
	assert.Empty(t, terms(t, e, "missing"))
}

func TestSnapshotStatistics(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.Close()
	require.NoError(t, e.IndexDocument(doc("d1", "one two", "")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("d2", "two three four five", "")))

	snap := e.Snapshot()
	assert.Equal(t, 2, snap.NumDocs())
	assert.Equal(t, 2, snap.DocFreq("title", "two"))
	assert.InDelta(t, 3.0, snap.AvgFieldLength("title"), 1e-9)

	leaf, local, ok := snap.Locate(1)
	require.True(t, ok)
	assert.Equal(t, uint32(0), local)
	assert.False(t, leaf.Segment.Addressable())
	_, _, ok = snap.Locate(2)
	assert.False(t, ok)
}

func TestCorruptSegmentIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, segment.FileName(7)), []byte("not a segment"), 0644))
	e := newEngine(t, dir)
	defer e.Close()
	assert.Equal(t, uint64(0), e.Generation())
	assert.Equal(t, 0, e.Stats().Segments)
}
