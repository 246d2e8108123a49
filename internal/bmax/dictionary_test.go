package bmax

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUnknownDictionaryMayContainAnything(t *testing.T) {
	assert.False(t, Unknown.Known())
	assert.True(t, Unknown.MayContain("anything"))
	assert.Equal(t, 0, Unknown.Len())
}

func TestBuildDictionarySkipsUnorderedTerms(t *testing.T) {
	src := termSource{"title": {"apple", "banana", "aardvark", "banana", "cherry"}}
	d, err := BuildDictionary(context.Background(), src, "title", discardLogger())
	require.NoError(t, err)

	assert.True(t, d.Known())
	assert.Equal(t, 3, d.Len())
	for term, want := range map[string]bool{
		"apple": true, "banana": true, "cherry": true,
		"aardvark": false, "durian": false, "": false,
	} {
		assert.Equal(t, want, d.MayContain(term), term)
	}
}

func TestDictionaryBytesRoundTrip(t *testing.T) {
	d, err := BuildDictionary(context.Background(), termSource{"f": {"a", "b"}}, "f", discardLogger())
	require.NoError(t, err)

	loaded, err := LoadDictionary(d.Bytes())
	require.NoError(t, err)
	assert.True(t, loaded.MayContain("b"))
	assert.False(t, loaded.MayContain("c"))

	_, err = LoadDictionary([]byte("not an fst"))
	assert.Error(t, err)
}

type countingSource struct {
	terms map[string][]string
	calls atomic.Int32
	err   error
}

func (s *countingSource) ForEachIndexedTerm(field string, fn func(string) error) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	return termSource(s.terms).ForEachIndexedTerm(field, fn)
}

func TestDictionaryCacheBuildsOncePerGeneration(t *testing.T) {
	src := &countingSource{terms: map[string][]string{"title": {"boot", "shoe"}}}
	c := NewDictionaryCache(src)

	d, err := c.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.True(t, d.Known())
	_, err = c.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, c.Dictionary("title").Known())
	assert.Equal(t, map[string]int{"title": 2}, c.Sizes())

	c.Reset(2)
	assert.Equal(t, uint64(2), c.Generation())
	assert.Empty(t, c.Fields())
	_, err = c.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestDictionaryCacheBuildsInBackground(t *testing.T) {
	src := &countingSource{terms: map[string][]string{"title": {"shoe"}}}
	c := NewDictionaryCache(src)

	assert.False(t, c.Dictionary("title").Known())
	require.Eventually(t, func() bool {
		return c.Dictionary("title").Known()
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.Dictionary("title").MayContain("boot"))
}

func TestDictionaryCacheRemembersFailure(t *testing.T) {
	src := &countingSource{err: errors.New("index closed")}
	c := NewDictionaryCache(src)

	_, err := c.Get(context.Background(), "title")
	require.Error(t, err)
	d := c.Dictionary("title")
	assert.False(t, d.Known())
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, map[string]int{"title": -1}, c.Sizes())
}

func TestDictionaryCacheWarm(t *testing.T) {
	src := &countingSource{terms: map[string][]string{"title": {"a"}, "body": {"b", "c"}}}
	c := NewDictionaryCache(src)

	require.NoError(t, c.Warm(context.Background(), []string{"title", "body"}))
	assert.Equal(t, []string{"body", "title"}, c.Fields())
	assert.Equal(t, 2, c.Dictionary("body").Len())
}

type memorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memorySnapshots) LoadSnapshot(_ context.Context, field string, gen uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[buildKey(gen, field)], nil
}

func (m *memorySnapshots) SaveSnapshot(_ context.Context, field string, gen uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[buildKey(gen, field)] = data
	return nil
}

func TestDictionaryCacheUsesSnapshots(t *testing.T) {
	store := &memorySnapshots{data: make(map[string][]byte)}
	src := &countingSource{terms: map[string][]string{"title": {"boot", "shoe"}}}

	first := NewDictionaryCache(src, WithSnapshotStore(store))
	_, err := first.Get(context.Background(), "title")
	require.NoError(t, err)
	require.Len(t, store.data, 1)

	second := NewDictionaryCache(src, WithSnapshotStore(store))
	d, err := second.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.True(t, d.MayContain("boot"))
	assert.Equal(t, int32(1), src.calls.Load())
}

type pendingSet map[string]bool

func (p pendingSet) HasTermAfter(field, term string, _ uint64) bool { return p[field+":"+term] }

func TestDictionaryCacheAcceptsPendingTerms(t *testing.T) {
	src := &countingSource{terms: map[string][]string{"title": {"boot"}}}
	c := NewDictionaryCache(src, WithPendingTerms(pendingSet{"title:sandal": true}))

	d, err := c.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.True(t, d.MayContain("boot"))
	assert.True(t, d.MayContain("sandal"))
	assert.False(t, d.MayContain("clog"))
	assert.False(t, c.Dictionary("body").Known())
}

func TestDictionaryCacheStaysCompleteAcrossFlush(t *testing.T) {
	reg, err := analysis.NewRegistry(config.Default().Analysis)
	require.NoError(t, err)
	e, err := indexer.NewEngine(config.IndexConfig{DataDir: t.TempDir()}, reg)
	require.NoError(t, err)
	defer e.Close()

	title := func(id, text string) index.Document {
		return index.Document{ID: id, Fields: map[string]string{"title": text}}
	}
	require.NoError(t, e.IndexDocument(title("d1", "red boot")))
	require.NoError(t, e.Flush())

	dicts := NewDictionaryCache(e, WithPendingTerms(e))
	dicts.Reset(e.Generation())
	before, err := dicts.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.False(t, before.MayContain("zebra"))

	require.NoError(t, e.IndexDocument(title("d2", "zebra sandal")))
	assert.True(t, dicts.Dictionary("title").MayContain("zebra"), "buffered term")

	type lookup struct{ known, zebra, boot bool }
	var window []lookup
	e.OnGeneration(func(uint64) {
		d := dicts.Dictionary("title")
		window = append(window, lookup{d.Known(), d.MayContain("zebra"), d.MayContain("boot")})
	})
	e.OnGeneration(dicts.Reset)
	require.NoError(t, e.Flush())

	require.Len(t, window, 1)
	assert.Equal(t, lookup{known: true, zebra: true, boot: true}, window[0],
		"the previous generation's dictionary still accepts the flushed term")
	assert.True(t, before.MayContain("zebra"), "a dictionary handed out before the flush")
	assert.True(t, before.MayContain("sandal"))
	assert.False(t, before.MayContain("clog"))

	after, err := dicts.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.Equal(t, e.Generation(), dicts.Generation())
	for _, term := range []string{"red", "boot", "zebra", "sandal"} {
		assert.True(t, after.MayContain(term), term)
	}
	assert.False(t, after.MayContain("clog"))
}
