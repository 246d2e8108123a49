package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
)

type whitespace struct{}

func (whitespace) AnalyzeField(_, text string) ([]analysis.Token, error) {
	var out []analysis.Token
	for i, w := range strings.Fields(text) {
		out = append(out, analysis.Token{Term: w, Position: i})
	}
	return out, nil
}

func TestViewIsFixedAtCreation(t *testing.T) {
	m := NewMemoryIndex(5)
	_, err := m.AddDocument(Document{ID: "a", Fields: map[string]string{"title": "x y x"}}, whitespace{})
	require.NoError(t, err)

	v := m.View(10)
	_, err = m.AddDocument(Document{ID: "b", Fields: map[string]string{"title": "x", "body": "z"}}, whitespace{})
	require.NoError(t, err)

	assert.Equal(t, "seg_00000000000000000005", v.ID())
	assert.False(t, v.Addressable())
	assert.Equal(t, uint32(10), v.DocBase())
	assert.Equal(t, uint32(1), v.MaxDoc())
	postings, err := v.Postings("title", "x")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, []uint32{0, 2}, postings[0].Positions)
	assert.Equal(t, 1, v.DocFreq("title", "x"))
	assert.Equal(t, uint64(3), v.TotalFieldLength("title"))
	assert.Equal(t, "", v.ExternalID(1))

	later := m.View(10)
	assert.Equal(t, 2, later.DocFreq("title", "x"))
	assert.Equal(t, uint32(0), later.FieldLength("body", 0))
	assert.Equal(t, uint32(1), later.FieldLength("body", 1))
	assert.True(t, m.HasTerm("body", "z"))
}

func TestSnapshotSortsTermsAndPadsLengths(t *testing.T) {
	m := NewMemoryIndex(1)
	_, err := m.AddDocument(Document{ID: "a", Fields: map[string]string{"title": "b a"}}, whitespace{})
	require.NoError(t, err)
	_, err = m.AddDocument(Document{ID: "b", Fields: map[string]string{"body": "c"}}, whitespace{})
	require.NoError(t, err)

	data := m.Snapshot()
	assert.Equal(t, []string{"a", "b"}, data.IDs)
	assert.Equal(t, []uint32{2, 0}, data.Lengths["title"])
	assert.Equal(t, []uint32{0, 1}, data.Lengths["body"])
	var keys []string
	for _, e := range data.Terms {
		keys = append(keys, e.Field+":"+e.Term)
	}
	assert.Equal(t, []string{"body:c", "title:a", "title:b"}, keys)
	assert.Greater(t, m.Size(), int64(0))
}
