package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

func sampleData() *index.SegmentData {
	return &index.SegmentData{
		IDs: []string{"a", "b", "c"},
		Lengths: map[string][]uint32{
			"body":  {3, 0, 5},
			"title": {1, 2, 0},
		},
		Terms: []index.TermEntry{
			{Field: "body", Term: "apple", Postings: []query.Posting{
				{Doc: 0, Freq: 2, Positions: []uint32{0, 2}},
				{Doc: 2, Freq: 1, Positions: []uint32{4}},
			}},
			{Field: "body", Term: "pear", Postings: []query.Posting{{Doc: 0, Freq: 1, Positions: []uint32{1}}}},
			{Field: "title", Term: "apple", Postings: []query.Posting{{Doc: 1, Freq: 1, Positions: []uint32{1}}}},
		},
	}
}

func writeSample(t *testing.T) *Reader {
	t.Helper()
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(42, sampleData())
	require.NoError(t, err)
	assert.Equal(t, FileName(42), name)
	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestWriteAndReadSegment(t *testing.T) {
	r := writeSample(t)

	assert.Equal(t, uint64(42), r.Seq())
	assert.Equal(t, index.SegmentName(42), r.Name())
	assert.Equal(t, uint32(3), r.DocCount())
	assert.Equal(t, 3, r.Terms())

	postings, err := r.Postings("body", "apple")
	require.NoError(t, err)
	assert.Equal(t, sampleData().Terms[0].Postings, postings)

	postings, err = r.Postings("title", "pear")
	require.NoError(t, err)
	assert.Empty(t, postings)

	assert.Equal(t, 2, r.DocFreq("body", "apple"))
	assert.Equal(t, 0, r.DocFreq("body", "kiwi"))
	assert.Equal(t, uint32(5), r.FieldLength("body", 2))
	assert.Equal(t, uint32(0), r.FieldLength("body", 9))
	assert.Equal(t, uint64(8), r.TotalFieldLength("body"))
	assert.Equal(t, "b", r.ExternalID(1))
	assert.Equal(t, "", r.ExternalID(3))
	assert.Equal(t, []string{"apple", "pear"}, r.FieldTerms("body"))
	assert.Equal(t, []string{"apple"}, r.FieldTerms("title"))
	assert.Empty(t, r.FieldTerms("author"))
}

func TestEmptySegmentIsRejected(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(1, &index.SegmentData{})
	require.Error(t, err)
}

func TestCorruptMetadataIsDetected(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(1, sampleData())
	require.NoError(t, err)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	h := decodeHeader(data[:HeaderSize])
	data[h.MetaOffset] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = OpenReader(path)
	require.ErrorContains(t, err, "checksum")
}

func TestParseSeq(t *testing.T) {
	seq, ok := ParseSeq(FileName(17))
	assert.True(t, ok)
	assert.Equal(t, uint64(17), seq)

	_, ok = ParseSeq("seg_17.spdx")
	assert.False(t, ok)
	_, ok = ParseSeq("notes.txt")
	assert.False(t, ok)
}

func TestPostingsEncodingRejectsTruncatedInput(t *testing.T) {
	raw := encodePostings(nil, sampleData().Terms[0].Postings)
	_, err := decodePostings(raw[:len(raw)-1])
	require.Error(t, err)
}
