package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/s2"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// Reader serves one immutable segment file. The dictionary and the
// per-document data are held in memory; postings are read on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	meta     meta
	totals   map[string]uint64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("loading segment %s: %w", filepath.Base(path), err)
	}
	r.filePath = path
	return r, nil
}

func load(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	metaBlock := make([]byte, header.MetaSize)
	if _, err := f.ReadAt(metaBlock, header.MetaOffset); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.MetaOffset+header.MetaSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc32.ChecksumIEEE(metaBlock) != want {
		return nil, fmt.Errorf("metadata checksum mismatch")
	}
	metaJSON, err := s2.Decode(nil, metaBlock)
	if err != nil {
		return nil, fmt.Errorf("decompressing metadata: %w", err)
	}
	var m meta
	if err := json.Unmarshal(metaJSON, &m); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	if uint32(len(m.IDs)) != header.DocCount {
		return nil, fmt.Errorf("doc count mismatch: header %d, metadata %d", header.DocCount, len(m.IDs))
	}

	totals := make(map[string]uint64, len(m.Lengths))
	for field, lengths := range m.Lengths {
		var t uint64
		for _, l := range lengths {
			t += uint64(l)
		}
		totals[field] = t
	}
	return &Reader{file: f, header: header, meta: m, totals: totals}, nil
}

// ParseSeq extracts the sequence number from a segment file name.
func ParseSeq(name string) (uint64, bool) {
	base := strings.TrimSuffix(filepath.Base(name), Extension)
	var seq uint64
	if _, err := fmt.Sscanf(base, "seg_%d", &seq); err != nil {
		return 0, false
	}
	return seq, base == index.SegmentName(seq)
}

// Name is the segment name, shared with the buffer it was flushed from.
func (r *Reader) Name() string { return index.SegmentName(r.header.Seq) }

func (r *Reader) Seq() uint64 { return r.header.Seq }

func (r *Reader) Path() string { return r.filePath }

func (r *Reader) DocCount() uint32 { return r.header.DocCount }

// Terms is the number of field terms in the segment.
func (r *Reader) Terms() int { return len(r.meta.Dict) }

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	dict := r.meta.Dict
	i := sort.Search(len(dict), func(i int) bool {
		if dict[i].Field != field {
			return dict[i].Field >= field
		}
		return dict[i].Term >= term
	})
	if i < len(dict) && dict[i].Field == field && dict[i].Term == term {
		return dict[i], true
	}
	return DictEntry{}, false
}

// Postings reads and decodes the postings of term in field.
func (r *Reader) Postings(field, term string) ([]query.Posting, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	block := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(block, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	raw, err := s2.Decode(nil, block)
	if err != nil {
		return nil, fmt.Errorf("decompressing postings of %s:%s: %w", field, term, err)
	}
	return decodePostings(raw)
}

func (r *Reader) DocFreq(field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

func (r *Reader) FieldLength(field string, doc uint32) uint32 {
	if lengths := r.meta.Lengths[field]; int(doc) < len(lengths) {
		return lengths[doc]
	}
	return 0
}

func (r *Reader) TotalFieldLength(field string) uint64 { return r.totals[field] }

// ExternalID returns the id doc was indexed under.
func (r *Reader) ExternalID(doc uint32) string {
	if int(doc) < len(r.meta.IDs) {
		return r.meta.IDs[doc]
	}
	return ""
}

// FieldTerms returns the sorted terms of field.
func (r *Reader) FieldTerms(field string) []string {
	dict := r.meta.Dict
	lo := sort.Search(len(dict), func(i int) bool { return dict[i].Field >= field })
	var terms []string
	for i := lo; i < len(dict) && dict[i].Field == field; i++ {
		terms = append(terms, dict[i].Term)
	}
	return terms
}

func (r *Reader) Close() error {
	return r.file.Close()
}
