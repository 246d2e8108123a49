package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/s2"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 8
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	Seq        uint64
	CreatedAt  int64
	PostOffset int64
	PostSize   int64
	MetaOffset int64
	MetaSize   int64
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], h.Seq)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.MetaSize))
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		Seq:        binary.LittleEndian.Uint64(b[16:24]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		MetaOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		MetaSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// DictEntry locates the postings of one field term inside the postings
// region.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// meta is the s2-compressed JSON block following the postings.
type meta struct {
	IDs     []string            `json:"ids"`
	Lengths map[string][]uint32 `json:"lengths"`
	Dict    []DictEntry         `json:"dict"`
}

// Writer serialises buffered documents into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// FileName is the file holding segment seq.
func FileName(seq uint64) string { return index.SegmentName(seq) + Extension }

// Write atomically creates the file of segment seq. It writes to a .tmp
// file first and renames on success. data.Terms must be sorted by field,
// then term.
func (w *Writer) Write(seq uint64, data *index.SegmentData) (string, error) {
	if len(data.IDs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	name := FileName(seq)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(data.Terms)),
		DocCount:   uint32(len(data.IDs)),
		Seq:        seq,
		CreatedAt:  time.Now().Unix(),
		PostOffset: int64(HeaderSize),
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	bw := bufio.NewWriter(f)
	postCRC := crc32.NewIEEE()
	out := io.MultiWriter(bw, postCRC)
	dict := make([]DictEntry, 0, len(data.Terms))
	var offset int64
	var raw []byte
	for _, entry := range data.Terms {
		raw = encodePostings(raw[:0], entry.Postings)
		block := s2.Encode(nil, raw)
		if _, err := out.Write(block); err != nil {
			return "", fmt.Errorf("writing postings for %s:%s: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: offset,
			PostLen:    len(block),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(block))
	}
	header.PostSize = offset
	header.MetaOffset = header.PostOffset + offset

	metaJSON, err := json.Marshal(meta{IDs: data.IDs, Lengths: data.Lengths, Dict: dict})
	if err != nil {
		return "", fmt.Errorf("marshaling segment metadata: %w", err)
	}
	metaBlock := s2.Encode(nil, metaJSON)
	header.MetaSize = int64(len(metaBlock))
	if _, err := bw.Write(metaBlock); err != nil {
		return "", fmt.Errorf("writing segment metadata: %w", err)
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(metaBlock))
	binary.LittleEndian.PutUint32(footer[4:8], postCRC.Sum32())
	if _, err := bw.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flushing segment file: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return name, nil
}

// encodePostings appends postings as uvarints: the count, then per posting
// the doc delta, the frequency and freq position deltas.
func encodePostings(dst []byte, postings []query.Posting) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(postings)))
	var prevDoc uint32
	for _, p := range postings {
		dst = binary.AppendUvarint(dst, uint64(p.Doc-prevDoc))
		prevDoc = p.Doc
		dst = binary.AppendUvarint(dst, uint64(len(p.Positions)))
		var prevPos uint32
		for _, pos := range p.Positions {
			dst = binary.AppendUvarint(dst, uint64(pos-prevPos))
			prevPos = pos
		}
	}
	return dst
}

func decodePostings(src []byte) ([]query.Posting, error) {
	next := func() (uint64, error) {
		v, n := binary.Uvarint(src)
		if n <= 0 {
			return 0, fmt.Errorf("corrupt postings block")
		}
		src = src[n:]
		return v, nil
	}
	count, err := next()
	if err != nil {
		return nil, err
	}
	postings := make([]query.Posting, 0, count)
	var doc uint32
	for i := uint64(0); i < count; i++ {
		delta, err := next()
		if err != nil {
			return nil, err
		}
		doc += uint32(delta)
		freq, err := next()
		if err != nil {
			return nil, err
		}
		positions := make([]uint32, freq)
		var pos uint32
		for j := range positions {
			d, err := next()
			if err != nil {
				return nil, err
			}
			pos += uint32(d)
			positions[j] = pos
		}
		postings = append(postings, query.Posting{Doc: doc, Freq: uint32(freq), Positions: positions})
	}
	return postings, nil
}
