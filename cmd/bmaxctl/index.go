package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/validator"
)

// maxLineBytes bounds one JSON document line.
const maxLineBytes = 65 << 20

func newIndexCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "index <documents.jsonl>...",
		Short: "Bulk load JSON lines documents into a local index",
		Long: `Index reads files with one {"id": ..., "fields": {...}} object per line
and writes them into the index directory, flushing once at the end. Run
it while the searcher is stopped; the searcher picks the new segments up
on start.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Index.DataDir = dataDir
			}
			reg, err := analysis.NewRegistry(cfg.Analysis)
			if err != nil {
				return err
			}
			engine, err := indexer.NewEngine(cfg.Index, reg)
			if err != nil {
				return err
			}
			defer engine.Close()

			out := cmd.OutOrStdout()
			var total int
			for _, path := range args {
				n, err := indexFile(path, engine)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s documents\n", path, humanize.Comma(int64(n)))
				total += n
			}
			if err := engine.Flush(); err != nil {
				return fmt.Errorf("flushing: %w", err)
			}
			st := engine.Stats()
			fmt.Fprintf(out, "indexed %s documents, generation %d, %d segments, %s live\n",
				humanize.Comma(int64(total)), st.Generation, st.Segments, humanize.Comma(int64(st.LiveDocs)))
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "index directory (overrides index.dataDir)")
	return cmd
}

func indexFile(path string, engine *indexer.Engine) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var n int
	err = readDocuments(f, func(req *ingestion.IngestRequest) error {
		if err := engine.IndexDocument(req.Document()); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// readDocuments decodes and validates one document per non-blank line.
func readDocuments(r io.Reader, fn func(*ingestion.IngestRequest) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var req ingestion.IngestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := validator.ValidateIngestRequest(&req); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(&req); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}
