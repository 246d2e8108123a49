package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis/synonymstore"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/postgres"
)

func newSynonymsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synonyms",
		Short: "Manage synonym sets stored in PostgreSQL",
	}

	importCmd := &cobra.Command{
		Use:   "import <set> <file>",
		Short: "Replace a synonym set with the rules in a file",
		Long: `Import reads one rule per line in the form "a, b => x, y"; every term
on the left receives the synonyms on the right. Blank lines and lines
starting with # are ignored. Searchers pick the new set up on their next
refresh.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			entries, err := parseSynonymRules(f)
			if err != nil {
				return err
			}

			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			store := synonymstore.New(db)
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			if err := store.Replace(cmd.Context(), args[0], entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set %s: %d terms\n", args[0], len(entries))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <set>",
		Short: "Print a stored synonym set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			entries, err := synonymstore.New(db).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeSynonymRules(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.AddCommand(importCmd, showCmd)
	return cmd
}

func parseSynonymRules(r io.Reader) (map[string][]string, error) {
	out := make(map[string][]string)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rule := bmax.ParseExtraSynonyms(text)
		if len(rule) == 0 {
			return nil, fmt.Errorf("line %d: expected \"terms => synonyms\"", line)
		}
		for term, syns := range rule {
			for _, syn := range syns {
				if !slices.Contains(out[term], syn) {
					out[term] = append(out[term], syn)
				}
			}
		}
	}
	return out, sc.Err()
}

func writeSynonymRules(w io.Writer, entries map[string][]string) {
	terms := make([]string, 0, len(entries))
	for t := range entries {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	for _, t := range terms {
		fmt.Fprintf(w, "%s => %s\n", t, strings.Join(entries[t], ", "))
	}
}
