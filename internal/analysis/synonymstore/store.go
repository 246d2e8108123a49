// Package synonymstore keeps named synonym sets in PostgreSQL and refreshes
// the synonym tables of running analyzers from them.
package synonymstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/resilience"
)

// Schema creates the synonyms table.
const Schema = `CREATE TABLE IF NOT EXISTS synonyms (
	set_name   TEXT NOT NULL,
	term       TEXT NOT NULL,
	synonym    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (set_name, term, synonym)
)`

// Source loads one synonym set.
type Source interface {
	Load(ctx context.Context, setName string) (map[string][]string, error)
}

// Store reads and writes synonym sets in PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "synonym-store"),
	}
}

// EnsureSchema creates the synonyms table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating synonyms table: %w", err)
	}
	return nil
}

// Load returns every term -> synonyms entry of setName.
func (s *Store) Load(ctx context.Context, setName string) (map[string][]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term, synonym FROM synonyms WHERE set_name = $1 ORDER BY term, synonym`,
		setName,
	)
	if err != nil {
		return nil, fmt.Errorf("querying synonym set %s: %w", setName, err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var term, synonym string
		if err := rows.Scan(&term, &synonym); err != nil {
			return nil, fmt.Errorf("scanning synonym row: %w", err)
		}
		out[term] = append(out[term], synonym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating synonym rows: %w", err)
	}
	return out, nil
}

// Replace swaps the contents of setName for entries in one transaction.
func (s *Store) Replace(ctx context.Context, setName string, entries map[string][]string) error {
	terms := make([]string, 0, len(entries))
	for term := range entries {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM synonyms WHERE set_name = $1`, setName); err != nil {
			return fmt.Errorf("clearing synonym set: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO synonyms (set_name, term, synonym) VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, term := range terms {
			for _, syn := range entries[term] {
				if _, err := stmt.ExecContext(ctx, setName, term, syn); err != nil {
					return fmt.Errorf("inserting %s => %s: %w", term, syn, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("synonym set replaced", "set", setName, "terms", len(terms))
	return nil
}

// Refresher periodically copies a synonym set into an analyzer's table.
type Refresher struct {
	source  Source
	table   *analysis.SynonymTable
	setName string
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func NewRefresher(source Source, table *analysis.SynonymTable, setName string) *Refresher {
	return &Refresher{
		source:  source,
		table:   table,
		setName: setName,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "synonym-refresher", "set", setName),
	}
}

// Refresh loads the set and swaps it into the table. On failure the table
// keeps its previous contents.
func (r *Refresher) Refresh(ctx context.Context) error {
	var entries map[string][]string
	err := resilience.Retry(ctx, "load synonyms", r.retry, func(ctx context.Context) error {
		var err error
		entries, err = r.source.Load(ctx, r.setName)
		return err
	})
	if err != nil {
		return fmt.Errorf("refreshing synonym set %s: %w", r.setName, err)
	}
	r.table.Replace(entries)
	r.logger.Info("synonyms refreshed", "terms", len(entries))
	return nil
}

// Run refreshes every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("synonym refresh failed", "error", err)
			}
		}
	}
}
