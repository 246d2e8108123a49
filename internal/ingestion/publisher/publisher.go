// Package publisher records documents in PostgreSQL and publishes ingest
// events to Kafka for the indexer. Publishing a document id again replaces
// the indexed copy, so ingestion is idempotent per id.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/kafka"
)

// EventProducer publishes keyed events.
type EventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// StatusStore runs the status updates. *sql.DB satisfies it.
type StatusStore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Publisher coordinates document status tracking and Kafka event production.
type Publisher struct {
	db       StatusStore
	producer EventProducer
	logger   *slog.Logger
}

// New creates a Publisher. db may be nil, in which case statuses are not
// tracked.
func New(db StatusStore, producer EventProducer) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest marks the document PENDING and publishes an IngestEvent keyed by
// document id, so all versions of a document land on one partition in order.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if p.db != nil {
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO documents (id, field_count, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET field_count = EXCLUDED.field_count, status = EXCLUDED.status, indexed_at = NULL`,
			req.ID, len(req.Fields), ingestion.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("recording document %s: %w", req.ID, err)
		}
	}

	event := kafka.Event{
		Key: req.ID,
		Value: ingestion.IngestEvent{
			DocumentID: req.ID,
			Fields:     req.Fields,
			IngestedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish to kafka, document stuck in PENDING",
			"doc_id", req.ID,
			"error", err,
		)
		return nil, fmt.Errorf("publishing document %s: %w", req.ID, err)
	}
	return &ingestion.IngestResponse{
		DocumentID: req.ID,
		Status:     ingestion.StatusPending,
	}, nil
}

// Schema is the documents table tracked by Ingest and the index consumer.
const Schema = `CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	field_count INTEGER NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	indexed_at  TIMESTAMPTZ
)`

// EnsureSchema creates the documents table if it does not exist.
func EnsureSchema(ctx context.Context, db StatusStore) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}
