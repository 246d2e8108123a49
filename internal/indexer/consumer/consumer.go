// Package consumer reads ingestion events from Kafka and indexes them via
// the indexer engine.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/resilience"
)

// DocumentIndexer is the part of the engine the consumer drives.
type DocumentIndexer interface {
	IndexDocument(doc index.Document) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that indexes every ingest
// event. Undecodable events are rejected without retry. If db is non-nil, the
// document status is updated after indexing.
func HandleMessage(engine DocumentIndexer, db publisher.StatusStore) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			return resilience.Permanent(err)
		}
		if event.DocumentID == "" {
			return resilience.Permanent(fmt.Errorf("ingest event %q without document id", key))
		}
		logger.Debug("processing ingest event",
			"doc_id", event.DocumentID,
			"fields", len(event.Fields),
		)
		if err := engine.IndexDocument(event.Document()); err != nil {
			updateDocStatus(ctx, db, event.DocumentID, ingestion.StatusFailed, logger)
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}

		updateDocStatus(ctx, db, event.DocumentID, ingestion.StatusIndexed, logger)

		logger.Info("document indexed", "doc_id", event.DocumentID)
		return nil
	}
}

// updateDocStatus updates the document's status and indexed_at timestamp in
// PostgreSQL. If db is nil, the update is silently skipped.
func updateDocStatus(ctx context.Context, db publisher.StatusStore, docID, status string, logger *slog.Logger) {
	if db == nil {
		return
	}
	_, err := db.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, docID,
	)
	if err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
