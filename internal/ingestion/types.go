// Package ingestion defines the request/response types and Kafka event schemas
// used by the document ingestion pipeline.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
)

// IngestRequest is the JSON body accepted by POST /api/v1/documents.
type IngestRequest struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Document converts the request into an indexable document.
func (r *IngestRequest) Document() index.Document {
	return index.Document{ID: r.ID, Fields: r.Fields}
}

// IngestResponse is returned to the caller after a document is accepted.
// Status is PENDING when the document was queued and INDEXED when it was
// added to the index directly.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// Document statuses tracked in the documents table.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusFailed  = "FAILED"
)

// IngestEvent is the Kafka message payload consumed by the indexer.
type IngestEvent struct {
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields"`
	IngestedAt time.Time         `json:"ingested_at"`
}

func (e IngestEvent) Document() index.Document {
	return index.Document{ID: e.DocumentID, Fields: e.Fields}
}
