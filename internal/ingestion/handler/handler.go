package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

// maxBodyBytes bounds a request body; a document may carry 64 fields of
// 1 MiB each.
const maxBodyBytes = 65 << 20

// Ingester accepts a validated document.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

// DocumentIndexer adds documents to the index synchronously.
type DocumentIndexer interface {
	IndexDocument(doc index.Document) error
}

// Direct indexes documents in process, for deployments without Kafka.
type Direct struct {
	Index DocumentIndexer
}

func (d Direct) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if err := d.Index.IndexDocument(req.Document()); err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{DocumentID: req.ID, Status: ingestion.StatusIndexed}, nil
}

type Handler struct {
	ingester Ingester
	logger   *slog.Logger
}

func New(ing Ingester) *Handler {
	return &Handler{
		ingester: ing,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"doc_id", req.ID,
			"error", err,
			"status_code", statusCode,
		)
		h.writeJSON(w, statusCode, apperrors.NewResponse(err, "ingestion failed", logger.RequestID(ctx)))
		return
	}
	log.Info("document ingested",
		"doc_id", resp.DocumentID,
		"status", resp.Status,
	)
	status := http.StatusAccepted
	if resp.Status == ingestion.StatusIndexed {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
