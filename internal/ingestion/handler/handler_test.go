package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
)

type recordingIndexer struct {
	docs []index.Document
	err  error
}

func (r *recordingIndexer) IndexDocument(doc index.Document) error {
	if r.err != nil {
		return r.err
	}
	r.docs = append(r.docs, doc)
	return nil
}

type queued struct{}

func (queued) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	return &ingestion.IngestResponse{DocumentID: req.ID, Status: ingestion.StatusPending}, nil
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body)))
	return rec
}

func TestIngestDirect(t *testing.T) {
	idx := &recordingIndexer{}
	rec := post(New(Direct{Index: idx}), `{"id":"d1","fields":{"title":"red shoes"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ingestion.IngestResponse{DocumentID: "d1", Status: ingestion.StatusIndexed}, resp)
	require.Len(t, idx.docs, 1)
	assert.Equal(t, "red shoes", idx.docs[0].Fields["title"])
}

func TestIngestQueued(t *testing.T) {
	rec := post(New(queued{}), `{"id":"d1","fields":{"title":"x"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestIngestRejectsInvalid(t *testing.T) {
	h := New(Direct{Index: &recordingIndexer{}})

	rec := post(h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h, `{"id":"","fields":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body["error"])
	assert.Contains(t, body["fields"], "id")
}

func TestIngestIndexFailure(t *testing.T) {
	rec := post(New(Direct{Index: &recordingIndexer{err: errors.New("disk full")}}), `{"id":"d1","fields":{"title":"x"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
