package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeHandlerExposesCollectors(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.ResultCacheHits.Inc()
	m.IngestMessagesTotal.WithLabelValues("rejected").Inc()
	m.BreakerState.WithLabelValues("result-cache").Set(1)

	rec := httptest.NewRecorder()
	ScrapeHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `ingest_messages_total{outcome="rejected"} 1`)
	assert.Contains(t, body, `circuit_breaker_state{name="result-cache"} 1`)
	assert.Contains(t, body, "promhttp_metric_handler_requests_total")
}

func TestNewUnregisteredIsIsolated(t *testing.T) {
	a, b := NewUnregistered(), NewUnregistered()
	a.DocsIndexedTotal.Inc()
	assert.NotSame(t, a.DocsIndexedTotal, b.DocsIndexedTotal)
}
