package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
)

func TestValidateIngestRequest(t *testing.T) {
	ok := &ingestion.IngestRequest{ID: "doc-1", Fields: map[string]string{"title": "hello"}}
	require.NoError(t, ValidateIngestRequest(ok))

	tests := []struct {
		name  string
		req   ingestion.IngestRequest
		field string
	}{
		{"missing id", ingestion.IngestRequest{Fields: map[string]string{"t": "x"}}, "id"},
		{"padded id", ingestion.IngestRequest{ID: " d", Fields: map[string]string{"t": "x"}}, "id"},
		{"long id", ingestion.IngestRequest{ID: strings.Repeat("x", 256), Fields: map[string]string{"t": "x"}}, "id"},
		{"no fields", ingestion.IngestRequest{ID: "d"}, "fields"},
		{"boosted name", ingestion.IngestRequest{ID: "d", Fields: map[string]string{"title^2": "x"}}, "fields"},
		{"long field", ingestion.IngestRequest{ID: "d", Fields: map[string]string{"body": strings.Repeat("x", maxFieldLength+1)}}, "fields.body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}
