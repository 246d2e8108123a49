package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
		code   string
	}{
		{Configf("bad qf %q", "x^"), http.StatusBadRequest, "configuration"},
		{fmt.Errorf("%w: max(", ErrCompilation), http.StatusBadRequest, "compilation"},
		{fmt.Errorf("%w: bq(k)", ErrMissingCacheEntry), http.StatusBadRequest, "missing_cache_entry"},
		{fmt.Errorf("wrap: %w", ErrExpansion), http.StatusUnprocessableEntity, "expansion"},
		{ErrTimeout, http.StatusServiceUnavailable, "timeout"},
		{New(ErrInvalidInput, http.StatusRequestEntityTooLarge, "body too large"), http.StatusRequestEntityTooLarge, "invalid_input"},
		{errors.New("disk"), http.StatusInternalServerError, "internal"},
	} {
		assert.Equal(t, tc.status, HTTPStatusCode(tc.err), tc.err.Error())
		assert.Equal(t, tc.code, Code(tc.err), tc.err.Error())
	}
}

func TestAppErrorWraps(t *testing.T) {
	err := fmt.Errorf("parsing: %w", Configf("parameter %s: %q is not a number", "tie", "x"))
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, `parsing: configuration error: parameter tie: "x" is not a number`, err.Error())
}

func TestNewResponse(t *testing.T) {
	r := NewResponse(Configf("bad"), "search failed", "req-1")
	assert.Equal(t, Response{Error: "configuration error: bad", Code: "configuration", RequestID: "req-1"}, r)

	r = NewResponse(errors.New("segment checksum mismatch"), "search failed", "")
	assert.Equal(t, Response{Error: "search failed", Code: "internal"}, r)
}
