// Package validator provides input validation for ingestion requests. It
// enforces id, field name and field length constraints and returns per-field
// error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
)

const (
	maxIDLength    = 255
	maxFieldLength = 1048576
	maxFields      = 64
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the document id and fields of req and
// returns a ValidationError if any constraint fails.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(req.ID)
	if id == "" {
		errs["id"] = "id is required"
	} else if len(id) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	} else if id != req.ID {
		errs["id"] = "id must not have leading or trailing spaces"
	}

	switch {
	case len(req.Fields) == 0:
		errs["fields"] = "at least one field is required"
	case len(req.Fields) > maxFields:
		errs["fields"] = fmt.Sprintf("at most %d fields are allowed", maxFields)
	}
	for name, text := range req.Fields {
		if name == "" || strings.ContainsAny(name, " \t\n^:") {
			errs["fields"] = fmt.Sprintf("invalid field name %q", name)
			continue
		}
		if len(text) > maxFieldLength {
			errs["fields."+name] = fmt.Sprintf("field must be at most %d characters", maxFieldLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
