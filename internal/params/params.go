// Package params holds request parameters as an ordered multi-valued map and
// parses the small parameter languages used by the query components: field
// boost lists and local-params query strings.
package params

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// Well-known request parameter names.
const (
	Q     = "q"
	QF    = "qf"
	Sort  = "sort"
	BQ    = "bq"
	BF    = "bf"
	Boost = "boost"
	RQ    = "rq"
	Tie   = "tie"
	MM    = "mm"
	Debug = "debug"
)

// Params is a multi-valued parameter map. Values keep insertion order per key.
type Params map[string][]string

// FromValues copies url.Values into Params.
func FromValues(v url.Values) Params {
	p := make(Params, len(v))
	for k, vals := range v {
		p[k] = append([]string(nil), vals...)
	}
	return p
}

// Get returns the first value for key, or "".
func (p Params) Get(key string) string {
	if vals := p[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Lookup returns the first value for key and whether the key is present.
func (p Params) Lookup(key string) (string, bool) {
	vals, ok := p[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// GetAll returns all values for key.
func (p Params) GetAll(key string) []string {
	return p[key]
}

// Has reports whether key has at least one value.
func (p Params) Has(key string) bool {
	return len(p[key]) > 0
}

func (p Params) Add(key, value string) {
	p[key] = append(p[key], value)
}

func (p Params) Set(key string, values ...string) {
	p[key] = append([]string(nil), values...)
}

func (p Params) Del(key string) {
	delete(p, key)
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, vals := range p {
		c[k] = append([]string(nil), vals...)
	}
	return c
}

// Bool parses key as a boolean, returning def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	}
	return def, apperrors.Configf("parameter %s: %q is not a boolean", key, v)
}

// Float parses key as a float, returning def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, apperrors.Configf("parameter %s: %q is not a number", key, v)
	}
	return f, nil
}

// Int parses key as an integer, returning def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, apperrors.Configf("parameter %s: %q is not an integer", key, v)
	}
	return i, nil
}

// Canonical renders the params with sorted keys, for cache keys.
func (p Params) Canonical() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		for _, v := range p[k] {
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
			sb.WriteByte('&')
		}
	}
	return sb.String()
}

// SplitList splits a comma separated list, trimming and dropping empties.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
