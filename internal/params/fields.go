package params

import (
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// FieldBoost is one entry of a qf-style field list.
type FieldBoost struct {
	Field string
	Boost float64
	// Explicit is false when the entry had no ^boost suffix.
	Explicit bool
}

// FieldBoosts is an ordered field list. Order is preserved so that rendered
// query strings are stable.
type FieldBoosts []FieldBoost

// ParseFieldBoosts parses whitespace separated "field" or "field^boost"
// entries. Several values are concatenated. A field listed twice keeps its
// first position and its last boost.
func ParseFieldBoosts(values ...string) (FieldBoosts, error) {
	var out FieldBoosts
	index := make(map[string]int)
	for _, value := range values {
		for _, entry := range strings.Fields(value) {
			fb, err := parseFieldBoost(entry)
			if err != nil {
				return nil, err
			}
			if i, ok := index[fb.Field]; ok {
				out[i] = fb
				continue
			}
			index[fb.Field] = len(out)
			out = append(out, fb)
		}
	}
	return out, nil
}

func parseFieldBoost(entry string) (FieldBoost, error) {
	field, boost, found := strings.Cut(entry, "^")
	if field == "" {
		return FieldBoost{}, apperrors.Configf("field list entry %q has no field name", entry)
	}
	if !found {
		return FieldBoost{Field: field, Boost: 1.0}, nil
	}
	b, err := strconv.ParseFloat(boost, 64)
	if err != nil {
		return FieldBoost{}, apperrors.Configf("field list entry %q has a malformed boost", entry)
	}
	return FieldBoost{Field: field, Boost: b, Explicit: true}, nil
}

// Fields returns the field names in order.
func (fb FieldBoosts) Fields() []string {
	out := make([]string, len(fb))
	for i, f := range fb {
		out[i] = f.Field
	}
	return out
}

// Lookup returns the boost for field.
func (fb FieldBoosts) Lookup(field string) (float64, bool) {
	for _, f := range fb {
		if f.Field == field {
			return f.Boost, true
		}
	}
	return 0, false
}

// String renders the list back into qf syntax.
func (fb FieldBoosts) String() string {
	parts := make([]string, len(fb))
	for i, f := range fb {
		if f.Explicit {
			parts[i] = f.Field + "^" + FormatFloat(f.Boost)
		} else {
			parts[i] = f.Field
		}
	}
	return strings.Join(parts, " ")
}

// FormatFloat renders f the way boosts appear in query strings, always with a
// fractional part: -100 renders as "-100.0".
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
