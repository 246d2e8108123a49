// Package booster adds boost and penalize term sets to a request. Each set is
// turned into a term inspecting dismax query string and handed to the query
// through one of three strategies: as an optional clause (bq), as a
// multiplicative factor (boost) or as a rerank pass over the top documents
// (rq/rqq).
package booster

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// Kind selects how a term set contributes to the score.
type Kind int

const (
	Additive Kind = iota
	Multiplicative
	Rerank
)

func (k Kind) String() string {
	switch k {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	case Rerank:
		return "rerank"
	default:
		return "unknown"
	}
}

// ParseKind accepts the strategy names and the parameter they write to.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "additive", "bq", "boost_query":
		return Additive, nil
	case "multiplicative", "boost":
		return Multiplicative, nil
	case "rerank", "rq":
		return Rerank, nil
	}
	return 0, apperrors.Configf("unknown boost strategy %q", s)
}

// Strategy applies one term set to a request.
type Strategy struct {
	Kind Kind
	// Docs is the rerank window. Only Rerank uses it.
	Docs int
	// QueryType is the local params type of the generated query.
	QueryType string
	// Factor multiplies every field boost. Penalizers carry a negative factor.
	Factor   float64
	Analyzer analysis.Analyzer
	// Extra is a comma separated list of terms added to the analyzed ones.
	Extra  string
	Fields params.FieldBoosts
}

// Terms analyzes q and appends the extra terms, without duplicates.
func (s *Strategy) Terms(q string) ([]string, error) {
	var terms []string
	if s.Analyzer != nil {
		var err error
		if terms, err = analysis.Collect(s.Analyzer, q, ""); err != nil {
			return nil, fmt.Errorf("%w: analyzing %q: %w", apperrors.ErrExpansion, q, err)
		}
	}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t] = struct{}{}
	}
	for _, extra := range params.SplitList(s.Extra) {
		if _, ok := seen[extra]; ok {
			continue
		}
		seen[extra] = struct{}{}
		terms = append(terms, extra)
	}
	return terms, nil
}

// QueryString renders the query for the joined terms.
func (s *Strategy) QueryString(joined string) string {
	return fmt.Sprintf("{!%s qf='%s' mm=1 bq=''} %s", s.QueryType, s.factorizedFields(), joined)
}

// factorizedFields renders every field with its boost multiplied by Factor.
// Each entry is followed by a space.
func (s *Strategy) factorizedFields() string {
	var sb strings.Builder
	for _, fb := range s.Fields {
		sb.WriteString(fb.Field)
		sb.WriteByte('^')
		sb.WriteString(params.FormatFloat(fb.Boost * s.Factor))
		sb.WriteByte(' ')
	}
	return sb.String()
}

// Apply adds the term set to req and returns the joined terms, or "" when
// there are none. A rerank strategy leaves req alone when it already asks
// for a rerank pass.
func (s *Strategy) Apply(q string, req params.Params) (string, error) {
	terms, err := s.Terms(q)
	if err != nil || len(terms) == 0 {
		return "", err
	}
	joined := strings.Join(terms, " ")
	qs := s.QueryString(joined)

	switch s.Kind {
	case Additive:
		req.Add(params.BQ, qs)
	case Multiplicative:
		req.Add(params.Boost, qs)
	case Rerank:
		if req.Has(params.RQ) {
			return joined, nil
		}
		req.Add(params.RQ, fmt.Sprintf("{!rerank reRankQuery=$rqq reRankDocs=%d}", s.Docs))
		req.Add("rqq", qs)
	default:
		return "", apperrors.Configf("unknown boost strategy %d", int(s.Kind))
	}
	return joined, nil
}
