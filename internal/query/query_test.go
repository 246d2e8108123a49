package query_test

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query/querytest"
)

// fixed is an expression with predetermined per-document scores.
type fixed struct {
	name   string
	scores map[uint32]float64
}

func (f fixed) String() string { return f.name }

func (f fixed) Scorer(*query.Context) (query.Scorer, error) {
	return fixedScorer(f), nil
}

type fixedScorer fixed

func (f fixedScorer) Docs() *roaring.Bitmap {
	bm := roaring.New()
	for doc := range f.scores {
		bm.Add(doc)
	}
	return bm
}

func (f fixedScorer) Score(doc uint32) float64 { return f.scores[doc] }

func score(t *testing.T, e query.Expression, ctx *query.Context) map[uint32]float64 {
	t.Helper()
	s, err := e.Scorer(ctx)
	require.NoError(t, err)
	out := make(map[uint32]float64)
	it := s.Docs().Iterator()
	for it.HasNext() {
		doc := it.Next()
		out[doc] = s.Score(doc)
	}
	return out
}

func emptyCtx() *query.Context {
	return querytest.NewSegment("s", 0).Context()
}

func TestDisMaxScoreLaw(t *testing.T) {
	dm := &query.DisMax{
		Disjuncts: []query.Expression{
			fixed{"a", map[uint32]float64{0: 3.0}},
			fixed{"b", map[uint32]float64{0: 1.0, 1: 2.0}},
		},
		TieBreaker: 0.1,
	}
	got := score(t, dm, emptyCtx())
	assert.InDelta(t, 3.1, got[0], 1e-9)
	assert.InDelta(t, 2.0, got[1], 1e-9)

	dm.TieBreaker = 0
	got = score(t, dm, emptyCtx())
	assert.InDelta(t, 3.0, got[0], 1e-9)
	assert.Equal(t, "(a | b)", dm.String())
}

func TestBooleanMustAndShould(t *testing.T) {
	b := &query.Boolean{Clauses: []query.Clause{
		{Expr: fixed{"x", map[uint32]float64{0: 1, 1: 1, 2: 1}}, Occur: query.Must},
		{Expr: fixed{"y", map[uint32]float64{1: 2, 2: 2}}, Occur: query.Must},
		{Expr: fixed{"z", map[uint32]float64{2: 5, 3: 5}}, Occur: query.Should},
	}}
	got := score(t, b, emptyCtx())
	assert.Equal(t, map[uint32]float64{1: 3, 2: 8}, got)
	assert.Equal(t, "+x +y z", b.String())
}

func TestBooleanMinShouldMatch(t *testing.T) {
	b := &query.Boolean{
		Clauses: []query.Clause{
			{Expr: fixed{"x", map[uint32]float64{0: 1, 1: 1}}, Occur: query.Should},
			{Expr: fixed{"y", map[uint32]float64{1: 1}}, Occur: query.Should},
		},
		MinShouldMatch: 2,
	}
	got := score(t, b, emptyCtx())
	assert.Equal(t, map[uint32]float64{1: 2}, got)
	assert.Equal(t, "(x y)~2", b.String())
}

func TestBoostAllowsNegativeFactor(t *testing.T) {
	q := &query.Boost{Expr: fixed{"x", map[uint32]float64{4: 2}}, Factor: -100}
	got := score(t, q, emptyCtx())
	assert.Equal(t, -200.0, got[4])
	assert.Equal(t, "(x)^-100.0", q.String())
}

func TestTermSetScoresWithBM25(t *testing.T) {
	seg := querytest.NewSegment("s", 0)
	seg.Add(map[string]string{"title": "red shoes"})
	seg.Add(map[string]string{"title": "blue shoes shoes"})
	seg.Add(map[string]string{"title": "green hat"})

	got := score(t, &query.TermSet{Field: "title", Terms: []string{"shoes"}}, seg.Context())
	require.Len(t, got, 2)
	assert.Greater(t, got[1], got[0], "higher term frequency scores higher")

	both := score(t, &query.TermSet{Field: "title", Terms: []string{"red", "hat"}}, seg.Context())
	assert.Len(t, both, 2)
	assert.Equal(t, "title:(red hat)", (&query.TermSet{Field: "title", Terms: []string{"red", "hat"}}).String())
}

func TestPhraseSlop(t *testing.T) {
	seg := querytest.NewSegment("s", 0)
	seg.Add(map[string]string{"body": "quick brown fox"})
	seg.Add(map[string]string{"body": "quick red brown fox"})
	seg.Add(map[string]string{"body": "brown quick"})

	exact := score(t, &query.Phrase{Field: "body", Terms: []string{"quick", "brown"}}, seg.Context())
	assert.Contains(t, exact, uint32(0))
	assert.NotContains(t, exact, uint32(1))
	assert.NotContains(t, exact, uint32(2))

	sloppy := score(t, &query.Phrase{Field: "body", Terms: []string{"quick", "brown"}, Slop: 1}, seg.Context())
	assert.Contains(t, sloppy, uint32(0))
	assert.Contains(t, sloppy, uint32(1))
	assert.Greater(t, sloppy[0], sloppy[1])

	assert.Equal(t, `body:"quick brown"~1`, (&query.Phrase{Field: "body", Terms: []string{"quick", "brown"}, Slop: 1}).String())
}

func TestMatchAllAndNone(t *testing.T) {
	seg := querytest.NewSegment("s", 0)
	seg.Add(map[string]string{"f": "a"})
	seg.Add(map[string]string{"f": "b"})

	assert.Len(t, score(t, query.MatchAll{}, seg.Context()), 2)
	assert.Empty(t, score(t, query.MatchNone{}, seg.Context()))
}

func TestFunctionBoostMultiplies(t *testing.T) {
	inner := fixed{"x", map[uint32]float64{0: 2, 1: 3}}
	boostQ := fixed{"y", map[uint32]float64{1: 4}}
	fb := &query.FunctionBoost{
		Expr: inner,
		Source: query.ProductOf(
			&query.QueryValue{Expr: boostQ, Default: 1},
			query.Const{Value: 0.5},
		),
	}
	got := score(t, fb, emptyCtx())
	assert.Equal(t, map[uint32]float64{0: 1, 1: 6}, got)
	assert.Equal(t, "boost(x,product(query(y,def=1.0),0.5))", fb.String())
}

func TestFunctionQueryMatchesAll(t *testing.T) {
	seg := querytest.NewSegment("s", 0)
	seg.Add(map[string]string{"f": "a"})
	seg.Add(map[string]string{"f": "b"})
	got := score(t, &query.FunctionQuery{Source: query.Const{Value: 2}}, seg.Context())
	assert.Equal(t, map[uint32]float64{0: 2, 1: 2}, got)
}

func TestCountTerms(t *testing.T) {
	e := &query.Boolean{Clauses: []query.Clause{
		{Expr: &query.DisMax{Disjuncts: []query.Expression{
			&query.TermSet{Field: "a", Terms: []string{"x"}},
			&query.Boost{Expr: &query.TermSet{Field: "b", Terms: []string{"x"}}, Factor: 2},
		}}, Occur: query.Must},
		{Expr: &query.Phrase{Field: "a", Terms: []string{"x", "y"}}, Occur: query.Should},
	}}
	assert.Equal(t, 2, query.CountTerms(e))
}
