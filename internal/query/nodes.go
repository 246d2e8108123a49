package query

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// TermSet matches documents containing any of Terms in Field. Each matching
// term contributes its BM25 score.
type TermSet struct {
	Field string
	Terms []string
}

func (q *TermSet) String() string {
	if len(q.Terms) == 1 {
		return q.Field + ":" + q.Terms[0]
	}
	return q.Field + ":(" + strings.Join(q.Terms, " ") + ")"
}

func (q *TermSet) Scorer(ctx *Context) (Scorer, error) {
	s := newMapScorer()
	avg := ctx.Stats.AvgFieldLength(q.Field)
	for _, term := range q.Terms {
		postings, err := ctx.Segment.Postings(q.Field, term)
		if err != nil {
			return nil, fmt.Errorf("reading postings of %s:%s: %w", q.Field, term, err)
		}
		if len(postings) == 0 {
			continue
		}
		w := idf(ctx.Stats.NumDocs(), ctx.Stats.DocFreq(q.Field, term))
		for _, p := range postings {
			length := float64(ctx.Segment.FieldLength(q.Field, p.Doc))
			s.add(p.Doc, w*tfNorm(float64(p.Freq), length, avg))
		}
	}
	return s, nil
}

// Boost multiplies the score of Expr by Factor. Negative factors are allowed
// and turn a match into a penalty.
type Boost struct {
	Expr   Expression
	Factor float64
}

func (q *Boost) String() string {
	return "(" + q.Expr.String() + ")^" + formatFloat(q.Factor)
}

func (q *Boost) Scorer(ctx *Context) (Scorer, error) {
	inner, err := q.Expr.Scorer(ctx)
	if err != nil {
		return nil, err
	}
	return &scaledScorer{inner: inner, factor: q.Factor}, nil
}

type scaledScorer struct {
	inner  Scorer
	factor float64
}

func (s *scaledScorer) Docs() *roaring.Bitmap { return s.inner.Docs() }
func (s *scaledScorer) Score(doc uint32) float64 {
	return s.inner.Score(doc) * s.factor
}

// DisMax matches documents matching any disjunct and scores them with the
// highest disjunct score plus TieBreaker times the sum of the others.
type DisMax struct {
	Disjuncts  []Expression
	TieBreaker float64
}

func (q *DisMax) String() string {
	parts := make([]string, len(q.Disjuncts))
	for i, d := range q.Disjuncts {
		parts[i] = d.String()
	}
	s := "(" + strings.Join(parts, " | ") + ")"
	if q.TieBreaker != 0 {
		s += "~" + formatFloat(q.TieBreaker)
	}
	return s
}

func (q *DisMax) Scorer(ctx *Context) (Scorer, error) {
	subs, err := scorers(ctx, q.Disjuncts)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return emptyScorer{}, nil
	}
	docs := unionDocs(subs)
	scores := make(map[uint32]float64, docs.GetCardinality())
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		best, sum := math.Inf(-1), 0.0
		for _, sub := range subs {
			if !sub.Docs().Contains(doc) {
				continue
			}
			v := sub.Score(doc)
			sum += v
			if v > best {
				best = v
			}
		}
		scores[doc] = DisMaxScore(best, sum, q.TieBreaker)
	}
	return &mapScorer{docs: docs, scores: scores}, nil
}

// DisMaxScore combines the maximum and the sum of all matching scores.
func DisMaxScore(best, sum, tieBreaker float64) float64 {
	return best + tieBreaker*(sum-best)
}

// Occur says how a Boolean clause participates in matching.
type Occur int

const (
	Must Occur = iota
	Should
)

// Clause is one Boolean clause.
type Clause struct {
	Expr  Expression
	Occur Occur
}

// Boolean requires every Must clause and, when there are no Must clauses, at
// least max(1, MinShouldMatch) Should clauses. The score is the sum of the
// matching clause scores.
type Boolean struct {
	Clauses        []Clause
	MinShouldMatch int
}

func (q *Boolean) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		s := c.Expr.String()
		if _, nested := c.Expr.(*Boolean); nested {
			s = "(" + s + ")"
		}
		if c.Occur == Must {
			s = "+" + s
		}
		parts[i] = s
	}
	s := strings.Join(parts, " ")
	if q.MinShouldMatch > 0 {
		s = "(" + s + ")~" + strconv.Itoa(q.MinShouldMatch)
	}
	return s
}

func (q *Boolean) Scorer(ctx *Context) (Scorer, error) {
	var must, should []Scorer
	for _, c := range q.Clauses {
		s, err := c.Expr.Scorer(ctx)
		if err != nil {
			return nil, err
		}
		if c.Occur == Must {
			must = append(must, s)
		} else {
			should = append(should, s)
		}
	}

	var candidates *roaring.Bitmap
	minShould := q.MinShouldMatch
	switch {
	case len(must) > 0:
		candidates = must[0].Docs().Clone()
		for _, s := range must[1:] {
			candidates.And(s.Docs())
		}
	case len(should) > 0:
		candidates = unionDocs(should)
		if minShould < 1 {
			minShould = 1
		}
	default:
		return emptyScorer{}, nil
	}

	out := newMapScorer()
	it := candidates.Iterator()
	for it.HasNext() {
		doc := it.Next()
		score, matched := 0.0, 0
		for _, s := range must {
			score += s.Score(doc)
		}
		for _, s := range should {
			if s.Docs().Contains(doc) {
				score += s.Score(doc)
				matched++
			}
		}
		if matched < minShould {
			continue
		}
		out.add(doc, score)
	}
	return out, nil
}

// Phrase matches documents where Terms occur in order within Slop position
// moves.
type Phrase struct {
	Field string
	Terms []string
	Slop  int
}

func (q *Phrase) String() string {
	s := q.Field + ":\"" + strings.Join(q.Terms, " ") + "\""
	if q.Slop > 0 {
		s += "~" + strconv.Itoa(q.Slop)
	}
	return s
}

func (q *Phrase) Scorer(ctx *Context) (Scorer, error) {
	if len(q.Terms) == 0 {
		return emptyScorer{}, nil
	}
	positions := make([]map[uint32][]uint32, len(q.Terms))
	var candidates *roaring.Bitmap
	weight := 0.0
	for i, term := range q.Terms {
		postings, err := ctx.Segment.Postings(q.Field, term)
		if err != nil {
			return nil, fmt.Errorf("reading postings of %s:%s: %w", q.Field, term, err)
		}
		if len(postings) == 0 {
			return emptyScorer{}, nil
		}
		weight += idf(ctx.Stats.NumDocs(), ctx.Stats.DocFreq(q.Field, term))
		positions[i] = make(map[uint32][]uint32, len(postings))
		docs := roaring.New()
		for _, p := range postings {
			positions[i][p.Doc] = p.Positions
			docs.Add(p.Doc)
		}
		if candidates == nil {
			candidates = docs
		} else {
			candidates.And(docs)
		}
	}

	avg := ctx.Stats.AvgFieldLength(q.Field)
	out := newMapScorer()
	perDoc := make([][]uint32, len(q.Terms))
	it := candidates.Iterator()
	for it.HasNext() {
		doc := it.Next()
		for i := range q.Terms {
			perDoc[i] = positions[i][doc]
		}
		freq := sloppyFreq(perDoc, q.Slop)
		if freq == 0 {
			continue
		}
		length := float64(ctx.Segment.FieldLength(q.Field, doc))
		out.add(doc, weight*tfNorm(freq, length, avg))
	}
	return out, nil
}

// sloppyFreq counts phrase occurrences anchored at each position of the first
// term. An occurrence whose terms are displaced by d positions in total counts
// 1/(1+d) and is only accepted when d <= slop.
func sloppyFreq(positions [][]uint32, slop int) float64 {
	freq := 0.0
	for _, start := range positions[0] {
		dist := 0
		for i := 1; i < len(positions) && dist <= slop; i++ {
			dist += nearest(positions[i], int(start)+i)
		}
		if dist <= slop {
			freq += 1.0 / float64(1+dist)
		}
	}
	return freq
}

// nearest returns the distance from target to the closest position.
func nearest(positions []uint32, target int) int {
	i := sort.Search(len(positions), func(j int) bool { return int(positions[j]) >= target })
	best := math.MaxInt32
	if i < len(positions) {
		best = int(positions[i]) - target
	}
	if i > 0 {
		if d := target - int(positions[i-1]); d < best {
			best = d
		}
	}
	return best
}

// MatchAll matches every document with score 1.
type MatchAll struct{}

func (MatchAll) String() string { return "*:*" }

func (MatchAll) Scorer(ctx *Context) (Scorer, error) {
	return constScorer{docs: allDocs(ctx.Segment), score: 1}, nil
}

// MatchNone matches nothing.
type MatchNone struct{}

func (MatchNone) String() string { return "MatchNoDocs" }

func (MatchNone) Scorer(*Context) (Scorer, error) {
	return emptyScorer{}, nil
}

// FunctionBoost multiplies the score of every document matching Expr by the
// value Source yields for it.
type FunctionBoost struct {
	Expr   Expression
	Source ValueSource
}

func (q *FunctionBoost) String() string {
	return "boost(" + q.Expr.String() + "," + q.Source.String() + ")"
}

func (q *FunctionBoost) Scorer(ctx *Context) (Scorer, error) {
	inner, err := q.Expr.Scorer(ctx)
	if err != nil {
		return nil, err
	}
	values, err := q.Source.Values(ctx)
	if err != nil {
		return nil, err
	}
	return &boostedScorer{inner: inner, values: values}, nil
}

type boostedScorer struct {
	inner  Scorer
	values FloatValues
}

func (s *boostedScorer) Docs() *roaring.Bitmap { return s.inner.Docs() }
func (s *boostedScorer) Score(doc uint32) float64 {
	return s.inner.Score(doc) * s.values.FloatVal(doc)
}

// FunctionQuery matches every document and scores it with Source.
type FunctionQuery struct {
	Source ValueSource
}

func (q *FunctionQuery) String() string {
	return "FunctionQuery(" + q.Source.String() + ")"
}

func (q *FunctionQuery) Scorer(ctx *Context) (Scorer, error) {
	values, err := q.Source.Values(ctx)
	if err != nil {
		return nil, err
	}
	return &functionScorer{docs: allDocs(ctx.Segment), values: values}, nil
}

type functionScorer struct {
	docs   *roaring.Bitmap
	values FloatValues
}

func (s *functionScorer) Docs() *roaring.Bitmap { return s.docs }
func (s *functionScorer) Score(doc uint32) float64 {
	return s.values.FloatVal(doc)
}

func scorers(ctx *Context, exprs []Expression) ([]Scorer, error) {
	out := make([]Scorer, 0, len(exprs))
	for _, e := range exprs {
		s, err := e.Scorer(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func unionDocs(subs []Scorer) *roaring.Bitmap {
	bms := make([]*roaring.Bitmap, len(subs))
	for i, s := range subs {
		bms[i] = s.Docs()
	}
	return roaring.FastOr(bms...)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}
