package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

func TestParseFieldBoosts(t *testing.T) {
	fb, err := ParseFieldBoosts("field1 field2^3", "field3^0.5")
	require.NoError(t, err)
	require.Len(t, fb, 3)

	assert.Equal(t, FieldBoost{Field: "field1", Boost: 1.0}, fb[0])
	assert.Equal(t, FieldBoost{Field: "field2", Boost: 3.0, Explicit: true}, fb[1])
	assert.Equal(t, []string{"field1", "field2", "field3"}, fb.Fields())
	assert.Equal(t, "field1 field2^3.0 field3^0.5", fb.String())

	b, ok := fb.Lookup("field3")
	assert.True(t, ok)
	assert.Equal(t, 0.5, b)
}

func TestParseFieldBoostsRejectsMalformedBoost(t *testing.T) {
	_, err := ParseFieldBoosts("title^abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))

	_, err = ParseFieldBoosts("^2")
	require.Error(t, err)
}

func TestParseFieldBoostsDuplicateKeepsPosition(t *testing.T) {
	fb, err := ParseFieldBoosts("a^2 b a^5")
	require.NoError(t, err)
	assert.Equal(t, "a^5.0 b", fb.String())
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "-100.0", FormatFloat(-100))
	assert.Equal(t, "-1000000.0", FormatFloat(-1000000))
	assert.Equal(t, "0.25", FormatFloat(0.25))
	assert.Equal(t, "3.0", FormatFloat(3))
}

func TestTypedGetters(t *testing.T) {
	p := Params{"on": {"true"}, "f": {"2.5"}, "i": {"7"}, "bad": {"x"}}

	b, err := p.Bool("on", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = p.Bool("missing", true)
	require.NoError(t, err)
	assert.True(t, b)

	f, err := p.Float("f", 0)
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	i, err := p.Int("i", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, i)

	_, err = p.Float("bad", 0)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
	_, err = p.Bool("bad", false)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestCloneIsDeep(t *testing.T) {
	p := Params{"q": {"a"}}
	c := p.Clone()
	c.Add("q", "b")
	assert.Equal(t, []string{"a"}, p.GetAll("q"))
	assert.Equal(t, []string{"a", "b"}, c.GetAll("q"))
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := Params{"q": {"x y"}, "qf": {"title"}}
	b := Params{"qf": {"title"}, "q": {"x y"}}
	assert.Equal(t, a.Canonical(), b.Canonical())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b ,"))
	assert.Nil(t, SplitList(""))
}

func TestParseLocalParams(t *testing.T) {
	lp, ok, err := ParseLocalParams("{!tidismax qf='field1^-100.0 field2^-300.0 ' mm=1 bq=''} b c", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tidismax", lp.Type)
	assert.Equal(t, "field1^-100.0 field2^-300.0 ", lp.Args["qf"])
	assert.Equal(t, "1", lp.Args["mm"])
	v, present := lp.Args["bq"]
	assert.True(t, present)
	assert.Equal(t, "", v)
	assert.Equal(t, "b c", lp.Body)
}

func TestParseLocalParamsDereferences(t *testing.T) {
	req := Params{"rqq": {"{!tidismax qf='f^-1.0'} x"}}
	lp, ok, err := ParseLocalParams("{!rerank reRankQuery=$rqq reRankDocs=400}", req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rerank", lp.Type)
	assert.Equal(t, "{!tidismax qf='f^-1.0'} x", lp.Arg("reRankQuery", ""))
	assert.Equal(t, "400", lp.Arg("reRankDocs", ""))
	assert.Equal(t, "2.0", lp.Arg("reRankWeight", "2.0"))
	assert.Empty(t, lp.Body)
}

func TestParseLocalParamsPlainBody(t *testing.T) {
	lp, ok, err := ParseLocalParams("title:foo", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "title:foo", lp.Body)
}

func TestParseLocalParamsErrors(t *testing.T) {
	_, _, err := ParseLocalParams("{!func x=1", nil)
	require.Error(t, err)
	_, _, err = ParseLocalParams("{!func x='open}", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}
