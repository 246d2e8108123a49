package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
)

func testRegistry(t testing.TB) *Registry {
	t.Helper()
	cfg := config.Default().Analysis
	cfg.Analyzers["synonyms"] = config.AnalyzerConfig{
		Tokenizer: "keyword",
		Filters:   []string{"lowercase", "synonym"},
		Synonyms:  map[string][]string{"tv": {"television", "telly"}},
	}
	cfg.Fields = map[string]string{"title": "text_en", "sku": "keyword"}
	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	return r
}

func TestDefaultTextAnalyzerDropsStopWords(t *testing.T) {
	r := testRegistry(t)
	text, ok := r.Get("text")
	require.True(t, ok)

	terms, err := text.Tokenize("a b c", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, terms)
}

func TestUnicodeTokenizerFoldsAndLowercases(t *testing.T) {
	r := testRegistry(t)
	text, _ := r.Get("text")

	tokens, err := text.Analyze("Café, CRÈME brûlée!")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, Token{Term: "cafe", Position: 0}, tokens[0])
	assert.Equal(t, Token{Term: "creme", Position: 1}, tokens[1])
	assert.Equal(t, Token{Term: "brulee", Position: 2}, tokens[2])
}

func TestPositionsAreCompactedAfterStopWords(t *testing.T) {
	r := testRegistry(t)
	text, _ := r.Get("text")

	tokens, err := text.Analyze("the quick and the dead")
	require.NoError(t, err)
	assert.Equal(t, []Token{{"quick", 0}, {"dead", 1}}, tokens)
}

func TestFieldAnalyzerUsesFieldMapping(t *testing.T) {
	r := testRegistry(t)
	fa := r.FieldAnalyzer()

	title, err := fa.Tokenize("running shoes", "title")
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "shoe"}, title)

	sku, err := fa.Tokenize("AB-12 X", "sku")
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-12 X"}, sku)

	// unmapped fields use the default analyzer
	body, err := fa.Tokenize("running shoes", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"running", "shoes"}, body)
}

func TestSynonymFilterAndHotSwap(t *testing.T) {
	r := testRegistry(t)
	syn, ok := r.Get("synonyms")
	require.True(t, ok)

	terms, err := syn.Tokenize("TV", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tv", "television", "telly"}, terms)

	table, ok := r.SynonymTable("synonyms")
	require.True(t, ok)
	table.Replace(map[string][]string{"tv": {"tube"}})

	terms, err = syn.Tokenize("tv", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tv", "tube"}, terms)
}

func TestSnowballFilter(t *testing.T) {
	chain := NewChain("en", WhitespaceTokenizer{}, SnowballEnglish)
	terms, err := chain.Tokenize("cats running", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "run"}, terms)
}

func TestCollectDeduplicatesInOrder(t *testing.T) {
	chain := NewChain("ws", WhitespaceTokenizer{}, Lowercase)
	terms, err := Collect(chain, "b A b a c", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, terms)
}

func TestCollectPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := AnalyzerFunc(func(string, string) ([]string, error) { return nil, boom })
	_, err := Collect(failing, "x", "")
	assert.ErrorIs(t, err, boom)
}

func TestRegistryRejectsUnknownParts(t *testing.T) {
	cfg := config.Default().Analysis
	cfg.Analyzers["bad"] = config.AnalyzerConfig{Tokenizer: "ngram"}
	_, err := NewRegistry(cfg)
	require.Error(t, err)

	cfg = config.Default().Analysis
	cfg.Analyzers["bad"] = config.AnalyzerConfig{Filters: []string{"shingle"}}
	_, err = NewRegistry(cfg)
	require.Error(t, err)

	r := testRegistry(t)
	a, err := r.Optional("")
	require.NoError(t, err)
	assert.Nil(t, a)
	_, err = r.Optional("missing")
	require.Error(t, err)
}
