package analysis

import (
	"strings"
	"sync/atomic"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// Lowercase folds terms to lower case.
var Lowercase = FilterFunc(strings.ToLower)

// ASCIIFolding strips combining marks after canonical decomposition, so
// "café" becomes "cafe".
var ASCIIFolding = FilterFunc(func(term string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, term)
	if err != nil {
		return term
	}
	return folded
})

// PorterStem applies the classic Porter stemmer.
var PorterStem = FilterFunc(porterstemmer.StemString)

// SnowballEnglish applies the Snowball English (Porter2) stemmer.
var SnowballEnglish = FilterFunc(func(term string) string {
	env := snowballstem.NewEnv(term)
	english.Stem(env)
	return env.Current()
})

// NewStopFilter drops the given words; an empty list uses the built-in
// English function words.
func NewStopFilter(words []string) Filter {
	if len(words) == 0 {
		words = defaultStopWords
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return FilterFunc(func(term string) string {
		if _, stop := set[term]; stop {
			return ""
		}
		return term
	})
}

// SynonymTable is a hot-swappable term -> synonyms mapping. It is shared by
// the synonym filter and whatever refreshes it.
type SynonymTable struct {
	entries atomic.Pointer[map[string][]string]
}

// NewSynonymTable returns a table seeded with entries.
func NewSynonymTable(entries map[string][]string) *SynonymTable {
	t := &SynonymTable{}
	t.Replace(entries)
	return t
}

// Replace swaps the whole table. Readers see either the old or the new map.
func (t *SynonymTable) Replace(entries map[string][]string) {
	cp := make(map[string][]string, len(entries))
	for k, v := range entries {
		cp[k] = append([]string(nil), v...)
	}
	t.entries.Store(&cp)
}

// Lookup returns the synonyms of term.
func (t *SynonymTable) Lookup(term string) []string {
	m := t.entries.Load()
	if m == nil {
		return nil
	}
	return (*m)[term]
}

// Len is the number of terms with synonyms.
func (t *SynonymTable) Len() int {
	m := t.entries.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// SynonymFilter emits every token followed by its synonyms at the same
// position.
type SynonymFilter struct {
	Table *SynonymTable
}

func (f SynonymFilter) Filter(tokens []Token) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok)
		for _, syn := range f.Table.Lookup(tok.Term) {
			if syn == tok.Term {
				continue
			}
			out = append(out, Token{Term: syn, Position: tok.Position})
		}
	}
	return out, nil
}
