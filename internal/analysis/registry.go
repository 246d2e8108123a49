package analysis

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
)

// Registry holds the named analyzers and the field -> analyzer mapping.
// It is immutable once built; only synonym tables change afterwards.
type Registry struct {
	chains          map[string]*Chain
	synonyms        map[string]*SynonymTable
	fields          map[string]string
	defaultAnalyzer string
}

// NewRegistry builds every analyzer described in cfg.
func NewRegistry(cfg config.AnalysisConfig) (*Registry, error) {
	r := &Registry{
		chains:          make(map[string]*Chain, len(cfg.Analyzers)),
		synonyms:        make(map[string]*SynonymTable),
		fields:          make(map[string]string, len(cfg.Fields)),
		defaultAnalyzer: cfg.DefaultAnalyzer,
	}
	for name, ac := range cfg.Analyzers {
		chain, err := r.buildChain(name, ac)
		if err != nil {
			return nil, err
		}
		r.chains[name] = chain
	}
	if _, ok := r.chains[cfg.DefaultAnalyzer]; !ok {
		return nil, fmt.Errorf("default analyzer %q is not defined", cfg.DefaultAnalyzer)
	}
	for field, name := range cfg.Fields {
		if _, ok := r.chains[name]; !ok {
			return nil, fmt.Errorf("field %s: analyzer %q is not defined", field, name)
		}
		r.fields[field] = name
	}
	return r, nil
}

func (r *Registry) buildChain(name string, ac config.AnalyzerConfig) (*Chain, error) {
	var tok Tokenizer
	switch ac.Tokenizer {
	case "", "unicode", "standard":
		tok = UnicodeTokenizer{}
	case "whitespace":
		tok = WhitespaceTokenizer{}
	case "keyword":
		tok = KeywordTokenizer{}
	default:
		return nil, fmt.Errorf("analyzer %s: unknown tokenizer %q", name, ac.Tokenizer)
	}

	filters := make([]Filter, 0, len(ac.Filters))
	for _, fname := range ac.Filters {
		switch fname {
		case "lowercase":
			filters = append(filters, Lowercase)
		case "asciifolding":
			filters = append(filters, ASCIIFolding)
		case "stop":
			filters = append(filters, NewStopFilter(ac.Stopwords))
		case "porter":
			filters = append(filters, PorterStem)
		case "snowball_en":
			filters = append(filters, SnowballEnglish)
		case "synonym":
			table := NewSynonymTable(ac.Synonyms)
			r.synonyms[name] = table
			filters = append(filters, SynonymFilter{Table: table})
		default:
			return nil, fmt.Errorf("analyzer %s: unknown filter %q", name, fname)
		}
	}
	return NewChain(name, tok, filters...), nil
}

// Get returns the named analyzer.
func (r *Registry) Get(name string) (*Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// Optional returns the named analyzer, or nil when name is empty. A non-empty
// unknown name is an error.
func (r *Registry) Optional(name string) (Analyzer, error) {
	if name == "" {
		return nil, nil
	}
	c, ok := r.chains[name]
	if !ok {
		return nil, fmt.Errorf("analyzer %q is not defined", name)
	}
	return c, nil
}

// ForField returns the analyzer mapped to field, or the default analyzer.
func (r *Registry) ForField(field string) *Chain {
	if name, ok := r.fields[field]; ok {
		return r.chains[name]
	}
	return r.chains[r.defaultAnalyzer]
}

// SynonymTable returns the table of the named analyzer's synonym filter.
func (r *Registry) SynonymTable(analyzer string) (*SynonymTable, bool) {
	t, ok := r.synonyms[analyzer]
	return t, ok
}

// Names lists the analyzer names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldAnalyzer returns an Analyzer that analyzes text with the analyzer of
// the field passed to Tokenize.
func (r *Registry) FieldAnalyzer() Analyzer {
	return fieldAnalyzer{r: r}
}

type fieldAnalyzer struct {
	r *Registry
}

func (f fieldAnalyzer) Tokenize(text, field string) ([]string, error) {
	return f.r.ForField(field).Tokenize(text, field)
}

// AnalyzeField returns the positioned tokens of text analyzed for field.
func (r *Registry) AnalyzeField(field, text string) ([]Token, error) {
	return r.ForField(field).Analyze(text)
}
