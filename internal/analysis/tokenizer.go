package analysis

import (
	"strings"

	"github.com/blevesearch/segment"
)

// UnicodeTokenizer splits on Unicode word boundaries (UAX #29) and keeps
// letter, number and ideographic segments.
type UnicodeTokenizer struct{}

func (UnicodeTokenizer) Tokenize(text string) ([]Token, error) {
	seg := segment.NewWordSegmenterDirect([]byte(text))
	var tokens []Token
	for seg.Segment() {
		if seg.Type() == segment.None {
			continue
		}
		tokens = append(tokens, Token{Term: string(seg.Bytes()), Position: len(tokens)})
	}
	if err := seg.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// WhitespaceTokenizer splits on runs of whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) ([]Token, error) {
	words := strings.Fields(text)
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Term: w, Position: i}
	}
	return tokens, nil
}

// KeywordTokenizer emits the whole trimmed input as one token.
type KeywordTokenizer struct{}

func (KeywordTokenizer) Tokenize(text string) ([]Token, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return []Token{{Term: text}}, nil
}
