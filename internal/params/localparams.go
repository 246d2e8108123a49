package params

import (
	"errors"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// LocalParams is a parsed "{!type key=value ...} body" query string.
type LocalParams struct {
	Type string
	Args map[string]string
	Body string
}

// Arg returns the named argument, or def when it is absent.
func (lp LocalParams) Arg(key, def string) string {
	if v, ok := lp.Args[key]; ok {
		return v
	}
	return def
}

// ParseLocalParams parses s. The boolean result is false when s does not start
// with "{!", in which case s is a plain query body. Values written as $name
// are dereferenced against req; the type may also be given as type=... .
func ParseLocalParams(s string, req Params) (LocalParams, bool, error) {
	trimmed := strings.TrimLeft(s, " \t")
	if !strings.HasPrefix(trimmed, "{!") {
		return LocalParams{Body: s}, false, nil
	}
	lp := LocalParams{Args: make(map[string]string)}
	p := &lpScanner{src: trimmed, pos: 2}

	for {
		p.skipSpace()
		if p.eof() {
			return LocalParams{}, true, apperrors.Configf("local params %q are not terminated", s)
		}
		if p.peek() == '}' {
			p.pos++
			break
		}
		key := p.readToken("=} \t")
		if key == "" {
			return LocalParams{}, true, apperrors.Configf("local params %q: empty key at offset %d", s, p.pos)
		}
		if p.eof() || p.peek() != '=' {
			// a bare word names the type: {!tidismax ...}
			if lp.Type == "" {
				lp.Type = key
				continue
			}
			lp.Args[key] = ""
			continue
		}
		p.pos++
		value, err := p.readValue()
		if err != nil {
			return LocalParams{}, true, apperrors.Configf("local params %q: %v", s, err)
		}
		if strings.HasPrefix(value.text, "$") && !value.quoted {
			value.text = req.Get(value.text[1:])
		}
		if key == "type" {
			lp.Type = value.text
			continue
		}
		lp.Args[key] = value.text
	}

	lp.Body = strings.TrimSpace(p.src[p.pos:])
	if v, ok := lp.Args["v"]; ok && lp.Body == "" {
		lp.Body = v
	}
	return lp, true, nil
}

type lpScanner struct {
	src string
	pos int
}

type lpValue struct {
	text   string
	quoted bool
}

func (s *lpScanner) eof() bool  { return s.pos >= len(s.src) }
func (s *lpScanner) peek() byte { return s.src[s.pos] }

func (s *lpScanner) skipSpace() {
	for !s.eof() && (s.peek() == ' ' || s.peek() == '\t') {
		s.pos++
	}
}

func (s *lpScanner) readToken(stop string) string {
	start := s.pos
	for !s.eof() && !strings.ContainsRune(stop, rune(s.peek())) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *lpScanner) readValue() (lpValue, error) {
	if s.eof() {
		return lpValue{}, errUnterminated
	}
	q := s.peek()
	if q != '\'' && q != '"' {
		return lpValue{text: s.readToken("} \t")}, nil
	}
	s.pos++
	var sb strings.Builder
	for !s.eof() {
		c := s.peek()
		s.pos++
		switch {
		case c == '\\' && !s.eof():
			sb.WriteByte(s.peek())
			s.pos++
		case c == q:
			return lpValue{text: sb.String(), quoted: true}, nil
		default:
			sb.WriteByte(c)
		}
	}
	return lpValue{}, errUnterminated
}

var errUnterminated = errors.New("unterminated quoted value")
