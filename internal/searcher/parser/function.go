package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
)

// ParseFunction parses a function expression:
//
//	2.5                      constant
//	$name                    the function in request parameter name
//	product(f1,f2,...)       product of functions
//	query($name[,def])       score of a query, def (1.0) where it does not match
//	cached(cache,key)        a compiled boost held by a boost cache
//	{!type ...} text         a query used as query(...) with default 1.0
//
// Errors wrap apperrors.ErrCompilation, except for unresolved cache
// references which wrap apperrors.ErrMissingCacheEntry.
func (p *Parser) ParseFunction(s string, req params.Params) (query.ValueSource, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{!") {
		lp, _, err := params.ParseLocalParams(trimmed, req)
		if err != nil {
			return nil, compileError(s, err)
		}
		if lp.Type == TypeFunc {
			return p.ParseFunction(lp.Body, req)
		}
		q, err := p.ParseQuery(context.Background(), trimmed, req)
		if err != nil {
			return nil, compileError(s, err)
		}
		return &query.QueryValue{Expr: q, Default: 1.0}, nil
	}
	fs := &funcScanner{src: trimmed}
	src, err := p.parseFunc(fs, req, 0)
	if err != nil {
		return nil, err
	}
	fs.skipSpace()
	if !fs.eof() {
		return nil, compileError(s, fmt.Errorf("unexpected %q at offset %d", fs.src[fs.pos:], fs.pos))
	}
	return src, nil
}

// maxFuncDepth bounds $param indirection.
const maxFuncDepth = 8

func (p *Parser) parseFunc(fs *funcScanner, req params.Params, depth int) (query.ValueSource, error) {
	fs.skipSpace()
	if fs.eof() {
		return nil, compileError(fs.src, fmt.Errorf("empty function"))
	}
	if fs.peek() == '$' {
		fs.pos++
		name := fs.ident()
		if depth >= maxFuncDepth {
			return nil, compileError(fs.src, fmt.Errorf("too many $ references"))
		}
		ref, ok := req.Lookup(name)
		if !ok {
			return nil, compileError(fs.src, fmt.Errorf("parameter %q is not set", name))
		}
		inner := &funcScanner{src: strings.TrimSpace(ref)}
		src, err := p.parseFunc(inner, req, depth+1)
		if err != nil {
			return nil, err
		}
		if inner.skipSpace(); !inner.eof() {
			return nil, compileError(ref, fmt.Errorf("trailing input"))
		}
		return src, nil
	}

	word := fs.ident()
	if word == "" {
		return nil, compileError(fs.src, fmt.Errorf("unexpected %q at offset %d", fs.src[fs.pos:], fs.pos))
	}
	fs.skipSpace()
	if fs.eof() || fs.peek() != '(' {
		v, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return nil, compileError(fs.src, fmt.Errorf("%q is not a function", word))
		}
		return query.Const{Value: v}, nil
	}
	fs.pos++

	switch strings.ToLower(word) {
	case "product", "mul":
		var sources []query.ValueSource
		for {
			src, err := p.parseFunc(fs, req, depth)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			more, err := fs.endArg()
			if err != nil {
				return nil, compileError(fs.src, err)
			}
			if !more {
				break
			}
		}
		return &query.Product{Sources: sources}, nil

	case "cached":
		name := fs.rawArg()
		if more, err := fs.endArg(); err != nil || !more {
			return nil, compileError(fs.src, fmt.Errorf("cached needs a cache name and a key"))
		}
		key := fs.rawArg()
		if more, err := fs.endArg(); err != nil || more {
			return nil, compileError(fs.src, fmt.Errorf("cached takes two arguments"))
		}
		if p.caches == nil {
			return nil, fmt.Errorf("%w: no boost caches configured", apperrors.ErrMissingCacheEntry)
		}
		return p.caches.Resolve(name, key)

	case "query":
		qstr, err := p.queryArg(fs, req)
		if err != nil {
			return nil, err
		}
		def := 1.0
		more, err := fs.endArg()
		if err != nil {
			return nil, compileError(fs.src, err)
		}
		if more {
			raw := fs.rawArg()
			if def, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, compileError(fs.src, fmt.Errorf("query default %q is not a number", raw))
			}
			if more, err = fs.endArg(); err != nil || more {
				return nil, compileError(fs.src, fmt.Errorf("query takes at most two arguments"))
			}
		}
		q, err := p.ParseQuery(context.Background(), qstr, req)
		if err != nil {
			return nil, compileError(qstr, err)
		}
		return &query.QueryValue{Expr: q, Default: def}, nil

	default:
		return nil, compileError(fs.src, fmt.Errorf("unknown function %q", word))
	}
}

// queryArg reads the query of query(...): $name or a quoted string.
func (p *Parser) queryArg(fs *funcScanner, req params.Params) (string, error) {
	fs.skipSpace()
	if fs.eof() {
		return "", compileError(fs.src, fmt.Errorf("query needs an argument"))
	}
	switch c := fs.peek(); c {
	case '$':
		fs.pos++
		name := fs.ident()
		v, ok := req.Lookup(name)
		if !ok {
			return "", compileError(fs.src, fmt.Errorf("parameter %q is not set", name))
		}
		return v, nil
	case '\'', '"':
		fs.pos++
		end := strings.IndexByte(fs.src[fs.pos:], c)
		if end < 0 {
			return "", compileError(fs.src, fmt.Errorf("unterminated quote"))
		}
		v := fs.src[fs.pos : fs.pos+end]
		fs.pos += end + 1
		return v, nil
	default:
		return "", compileError(fs.src, fmt.Errorf("query argument must be $param or quoted"))
	}
}

type funcScanner struct {
	src string
	pos int
}

func (s *funcScanner) eof() bool  { return s.pos >= len(s.src) }
func (s *funcScanner) peek() byte { return s.src[s.pos] }

func (s *funcScanner) skipSpace() {
	for !s.eof() && (s.peek() == ' ' || s.peek() == '\t') {
		s.pos++
	}
}

// ident reads a name or a number.
func (s *funcScanner) ident() string {
	start := s.pos
	for !s.eof() {
		c := s.peek()
		if c == '(' || c == ')' || c == ',' || c == ' ' || c == '\t' || c == '$' {
			break
		}
		s.pos++
	}
	return s.src[start:s.pos]
}

// rawArg reads an argument up to the next ',' or ')'.
func (s *funcScanner) rawArg() string {
	s.skipSpace()
	start := s.pos
	for !s.eof() && s.peek() != ',' && s.peek() != ')' {
		s.pos++
	}
	return strings.TrimSpace(s.src[start:s.pos])
}

// endArg consumes ',' (more arguments follow) or ')' (end of list).
func (s *funcScanner) endArg() (bool, error) {
	s.skipSpace()
	if s.eof() {
		return false, fmt.Errorf("missing )")
	}
	switch s.peek() {
	case ',':
		s.pos++
		return true, nil
	case ')':
		s.pos++
		return false, nil
	default:
		return false, fmt.Errorf("unexpected %q at offset %d", s.src[s.pos:], s.pos)
	}
}
