package revset

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokSymbol
	tokString
	tokColon
	tokComma
	tokLParen
	tokRParen
	tokOp
)

type token struct {
	typ  tokenType
	lit  string
	span Span
}

type lexer struct {
	src string
	pos int
}

func newLexer(input string) *lexer {
	return &lexer{src: input}
}

func (l *lexer) peekRune(offset int) rune {
	p := l.pos
	for i := 0; i < offset; i++ {
		if p >= len(l.src) {
			return 0
		}
		_, size := utf8.DecodeRuneInString(l.src[p:])
		p += size
	}
	if p >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[p:])
	return r
}

func (l *lexer) nextRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	return r
}

func (l *lexer) emit(typ tokenType, start int, lit string) token {
	return token{typ: typ, lit: lit, span: Span{Start: start, End: l.pos}}
}

func (l *lexer) nextToken() (token, error) {
	for unicode.IsSpace(l.peekRune(0)) {
		l.nextRune()
	}
	start := l.pos
	ch := l.nextRune()
	switch ch {
	case 0:
		return l.emit(tokEOF, start, ""), nil
	case '(':
		return l.emit(tokLParen, start, "("), nil
	case ')':
		return l.emit(tokRParen, start, ")"), nil
	case ',':
		return l.emit(tokComma, start, ","), nil
	case '|', '&', '~', '-', '+':
		return l.emit(tokOp, start, string(ch)), nil
	case ':':
		if l.peekRune(0) == ':' {
			l.nextRune()
			return l.emit(tokOp, start, "::"), nil
		}
		return l.emit(tokColon, start, ":"), nil
	case '.':
		if l.peekRune(0) == '.' {
			l.nextRune()
			return l.emit(tokOp, start, ".."), nil
		}
		return token{}, fmt.Errorf("unexpected '.' at %d", start)
	case '"', '\'':
		return l.lexString(start, ch)
	}
	if isSymbolRune(ch) {
		for {
			r := l.peekRune(0)
			if isSymbolRune(r) {
				l.nextRune()
				continue
			}
			// '-' and '.' join words, as in "my-feature" or "v1.2", but a
			// trailing '-' is the parents operator and ".." is a range.
			if (r == '-' || r == '.') && isSymbolRune(l.peekRune(1)) {
				l.nextRune()
				continue
			}
			break
		}
		return l.emit(tokSymbol, start, l.src[start:l.pos]), nil
	}
	return token{}, fmt.Errorf("unexpected character %q at %d", ch, start)
}

func (l *lexer) lexString(start int, quote rune) (token, error) {
	var b strings.Builder
	for {
		r := l.nextRune()
		switch r {
		case 0:
			return token{}, fmt.Errorf("unterminated string at %d", start)
		case quote:
			return l.emit(tokString, start, b.String()), nil
		case '\\':
			esc := l.nextRune()
			switch esc {
			case 0:
				return token{}, fmt.Errorf("unterminated escape at %d", l.pos)
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
}

func isSymbolRune(r rune) bool {
	return r != 0 && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '/' || r == '@')
}
