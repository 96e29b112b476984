// Package expr implements the expression grammars (spec §4.2):
// KeyConditionExpression, UpdateExpression, and the existence/comparator
// subset shared by ConditionExpression and FilterExpression. Each grammar
// gets a small recursive-descent parser over a shared token stream,
// emitting an explicit AST that the update applier or condition evaluator
// walks against an item map.
package expr

import (
	"strings"
	"unicode"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokPlaceholder // :val
	tokNameAlias   // #name
	tokLParen
	tokRParen
	tokComma
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokPlus
	tokMinus
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input []rune
	pos   int
	toks  []token
}

func lex(input string) ([]token, error) {
	l := &lexer{input: []rune(input)}
	for {
		l.skipSpace()
		if l.pos >= len(l.input) {
			l.toks = append(l.toks, token{kind: tokEOF})
			return l.toks, nil
		}
		c := l.input[l.pos]
		switch {
		case c == '(':
			l.toks = append(l.toks, token{kind: tokLParen, text: "("})
			l.pos++
		case c == ')':
			l.toks = append(l.toks, token{kind: tokRParen, text: ")"})
			l.pos++
		case c == ',':
			l.toks = append(l.toks, token{kind: tokComma, text: ","})
			l.pos++
		case c == '+':
			l.toks = append(l.toks, token{kind: tokPlus, text: "+"})
			l.pos++
		case c == '-':
			l.toks = append(l.toks, token{kind: tokMinus, text: "-"})
			l.pos++
		case c == '=':
			l.toks = append(l.toks, token{kind: tokEq, text: "="})
			l.pos++
		case c == '<':
			if l.peek(1) == '=' {
				l.toks = append(l.toks, token{kind: tokLe, text: "<="})
				l.pos += 2
			} else if l.peek(1) == '>' {
				l.toks = append(l.toks, token{kind: tokNe, text: "<>"})
				l.pos += 2
			} else {
				l.toks = append(l.toks, token{kind: tokLt, text: "<"})
				l.pos++
			}
		case c == '>':
			if l.peek(1) == '=' {
				l.toks = append(l.toks, token{kind: tokGe, text: ">="})
				l.pos += 2
			} else {
				l.toks = append(l.toks, token{kind: tokGt, text: ">"})
				l.pos++
			}
		case c == ':':
			start := l.pos
			l.pos++
			for l.pos < len(l.input) && isIdentRune(l.input[l.pos]) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokPlaceholder, text: string(l.input[start:l.pos])})
		case c == '#':
			start := l.pos
			l.pos++
			for l.pos < len(l.input) && isIdentRune(l.input[l.pos]) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokNameAlias, text: string(l.input[start:l.pos])})
		case isIdentStartRune(c):
			start := l.pos
			for l.pos < len(l.input) && isPathRune(l.input[l.pos]) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokIdent, text: string(l.input[start:l.pos])})
		default:
			return nil, pretendererrors.NewValidationError("unexpected character %q in expression", string(c))
		}
	}
}

func (l *lexer) peek(offset int) rune {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

func isIdentStartRune(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isPathRune additionally allows '.' so a dotted nested path lexes as one
// identifier token; the parser splits it into segments.
func isPathRune(r rune) bool {
	return isIdentRune(r) || r == '.'
}

// parser is the shared token-cursor state every grammar's recursive-descent
// parser is built on.
type parser struct {
	toks []token
	pos  int
}

func newParser(toks []token) *parser {
	return &parser{toks: toks}
}

func (p *parser) cur() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.cur().kind != kind {
		return token{}, pretendererrors.NewValidationError("expected %s, got %q", what, p.cur().text)
	}
	return p.advance(), nil
}

// expectKeyword consumes an identifier token matching keyword case-insensitively.
func (p *parser) expectKeyword(keyword string) bool {
	if p.cur().kind == tokIdent && strings.EqualFold(p.cur().text, keyword) {
		p.advance()
		return true
	}
	return false
}

func splitPath(ident string) []string {
	return strings.Split(ident, ".")
}
