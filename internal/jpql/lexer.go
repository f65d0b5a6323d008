package jpql

import (
	"strings"

	"github.com/roach88/memris/internal/ir"
)

// Tokenize splits query text into tokens. The final token is always EOF.
// Errors are grammar QueryErrors carrying the byte offset of the problem.
func Tokenize(query string) ([]Token, error) {
	l := &lexer{input: query}
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]
	switch {
	case isIdentStart(ch):
		return l.ident(), nil
	case isDigit(ch):
		return l.number(), nil
	case ch == '\'':
		return l.quoted()
	case ch == ':':
		return l.param(NamedParam, isIdentPart)
	case ch == '?':
		return l.param(PositionalParam, isDigit)
	}

	l.pos++
	switch ch {
	case ',':
		return Token{Type: Comma, Text: ",", Pos: start}, nil
	case '.':
		return Token{Type: Dot, Text: ".", Pos: start}, nil
	case '(':
		return Token{Type: LParen, Text: "(", Pos: start}, nil
	case ')':
		return Token{Type: RParen, Text: ")", Pos: start}, nil
	case '-':
		return Token{Type: Minus, Text: "-", Pos: start}, nil
	case '=':
		return Token{Type: Eq, Text: "=", Pos: start}, nil
	case '!':
		if l.accept('=') {
			return Token{Type: Ne, Text: "!=", Pos: start}, nil
		}
	case '<':
		if l.accept('=') {
			return Token{Type: Lte, Text: "<=", Pos: start}, nil
		}
		if l.accept('>') {
			return Token{Type: Ne, Text: "<>", Pos: start}, nil
		}
		return Token{Type: Lt, Text: "<", Pos: start}, nil
	case '>':
		if l.accept('=') {
			return Token{Type: Gte, Text: ">=", Pos: start}, nil
		}
		return Token{Type: Gt, Text: ">", Pos: start}, nil
	}
	return Token{}, ir.GrammarError(ir.ErrCodeSyntax, "", start, "unexpected character %q", ch)
}

func (l *lexer) accept(ch byte) bool {
	if l.pos < len(l.input) && l.input[l.pos] == ch {
		l.pos++
		return true
	}
	return false
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) ident() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	text := l.input[start:l.pos]
	if kw, ok := keywords[strings.ToUpper(text)]; ok {
		return Token{Type: kw, Text: text, Pos: start}
	}
	return Token{Type: Ident, Text: text, Pos: start}
}

// number scans an integer or a decimal with a fractional part. A trailing
// dot is left for the parser so "1." is never silently accepted.
func (l *lexer) number() Token {
	start := l.pos
	l.digits()
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		l.digits()
	}
	return Token{Type: Number, Text: l.input[start:l.pos], Pos: start}
}

func (l *lexer) digits() {
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
}

// quoted scans a single-quoted literal; '' inside it is an escaped quote.
func (l *lexer) quoted() (Token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		l.pos++
		if ch != '\'' {
			sb.WriteByte(ch)
			continue
		}
		if l.accept('\'') {
			sb.WriteByte('\'')
			continue
		}
		return Token{Type: String, Text: sb.String(), Pos: start}, nil
	}
	return Token{}, ir.GrammarError(ir.ErrCodeSyntax, "", start, "unterminated string literal")
}

func (l *lexer) param(typ TokenType, part func(byte) bool) (Token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && part(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == start+1 {
		return Token{}, ir.GrammarError(ir.ErrCodeSyntax, "", start, "%s without a name or index", typ)
	}
	return Token{Type: typ, Text: l.input[start+1 : l.pos], Pos: start}, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
