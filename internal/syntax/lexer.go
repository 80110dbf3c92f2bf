package syntax

import (
	"strconv"
	"strings"
)

const (
	whitespace   = " \n\r\t"
	specialChars = ",{}[]<>"
)

// Lexer scans OpenDec source. It works in two modes driven by the
// parser: Text gathers a literal run up to the next directive bracket,
// and Next tokenizes the contents of directives and contexts.
// Line (//) and block (/* */) comments are stripped in both modes.
type Lexer struct {
	src []rune
	i   int
	pos Position
}

// NewLexer returns a lexer over src. file may be empty for inline
// sources.
func NewLexer(file, src string) *Lexer {
	return &Lexer{
		src: []rune(src),
		pos: Position{File: file, Line: 1, Col: 1},
	}
}

func (l *Lexer) ch() rune {
	if l.i >= len(l.src) {
		return 0
	}
	return l.src[l.i]
}

func (l *Lexer) peek() rune {
	if l.i+1 >= len(l.src) {
		return 0
	}
	return l.src[l.i+1]
}

func (l *Lexer) advance() {
	if l.i < len(l.src) {
		l.pos.advance(l.src[l.i])
		l.i++
	}
}

func (l *Lexer) eof() bool { return l.i >= len(l.src) }

// Text scans a literal text run. It stops at an unescaped '[' (left
// for Next to tokenize) or at end of input. `\[` produces a literal
// bracket. Returns the run, its start position, and whether a
// directive bracket follows.
func (l *Lexer) Text() (string, Position, bool, error) {
	start := l.pos
	var b strings.Builder

	for !l.eof() {
		switch c := l.ch(); c {
		case '[':
			return b.String(), start, true, nil
		case '\\':
			if l.peek() == '[' {
				l.advance()
				l.advance()
				b.WriteByte('[')
				continue
			}
			b.WriteRune(c)
			l.advance()
		case '/':
			if l.peek() == '/' || l.peek() == '*' {
				if err := l.skipComment(); err != nil {
					return "", start, false, err
				}
				continue
			}
			b.WriteRune(c)
			l.advance()
		default:
			b.WriteRune(c)
			l.advance()
		}
	}
	return b.String(), start, false, nil
}

// Next returns the next token inside a directive or context.
func (l *Lexer) Next() (Token, error) {
	for !l.eof() {
		c := l.ch()
		if strings.ContainsRune(whitespace, c) {
			l.advance()
			continue
		}
		if c == '/' && (l.peek() == '/' || l.peek() == '*') {
			if err := l.skipComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	if l.eof() {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	pos := l.pos
	c := l.ch()

	if t, ok := specialToken(c); ok {
		l.advance()
		return Token{Type: t, Str: string(c), Pos: pos}, nil
	}
	if c == '"' {
		return l.scanQuoted()
	}
	if c >= '0' && c <= '9' {
		return l.scanNumber()
	}
	return l.scanWord()
}

// ContextFollows reports whether a '{' context opener follows,
// consuming it if so. When no context follows, the lexer is restored
// so intervening whitespace stays part of the next text run.
func (l *Lexer) ContextFollows() (bool, error) {
	savedI, savedPos := l.i, l.pos

	for !l.eof() {
		c := l.ch()
		switch {
		case strings.ContainsRune(whitespace, c):
			l.advance()
		case c == '/' && (l.peek() == '/' || l.peek() == '*'):
			if err := l.skipComment(); err != nil {
				return false, err
			}
		case c == '{':
			l.advance()
			return true, nil
		default:
			l.i, l.pos = savedI, savedPos
			return false, nil
		}
	}
	l.i, l.pos = savedI, savedPos
	return false, nil
}

func specialToken(c rune) (TokenType, bool) {
	switch c {
	case ',':
		return TokenComma, true
	case '{':
		return TokenLBrace, true
	case '}':
		return TokenRBrace, true
	case '[':
		return TokenLBracket, true
	case ']':
		return TokenRBracket, true
	case '<':
		return TokenLChevron, true
	case '>':
		return TokenRChevron, true
	}
	return 0, false
}

func isBreak(c rune) bool {
	return strings.ContainsRune(whitespace, c) ||
		strings.ContainsRune(specialChars, c) ||
		c == '"'
}

func (l *Lexer) skipComment() error {
	pos := l.pos
	l.advance() // '/'

	if l.ch() == '/' {
		for !l.eof() && l.ch() != '\n' {
			l.advance()
		}
		return nil
	}

	// Block comment.
	l.advance() // '*'
	for !l.eof() {
		if l.ch() == '*' && l.peek() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return errorf(pos, "block comment is never closed")
}

func (l *Lexer) scanQuoted() (Token, error) {
	pos := l.pos
	l.advance() // opening quote

	var b strings.Builder
	for !l.eof() && l.ch() != '"' {
		b.WriteRune(l.ch())
		l.advance()
	}
	if l.eof() {
		return Token{}, errorf(pos, "string literal is never closed")
	}
	l.advance() // closing quote
	return Token{Type: TokenString, Str: b.String(), Pos: pos}, nil
}

func (l *Lexer) scanNumber() (Token, error) {
	pos := l.pos
	var b strings.Builder
	fp := false

	for !l.eof() && !isBreak(l.ch()) {
		c := l.ch()
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' && !fp:
			b.WriteRune(c)
			fp = true
		case c == '.':
			return Token{}, errorf(pos, "invalid FLOAT %q - only one '.' allowed", b.String()+".")
		default:
			return Token{}, errorf(pos, "invalid number %q - %q is not a digit", b.String(), string(c))
		}
		l.advance()
	}

	if fp {
		f, err := strconv.ParseFloat(b.String(), 64)
		if err != nil {
			return Token{}, errorf(pos, "invalid FLOAT %q", b.String())
		}
		return Token{Type: TokenFloat, Float: f, Pos: pos}, nil
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return Token{}, errorf(pos, "invalid INT %q", b.String())
	}
	return Token{Type: TokenInt, Int: n, Pos: pos}, nil
}

func (l *Lexer) scanWord() (Token, error) {
	pos := l.pos
	var b strings.Builder

	for !l.eof() && !isBreak(l.ch()) {
		c := l.ch()
		// A '/' only breaks the word when it opens a comment; otherwise
		// it is an ordinary path character.
		if c == '/' && (l.peek() == '/' || l.peek() == '*') {
			break
		}
		b.WriteRune(c)
		l.advance()
	}
	return Token{Type: TokenString, Str: b.String(), Pos: pos}, nil
}
