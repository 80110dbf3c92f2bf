package syntax

import "fmt"

// TokenType classifies a token produced inside a directive or context.
type TokenType int

const (
	// Literals.
	TokenString TokenType = iota
	TokenInt
	TokenFloat

	// Special characters.
	TokenComma    // ,
	TokenLBrace   // {
	TokenRBrace   // }
	TokenLBracket // [
	TokenRBracket // ]
	TokenLChevron // <
	TokenRChevron // >

	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenString:
		return "STRING"
	case TokenInt:
		return "INT"
	case TokenFloat:
		return "FLOAT"
	case TokenComma:
		return "','"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenLChevron:
		return "'<'"
	case TokenRChevron:
		return "'>'"
	case TokenEOF:
		return "end of file"
	default:
		return "unknown"
	}
}

// Token is a lexical token with its source position. Str, Int, and
// Float carry the literal value for the matching token types.
type Token struct {
	Type  TokenType
	Str   string
	Int   int
	Float float64
	Pos   Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenString:
		return fmt.Sprintf("STRING(%q)", t.Str)
	case TokenInt:
		return fmt.Sprintf("INT(%d)", t.Int)
	case TokenFloat:
		return fmt.Sprintf("FLOAT(%g)", t.Float)
	default:
		return t.Type.String()
	}
}
