package syntax

import "strings"

// Parser turns source text into an ordered node sequence. Parsing is
// a single forward pass: literal text accumulates between directive
// brackets, and bracket contents are tokenized on demand.
type Parser struct {
	lex *Lexer
	tok Token
}

// Parse parses one source unit. file may be empty for inline sources.
func Parse(file, src string) ([]Node, error) {
	p := &Parser{lex: NewLexer(file, src)}
	return p.parseUnit()
}

func (p *Parser) next() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) expect(t TokenType, while string) error {
	if p.tok.Type != t {
		return errorf(p.tok.Pos, "expected %s while parsing %s - got %s", t, while, p.tok)
	}
	return nil
}

func (p *Parser) parseUnit() ([]Node, error) {
	var nodes []Node
	for {
		text, pos, bracket, err := p.lex.Text()
		if err != nil {
			return nil, err
		}
		if text != "" {
			nodes = append(nodes, &TextRun{Pos: pos, Text: text})
		}
		if !bracket {
			return nodes, nil
		}
		if err := p.next(); err != nil { // the '[' itself
			return nil, err
		}
		n, err := p.parseBracket()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

// parseBracket parses one bracketed form. On entry the current token
// is '['; on return the current token is the form's closing ']' or,
// for context-taking directives, the context's closing '}'.
func (p *Parser) parseBracket() (Node, error) {
	pos := p.tok.Pos
	if err := p.next(); err != nil {
		return nil, err
	}

	switch p.tok.Type {
	case TokenEOF:
		return nil, errorf(pos, "directive is never closed - expected ']' before end of file")

	case TokenComma:
		return p.parseRefClosed(pos)

	case TokenString:
		if !strings.HasPrefix(p.tok.Str, ":") {
			return p.parseRefClosed(pos)
		}
		name := p.tok.Str[1:]
		if name == "" {
			return nil, errorf(pos, "no command provided - only got ':'")
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		switch name {
		case "import":
			return p.parseImport(pos)
		case "play":
			return p.parsePlay(pos)
		case "phrase":
			return p.parsePhrase(pos)
		case "sound":
			return p.parseSound(pos)
		case "voice":
			return p.parseVoice(pos)
		case "loop":
			return p.parseLoop(pos)
		default:
			return p.parseCommand(pos, name)
		}

	default:
		return nil, errorf(p.tok.Pos, "expected a command or phoneme after '[' - got %s", p.tok)
	}
}

// parseRefClosed parses a top-level [name<len,pitch>] reference and
// its closing bracket.
func (p *Parser) parseRefClosed(pos Position) (Node, error) {
	ref, err := p.parseRef()
	if err != nil {
		return nil, err
	}
	ref.Pos = pos
	if err := p.expect(TokenRBracket, "phoneme reference"); err != nil {
		return nil, err
	}
	return ref, nil
}

// parseRef parses a phoneme/phrase/sound reference with an optional
// <length,pitch> qualifier. The current token on entry is the name;
// on return it is the first token after the reference.
func (p *Parser) parseRef() (*Ref, error) {
	ref := &Ref{Pos: p.tok.Pos, Name: p.tok.Str}
	if p.tok.Type == TokenComma {
		ref.Name = ","
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	if p.tok.Type != TokenLChevron {
		return ref, nil
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	switch p.tok.Type {
	case TokenInt:
		ref.Length = float64(p.tok.Int)
		if err := p.next(); err != nil {
			return nil, err
		}
	case TokenFloat:
		ref.Length = p.tok.Float
		if err := p.next(); err != nil {
			return nil, err
		}
	}

	if p.tok.Type == TokenComma {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Type == TokenInt {
			ref.Pitch = p.tok.Int
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}

	if err := p.expect(TokenRChevron, "phoneme qualifier"); err != nil {
		return nil, err
	}
	return ref, p.next()
}

func (p *Parser) parseImport(pos Position) (Node, error) {
	if err := p.expect(TokenString, "[:import]"); err != nil {
		return nil, err
	}
	imp := &Import{Pos: pos, Target: p.tok.Str}
	if err := p.next(); err != nil {
		return nil, err
	}

	if p.tok.Type == TokenString {
		if p.tok.Str != "defs" {
			return nil, errorf(p.tok.Pos, "expected 'defs' or ']' while parsing [:import] - got %s", p.tok)
		}
		imp.DefsOnly = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return imp, p.expect(TokenRBracket, "[:import]")
}

func (p *Parser) parsePlay(pos Position) (Node, error) {
	if err := p.expect(TokenString, "[:play]"); err != nil {
		return nil, err
	}
	play := &Play{Pos: pos, Target: p.tok.Str}
	if err := p.next(); err != nil {
		return nil, err
	}
	return play, p.expect(TokenRBracket, "[:play]")
}

func (p *Parser) parsePhrase(pos Position) (Node, error) {
	if err := p.expect(TokenString, "[:phrase]"); err != nil {
		return nil, err
	}
	def := &PhraseDef{Pos: pos, Name: p.tok.Str}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenRBracket, "[:phrase]"); err != nil {
		return nil, err
	}

	body, err := p.requireContext(pos, "phrase", def.Name)
	if err != nil {
		return nil, err
	}
	def.Body = body
	return def, nil
}

func (p *Parser) parseSound(pos Position) (Node, error) {
	if err := p.expect(TokenString, "[:sound]"); err != nil {
		return nil, err
	}
	def := &SoundDef{Pos: pos, Name: p.tok.Str}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenRBracket, "[:sound]"); err != nil {
		return nil, err
	}

	body, err := p.requireContext(pos, "sound", def.Name)
	if err != nil {
		return nil, err
	}
	for _, n := range body {
		ref, ok := n.(*Ref)
		if !ok {
			return nil, errorf(n.Position(), "sound %q can only contain phonemes - got %s", def.Name, n)
		}
		def.Phonemes = append(def.Phonemes, ref)
	}
	return def, nil
}

func (p *Parser) parseVoice(pos Position) (Node, error) {
	if err := p.expect(TokenString, "[:voice]"); err != nil {
		return nil, err
	}
	def := &VoiceDef{Pos: pos, Name: p.tok.Str, Params: map[string]int{}}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenRBracket, "[:voice]"); err != nil {
		return nil, err
	}

	// Parameters are optional; a bare definition is the default voice.
	open, err := p.lex.ContextFollows()
	if err != nil {
		return nil, err
	}
	if !open {
		return def, nil
	}

	if err := p.next(); err != nil {
		return nil, err
	}
	for p.tok.Type != TokenRBrace {
		if p.tok.Type == TokenEOF {
			return nil, errorf(pos, "voice %q parameter list is never closed", def.Name)
		}
		if err := p.expect(TokenString, "voice parameter name"); err != nil {
			return nil, err
		}
		param := p.tok.Str
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expect(TokenInt, "voice parameter value"); err != nil {
			return nil, err
		}
		def.Params[param] = p.tok.Int
		if err := p.next(); err != nil {
			return nil, err
		}
		// Parameters may be comma separated.
		if p.tok.Type == TokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	return def, nil
}

func (p *Parser) parseLoop(pos Position) (Node, error) {
	if err := p.expect(TokenInt, "[:loop]"); err != nil {
		return nil, err
	}
	loop := &Loop{Pos: pos, Count: p.tok.Int}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenRBracket, "[:loop]"); err != nil {
		return nil, err
	}

	body, err := p.requireContext(pos, "loop", "")
	if err != nil {
		return nil, err
	}
	loop.Body = body
	return loop, nil
}

func (p *Parser) parseCommand(pos Position, name string) (Node, error) {
	cmd := &Command{Pos: pos, Name: name}
	for p.tok.Type != TokenRBracket {
		switch p.tok.Type {
		case TokenEOF:
			return nil, errorf(pos, "command %q is never closed - expected ']' before end of file", name)
		case TokenString:
			cmd.Args = append(cmd.Args, Arg{Kind: ArgString, Str: p.tok.Str})
		case TokenInt:
			cmd.Args = append(cmd.Args, Arg{Kind: ArgInt, Int: p.tok.Int})
		case TokenFloat:
			cmd.Args = append(cmd.Args, Arg{Kind: ArgFloat, Float: p.tok.Float})
		default:
			return nil, errorf(p.tok.Pos, "command parameter can only be STRING, INT, or FLOAT - got %s", p.tok)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

// requireContext consumes a mandatory { ... } context.
func (p *Parser) requireContext(pos Position, kind, name string) ([]Node, error) {
	open, err := p.lex.ContextFollows()
	if err != nil {
		return nil, err
	}
	if !open {
		if name != "" {
			return nil, errorf(pos, "%s %q missing context", kind, name)
		}
		return nil, errorf(pos, "%s missing context", kind)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseContext(pos)
}

// parseContext parses context items until '}'. The current token on
// entry is the first item; on return it is the closing '}'.
func (p *Parser) parseContext(pos Position) ([]Node, error) {
	var nodes []Node
	for {
		switch p.tok.Type {
		case TokenRBrace:
			return nodes, nil
		case TokenEOF:
			return nil, errorf(pos, "context is never closed - expected '}' before end of file")
		case TokenComma, TokenString:
			ref, err := p.parseRef()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, ref)
		case TokenLBracket:
			n, err := p.parseBracket()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
			if err := p.next(); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(p.tok.Pos, "illegal %s in command context", p.tok)
		}
	}
}
