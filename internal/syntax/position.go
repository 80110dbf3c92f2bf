package syntax

import "fmt"

// Position points at a rune in a source unit. Line and Col are 1-based.
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	file := p.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Col)
}

// advance moves the position past the rune r.
func (p *Position) advance(r rune) {
	p.Col++
	if r == '\n' {
		p.Line++
		p.Col = 1
	}
}
