package syntax

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Node is one element of a parsed source unit. The String form is
// stable and content-complete: it is what the generator emits for
// passthrough nodes and what the build cache fingerprints.
type Node interface {
	Position() Position
	String() string
}

// TextRun is literal text between directives, preserved verbatim.
type TextRun struct {
	Pos  Position
	Text string
}

func (n *TextRun) Position() Position { return n.Pos }
func (n *TextRun) String() string     { return n.Text }

// Ref is a bracketed phoneme, phrase, or sound reference such as
// [ah<100,14>] or [myphrase]. Length is fractional when lengths are
// expressed in beats.
type Ref struct {
	Pos    Position
	Name   string
	Length float64
	Pitch  int
}

func (n *Ref) Position() Position { return n.Pos }

func (n *Ref) String() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(n.Name)
	if n.Length > 0 || n.Pitch > 0 {
		b.WriteByte('<')
		if n.Length > 0 {
			b.WriteString(formatNum(n.Length))
		}
		if n.Pitch > 0 {
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(n.Pitch))
		}
		b.WriteByte('>')
	}
	b.WriteByte(']')
	return b.String()
}

// Import pulls another source unit into this one. A content import
// splices the imported unit's nodes in place; a definitions-only
// import contributes symbols without emitting content.
type Import struct {
	Pos      Position
	Target   string
	DefsOnly bool
}

func (n *Import) Position() Position { return n.Pos }

func (n *Import) String() string {
	if n.DefsOnly {
		return fmt.Sprintf("[:import %q defs]", n.Target)
	}
	return fmt.Sprintf("[:import %q]", n.Target)
}

// Play references an external audio asset. Resolved is the absolute
// path filled in by the resolver.
type Play struct {
	Pos      Position
	Target   string
	Resolved string
}

func (n *Play) Position() Position { return n.Pos }

func (n *Play) String() string {
	target := n.Resolved
	if target == "" {
		target = n.Target
	}
	return fmt.Sprintf("[:play %s]", target)
}

// PhraseDef defines a named phrase: a reusable node sequence.
type PhraseDef struct {
	Pos  Position
	Name string
	Body []Node
}

func (n *PhraseDef) Position() Position { return n.Pos }

func (n *PhraseDef) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[:phrase %s] {", n.Name)
	for _, c := range n.Body {
		b.WriteByte(' ')
		b.WriteString(c.String())
	}
	b.WriteString(" }")
	return b.String()
}

// SoundDef defines a named sound: leading consonants, at least one
// vowel, trailing consonants.
type SoundDef struct {
	Pos      Position
	Name     string
	Phonemes []*Ref
}

func (n *SoundDef) Position() Position { return n.Pos }

func (n *SoundDef) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[:sound %s] {", n.Name)
	for _, p := range n.Phonemes {
		b.WriteByte(' ')
		b.WriteString(p.Name)
	}
	b.WriteString(" }")
	return b.String()
}

// VoiceDef defines a named voice as a set of engine parameters.
// Unset parameters fall back to the engine defaults.
type VoiceDef struct {
	Pos    Position
	Name   string
	Params map[string]int
}

func (n *VoiceDef) Position() Position { return n.Pos }

func (n *VoiceDef) String() string {
	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[:voice %s] {", n.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s %d", k, n.Params[k])
	}
	b.WriteString(" }")
	return b.String()
}

// Loop repeats its generated body Count times.
type Loop struct {
	Pos   Position
	Count int
	Body  []Node
}

func (n *Loop) Position() Position { return n.Pos }

func (n *Loop) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[:loop %d] {", n.Count)
	for _, c := range n.Body {
		b.WriteByte(' ')
		b.WriteString(c.String())
	}
	b.WriteString(" }")
	return b.String()
}

// Command is any other [:keyword args] directive. Most pass through to
// the engine verbatim; a few adjust generator state or are dropped.
type Command struct {
	Pos  Position
	Name string
	Args []Arg
}

func (n *Command) Position() Position { return n.Pos }

func (n *Command) String() string {
	var b strings.Builder
	b.WriteString("[:")
	b.WriteString(n.Name)
	for _, a := range n.Args {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	b.WriteByte(']')
	return b.String()
}

// ArgKind classifies a directive argument.
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgInt
	ArgFloat
)

// Arg is a directive argument literal.
type Arg struct {
	Kind  ArgKind
	Str   string
	Int   int
	Float float64
}

func (a Arg) String() string {
	switch a.Kind {
	case ArgInt:
		return strconv.Itoa(a.Int)
	case ArgFloat:
		return formatNum(a.Float)
	default:
		return a.Str
	}
}

func formatNum(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
