// Package gen translates a resolved node sequence into the
// intermediate text consumed by a DECtalk-family engine. Generation is
// deterministic: the same node sequence and engine always produce
// byte-identical output.
package gen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/opendec/opendec/internal/lang"
	"github.com/opendec/opendec/internal/symbol"
	"github.com/opendec/opendec/internal/syntax"
)

// Version identifies the generator's output format. It participates in
// build-cache fingerprints so cached intermediate text is invalidated
// when generation changes.
const Version = "2.0.1"

// Consonant phonemes always render at a fixed length; only vowels
// stretch to fill a sound's requested duration.
const consonantMS = 15

// Policy decides what happens when an alias is defined twice.
type Policy int

const (
	// PolicyWarn lets the later definition shadow and logs a warning.
	PolicyWarn Policy = iota
	// PolicyAllow lets the later definition shadow silently.
	PolicyAllow
	// PolicyError rejects the redefinition.
	PolicyError
)

// ParsePolicy parses a redefinition policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "warn", "":
		return PolicyWarn, nil
	case "allow":
		return PolicyAllow, nil
	case "error":
		return PolicyError, nil
	default:
		return 0, fmt.Errorf("unknown redefinition policy %q - want allow, warn, or error", s)
	}
}

// Error is a generation error: resolved content that cannot be
// expressed for the target engine.
type Error struct {
	Pos syntax.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func genErrorf(pos syntax.Position, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Generator holds the fixed configuration shared by all compilations.
type Generator struct {
	engine string
	policy Policy
	log    *log.Logger
}

// New returns a generator targeting the named engine.
func New(engine string, policy Policy, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{engine: engine, policy: policy, log: logger}
}

// Engine returns the engine identifier generation targets.
func (g *Generator) Engine() string { return g.engine }

// state carries the mutable walk state for one compilation.
type state struct {
	syms *symbol.Table

	// Multiplier converting authored lengths to milliseconds. 1 means
	// lengths are already milliseconds; [:bpm] switches to beats.
	bpmToMS float64

	// Current speaker, tracked so contexts can restore it.
	voice string
}

func newState() *state {
	return &state{
		syms:    symbol.NewTable(),
		bpmToMS: 1,
		voice:   "Paul",
	}
}

// Generate walks a fully resolved node sequence and returns the
// engine's intermediate text.
func (g *Generator) Generate(nodes []syntax.Node) (string, error) {
	st := newState()
	var b strings.Builder
	for _, n := range nodes {
		s, err := g.genNode(n, st)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func (g *Generator) genNode(node syntax.Node, st *state) (string, error) {
	switch n := node.(type) {
	case *syntax.TextRun:
		return n.Text, nil

	case *syntax.Ref:
		return g.genRef(n, st)

	case *syntax.Play:
		return n.String(), nil

	case *syntax.Import:
		// A resolved unit never contains imports.
		return "", genErrorf(n.Pos, "unresolved import %q reached generation", n.Target)

	case *syntax.PhraseDef:
		return "", g.registerPhrase(n, st)

	case *syntax.SoundDef:
		return "", g.registerSound(n, st)

	case *syntax.VoiceDef:
		return "", g.registerVoice(n, st)

	case *syntax.Loop:
		body, err := g.genContext(n.Body, st)
		if err != nil {
			return "", err
		}
		return strings.Repeat(body, n.Count), nil

	case *syntax.Command:
		return g.genCommand(n, st)

	default:
		return "", genErrorf(node.Position(), "unexpected node %T", node)
	}
}

// genContext generates a braced body. A speaker change inside the
// body is scoped: the enclosing speaker is restored afterwards.
func (g *Generator) genContext(body []syntax.Node, st *state) (string, error) {
	outer := st.voice
	var b strings.Builder
	for _, n := range body {
		s, err := g.genNode(n, st)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	if st.voice != outer {
		restore, err := g.speakerText(outer, st)
		if err != nil {
			return "", err
		}
		b.WriteString(restore)
		st.voice = outer
	}
	return b.String(), nil
}

func (g *Generator) genCommand(cmd *syntax.Command, st *state) (string, error) {
	if err := validateCommand(cmd); err != nil {
		return "", err
	}

	handler, ok := commandHandlers[cmd.Name]
	if !ok {
		// Default commands pass straight through to the engine.
		return cmd.String(), nil
	}
	return handler(g, cmd, st)
}

// commandHandlers maps a directive keyword to its specialized
// handler. Keywords absent here pass through verbatim.
var commandHandlers = map[string]func(*Generator, *syntax.Command, *state) (string, error){
	// Commands that could disturb engine state are dropped.
	"mode":      ignore,
	"phoneme":   ignore,
	"pitch":     ignore,
	"pronounce": ignore,

	"name": (*Generator).genName,
	"bpm":  (*Generator).genBPM,
}

func ignore(*Generator, *syntax.Command, *state) (string, error) { return "", nil }

func (g *Generator) genName(cmd *syntax.Command, st *state) (string, error) {
	name := cmd.Args[0].Str
	out, err := g.speakerText(name, st)
	if err != nil {
		return "", genErrorf(cmd.Pos, "name %q is not defined", name)
	}
	st.voice = name
	return out, nil
}

// speakerText emits the engine text that activates a speaker: builtin
// names pass through [:name], user voices expand to [:dv] runs.
func (g *Generator) speakerText(name string, st *state) (string, error) {
	if lang.IsBuiltinVoice(name) {
		return fmt.Sprintf("[:name %s]", name), nil
	}
	params, ok := st.syms.Voice(name)
	if !ok {
		return "", fmt.Errorf("voice %q is not defined", name)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "[:dv %s %d]", k, params[k])
	}
	return b.String(), nil
}

func (g *Generator) genBPM(cmd *syntax.Command, st *state) (string, error) {
	bpm := cmd.Args[0].Int
	if bpm == 0 {
		st.bpmToMS = 1
	} else {
		st.bpmToMS = 60000 / float64(bpm)
	}
	g.log.Debug("set tempo", "bpm", bpm, "ms_per_beat", st.bpmToMS)
	return "", nil
}

// genRef renders a phoneme, phrase, or sound reference.
func (g *Generator) genRef(ref *syntax.Ref, st *state) (string, error) {
	if lang.IsPhoneme(ref.Name) {
		return g.genPhoneme(ref, st), nil
	}
	if body, ok := st.syms.Phrase(ref.Name); ok {
		return g.genContext(body, st)
	}
	if phonemes, ok := st.syms.Sound(ref.Name); ok {
		return g.expandSound(ref, phonemes, st)
	}
	return "", genErrorf(ref.Pos, "unrecognized phoneme, sound, or phrase %q", ref.Name)
}

func (g *Generator) genPhoneme(ref *syntax.Ref, st *state) string {
	out := &syntax.Ref{
		Pos:    ref.Pos,
		Name:   ref.Name,
		Length: float64(int(ref.Length * st.bpmToMS)),
		Pitch:  ref.Pitch,
	}
	if lang.NoLength(out.Name) {
		out.Length = 0
	}
	if lang.NoPitch(out.Name) {
		out.Pitch = 0
	}
	return out.String()
}

// expandSound expands a sound reference into phonemes: consonants at a
// fixed length, vowels sharing the remaining duration evenly.
func (g *Generator) expandSound(ref *syntax.Ref, phonemes []*syntax.Ref, st *state) (string, error) {
	lengthMS := int(ref.Length * st.bpmToMS)

	vowelStart := 0
	for vowelStart < len(phonemes) && lang.IsConsonant(phonemes[vowelStart].Name) {
		vowelStart++
	}
	vowelEnd := len(phonemes)
	for vowelEnd > vowelStart && lang.IsConsonant(phonemes[vowelEnd-1].Name) {
		vowelEnd--
	}

	vcount := vowelEnd - vowelStart
	ccount := len(phonemes) - vcount
	if lengthMS < consonantMS*ccount {
		return "", genErrorf(ref.Pos,
			"sound %q must have minimum length %dms - got %d", ref.Name, consonantMS*ccount, lengthMS)
	}
	vlength := (lengthMS - consonantMS*ccount) / vcount

	var b strings.Builder
	for _, p := range phonemes[:vowelStart] {
		fmt.Fprintf(&b, "[%s<%d>]", p.Name, consonantMS)
	}
	for _, p := range phonemes[vowelStart:vowelEnd] {
		out := &syntax.Ref{Name: p.Name, Length: float64(vlength), Pitch: ref.Pitch}
		b.WriteString(out.String())
	}
	for _, p := range phonemes[vowelEnd:] {
		fmt.Fprintf(&b, "[%s<%d>]", p.Name, consonantMS)
	}
	return b.String(), nil
}

// redefined applies the redefinition policy for alias kind/name.
func (g *Generator) redefined(pos syntax.Position, kind, name string) error {
	switch g.policy {
	case PolicyError:
		return genErrorf(pos, "%s %q is already defined", kind, name)
	case PolicyWarn:
		g.log.Warn("alias redefined", "kind", kind, "name", name, "pos", pos.String())
	}
	return nil
}

func (g *Generator) registerPhrase(def *syntax.PhraseDef, st *state) error {
	if err := validatePhrase(def); err != nil {
		return err
	}
	if _, ok := st.syms.Sound(def.Name); ok {
		return genErrorf(def.Pos, "cannot register phrase %q - it is already a registered sound", def.Name)
	}
	if _, ok := st.syms.Phrase(def.Name); ok {
		if err := g.redefined(def.Pos, "phrase", def.Name); err != nil {
			return err
		}
	}
	st.syms.DefinePhrase(def.Name, def.Body)
	g.log.Debug("registered phrase", "name", def.Name, "nodes", len(def.Body))
	return nil
}

func (g *Generator) registerSound(def *syntax.SoundDef, st *state) error {
	if err := validateSound(def); err != nil {
		return err
	}
	if _, ok := st.syms.Phrase(def.Name); ok {
		return genErrorf(def.Pos, "cannot register sound %q - it is already a registered phrase", def.Name)
	}
	if _, ok := st.syms.Sound(def.Name); ok {
		if err := g.redefined(def.Pos, "sound", def.Name); err != nil {
			return err
		}
	}
	st.syms.DefineSound(def.Name, def.Phonemes)
	g.log.Debug("registered sound", "name", def.Name, "phonemes", len(def.Phonemes))
	return nil
}

func (g *Generator) registerVoice(def *syntax.VoiceDef, st *state) error {
	if err := validateVoice(def); err != nil {
		return err
	}
	if lang.IsBuiltinVoice(def.Name) {
		return genErrorf(def.Pos, "cannot overwrite default voice %q", def.Name)
	}
	if _, ok := st.syms.Voice(def.Name); ok {
		if err := g.redefined(def.Pos, "voice", def.Name); err != nil {
			return err
		}
	}

	params := make(map[string]int, len(lang.VoiceDefaults))
	for k, v := range lang.VoiceDefaults {
		params[k] = v
	}
	for k, v := range def.Params {
		params[k] = v
	}
	st.syms.DefineVoice(def.Name, params)
	g.log.Debug("registered voice", "name", def.Name, "params", len(def.Params))
	return nil
}
