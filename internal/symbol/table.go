// Package symbol implements the alias table mapping user-defined
// names to their payloads: phrase bodies, sound phoneme sequences, and
// voice parameter sets. A table belongs to one compilation and fills
// in source order, so definitions are visible only after they appear.
package symbol

import "github.com/opendec/opendec/internal/syntax"

// Table maps alias names to their defining payloads. Aliases of
// different kinds share one namespace: a phrase and a sound may not
// use the same name.
type Table struct {
	phrases map[string][]syntax.Node
	sounds  map[string][]*syntax.Ref
	voices  map[string]map[string]int
}

// NewTable returns an empty symbol table.
func NewTable() *Table {
	return &Table{
		phrases: map[string][]syntax.Node{},
		sounds:  map[string][]*syntax.Ref{},
		voices:  map[string]map[string]int{},
	}
}

// Phrase looks up a phrase body.
func (t *Table) Phrase(name string) ([]syntax.Node, bool) {
	body, ok := t.phrases[name]
	return body, ok
}

// Sound looks up a sound's phoneme sequence.
func (t *Table) Sound(name string) ([]*syntax.Ref, bool) {
	ph, ok := t.sounds[name]
	return ph, ok
}

// Voice looks up a voice's full parameter set.
func (t *Table) Voice(name string) (map[string]int, bool) {
	params, ok := t.voices[name]
	return params, ok
}

// DefinePhrase binds a phrase body to name, reporting whether a phrase
// of that name was already defined (the new body shadows it).
func (t *Table) DefinePhrase(name string, body []syntax.Node) (shadowed bool) {
	_, shadowed = t.phrases[name]
	t.phrases[name] = body
	return shadowed
}

// DefineSound binds a phoneme sequence to name.
func (t *Table) DefineSound(name string, phonemes []*syntax.Ref) (shadowed bool) {
	_, shadowed = t.sounds[name]
	t.sounds[name] = phonemes
	return shadowed
}

// DefineVoice binds a parameter set to name.
func (t *Table) DefineVoice(name string, params map[string]int) (shadowed bool) {
	_, shadowed = t.voices[name]
	t.voices[name] = params
	return shadowed
}
