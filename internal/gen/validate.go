package gen

import (
	"strings"

	"github.com/opendec/opendec/internal/lang"
	"github.com/opendec/opendec/internal/syntax"
)

// Per-command argument rules for the engine command set. A command
// failing these rules cannot be expressed for the engine, so the
// violations surface as generation errors.

type argRule struct {
	kinds    []syntax.ArgKind
	validate func(cmd *syntax.Command) error
}

func keywordRule(i int, words ...string) func(*syntax.Command) error {
	return func(cmd *syntax.Command) error {
		w := cmd.Args[i].Str
		for _, k := range words {
			if w == k {
				return nil
			}
		}
		return genErrorf(cmd.Pos, "command %q parameter %q is not a valid keyword - expected one of %s",
			cmd.Name, w, strings.Join(words, "|"))
	}
}

func rangeRule(i, min, max int) func(*syntax.Command) error {
	return func(cmd *syntax.Command) error {
		v := cmd.Args[i].Int
		if v < min || v > max {
			return genErrorf(cmd.Pos, "command %q parameter value %d must be between %d and %d",
				cmd.Name, v, min, max)
		}
		return nil
	}
}

func allRules(rules ...func(*syntax.Command) error) func(*syntax.Command) error {
	return func(cmd *syntax.Command) error {
		for _, r := range rules {
			if err := r(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

var (
	str = syntax.ArgString
	num = syntax.ArgInt
)

// commandRules covers every recognized command keyword. nil means any
// arguments are accepted (the short speaker aliases).
var commandRules = map[string]*argRule{
	// Base commands.
	"comma":  {kinds: []syntax.ArgKind{num}},
	"cp":     {kinds: []syntax.ArgKind{num}},
	"dv":     {kinds: []syntax.ArgKind{str, num}, validate: validateDV},
	"error":  {kinds: []syntax.ArgKind{str}, validate: keywordRule(0, "ignore", "speak", "tone")},
	"mode":   {kinds: []syntax.ArgKind{str, str}, validate: allRules(keywordRule(0, "math", "europe", "spell", "name", "citation", "latin", "table"), keywordRule(1, "on", "off", "set"))},
	"name":   {kinds: []syntax.ArgKind{str}, validate: validateNameArg},
	"nb":     nil,
	"nd":     nil,
	"nf":     nil,
	"nh":     nil,
	"nk":     nil,
	"np":     nil,
	"nr":     nil,
	"nu":     nil,
	"nw":     nil,
	"period": {kinds: []syntax.ArgKind{num}},
	"pp":     {kinds: []syntax.ArgKind{num}},
	"phoneme": {kinds: []syntax.ArgKind{str, str},
		validate: allRules(keywordRule(0, "arpabet"), keywordRule(1, "on", "off"))},
	"pitch":     {kinds: []syntax.ArgKind{num}},
	"pronounce": {kinds: []syntax.ArgKind{str}, validate: keywordRule(0, "alternate", "primary", "name", "noun", "adjective", "verb")},
	"punct":     {kinds: []syntax.ArgKind{str}, validate: keywordRule(0, "none", "some", "all", "pass")},
	"rate":      {kinds: []syntax.ArgKind{num}, validate: rangeRule(0, 75, 600)},
	"say":       {kinds: []syntax.ArgKind{str}, validate: keywordRule(0, "clause", "word", "letter", "filtered", "line")},
	"skip":      {kinds: []syntax.ArgKind{str}, validate: keywordRule(0, "punct", "rule", "all", "off", "cpg", "none")},
	"tone":      {kinds: []syntax.ArgKind{num, num}},

	// Extended commands.
	"bpm": {kinds: []syntax.ArgKind{num}, validate: rangeRule(0, 0, 60000)},
}

func validateCommand(cmd *syntax.Command) error {
	if cmd.Name == "volume" {
		return validateVolume(cmd)
	}
	rule, ok := commandRules[cmd.Name]
	if !ok {
		return genErrorf(cmd.Pos, "unrecognized command %q", cmd.Name)
	}
	if rule == nil {
		return nil
	}
	if err := checkArgKinds(cmd, rule.kinds); err != nil {
		return err
	}
	if rule.validate != nil {
		return rule.validate(cmd)
	}
	return nil
}

func checkArgKinds(cmd *syntax.Command, kinds []syntax.ArgKind) error {
	if len(cmd.Args) != len(kinds) {
		return genErrorf(cmd.Pos, "command %q takes %d parameters - got %d",
			cmd.Name, len(kinds), len(cmd.Args))
	}
	for i, k := range kinds {
		if cmd.Args[i].Kind != k {
			return genErrorf(cmd.Pos, "command %q parameter %d has the wrong type", cmd.Name, i+1)
		}
	}
	return nil
}

func validateDV(cmd *syntax.Command) error {
	param := cmd.Args[0].Str
	r, ok := lang.VoiceRanges[param]
	if !ok {
		return genErrorf(cmd.Pos, "command \"dv\" parameter %q is not a voice parameter", param)
	}
	return rangeRule(1, r.Min, r.Max)(cmd)
}

func validateNameArg(cmd *syntax.Command) error {
	if !lang.IsVariable(cmd.Args[0].Str) {
		return genErrorf(cmd.Pos, "command \"name\" parameter %q is not a valid name", cmd.Args[0].Str)
	}
	return nil
}

// [:volume OPTION VALUE] or [:volume sset LEFT RIGHT].
func validateVolume(cmd *syntax.Command) error {
	switch len(cmd.Args) {
	case 2:
		if err := checkArgKinds(cmd, []syntax.ArgKind{str, num}); err != nil {
			return err
		}
		if err := keywordRule(0, "up", "lup", "rup", "down", "ldown", "rdown", "set", "lset", "rset")(cmd); err != nil {
			return err
		}
		return rangeRule(1, 0, 100)(cmd)
	case 3:
		if err := checkArgKinds(cmd, []syntax.ArgKind{str, num, num}); err != nil {
			return err
		}
		if err := keywordRule(0, "sset")(cmd); err != nil {
			return err
		}
		if err := rangeRule(1, 0, 100)(cmd); err != nil {
			return err
		}
		return rangeRule(2, 0, 100)(cmd)
	default:
		return genErrorf(cmd.Pos, "command \"volume\" takes 2 or 3 parameters - got %d", len(cmd.Args))
	}
}

func validatePhrase(def *syntax.PhraseDef) error {
	if !lang.IsVariable(def.Name) {
		return genErrorf(def.Pos, "phrase name %q is not a valid alias", def.Name)
	}
	if lang.IsPhoneme(def.Name) {
		return genErrorf(def.Pos, "cannot register phrase %q - it is a phoneme", def.Name)
	}
	if len(def.Body) == 0 {
		return genErrorf(def.Pos, "phrase %q missing context", def.Name)
	}
	return nil
}

func validateSound(def *syntax.SoundDef) error {
	if !lang.IsVariable(def.Name) {
		return genErrorf(def.Pos, "sound name %q is not a valid alias", def.Name)
	}
	if lang.IsPhoneme(def.Name) {
		return genErrorf(def.Pos, "cannot register sound %q - it is a phoneme", def.Name)
	}
	if len(def.Phonemes) == 0 {
		return genErrorf(def.Pos, "sound %q missing context", def.Name)
	}

	// Sounds follow a consonant* vowel+ consonant* shape.
	seenVowel := false
	doneVowels := false
	for _, p := range def.Phonemes {
		switch {
		case lang.IsVowel(p.Name):
			if doneVowels {
				return genErrorf(def.Pos, "sound %q does not follow the consonant-vowel-consonant pattern", def.Name)
			}
			seenVowel = true
		case lang.IsConsonant(p.Name):
			if seenVowel {
				doneVowels = true
			}
		default:
			return genErrorf(def.Pos, "sound %q can only contain vowel or consonant phonemes - got %q",
				def.Name, p.Name)
		}
	}
	if !seenVowel {
		return genErrorf(def.Pos, "sound %q does not follow the consonant-vowel-consonant pattern", def.Name)
	}
	return nil
}

func validateVoice(def *syntax.VoiceDef) error {
	if !lang.IsVariable(def.Name) {
		return genErrorf(def.Pos, "voice name %q is not a valid alias", def.Name)
	}
	for param, value := range def.Params {
		r, ok := lang.VoiceRanges[param]
		if !ok {
			return genErrorf(def.Pos, "voice %q contains unrecognized parameter %q", def.Name, param)
		}
		if value < r.Min || value > r.Max {
			return genErrorf(def.Pos, "voice %q parameter %q value %d is not within %d - %d",
				def.Name, param, value, r.Min, r.Max)
		}
	}
	return nil
}
