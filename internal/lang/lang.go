// Package lang holds the OpenDec language inventory: the phoneme set
// understood by DECtalk-family engines, the builtin speaker names, and
// the voice parameter ranges used to validate voice definitions.
package lang

// Consonants lists every consonant phoneme.
var Consonants = []string{
	"b", "ch", "d", "dh", "dx", "f", "g", "hx", "jh", "k", "l", "lx",
	"m", "n", "nx", "p", "r", "rx", "s", "sh", "t", "th", "tx", "v",
	"w", "yx", "z", "zh",
}

// Vowels lists every vowel phoneme.
var Vowels = []string{
	"aa", "ae", "ah", "ao", "aw", "ax", "ay", "eh", "el", "en", "er",
	"ey", "ih", "ir", "iy", "or", "ow", "oy", "rr", "uh", "ur", "uw",
	"yu",
}

// Symbols lists the pause and stress phonemes.
var Symbols = []string{",", ".", "_", "'", "`", `"`}

var (
	phonemes   = make(map[string]bool)
	consonants = make(map[string]bool)
	vowels     = make(map[string]bool)
	noLength   = make(map[string]bool)
	noPitch    = make(map[string]bool)
)

func init() {
	for _, p := range Consonants {
		phonemes[p] = true
		consonants[p] = true
		noPitch[p] = true
	}
	for _, p := range Vowels {
		phonemes[p] = true
		vowels[p] = true
	}
	for _, p := range Symbols {
		phonemes[p] = true
		noPitch[p] = true
	}
	for _, p := range []string{",", ".", "'", "`", `"`} {
		noLength[p] = true
	}
}

// IsPhoneme reports whether name is a builtin phoneme.
func IsPhoneme(name string) bool { return phonemes[name] }

// IsConsonant reports whether name is a consonant phoneme.
func IsConsonant(name string) bool { return consonants[name] }

// IsVowel reports whether name is a vowel phoneme.
func IsVowel(name string) bool { return vowels[name] }

// NoLength reports whether the phoneme ignores an explicit length.
func NoLength(name string) bool { return noLength[name] }

// NoPitch reports whether the phoneme ignores an explicit pitch.
func NoPitch(name string) bool { return noPitch[name] }

// VoiceNames are the speaker names built into the engine. They pass
// through [:name] unchanged and cannot be redefined.
var VoiceNames = []string{
	"Betty", "Dennis", "Frank", "Harry", "Kit", "Paul", "Rita",
	"Ursula", "Wendy",
}

// IsBuiltinVoice reports whether name is one of the engine's speakers.
func IsBuiltinVoice(name string) bool {
	for _, v := range VoiceNames {
		if v == name {
			return true
		}
	}
	return false
}

// Range is an inclusive parameter bound.
type Range struct {
	Min, Max int
}

// VoiceRanges maps each [:dv] voice parameter to its legal range.
var VoiceRanges = map[string]Range{
	// Vocal tract parameters.
	"sx": {0, 1},
	"hs": {65, 145},
	"f4": {2000, 4650},
	"f5": {2500, 4950},
	"b4": {100, 2048},
	"b5": {100, 2048},

	// Voicing sound source parameters.
	"br": {0, 72},
	"lx": {0, 100},
	"sm": {0, 100},
	"ri": {0, 100},
	"nf": {0, 100},
	"la": {0, 100},

	// Intonation parameters.
	"bf": {0, 40},
	"hr": {2, 100},
	"sr": {1, 100},
	"as": {0, 100},
	"qu": {0, 100},
	"ap": {50, 350},
	"pr": {0, 250},

	// Gain adjustment parameters.
	"lo": {0, 86},
	"gv": {0, 86},
	"gh": {0, 86},
	"gf": {0, 86},
	"g1": {0, 86},
	"g2": {0, 86},
	"g3": {0, 86},
	"g4": {0, 86},
}

// VoiceDefaults holds the engine's default speaker parameters (Paul).
// A user voice definition starts from these and overrides what it names.
var VoiceDefaults = map[string]int{
	"sx": 1, "hs": 100, "f4": 3300, "f5": 3650, "b4": 260, "b5": 330,
	"br": 0, "lx": 0, "sm": 12, "ri": 70, "nf": 0, "la": 0,
	"bf": 18, "hr": 18, "sr": 32, "as": 100, "qu": 40, "ap": 122, "pr": 100,
	"lo": 86, "gv": 65, "gh": 70, "gf": 70, "g1": 68, "g2": 60, "g3": 48, "g4": 64,
}

// IsVariable reports whether name is a legal alias: a single letter, or
// an identifier of letters, digits and underscores not starting with a
// digit.
func IsVariable(name string) bool {
	if len(name) == 0 {
		return false
	}
	if len(name) == 1 {
		return isAlpha(rune(name[0]))
	}
	first := rune(name[0])
	if first != '_' && !isAlpha(first) {
		return false
	}
	for _, r := range name[1:] {
		if r != '_' && !isAlpha(r) && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
