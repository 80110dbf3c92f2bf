package gen

import (
	"strings"
	"testing"

	"github.com/opendec/opendec/internal/syntax"
)

func generate(t *testing.T, src string) (string, error) {
	t.Helper()
	nodes, err := syntax.Parse("test.opendec", src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	g := New("say", PolicyWarn, nil)
	return g.Generate(nodes)
}

func mustGenerate(t *testing.T, src string) string {
	t.Helper()
	out, err := generate(t, src)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return out
}

func TestGenerateDeterministic(t *testing.T) {
	src := "[:voice robot] { hs 80 }[:name robot]hello[:loop 2] { [ah<100,14>] }"
	first := mustGenerate(t, src)
	second := mustGenerate(t, src)
	if first != second {
		t.Errorf("Generation is not deterministic:\n%q\n%q", first, second)
	}
}

func TestGenerateTextPassesThrough(t *testing.T) {
	out := mustGenerate(t, "Hello, world.")
	if out != "Hello, world." {
		t.Errorf("Expected verbatim text, got %q", out)
	}
}

func TestGeneratePhoneme(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"[ah<100,14>]", "[ah<100,14>]"},
		{"[ah]", "[ah]"},
		// Consonants carry no pitch.
		{"[d<15,20>]", "[d<15>]"},
		// Full stops carry neither length nor pitch.
		{"[.<100,20>]", "[.]"},
	}
	for _, tt := range tests {
		if out := mustGenerate(t, tt.src); out != tt.want {
			t.Errorf("Generate(%q) = %q, want %q", tt.src, out, tt.want)
		}
	}
}

func TestGenerateBPMScalesLength(t *testing.T) {
	// At 120 bpm one beat is 500ms.
	out := mustGenerate(t, "[:bpm 120][ah<1,14>]")
	if out != "[ah<500,14>]" {
		t.Errorf("Expected beat scaled to 500ms, got %q", out)
	}

	// bpm 0 switches back to milliseconds.
	out = mustGenerate(t, "[:bpm 120][:bpm 0][ah<100>]")
	if out != "[ah<100>]" {
		t.Errorf("Expected raw milliseconds, got %q", out)
	}
}

func TestGenerateLoop(t *testing.T) {
	out := mustGenerate(t, "[:loop 3] { [d<15>] }")
	if out != "[d<15>][d<15>][d<15>]" {
		t.Errorf("Loop output = %q", out)
	}
}

func TestGeneratePhraseExpansion(t *testing.T) {
	out := mustGenerate(t, "[:phrase beat] { [d<15>] [ah<100>] }[beat][beat]")
	if out != "[d<15>][ah<100>][d<15>][ah<100>]" {
		t.Errorf("Phrase output = %q", out)
	}
}

func TestGenerateSoundExpansion(t *testing.T) {
	// Head and tail consonants render at 15ms; the vowel takes the rest.
	out := mustGenerate(t, "[:sound kick] { d ah d }[kick<130,10>]")
	if out != "[d<15>][ah<100,10>][d<15>]" {
		t.Errorf("Sound output = %q", out)
	}
}

func TestGenerateSoundTooShort(t *testing.T) {
	_, err := generate(t, "[:sound kick] { d ah d }[kick<20>]")
	if err == nil {
		t.Fatal("Expected minimum-length error, got none")
	}
	if !strings.Contains(err.Error(), "minimum length") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestGenerateUnknownRef(t *testing.T) {
	_, err := generate(t, "[nothing<100>]")
	if err == nil {
		t.Fatal("Expected error for unknown reference, got none")
	}
}

func TestGenerateUserVoice(t *testing.T) {
	out := mustGenerate(t, "[:voice robot] { hs 80 }[:name robot]")
	if !strings.Contains(out, "[:dv hs 80]") {
		t.Errorf("Expected dv run for user voice, got %q", out)
	}
	// Defaults fill the parameters the definition leaves unset.
	if !strings.Contains(out, "[:dv sx 1]") {
		t.Errorf("Expected default parameters included, got %q", out)
	}
}

func TestGenerateVoiceScopeRestored(t *testing.T) {
	out := mustGenerate(t, "[:phrase betty] { [:name Betty] [ah<100>] }[:name Paul][betty]")
	// The phrase switches to Betty; the enclosing Paul is restored after.
	want := "[:name Paul][:name Betty][ah<100>][:name Paul]"
	if out != want {
		t.Errorf("Voice scope output = %q, want %q", out, want)
	}
}

func TestGenerateIgnoredCommands(t *testing.T) {
	for _, src := range []string{"[:mode spell on]", "[:phoneme arpabet on]", "[:pitch 100]", "[:pronounce primary]"} {
		if out := mustGenerate(t, src); out != "" {
			t.Errorf("Expected %q to be dropped, got %q", src, out)
		}
	}
}

func TestGeneratePassthroughCommands(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"[:rate 200]", "[:rate 200]"},
		{"[:volume set 50]", "[:volume set 50]"},
		{"[:dv hs 80]", "[:dv hs 80]"},
		{"[:punct none]", "[:punct none]"},
	}
	for _, tt := range tests {
		if out := mustGenerate(t, tt.src); out != tt.want {
			t.Errorf("Generate(%q) = %q, want %q", tt.src, out, tt.want)
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	cases := []string{
		"[:rate 5000]",
		"[:dv zz 10]",
		"[:dv hs 9999]",
		"[:volume sideways 50]",
		"[:nonsense 1 2 3]",
		"[:voice bad] { zz 10 }",
		"[:sound novowel] { d d }",
		// Alias names may not collide with builtin phonemes.
		"[:phrase p] { [ah<10>] }",
		"[:sound ah] { d ah }",
	}
	for _, src := range cases {
		if _, err := generate(t, src); err == nil {
			t.Errorf("Expected validation error for %q, got none", src)
		}
	}
}

func TestGenerateRedefinitionPolicies(t *testing.T) {
	nodes, err := syntax.Parse("", "[:phrase pat] { [ah<10>] }[:phrase pat] { [ah<20>] }[pat]")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// warn and allow shadow with the later definition.
	for _, policy := range []Policy{PolicyWarn, PolicyAllow} {
		g := New("say", policy, nil)
		out, err := g.Generate(nodes)
		if err != nil {
			t.Fatalf("Policy %v: Generate failed: %v", policy, err)
		}
		if out != "[ah<20>]" {
			t.Errorf("Policy %v: expected later definition to win, got %q", policy, out)
		}
	}

	g := New("say", PolicyError, nil)
	if _, err := g.Generate(nodes); err == nil {
		t.Error("PolicyError: expected redefinition error, got none")
	}
}

func TestGenerateCrossKindCollision(t *testing.T) {
	_, err := generate(t, "[:phrase x] { [ah<10>] }[:sound x] { d ah }")
	if err == nil {
		t.Fatal("Expected cross-kind collision error, got none")
	}
}

func TestGenerateBuiltinVoiceProtected(t *testing.T) {
	_, err := generate(t, "[:voice Paul] { hs 80 }")
	if err == nil {
		t.Fatal("Expected error overwriting builtin voice, got none")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
		err  bool
	}{
		{"", PolicyWarn, false},
		{"warn", PolicyWarn, false},
		{"allow", PolicyAllow, false},
		{"error", PolicyError, false},
		{"maybe", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParsePolicy(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
