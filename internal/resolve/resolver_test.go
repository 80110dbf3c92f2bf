package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opendec/opendec/internal/syntax"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func resolveFile(t *testing.T, path string, includes []string) (*ResolvedUnit, error) {
	t.Helper()
	units := NewUnitCache()
	unit, err := units.Load(path)
	if err != nil {
		return nil, err
	}
	return New(units, includes, nil).Resolve(unit)
}

func TestResolveNoImports(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plain.opendec", "just text")

	resolved, err := resolveFile(t, path, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(resolved.Nodes))
	}
}

func TestResolveImportTransitivity(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.opendeci", "[:phrase deep] { [ah<100>] }")
	writeFile(t, dir, "b.opendeci", `[:import "c.opendeci"]`)
	root := writeFile(t, dir, "a.opendec", `[:import "b.opendeci"][deep]`)

	resolved, err := resolveFile(t, root, []string{dir})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The phrase defined only in C must be reachable from A.
	foundDef := false
	for _, n := range resolved.Nodes {
		if _, ok := n.(*syntax.Import); ok {
			t.Fatalf("Unresolved import in resolved unit: %s", n)
		}
		if def, ok := n.(*syntax.PhraseDef); ok && def.Name == "deep" {
			foundDef = true
		}
	}
	if !foundDef {
		t.Error("Expected phrase from transitive import to be spliced in")
	}
}

func TestResolveCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.opendec", `[:import "b.opendeci"]`)
	writeFile(t, dir, "b.opendeci", `[:import "a.opendec"]`)
	root := filepath.Join(dir, "a.opendec")

	_, err := resolveFile(t, root, []string{dir})
	if err == nil {
		t.Fatal("Expected cycle error, got none")
	}
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *CycleError, got %T: %v", err, err)
	}
	chain := strings.Join(cerr.Chain, " ")
	if !strings.Contains(chain, "a.opendec") || !strings.Contains(chain, "b.opendeci") {
		t.Errorf("Cycle chain does not name both files: %v", cerr.Chain)
	}
}

func TestResolveUnusedCycleDoesNotFail(t *testing.T) {
	// A standalone file compiles even while a broken sibling exists.
	dir := t.TempDir()
	writeFile(t, dir, "a.opendec", `[:import "b.opendeci"]`)
	writeFile(t, dir, "b.opendeci", `[:import "a.opendec"]`)
	alone := writeFile(t, dir, "alone.opendec", "no imports here")

	if _, err := resolveFile(t, alone, []string{dir}); err != nil {
		t.Fatalf("Expected standalone file to resolve, got %v", err)
	}
}

func TestResolveImportNotFound(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "a.opendec", `[:import "missing.opendeci"]`)

	_, err := resolveFile(t, root, []string{dir})
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected *NotFoundError, got %T: %v", err, err)
	}
	if nerr.Target != "missing.opendeci" {
		t.Errorf("Target = %q", nerr.Target)
	}
	if len(nerr.Searched) == 0 {
		t.Error("Expected searched directories to be reported")
	}
}

func TestResolveSearchOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, first, "shared.opendeci", "[:phrase which] { [ah<1>] }")
	writeFile(t, second, "shared.opendeci", "[:phrase which] { [ah<2>] }")

	root := writeFile(t, t.TempDir(), "a.opendec", `[:import "shared.opendeci"]`)
	resolved, err := resolveFile(t, root, []string{first, second})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, n := range resolved.Nodes {
		if def, ok := n.(*syntax.PhraseDef); ok {
			if got := def.Body[0].(*syntax.Ref).Length; got != 1 {
				t.Errorf("Expected first search directory to win, got length %v", got)
			}
		}
	}
}

func TestResolveDefsOnlyImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.opendec", "spoken content[:phrase greet] { [ah<100>] }")
	root := writeFile(t, dir, "a.opendec", `[:import "lib.opendec" defs][greet]`)

	resolved, err := resolveFile(t, root, []string{dir})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, n := range resolved.Nodes {
		if run, ok := n.(*syntax.TextRun); ok && strings.Contains(run.Text, "spoken content") {
			t.Error("Defs-only import leaked content nodes")
		}
	}
}

func TestResolvePlayTarget(t *testing.T) {
	assets := t.TempDir()
	wav := writeFile(t, assets, "hit.wav", "RIFF")
	dir := t.TempDir()
	root := writeFile(t, dir, "a.opendec", `[:play "hit.wav"]`)

	resolved, err := resolveFile(t, root, []string{assets})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	play, ok := resolved.Nodes[0].(*syntax.Play)
	if !ok {
		t.Fatalf("Expected Play node, got %T", resolved.Nodes[0])
	}
	if play.Resolved != wav {
		t.Errorf("Resolved = %q, want %q", play.Resolved, wav)
	}
	if !filepath.IsAbs(play.Resolved) {
		t.Errorf("Expected absolute resolved path, got %q", play.Resolved)
	}
}

func TestResolveImportInsideContext(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "a.opendec", `[:loop 2] { [:import "b.opendeci"] }`)

	_, err := resolveFile(t, root, []string{dir})
	if err == nil {
		t.Fatal("Expected error for import inside a context, got none")
	}
	if !strings.Contains(err.Error(), "not allowed inside a context") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestUnitCacheSharesParse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.opendec", "text")

	cache := NewUnitCache()
	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if first != second {
		t.Error("Expected the same unit pointer from the cache")
	}
}

func TestKindForPath(t *testing.T) {
	if KindForPath("a.opendec") != Compilable {
		t.Error("Expected .opendec to be compilable")
	}
	if KindForPath("a.opendeci") != ImportOnly {
		t.Error("Expected .opendeci to be import-only")
	}
	if KindForPath("a.OPENDECI") != ImportOnly {
		t.Error("Expected extension match to be case-insensitive")
	}
}
