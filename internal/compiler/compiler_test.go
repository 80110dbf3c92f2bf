package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/opendec/opendec/internal/engine"
	"github.com/opendec/opendec/internal/gen"
)

// project lays out bin/, build/ and export/ under a temp directory and
// installs a counting fake engine that logs each invocation.
type project struct {
	root      string
	bin       string
	build     string
	export    string
	countFile string
}

func newProject(t *testing.T) *project {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script engines require a POSIX shell")
	}

	root := t.TempDir()
	p := &project{
		root:      root,
		bin:       filepath.Join(root, "bin"),
		build:     filepath.Join(root, "build"),
		export:    filepath.Join(root, "export"),
		countFile: filepath.Join(root, "invocations"),
	}
	for _, dir := range []string{p.bin, p.build, p.export} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
	}
	p.installEngine(t, "")
	return p
}

// installEngine writes the counting fake engine, running extra shell
// commands (such as a sleep) before producing output.
func (p *project) installEngine(t *testing.T, extra string) {
	t.Helper()
	script := "#!/bin/sh\n" + extra + `
echo x >> "` + p.countFile + `"
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-w" ]; then out="$2"; shift; fi
  shift
done
cat > "$out"
`
	if err := os.WriteFile(filepath.Join(p.bin, "say"), []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func (p *project) config(sources ...string) Config {
	return Config{
		Sources:       sources,
		IncludeDirs:   []string{p.root},
		BinDir:        p.bin,
		BuildDir:      p.build,
		ExportDir:     p.export,
		Engine:        "say",
		EngineTimeout: 10 * time.Second,
		Jobs:          2,
		Redefine:      gen.PolicyWarn,
	}
}

func (p *project) source(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func (p *project) invocations(t *testing.T) int {
	t.Helper()
	data, err := os.ReadFile(p.countFile)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return strings.Count(string(data), "x")
}

func run(t *testing.T, cfg Config) *Result {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return result
}

func TestCompileSingleFile(t *testing.T) {
	p := newProject(t)
	src := p.source(t, "hello.opendec", "hello world[ah<100,14>]")

	result := run(t, p.config(src))
	if !result.Ok() {
		t.Fatalf("Expected success, got %d failures", result.Failed())
	}

	job := result.Jobs[0]
	if job.State != Done {
		t.Fatalf("Job state = %s", job.State)
	}
	data, err := os.ReadFile(job.Artifact)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello world[ah<100,14>]" {
		t.Errorf("Artifact content = %q", data)
	}
	if filepath.Dir(job.Artifact) != p.export {
		t.Errorf("Artifact placed at %q, want under %q", job.Artifact, p.export)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	p := newProject(t)
	first := p.source(t, "first.opendec", "fine")
	second := p.source(t, "second.opendec", "[:broken never closed")
	third := p.source(t, "third.opendec", "also fine")

	result := run(t, p.config(first, second, third))
	if result.Failed() != 1 {
		t.Fatalf("Expected exactly 1 failure, got %d", result.Failed())
	}

	byName := map[string]*Job{}
	for _, j := range result.Jobs {
		byName[j.Name] = j
	}
	if byName["second"].State != Failed || byName["second"].Err == nil {
		t.Errorf("second = %+v", byName["second"])
	}
	for _, name := range []string{"first", "third"} {
		job := byName[name]
		if job.State != Done {
			t.Errorf("%s state = %s, err = %v", name, job.State, job.Err)
			continue
		}
		if _, err := os.Stat(job.Artifact); err != nil {
			t.Errorf("%s artifact missing: %v", name, err)
		}
	}
}

func TestEngineInvokedOncePerFingerprint(t *testing.T) {
	p := newProject(t)
	// A slow engine keeps the first build in flight while the second
	// job races past its cache lookup.
	p.installEngine(t, "sleep 1")
	src := p.source(t, "tune.opendec", "[:loop 2] { [ah<100>] }")

	// Two concurrent jobs over identical content share one engine run.
	result := run(t, p.config(src, src))
	if !result.Ok() {
		t.Fatalf("Expected success, got %d failures", result.Failed())
	}
	if n := p.invocations(t); n != 1 {
		t.Errorf("Engine invoked %d times, want 1", n)
	}

	hits := 0
	for _, j := range result.Jobs {
		if j.Hit {
			hits++
		}
	}
	if hits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", hits)
	}
}

func TestGenerationErrorFailsJobWithoutEngine(t *testing.T) {
	p := newProject(t)
	src := p.source(t, "bad.opendec", "[unknownref<10>]")

	result := run(t, p.config(src))
	if result.Failed() != 1 {
		t.Fatalf("Expected 1 failure, got %d", result.Failed())
	}
	job := result.Jobs[0]
	if job.State != Failed || job.Err == nil {
		t.Fatalf("Job = %+v", job)
	}
	if !strings.Contains(job.Err.Error(), "unrecognized") {
		t.Errorf("Err = %v", job.Err)
	}
	if p.invocations(t) != 0 {
		t.Error("Expected no engine invocation for a generation failure")
	}
}

func TestPersistentCacheSkipsEngineAcrossRuns(t *testing.T) {
	p := newProject(t)
	src := p.source(t, "tune.opendec", "[ah<100>]")

	cfg := p.config(src)
	cfg.PersistCache = true

	if result := run(t, cfg); !result.Ok() {
		t.Fatalf("First run failed")
	}
	if result := run(t, cfg); !result.Ok() {
		t.Fatalf("Second run failed")
	}
	if n := p.invocations(t); n != 1 {
		t.Errorf("Engine invoked %d times across runs, want 1", n)
	}
}

func TestCacheInvalidationOnImportChange(t *testing.T) {
	p := newProject(t)
	p.source(t, "defs.opendeci", "[:phrase x] { [ah<100>] }")
	src := p.source(t, "song.opendec", `[:import "defs.opendeci"][x]`)

	cfg := p.config(src)
	cfg.PersistCache = true
	if result := run(t, cfg); !result.Ok() {
		t.Fatalf("First run failed")
	}

	// One character changed in the import forces a rebuild.
	p.source(t, "defs.opendeci", "[:phrase x] { [ah<101>] }")
	if result := run(t, cfg); !result.Ok() {
		t.Fatalf("Second run failed")
	}
	if n := p.invocations(t); n != 2 {
		t.Errorf("Engine invoked %d times, want 2", n)
	}
}

func TestMissingEngineAbortsRun(t *testing.T) {
	p := newProject(t)
	src := p.source(t, "hello.opendec", "text")

	cfg := p.config(src)
	cfg.Engine = "ghost"

	_, err := New(cfg)
	var nerr *engine.NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected *engine.NotFoundError, got %T: %v", err, err)
	}
	if p.invocations(t) != 0 {
		t.Error("Expected no engine invocations")
	}
}

func TestImportOnlyFileRejectedAsJob(t *testing.T) {
	p := newProject(t)
	src := p.source(t, "defs.opendeci", "[:phrase x] { [ah<100>] }")

	result := run(t, p.config(src))
	if result.Ok() {
		t.Fatal("Expected import-only source to fail as a top-level job")
	}
}

func TestInlineSource(t *testing.T) {
	p := newProject(t)

	result := run(t, p.config("spoken inline [ah<100>]"))
	if !result.Ok() {
		t.Fatalf("Expected success, got %v", result.Jobs[0].Err)
	}
	if result.Jobs[0].Name != "inline1" {
		t.Errorf("Name = %q", result.Jobs[0].Name)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.opendec", "a.opendec", "lib.opendeci", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	found, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Discover = %v", found)
	}
	if filepath.Base(found[0]) != "a.opendec" || filepath.Base(found[1]) != "b.opendec" {
		t.Errorf("Discover order = %v", found)
	}
}

func TestCleanIdempotent(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "build")
	export := filepath.Join(root, "export")

	if err := os.MkdirAll(build, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(build, "stale.wav"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := Clean(build, export); err != nil {
			t.Fatalf("Clean #%d failed: %v", i+1, err)
		}
	}

	for _, dir := range []string{build, export} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("%s not empty after clean: %v", dir, entries)
		}
	}
}

func TestJobStateString(t *testing.T) {
	if Pending.String() != "pending" || Done.String() != "done" || Failed.String() != "failed" {
		t.Error("Unexpected state names")
	}
}
