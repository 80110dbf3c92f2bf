// Package compiler orchestrates compilation jobs: parse, resolve,
// generate, cache, invoke the engine, and export the audio artifact.
package compiler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/opendec/opendec/internal/cache"
	"github.com/opendec/opendec/internal/engine"
	"github.com/opendec/opendec/internal/gen"
	"github.com/opendec/opendec/internal/resolve"
	"github.com/opendec/opendec/internal/syntax"
)

// Config is the orchestrator's parsed configuration. Directory paths
// are supplied by the command layer.
type Config struct {
	// Sources are the requested files or literal source texts. Empty
	// means discover compilable files in the working directory.
	Sources []string
	// IncludeDirs are searched, in order, for imports and played assets.
	IncludeDirs []string

	BinDir    string
	BuildDir  string
	ExportDir string

	Engine        string
	EngineTimeout time.Duration

	// PersistCache keeps cache entries on disk across runs.
	PersistCache bool

	// Jobs bounds concurrent compilation. Zero means one per CPU.
	Jobs int

	// Redefine is the alias redefinition policy.
	Redefine gen.Policy

	Logger *log.Logger
}

// State is a job's position in its lifecycle.
type State int

const (
	Pending State = iota
	Parsing
	Resolving
	Generating
	CacheCheck
	CacheHit
	CacheMiss
	Invoking
	Exporting
	Done
	Failed
)

var stateNames = [...]string{
	"pending", "parsing", "resolving", "generating", "cache-check",
	"cache-hit", "cache-miss", "invoking", "exporting", "done", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Job is one requested compilation. Err and Artifact are set when the
// job reaches a terminal state.
type Job struct {
	Source   string
	Name     string
	State    State
	Artifact string
	Hit      bool
	Err      error
	Elapsed  time.Duration
}

// Result aggregates a whole run.
type Result struct {
	Jobs       []*Job
	CacheStats cache.Stats
}

// Failed counts terminal failures.
func (r *Result) Failed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.State == Failed {
			n++
		}
	}
	return n
}

// Ok reports whether every job finished cleanly.
func (r *Result) Ok() bool { return r.Failed() == 0 }

// Compiler drives compilation jobs against shared caches.
type Compiler struct {
	cfg     Config
	log     *log.Logger
	units   *resolve.UnitCache
	cache   *cache.Cache
	gen     *gen.Generator
	invoker *engine.Invoker

	// flight collapses concurrent builds of the same fingerprint so
	// identical content renders through the engine exactly once per run.
	flight singleflight.Group
}

// New validates cfg and builds a compiler. A missing engine binary is
// a configuration error that aborts before any job starts.
func New(cfg Config) (*Compiler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.NumCPU()
	}

	invoker := engine.New(cfg.BinDir, cfg.EngineTimeout, logger)
	if err := invoker.Check(cfg.Engine); err != nil {
		return nil, err
	}

	store := cache.New()
	if cfg.PersistCache {
		if err := store.Persist(cfg.BuildDir); err != nil {
			return nil, err
		}
	}

	return &Compiler{
		cfg:     cfg,
		log:     logger,
		units:   resolve.NewUnitCache(),
		cache:   store,
		gen:     gen.New(cfg.Engine, cfg.Redefine, logger),
		invoker: invoker,
	}, nil
}

// Run compiles every requested source. Job failures are recorded, not
// propagated: one broken file never blocks the others. The returned
// error covers run-level problems only.
func (c *Compiler) Run(ctx context.Context) (*Result, error) {
	jobs, err := c.collectJobs()
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Jobs)
	for _, job := range jobs {
		g.Go(func() error {
			c.runJob(ctx, job)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return &Result{Jobs: jobs, CacheStats: c.cache.Stats()}, nil
}

// collectJobs turns the configured sources into jobs, discovering
// compilable files when none are named.
func (c *Compiler) collectJobs() ([]*Job, error) {
	sources := c.cfg.Sources
	if len(sources) == 0 {
		discovered, err := Discover(".")
		if err != nil {
			return nil, err
		}
		if len(discovered) == 0 {
			return nil, fmt.Errorf("no %s files found in the current directory", resolve.ExtCompilable)
		}
		sources = discovered
	}

	jobs := make([]*Job, 0, len(sources))
	inline := 0
	for _, src := range sources {
		name := src
		if !looksLikeFile(src) {
			inline++
			name = fmt.Sprintf("inline%d", inline)
		} else {
			base := filepath.Base(src)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		jobs = append(jobs, &Job{Source: src, Name: name, State: Pending})
	}
	return jobs, nil
}

// Discover lists compilable files in dir, non-recursive, in listing
// order. Import-only files are never discovered.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list sources: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), resolve.ExtCompilable) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// looksLikeFile decides whether a source argument names a file or is
// literal source text.
func looksLikeFile(src string) bool {
	ext := strings.ToLower(filepath.Ext(src))
	return ext == resolve.ExtCompilable || ext == resolve.ExtImportOnly
}

// runJob walks one job through its states. All errors land in job.Err.
func (c *Compiler) runJob(ctx context.Context, job *Job) {
	start := time.Now()
	defer func() { job.Elapsed = time.Since(start) }()

	fail := func(err error) {
		stage := job.State
		job.State = Failed
		job.Err = err
		c.log.Error("job failed", "source", job.Name, "stage", stage.String(), "err", err)
	}

	job.State = Parsing
	var unit *resolve.SourceUnit
	var err error
	if looksLikeFile(job.Source) {
		unit, err = c.units.Load(job.Source)
	} else {
		unit, err = c.units.Inline(job.Name, job.Source)
	}
	if err != nil {
		fail(err)
		return
	}
	if unit.Kind == resolve.ImportOnly {
		fail(fmt.Errorf("%s is import-only and cannot be compiled directly", job.Source))
		return
	}

	job.State = Resolving
	resolver := resolve.New(c.units, c.cfg.IncludeDirs, c.log)
	resolved, err := resolver.Resolve(unit)
	if err != nil {
		fail(err)
		return
	}

	fp := cache.NewFingerprint(resolved.Nodes, gen.Version, c.cfg.Engine)

	job.State = CacheCheck
	var entry cache.Entry
	if e, ok := c.cache.Lookup(fp); ok && e.Artifact != "" {
		job.State = CacheHit
		job.Hit = true
		c.log.Info("cache hit", "source", job.Name, "fingerprint", fp.Short())
		entry = e
	} else {
		job.State = CacheMiss
		// Concurrent jobs over the same fingerprint wait for the first
		// build and reuse its entry instead of re-invoking the engine.
		var built bool
		v, err, _ := c.flight.Do(fp.Short(), func() (any, error) {
			built = true
			return c.build(ctx, job, fp, resolved.Nodes)
		})
		if err != nil {
			fail(err)
			return
		}
		entry = v.(cache.Entry)
		if !built {
			job.State = CacheHit
			job.Hit = true
			c.log.Info("cache hit", "source", job.Name, "fingerprint", fp.Short())
		}
	}

	if err := c.export(job, entry.Artifact); err != nil {
		fail(err)
		return
	}
	job.State = Done
	c.log.Info("compiled", "source", job.Name, "artifact", job.Artifact, "elapsed", job.Elapsed)
}

// build generates one fingerprint's intermediate text and renders it
// through the engine. Callers serialize builds per fingerprint.
func (c *Compiler) build(ctx context.Context, job *Job, fp cache.Fingerprint, nodes []syntax.Node) (cache.Entry, error) {
	// Re-check: another job may have finished this fingerprint between
	// the caller's lookup and this build starting.
	e, ok := c.cache.Lookup(fp)
	if ok && e.Artifact != "" {
		return e, nil
	}

	text := e.Text
	if !ok {
		job.State = Generating
		var err error
		text, err = c.gen.Generate(nodes)
		if err != nil {
			return cache.Entry{}, err
		}
	}

	job.State = Invoking
	wav := filepath.Join(c.cfg.BuildDir, job.Name+".wav")
	if err := os.MkdirAll(c.cfg.BuildDir, 0o755); err != nil {
		return cache.Entry{}, fmt.Errorf("unable to create build directory: %w", err)
	}
	if err := c.invoker.Invoke(ctx, c.cfg.Engine, text, wav); err != nil {
		return cache.Entry{}, err
	}

	entry := cache.Entry{Fingerprint: fp, Text: text, Artifact: wav}
	if err := c.cache.Store(entry); err != nil {
		// A cache write failure degrades performance, not correctness.
		c.log.Warn("unable to store cache entry", "source", job.Name, "err", err)
	}
	return entry, nil
}

// export copies the rendered audio into the export directory under the
// job's logical name, writing atomically.
func (c *Compiler) export(job *Job, artifact string) error {
	job.State = Exporting
	if err := os.MkdirAll(c.cfg.ExportDir, 0o755); err != nil {
		return fmt.Errorf("unable to create export directory: %w", err)
	}

	dst := filepath.Join(c.cfg.ExportDir, job.Name+".wav")
	if err := copyAtomic(artifact, dst, c.cfg.ExportDir); err != nil {
		return fmt.Errorf("unable to export artifact: %w", err)
	}
	job.Artifact = dst
	return nil
}

func copyAtomic(src, dst, dir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	_, werr := io.Copy(tmp, in)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		if werr != nil {
			return werr
		}
		return cerr
	}
	return os.Rename(tmp.Name(), dst)
}

// Clean removes the build-cache and export trees and recreates them
// empty. Safe to run on an already-clean project.
func Clean(buildDir, exportDir string) error {
	for _, dir := range []string{buildDir, exportDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("unable to clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("unable to recreate %s: %w", dir, err)
		}
	}
	return nil
}
