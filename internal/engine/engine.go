// Package engine spawns the external text-to-speech binary that turns
// generated intermediate text into audio.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTimeout bounds one engine invocation.
const DefaultTimeout = 2 * time.Minute

// NotFoundError reports a missing engine binary. The binary is checked
// before any process is spawned.
type NotFoundError struct {
	Engine string
	Path   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("engine %q not found at %s", e.Engine, e.Path)
}

// FailureError reports an engine process that exited nonzero.
type FailureError struct {
	Engine string
	Code   int
	Output string
}

func (e *FailureError) Error() string {
	msg := fmt.Sprintf("engine %q exited with code %d", e.Engine, e.Code)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// TimeoutError reports an engine process killed for running too long.
type TimeoutError struct {
	Engine  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine %q timed out after %s", e.Engine, e.Timeout)
}

// Invoker runs engine binaries found under BinDir. Engines mutate
// per-process global state, so invocations are serialized: one process
// runs at a time while the rest of the pipeline stays concurrent.
type Invoker struct {
	binDir  string
	timeout time.Duration
	log     *log.Logger

	mu sync.Mutex
}

// New returns an invoker for binaries under binDir.
func New(binDir string, timeout time.Duration, logger *log.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Invoker{binDir: binDir, timeout: timeout, log: logger}
}

// BinaryPath returns where the named engine's binary is expected.
func (inv *Invoker) BinaryPath(engine string) string {
	name := engine
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(inv.binDir, name)
}

// Check verifies the engine binary exists without spawning it.
func (inv *Invoker) Check(engine string) error {
	path := inv.BinaryPath(engine)
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return &NotFoundError{Engine: engine, Path: path}
	}
	return nil
}

// Invoke feeds text to the engine on stdin and has it write a wave
// file to outPath. Exactly one engine process runs per call.
func (inv *Invoker) Invoke(ctx context.Context, engine, text, outPath string) error {
	if err := inv.Check(engine); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, inv.BinaryPath(engine),
		"-pre", "[:phoneme arpabet on]",
		"-w", outPath,
	)
	cmd.Stdin = strings.NewReader(text)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// Don't wait on inherited pipes after the engine is killed.
	cmd.WaitDelay = time.Second

	inv.mu.Lock()
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	inv.mu.Unlock()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Engine: engine, Timeout: inv.timeout}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &FailureError{Engine: engine, Code: exitErr.ExitCode(), Output: output.String()}
		}
		return fmt.Errorf("unable to run engine %q: %w", engine, err)
	}

	inv.log.Debug("engine finished", "engine", engine, "out", outPath, "elapsed", elapsed)
	return nil
}
