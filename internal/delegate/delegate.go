// Package delegate hands a capture session over to a helper binary of the
// target's pointer width. In-process instrumentation cannot cross the
// 32/64-bit boundary, so when the architecture probe reports a mismatch the
// orchestrator spawns the helper and consumes its output through the regular
// socket channel.
package delegate

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/proc"
)

// ErrHelperNotFound is returned when no helper binary exists at any
// candidate location.
var ErrHelperNotFound = errors.New("delegate: helper binary not found")

// ErrRecursion is returned when a delegate tries to spawn another delegate.
var ErrRecursion = errors.New("delegate: refusing to delegate from a delegate")

// stopGrace is how long a stopping helper gets before it is killed.
const stopGrace = 1500 * time.Millisecond

// helperNames are the binary names probed in each candidate directory, most
// specific first.
func helperNames(bits model.Bits) []string {
	suffix := ""
	if bits == model.Bits32 {
		suffix = "-x86"
	} else if bits == model.Bits64 {
		suffix = "-x64"
	}
	names := []string{
		"textgrab-agent" + suffix + ".exe",
		"textgrab-agent" + suffix,
	}
	if bits == model.Bits32 {
		names = append(names, "textgrab-agent32.exe", "textgrab-agent32")
	}
	return names
}

// CandidatePaths returns every location a helper of the given width may live
// at, in probe order: explicit extras first, then next to our own
// executable, then its helper/ subdirectory.
func CandidatePaths(bits model.Bits, extra []string) []string {
	paths := append([]string(nil), extra...)
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, name := range helperNames(bits) {
			paths = append(paths, filepath.Join(dir, name))
			paths = append(paths, filepath.Join(dir, "helper", name))
		}
	}
	return paths
}

// Find returns the first existing candidate, or ErrHelperNotFound.
func Find(bits model.Bits, extra []string) (string, error) {
	for _, p := range CandidatePaths(bits, extra) {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (width %s)", ErrHelperNotFound, bits)
}

// Launcher owns at most one running helper process.
type Launcher struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// SpawnOptions describes the session being delegated.
type SpawnOptions struct {
	PID                       uint32
	Port                      uint16
	PreferInstrumentationOnly bool
	// RunningAsDelegate must reflect the current process; a delegate never
	// spawns another delegate.
	RunningAsDelegate bool
}

// Spawn starts the helper at path with the session handed over on the
// command line. The helper runs hidden and reports back through the ingest
// socket.
func (l *Launcher) Spawn(path string, opts SpawnOptions) error {
	if opts.RunningAsDelegate {
		return ErrRecursion
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil {
		return fmt.Errorf("delegate: helper already running (pid %d)", l.cmd.Process.Pid)
	}

	args := []string{
		"--pid", strconv.FormatUint(uint64(opts.PID), 10),
		"--port", strconv.FormatUint(uint64(opts.Port), 10),
	}
	if opts.PreferInstrumentationOnly {
		args = append(args, "--prefer-hook-only")
	}
	cmd := exec.Command(path, args...)
	proc.HideWindow(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn helper %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	l.cmd = cmd
	l.done = done
	return nil
}

// Running reports whether a helper is currently alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Terminate stops the helper, politely first, forcefully after the grace
// period. Idempotent.
func (l *Launcher) Terminate() {
	l.mu.Lock()
	cmd, done := l.cmd, l.done
	l.cmd, l.done = nil, nil
	l.mu.Unlock()
	if cmd == nil {
		return
	}

	proc.RequestExit(cmd)
	select {
	case <-done:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}
