// Package daemon holds the client-side view of drydockd process lifecycle:
// a liveness probe and a fire-and-forget launcher. The server's own startup
// and build logic live in the server binary; readiness is discovered later
// through the connect loop, never here.
package daemon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PidPath derives the server pid file path for a workspace root. drydockd
// writes this file first thing on startup, before its socket accepts, which
// is what lets the client tell "starting up" from "not running".
func PidPath(stateDir, root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(strings.TrimSpace(root))))
	return filepath.Join(stateDir, "pids", hex.EncodeToString(sum[:8])+".pid")
}

// Prober answers whether a server process currently exists for a root.
type Prober interface {
	Running(root string) bool
}

// PidFileProber checks the per-root pid file and signals the recorded pid.
type PidFileProber struct {
	StateDir string

	// pidAlive is injectable for tests; nil means a real signal-0 check.
	pidAlive func(pid int) bool
}

// NewPidFileProber builds a prober over the given state dir.
func NewPidFileProber(stateDir string) *PidFileProber {
	return &PidFileProber{StateDir: stateDir, pidAlive: processAlive}
}

// Running reports whether a live drydockd owns the root.
func (p *PidFileProber) Running(root string) bool {
	if p == nil {
		return false
	}
	pid, err := readPid(PidPath(p.StateDir, root))
	if err != nil || pid <= 0 {
		return false
	}
	alive := p.pidAlive
	if alive == nil {
		alive = processAlive
	}
	return alive(pid)
}

// Starter launches one detached process. Injectable for tests.
type Starter interface {
	Start(name string, args ...string) error
}

type defaultStarter struct{}

func (defaultStarter) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return err
	}
	// The server daemonizes itself; the client must not wait on it.
	return cmd.Process.Release()
}

// Launcher spawns drydockd for a root without waiting for readiness.
type Launcher struct {
	Binary   string
	StateDir string

	starter  Starter
	lookPath func(file string) (string, error)
}

// NewLauncher builds a launcher around the configured server binary.
func NewLauncher(binary, stateDir string) *Launcher {
	return &Launcher{
		Binary:   binary,
		StateDir: stateDir,
		starter:  defaultStarter{},
		lookPath: exec.LookPath,
	}
}

// NewLauncherWithStarter builds a launcher with an injectable process starter.
func NewLauncherWithStarter(binary, stateDir string, starter Starter) (*Launcher, error) {
	if starter == nil {
		return nil, errors.New("starter is required")
	}
	launcher := NewLauncher(binary, stateDir)
	launcher.starter = starter
	return launcher, nil
}

// Launch requests a server start for the root. The request is non-blocking;
// the caller discovers readiness via its subsequent connect attempts.
func (l *Launcher) Launch(root string) error {
	if l == nil {
		return errors.New("launcher is nil")
	}
	binary := strings.TrimSpace(l.Binary)
	if binary == "" {
		return errors.New("server binary must not be empty")
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return errors.New("root must not be empty")
	}

	lookPath := l.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	resolved, err := lookPath(binary)
	if err != nil {
		return fmt.Errorf("locate server binary %q: %w", binary, err)
	}

	args := []string{"--root", root, "--state-dir", l.StateDir, "--daemonize"}
	if err := l.starter.Start(resolved, args...); err != nil {
		return fmt.Errorf("launch %s for %s: %w", binary, root, err)
	}
	return nil
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %q: %w", path, err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
