// Package locks serializes client invocations per workspace root. A second
// drydock run against the same root while one is in flight would interleave
// two handshakes on the server, so the client takes a pid-stamped lock file
// under the state dir before connecting.
package locks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrHeld indicates another live invocation already holds the root.
var ErrHeld = errors.New("another drydock invocation holds this root")

// Lock records one invocation's claim on a root.
type Lock struct {
	Root       string    `json:"root"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Manager acquires and releases invocation locks.
type Manager struct {
	dir      string
	pid      int
	now      func() time.Time
	pidAlive func(pid int) bool
}

// NewManager constructs a lock manager storing locks under <stateDir>/locks.
func NewManager(stateDir string) (*Manager, error) {
	stateDir = strings.TrimSpace(stateDir)
	if stateDir == "" {
		return nil, errors.New("state dir must not be empty")
	}
	return &Manager{
		dir:      filepath.Join(stateDir, "locks"),
		pid:      os.Getpid(),
		now:      time.Now,
		pidAlive: processAlive,
	}, nil
}

// Acquire claims the root, replacing any lock whose holder has exited.
// It returns a release closure on success.
func (m *Manager) Acquire(root string) (func() error, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("root must not be empty")
	}

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := m.lockPath(root)

	if existing, err := readLock(path); err != nil {
		return nil, err
	} else if existing != nil && m.pidAlive(existing.PID) && existing.PID != m.pid {
		return nil, fmt.Errorf("%w: pid=%d since=%s", ErrHeld, existing.PID, existing.AcquiredAt.Format(time.RFC3339))
	}

	payload, err := json.Marshal(Lock{
		Root:       root,
		PID:        m.pid,
		AcquiredAt: m.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		return nil
	}, nil
}

// Holder reports the live lock on a root, if any.
func (m *Manager) Holder(root string) (*Lock, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	existing, err := readLock(m.lockPath(strings.TrimSpace(root)))
	if err != nil {
		return nil, err
	}
	if existing == nil || !m.pidAlive(existing.PID) {
		return nil, nil
	}
	return existing, nil
}

func (m *Manager) lockPath(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:8])+".lock")
}

func readLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock file %q: %w", path, err)
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		// A torn write from a crashed invocation is treated as stale.
		return nil, nil
	}
	return &lock, nil
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
