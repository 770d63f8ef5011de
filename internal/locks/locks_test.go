package locks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, nil)

	release, err := manager.Acquire("/src/project")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	holder, err := manager.Holder("/src/project")
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if holder == nil || holder.PID != manager.pid {
		t.Fatalf("holder = %#v, want current pid", holder)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	holder, err = manager.Holder("/src/project")
	if err != nil {
		t.Fatalf("holder after release: %v", err)
	}
	if holder != nil {
		t.Fatalf("lock still held after release: %#v", holder)
	}
}

func TestAcquireRejectsLiveHolder(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, func(int) bool { return true })
	manager.pid = 1111

	if _, err := manager.Acquire("/src/project"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	manager.pid = 2222
	if _, err := manager.Acquire("/src/project"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second acquire error = %v, want ErrHeld", err)
	}
}

func TestAcquireReplacesDeadHolder(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, func(pid int) bool { return pid != 1111 })
	manager.pid = 1111
	if _, err := manager.Acquire("/src/project"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	manager.pid = 2222
	release, err := manager.Acquire("/src/project")
	if err != nil {
		t.Fatalf("acquire over dead holder: %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestTornLockFileIsTreatedAsStale(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, func(int) bool { return true })
	if err := os.MkdirAll(manager.dir, 0o750); err != nil {
		t.Fatalf("create lock dir: %v", err)
	}
	if err := os.WriteFile(manager.lockPath("/src/project"), []byte("{half a reco"), 0o600); err != nil {
		t.Fatalf("write torn lock: %v", err)
	}

	if _, err := manager.Acquire("/src/project"); err != nil {
		t.Fatalf("acquire over torn lock: %v", err)
	}
}

func newTestManager(t *testing.T, pidAlive func(int) bool) *Manager {
	t.Helper()
	manager, err := NewManager(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	manager.now = func() time.Time { return time.Unix(1700000000, 0) }
	if pidAlive != nil {
		manager.pidAlive = pidAlive
	}
	return manager
}
