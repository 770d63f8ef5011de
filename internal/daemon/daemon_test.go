package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPidFileProberReportsLivePid(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()
	writePidFile(t, stateDir, "/src/project", "4242")

	prober := NewPidFileProber(stateDir)
	prober.pidAlive = func(pid int) bool { return pid == 4242 }

	if !prober.Running("/src/project") {
		t.Fatal("prober must report a live pid as running")
	}
	if prober.Running("/src/other") {
		t.Fatal("prober must not report roots without pid files")
	}
}

func TestPidFileProberIgnoresDeadOrMalformedPids(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()
	writePidFile(t, stateDir, "/src/dead", "4242")
	writePidFile(t, stateDir, "/src/garbage", "not-a-pid")

	prober := NewPidFileProber(stateDir)
	prober.pidAlive = func(int) bool { return false }

	if prober.Running("/src/dead") {
		t.Fatal("dead pid reported as running")
	}
	if prober.Running("/src/garbage") {
		t.Fatal("malformed pid file reported as running")
	}
}

func TestLaunchStartsResolvedBinaryDetached(t *testing.T) {
	t.Parallel()

	starter := &captureStarter{}
	launcher, err := NewLauncherWithStarter("drydockd", "/var/lib/drydock", starter)
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	launcher.lookPath = func(file string) (string, error) {
		return "/usr/local/bin/" + file, nil
	}

	if err := launcher.Launch("/src/project"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if starter.name != "/usr/local/bin/drydockd" {
		t.Fatalf("started binary = %q", starter.name)
	}
	joined := strings.Join(starter.args, " ")
	if !strings.Contains(joined, "--root /src/project") || !strings.Contains(joined, "--daemonize") {
		t.Fatalf("launch args = %q", joined)
	}
}

func TestLaunchFailsWhenBinaryMissing(t *testing.T) {
	t.Parallel()

	launcher, err := NewLauncherWithStarter("drydockd", "/var/lib/drydock", &captureStarter{})
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	launcher.lookPath = func(string) (string, error) {
		return "", errors.New("not found")
	}

	if err := launcher.Launch("/src/project"); err == nil {
		t.Fatal("expected missing binary error")
	}
}

func TestNewLauncherWithStarterRejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := NewLauncherWithStarter("drydockd", "", nil); err == nil {
		t.Fatal("expected nil starter error")
	}
}

type captureStarter struct {
	name string
	args []string
}

func (c *captureStarter) Start(name string, args ...string) error {
	c.name = name
	c.args = args
	return nil
}

func writePidFile(t *testing.T, stateDir, root, contents string) {
	t.Helper()
	path := PidPath(stateDir, root)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create pid dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
}
