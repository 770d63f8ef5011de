package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWithoutConfigFiles(t *testing.T) {
	cfg, err := defaults()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.RetryBudget != DefaultRetryBudget {
		t.Fatalf("retry budget = %d, want %d", cfg.RetryBudget, DefaultRetryBudget)
	}
	if cfg.BackoffInterval != time.Second {
		t.Fatalf("backoff interval = %v, want 1s", cfg.BackoffInterval)
	}
	if cfg.ServerBinary != "drydockd" {
		t.Fatalf("server binary = %q, want drydockd", cfg.ServerBinary)
	}
	if cfg.StateDir == "" {
		t.Fatal("state dir must default under the home directory")
	}
}

func TestOverlayFromFileAppliesKnownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
retry_budget = 3
backoff_interval = "10ms"
heartbeat_interval = "25ms"
stale_retry_delay = "50ms"
server_binary = "drydockd-nightly"
state_dir = "/tmp/drydock-test"
`)

	cfg := Config{RetryBudget: DefaultRetryBudget, BackoffInterval: time.Second}
	if err := overlayFromFile(&cfg, path); err != nil {
		t.Fatalf("overlay: %v", err)
	}

	if cfg.RetryBudget != 3 {
		t.Fatalf("retry budget = %d, want 3", cfg.RetryBudget)
	}
	if cfg.BackoffInterval != 10*time.Millisecond {
		t.Fatalf("backoff interval = %v, want 10ms", cfg.BackoffInterval)
	}
	if cfg.HeartbeatInterval != 25*time.Millisecond {
		t.Fatalf("heartbeat interval = %v, want 25ms", cfg.HeartbeatInterval)
	}
	if cfg.StaleRetryDelay != 50*time.Millisecond {
		t.Fatalf("stale retry delay = %v, want 50ms", cfg.StaleRetryDelay)
	}
	if cfg.ServerBinary != "drydockd-nightly" {
		t.Fatalf("server binary = %q", cfg.ServerBinary)
	}
	if cfg.StateDir != "/tmp/drydock-test" {
		t.Fatalf("state dir = %q", cfg.StateDir)
	}
}

func TestOverlayFromFileMissingPathIsNoOp(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBudget: 7}
	if err := overlayFromFile(&cfg, filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	if cfg.RetryBudget != 7 {
		t.Fatalf("retry budget mutated to %d", cfg.RetryBudget)
	}
}

func TestOverlayFromFileRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"negative budget":   "retry_budget = -1",
		"bad duration":      `backoff_interval = "soon"`,
		"zero duration":     `heartbeat_interval = "0s"`,
		"empty binary":      `server_binary = ""`,
		"empty state dir":   `state_dir = ""`,
		"negative duration": `stale_retry_delay = "-1s"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, body)
			cfg := Config{}
			if err := overlayFromFile(&cfg, path); err == nil {
				t.Fatalf("config %q accepted, want error", body)
			}
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
