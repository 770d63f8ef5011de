package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultRetryBudget bounds connection and stale-version retries. The
	// constant exceeds observed p95 server startup latency at one retry per
	// backoff interval.
	DefaultRetryBudget = 800

	defaultBackoffInterval   = time.Second
	defaultHeartbeatInterval = time.Second
	defaultStaleRetryDelay   = 2 * time.Second
	defaultServerBinary      = "drydockd"
)

// Config stores runtime settings loaded from TOML files. Immutable for the
// lifetime of one invocation.
type Config struct {
	RetryBudget       int
	BackoffInterval   time.Duration
	HeartbeatInterval time.Duration
	StaleRetryDelay   time.Duration
	ServerBinary      string
	StateDir          string
}

type fileConfig struct {
	RetryBudget       *int    `toml:"retry_budget"`
	BackoffInterval   *string `toml:"backoff_interval"`
	HeartbeatInterval *string `toml:"heartbeat_interval"`
	StaleRetryDelay   *string `toml:"stale_retry_delay"`
	ServerBinary      *string `toml:"server_binary"`
	StateDir          *string `toml:"state_dir"`
}

// Load reads config from ~/.drydock/config.toml and overlays a project-local
// .drydock/config.toml.
func Load() (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".drydock", "config.toml"),
		filepath.Join(workingDir, ".drydock", "config.toml"),
	}
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func defaults() (Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Config{
		RetryBudget:       DefaultRetryBudget,
		BackoffInterval:   defaultBackoffInterval,
		HeartbeatInterval: defaultHeartbeatInterval,
		StaleRetryDelay:   defaultStaleRetryDelay,
		ServerBinary:      defaultServerBinary,
		StateDir:          filepath.Join(homeDir, ".drydock"),
	}, nil
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	return apply(cfg, decoded, path)
}

func apply(cfg *Config, decoded fileConfig, path string) error {
	if decoded.RetryBudget != nil {
		if *decoded.RetryBudget < 0 {
			return fmt.Errorf("parse retry_budget in %q: must be >= 0", path)
		}
		cfg.RetryBudget = *decoded.RetryBudget
	}
	if decoded.ServerBinary != nil {
		if *decoded.ServerBinary == "" {
			return fmt.Errorf("parse server_binary in %q: must not be empty", path)
		}
		cfg.ServerBinary = *decoded.ServerBinary
	}
	if decoded.StateDir != nil {
		if *decoded.StateDir == "" {
			return fmt.Errorf("parse state_dir in %q: must not be empty", path)
		}
		cfg.StateDir = *decoded.StateDir
	}

	durations := []struct {
		raw *string
		key string
		dst *time.Duration
	}{
		{decoded.BackoffInterval, "backoff_interval", &cfg.BackoffInterval},
		{decoded.HeartbeatInterval, "heartbeat_interval", &cfg.HeartbeatInterval},
		{decoded.StaleRetryDelay, "stale_retry_delay", &cfg.StaleRetryDelay},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("parse %s in %q: %w", d.key, path, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("parse %s in %q: must be positive", d.key, path)
		}
		*d.dst = parsed
	}
	return nil
}
