package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Paths   PathsConfig    `yaml:"paths"`
	Monitor MonitorConfig  `yaml:"monitor"`
	Limits  LimitsConfig   `yaml:"limits"`
	Models  map[string]int `yaml:"models"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type PathsConfig struct {
	// SessionsRoot is the directory holding per-workspace session
	// directories. Empty means ~/.claude/projects.
	SessionsRoot string `yaml:"sessions_root"`
	// ScratchRoot is a secondary location scanned when a workspace's
	// session directory cannot be found under SessionsRoot. Empty means
	// ~/.config/claude/projects.
	ScratchRoot string `yaml:"scratch_root"`
	// StateFile holds the persisted custom-session-dir override.
	// Empty means ~/.config/agentpulse/state.toml.
	StateFile string `yaml:"state_file"`
}

type MonitorConfig struct {
	DiscoveryInterval      time.Duration `yaml:"discovery_interval"`
	FastDiscoveryInterval  time.Duration `yaml:"fast_discovery_interval"`
	FastDiscoveryDuration  time.Duration `yaml:"fast_discovery_duration"`
	FileChangeDebounce     time.Duration `yaml:"file_change_debounce"`
	NewSessionDebounce     time.Duration `yaml:"new_session_debounce"`
	SwitchCooldown         time.Duration `yaml:"switch_cooldown"`
	ActiveSessionThreshold time.Duration `yaml:"active_session_threshold"`
	StaleRequestTimeout    time.Duration `yaml:"stale_request_timeout"`
	RecentUsageWindow      time.Duration `yaml:"recent_usage_window"`
}

type LimitsConfig struct {
	MaxTimeline       int `yaml:"max_timeline"`
	MaxDedup          int `yaml:"max_dedup"`
	MaxLatencyRecords int `yaml:"max_latency_records"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8199,
			Host: "127.0.0.1",
		},
		Monitor: MonitorConfig{
			DiscoveryInterval:      30 * time.Second,
			FastDiscoveryInterval:  5 * time.Second,
			FastDiscoveryDuration:  2 * time.Minute,
			FileChangeDebounce:     100 * time.Millisecond,
			NewSessionDebounce:     500 * time.Millisecond,
			SwitchCooldown:         5 * time.Second,
			ActiveSessionThreshold: 5 * time.Minute,
			StaleRequestTimeout:    10 * time.Minute,
			RecentUsageWindow:      5 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxTimeline:       100,
			MaxDedup:          10000,
			MaxLatencyRecords: 100,
		},
		Models: map[string]int{
			"default": 200000,
		},
	}
}

// Default returns a config with all knobs at their documented defaults.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML config file; fields absent from the file keep their
// defaults. A missing file is not an error — the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// MaxContextTokens returns the context window size for the given model,
// falling back to the "default" entry, then to 200k.
func (c *Config) MaxContextTokens(model string) int {
	if n, ok := c.Models[model]; ok {
		return n
	}
	if n, ok := c.Models["default"]; ok {
		return n
	}
	return 200000
}

// SessionsRoot resolves the configured sessions root, defaulting to
// ~/.claude/projects.
func (c *Config) SessionsRoot() string {
	if c.Paths.SessionsRoot != "" {
		return c.Paths.SessionsRoot
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

// ScratchRoot resolves the secondary scan location, defaulting to
// ~/.config/claude/projects.
func (c *Config) ScratchRoot() string {
	if c.Paths.ScratchRoot != "" {
		return c.Paths.ScratchRoot
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "claude", "projects")
}

// StateFile resolves the persisted-state path, defaulting to
// ~/.config/agentpulse/state.toml.
func (c *Config) StateFile() string {
	if c.Paths.StateFile != "" {
		return c.Paths.StateFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentpulse", "state.toml")
}
