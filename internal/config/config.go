// Package config provides TOML settings loading for the patcher and the
// process environment snapshot taken at startup.
//
// The settings file lives at ~/.5FX/patcher.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over
// file values. The per-session state (config.cfg and the patch files) is not
// configuration; see package patchbay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the settings file structure.
// Zero values mean "use the default"; call Resolve to fill them in.
type Config struct {
	// PatchTool is the executable that clears, dumps and restores the graph.
	// Default: jack-patch.py (looked up in PATH)
	PatchTool string `toml:"patch_tool"`

	// ListenHost is the interface the OSC listener binds to.
	// Default: all interfaces
	ListenHost string `toml:"listen_host"`

	// PortBase and PortSpan define the range [base, base+span) from which the
	// OSC listener port is drawn at random.
	// Default: 8000 and 1000
	PortBase int `toml:"port_base"`
	PortSpan int `toml:"port_span"`

	// BindAttempts is the number of ports tried before giving up.
	// Default: 5
	BindAttempts int `toml:"bind_attempts"`

	// PollMs is the run loop interval in milliseconds.
	// Default: 100
	PollMs int `toml:"poll_ms"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// LogFile, when set, receives log output instead of stderr.
	LogFile string `toml:"log_file"`

	// MdnsEnabled advertises the OSC endpoint via mDNS/DNS-SD while a
	// session is open.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`

	// DisableHistory turns off the SQLite journal of patch operations.
	// Default: false (history enabled)
	DisableHistory bool `toml:"disable_history"`

	// HistoryDB is the path of the history database.
	// Default: <instance path>/history.db
	HistoryDB string `toml:"history_db"`

	// HistoryMaxRows bounds the journal size; older rows are pruned.
	// Default: 1000
	HistoryMaxRows int `toml:"history_max_rows"`

	// MaxOpsPerSecond throttles incoming OSC messages. 0 disables throttling.
	MaxOpsPerSecond int `toml:"max_ops_per_second"`
}

// DefaultConfigPath returns the default settings location: ~/.5FX/patcher.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, SettingsDir, SettingsFileName), nil
}

// WriteDefault creates a settings file documenting every option at path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# 5FX Patcher settings

# Executable used to clear, dump and restore JACK connections
patch_tool = %q

# OSC listener port is drawn from [port_base, port_base + port_span)
port_base = %d
port_span = %d
bind_attempts = %d

# debug, info, warn, error
log_level = %q

# Advertise the OSC endpoint on the LAN while a session is open
mdns_enabled = false

# Journal of patch operations (history.db in the session directory)
disable_history = false
history_max_rows = %d
`, DefaultPatchTool, DefaultPortBase, DefaultPortSpan, DefaultBindAttempts, DefaultLogLevel, DefaultHistoryMaxRows)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads a TOML settings file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed or validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values that cannot be defaulted.
// Zero values are valid and mean "use default".
func (c *Config) Validate() error {
	if c.PortBase < 0 || c.PortBase > 65535 {
		return fmt.Errorf("port_base must be between 0 and 65535, got %d", c.PortBase)
	}
	if c.PortSpan < 0 {
		return fmt.Errorf("port_span must not be negative, got %d", c.PortSpan)
	}
	base, span := c.PortBase, c.PortSpan
	if base == 0 {
		base = DefaultPortBase
	}
	if span == 0 {
		span = DefaultPortSpan
	}
	if base+span-1 > 65535 {
		return fmt.Errorf("port range %d+%d exceeds 65535", base, span)
	}
	if c.BindAttempts < 0 {
		return fmt.Errorf("bind_attempts must not be negative, got %d", c.BindAttempts)
	}
	if c.PollMs < 0 {
		return fmt.Errorf("poll_ms must not be negative, got %d", c.PollMs)
	}
	if c.HistoryMaxRows < 0 {
		return fmt.Errorf("history_max_rows must not be negative, got %d", c.HistoryMaxRows)
	}
	if c.MaxOpsPerSecond < 0 {
		return fmt.Errorf("max_ops_per_second must not be negative, got %d", c.MaxOpsPerSecond)
	}
	return nil
}

// Resolve returns a copy of c with defaults applied to unset fields.
func (c Config) Resolve() Config {
	if c.PatchTool == "" {
		c.PatchTool = DefaultPatchTool
	}
	if c.PortBase == 0 {
		c.PortBase = DefaultPortBase
	}
	if c.PortSpan == 0 {
		c.PortSpan = DefaultPortSpan
	}
	if c.BindAttempts == 0 {
		c.BindAttempts = DefaultBindAttempts
	}
	if c.PollMs == 0 {
		c.PollMs = int(DefaultPollInterval / time.Millisecond)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.HistoryMaxRows == 0 {
		c.HistoryMaxRows = DefaultHistoryMaxRows
	}
	return c
}

// PollInterval returns the run loop interval.
func (c Config) PollInterval() time.Duration {
	if c.PollMs <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollMs) * time.Millisecond
}

// HistoryPath returns the history database path for a session rooted at
// instancePath, or "" when history is disabled.
func (c Config) HistoryPath(instancePath string) string {
	if c.DisableHistory {
		return ""
	}
	if c.HistoryDB != "" {
		return c.HistoryDB
	}
	return filepath.Join(instancePath, HistoryFileName)
}
