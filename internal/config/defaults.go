package config

import "time"

// ApplicationName is announced to the session manager and used as the
// standalone display name and client id.
const ApplicationName = "5FX-Patcher"

// SettingsDir is the per-user directory below HOME (~/.5FX).
const SettingsDir = ".5FX"

// SettingsFileName is the settings file inside SettingsDir.
const SettingsFileName = "patcher.toml"

// HistoryFileName is the history database inside the instance directory.
const HistoryFileName = "history.db"

// DefaultPatchTool is the patch tool looked up in PATH.
const DefaultPatchTool = "jack-patch.py"

// DefaultPortBase and DefaultPortSpan define the random listener port range.
const (
	DefaultPortBase = 8000
	DefaultPortSpan = 1000
)

// DefaultBindAttempts is the number of listener ports tried before failing.
const DefaultBindAttempts = 5

// DefaultPollInterval is the run loop and handshake wait interval.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultLogLevel is used when no level is configured.
const DefaultLogLevel = "info"

// DefaultHistoryMaxRows bounds the history journal.
const DefaultHistoryMaxRows = 1000
