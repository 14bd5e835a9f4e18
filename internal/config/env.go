package config

import (
	"path/filepath"
	"strings"
)

// Environment variables read at startup.
const (
	// EnvHome is the user's home directory. Required.
	EnvHome = "HOME"

	// EnvNSMURL is set by the session manager for the clients it launches.
	// Its presence selects session-manager mode.
	EnvNSMURL = "NSM_URL"
)

// Environ is a snapshot of the process environment taken once at startup.
type Environ map[string]string

// ParseEnviron builds an Environ from KEY=VALUE pairs as returned by os.Environ.
// Entries without '=' are ignored; later duplicates win.
func ParseEnviron(pairs []string) Environ {
	env := make(Environ, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// Lookup returns the value of name. Empty values count as unset.
func (e Environ) Lookup(name string) (string, bool) {
	value, ok := e[name]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Home returns HOME.
func (e Environ) Home() (string, bool) {
	return e.Lookup(EnvHome)
}

// SessionManagerURL returns NSM_URL.
func (e Environ) SessionManagerURL() (string, bool) {
	return e.Lookup(EnvNSMURL)
}

// StandaloneInstancePath returns the instance directory used without a
// session manager: $HOME/.5FX/5FX-Patcher/ (with trailing separator).
func StandaloneInstancePath(home string) string {
	return filepath.Join(home, SettingsDir, ApplicationName) + string(filepath.Separator)
}
