// Package patchbay persists the patcher's patch selection.
//
// A root directory holds two things:
//
//	<root>/config.cfg       single line: the current patch file name
//	<root>/patchbays/       one file per known patch (format owned by the patch tool)
//
// Patch names are plain file names relative to <root>/patchbays/. The set of
// known patches is rebuilt from the directory listing on load; patches are
// never deleted by the patcher.
package patchbay

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fivefx/patcher/internal/errors"
)

const (
	// ConfigFileName is the name of the current-patch pointer file.
	ConfigFileName = "config.cfg"

	// PatchbayDir is the directory holding the patch files.
	PatchbayDir = "patchbays"

	// DefaultPatchName is the patch selected when no config exists yet.
	DefaultPatchName = "default.pb"

	// LegacyDefaultPatchName is the default name used by older releases.
	// Sessions saved with it keep loading it, whether config.cfg holds the
	// bare name or its absolute path. New sessions use DefaultPatchName.
	LegacyDefaultPatchName = "default.pbay"
)

// Config is the current patch selection plus the set of known patches.
// The zero value is not valid; use Store.Default or Store.Load.
type Config struct {
	// CurrentPatch is the active patch file name. Always a member of Patchbays.
	CurrentPatch string

	// Patchbays is the set of known patch file names.
	Patchbays map[string]struct{}
}

// Register adds name to the known patches and makes it current.
// Registering a known name only switches to it.
func (c *Config) Register(name string) {
	if c.Patchbays == nil {
		c.Patchbays = make(map[string]struct{})
	}
	c.Patchbays[name] = struct{}{}
	c.CurrentPatch = name
}

// Contains reports whether name is a known patch.
func (c *Config) Contains(name string) bool {
	_, ok := c.Patchbays[name]
	return ok
}

// Names returns the known patch names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Patchbays))
	for name := range c.Patchbays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether the current patch is set and known.
func (c *Config) Valid() bool {
	return c.CurrentPatch != "" && c.Contains(c.CurrentPatch)
}

// Equal reports whether both configs select the same patch and know the same set.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.CurrentPatch != other.CurrentPatch || len(c.Patchbays) != len(other.Patchbays) {
		return false
	}
	for name := range c.Patchbays {
		if !other.Contains(name) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := &Config{
		CurrentPatch: c.CurrentPatch,
		Patchbays:    make(map[string]struct{}, len(c.Patchbays)),
	}
	for name := range c.Patchbays {
		clone.Patchbays[name] = struct{}{}
	}
	return clone
}

// ValidatePatchName checks that name is a single file name usable under
// the patchbays directory.
func ValidatePatchName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errors.InvalidPatchName(name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return errors.InvalidPatchName(name)
	}
	return nil
}

// Store reads and writes a Config under a root directory.
type Store struct {
	// Root is the directory holding config.cfg and patchbays/.
	Root string

	// mkdirAll creates the patchbays directory.
	// Tests replace it to observe creation attempts. In production, this is os.MkdirAll.
	mkdirAll func(path string, perm os.FileMode) error
}

// NewStore creates a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{
		Root:     root,
		mkdirAll: os.MkdirAll,
	}
}

// ConfigPath returns the path of config.cfg.
func (s *Store) ConfigPath() string {
	return filepath.Join(s.Root, ConfigFileName)
}

// Dir returns the patchbays directory.
func (s *Store) Dir() string {
	return filepath.Join(s.Root, PatchbayDir)
}

// PatchPath returns the file path of the named patch.
func (s *Store) PatchPath(name string) string {
	return filepath.Join(s.Dir(), name)
}

// Exists reports whether a config has been persisted under the root.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.ConfigPath())
	return err == nil && !info.IsDir()
}

// Default returns a fresh Config selecting DefaultPatchName.
// The default patch is a member of the returned set.
func (s *Store) Default() *Config {
	cfg := &Config{}
	cfg.Register(DefaultPatchName)
	return cfg
}

// Load reads config.cfg and enumerates the patchbays directory.
//
// Behavior:
//   - config.cfg that cannot be opened returns errors.FileOpenFailure; Load never
//     falls back to a default.
//   - A missing patchbays directory yields an empty listing.
//   - The current patch is always part of the returned set, so a config saved
//     before its patch file was written still loads as valid.
//   - An empty config.cfg selects DefaultPatchName.
//   - An absolute path inside a patchbays directory is reduced to its file
//     name. Any other name that is not a plain file name fails with
//     errors.InvalidPatchName.
func (s *Store) Load() (*Config, error) {
	cfg := &Config{Patchbays: make(map[string]struct{})}

	entries, err := os.ReadDir(s.Dir())
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.FileOpenFailure(s.Dir(), err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		cfg.Patchbays[entry.Name()] = struct{}{}
	}

	path := s.ConfigPath()
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.FileOpenFailure(path, err)
	}
	defer file.Close()

	current := ""
	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		current = strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.FileOpenFailure(path, err)
	}
	if current == "" {
		current = DefaultPatchName
	}
	current = stripPatchbayDir(current)
	if err := ValidatePatchName(current); err != nil {
		return nil, err
	}

	cfg.Register(current)
	return cfg, nil
}

// stripPatchbayDir reduces an absolute path to a file directly inside a
// patchbays directory to its base name. Older releases stored the full path
// of the patch; the session directory may have been renamed since.
func stripPatchbayDir(name string) string {
	if !filepath.IsAbs(name) {
		return name
	}
	clean := filepath.Clean(name)
	if filepath.Base(filepath.Dir(clean)) != PatchbayDir {
		return name
	}
	return filepath.Base(clean)
}

// Save writes the current patch name to config.cfg, creating the patchbays
// directory first when it does not exist yet.
//
// The directory is created at most once per call and never when it already
// exists. Errors are errors.DirectoryCreationFailure or errors.FileOpenFailure.
func (s *Store) Save(cfg *Config) error {
	dir := s.Dir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		mkdirAll := s.mkdirAll
		if mkdirAll == nil {
			mkdirAll = os.MkdirAll
		}
		if err := mkdirAll(dir, 0755); err != nil {
			return errors.DirectoryCreationFailure(dir, err)
		}
	}

	path := s.ConfigPath()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.FileOpenFailure(path, err)
	}
	if _, err := file.WriteString(cfg.CurrentPatch + "\n"); err != nil {
		file.Close()
		return errors.FileOpenFailure(path, err)
	}
	if err := file.Close(); err != nil {
		return errors.FileOpenFailure(path, err)
	}
	return nil
}
