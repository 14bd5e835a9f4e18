// Package patcher ties the session, the patch selection and the patch tool
// together.
//
// App holds the process state that used to be global: the Session the
// manager assigned, the patchbay Config and the Store it persists to. All
// operations run under one mutex, but in practice they arrive serially
// from the OSC listener goroutine.
package patcher

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fivefx/patcher/internal/backend"
	"github.com/fivefx/patcher/internal/errors"
	"github.com/fivefx/patcher/internal/nsm"
	"github.com/fivefx/patcher/internal/patchbay"
)

// Mode is how the session was established.
type Mode int

const (
	ModeUnset Mode = iota
	ModeStandalone
	ModeManaged
)

func (m Mode) String() string {
	switch m {
	case ModeStandalone:
		return "standalone"
	case ModeManaged:
		return "managed"
	default:
		return "unset"
	}
}

// Operation names used in logs and history.
const (
	OpNew         = "new"
	OpSave        = "save"
	OpLoad        = "load"
	OpClear       = "clear"
	OpSessionSave = "session_save"
)

// Recorder receives the outcome of every patch operation.
type Recorder interface {
	Record(operation, patch, source string, opErr error) error
}

// App is the patcher state for one process.
type App struct {
	backend backend.Backend
	logger  *log.Logger

	mu       sync.Mutex
	mode     Mode
	session  nsm.Session
	store    *patchbay.Store
	config   *patchbay.Config
	recorder Recorder
	ready    bool
}

// NewApp creates an App driving b. A nil logger discards output.
func NewApp(b backend.Backend, logger *log.Logger) *App {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &App{backend: b, logger: logger}
}

// SetRecorder installs the history recorder. Nil disables recording.
func (a *App) SetRecorder(r Recorder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorder = r
}

// Open binds the App to session. It can only happen once.
//
// In managed mode a persisted config.cfg is loaded (errors are returned),
// otherwise the default Config is written immediately so disk and memory
// agree. In standalone mode the default Config is used and nothing is
// written.
func (a *App) Open(mode Mode, session nsm.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != ModeUnset {
		return errors.AlreadyOpen(a.session.InstancePath)
	}

	store := patchbay.NewStore(session.InstancePath)
	var cfg *patchbay.Config

	switch {
	case mode == ModeManaged && store.Exists():
		loaded, err := store.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		a.logger.Info("loaded session config", "path", store.ConfigPath(), "patch", cfg.CurrentPatch, "known", len(cfg.Patchbays))
	case mode == ModeManaged:
		cfg = store.Default()
		if err := store.Save(cfg); err != nil {
			return err
		}
		a.logger.Info("created session config", "path", store.ConfigPath(), "patch", cfg.CurrentPatch)
	default:
		cfg = store.Default()
	}

	a.mode = mode
	a.session = session
	a.store = store
	a.config = cfg
	return nil
}

// Activate clears the graph and loads the current patch, then accepts
// operations. Tool failures are logged; they do not prevent activation.
func (a *App) Activate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode == ModeUnset {
		return errors.NotOpen("activate")
	}

	path := a.store.PatchPath(a.config.CurrentPatch)
	a.toolResult(OpClear, a.backend.Clear(ctx))
	a.toolResult(OpLoad, a.backend.Load(ctx, path))

	a.ready = true
	a.logger.Info("patch active", "patch", a.config.CurrentPatch)
	return nil
}

// MarkReady accepts operations without touching the graph.
func (a *App) MarkReady() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = a.mode != ModeUnset
}

// Ready reports whether operations are accepted.
func (a *App) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Mode returns how the session was opened.
func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Session returns the session the App was opened with.
func (a *App) Session() nsm.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Config returns a copy of the current Config, or nil before Open.
func (a *App) Config() *patchbay.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.config == nil {
		return nil
	}
	return a.config.Clone()
}

// Store returns the Store rooted at the instance path, or nil before Open.
func (a *App) Store() *patchbay.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// CurrentPatchPath returns the file of the current patch.
func (a *App) CurrentPatchPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return ""
	}
	return a.store.PatchPath(a.config.CurrentPatch)
}

// NewPatch saves the current patch, clears the graph and saves the empty
// graph under name, which becomes current. An existing file of that name is
// overwritten.
func (a *App) NewPatch(ctx context.Context, name, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkOp(OpNew, name); err != nil {
		return err
	}

	opErr := a.toolResult(OpSave, a.backend.Save(ctx, a.store.PatchPath(a.config.CurrentPatch)))
	opErr = firstErr(opErr, a.toolResult(OpClear, a.backend.Clear(ctx)))
	opErr = firstErr(opErr, a.toolResult(OpSave, a.backend.Save(ctx, a.store.PatchPath(name))))

	previous := a.config.CurrentPatch
	a.config.Register(name)
	a.logger.Info("new patch", "patch", name, "previous", previous, "from", source)

	a.record(OpNew, name, source, opErr)
	return opErr
}

// SavePatch dumps the graph to the current patch and persists the Config.
func (a *App) SavePatch(ctx context.Context, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.save(ctx, OpSave, source)
}

// SessionSave is the manager's save callback. It does the same work as
// SavePatch.
func (a *App) SessionSave(ctx context.Context, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.save(ctx, OpSessionSave, source)
}

func (a *App) save(ctx context.Context, op, source string) error {
	if err := a.checkOp(op, ""); err != nil {
		return err
	}

	opErr := a.toolResult(OpSave, a.backend.Save(ctx, a.store.PatchPath(a.config.CurrentPatch)))
	if err := a.store.Save(a.config); err != nil {
		a.logger.Error("config not saved", "path", a.store.ConfigPath(), "err", err)
		opErr = firstErr(err, opErr)
	}
	a.logger.Info("saved patch", "patch", a.config.CurrentPatch, "from", source)

	a.record(op, a.config.CurrentPatch, source, opErr)
	return opErr
}

// LoadPatch saves the current patch, clears the graph and loads name,
// creating it from the empty graph when it does not exist. name becomes
// current; loading a known name again does not duplicate it.
func (a *App) LoadPatch(ctx context.Context, name, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkOp(OpLoad, name); err != nil {
		return err
	}

	opErr := a.toolResult(OpSave, a.backend.Save(ctx, a.store.PatchPath(a.config.CurrentPatch)))
	opErr = firstErr(opErr, a.toolResult(OpClear, a.backend.Clear(ctx)))
	opErr = firstErr(opErr, a.toolResult(OpLoad, a.backend.Load(ctx, a.store.PatchPath(name))))

	previous := a.config.CurrentPatch
	a.config.Register(name)
	a.logger.Info("loaded patch", "patch", name, "previous", previous, "from", source)

	a.record(OpLoad, name, source, opErr)
	return opErr
}

// ClearPatch disconnects everything. Nothing is persisted.
func (a *App) ClearPatch(ctx context.Context, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkOp(OpClear, ""); err != nil {
		return err
	}

	opErr := a.toolResult(OpClear, a.backend.Clear(ctx))
	a.logger.Info("cleared graph", "from", source)

	a.record(OpClear, "", source, opErr)
	return opErr
}

// Flush persists the Config of a managed session. Standalone sessions are
// never written implicitly.
func (a *App) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != ModeManaged || a.config == nil {
		return nil
	}
	if err := a.store.Save(a.config); err != nil {
		return err
	}
	a.logger.Debug("config flushed", "path", a.store.ConfigPath(), "patch", a.config.CurrentPatch)
	return nil
}

// checkOp must be called with a.mu held.
func (a *App) checkOp(op, name string) error {
	if !a.ready {
		return errors.NotOpen(op)
	}
	if name != "" || op == OpNew || op == OpLoad {
		if err := patchbay.ValidatePatchName(name); err != nil {
			return err
		}
	}
	return nil
}

// toolResult logs a tool failure and passes it through.
func (a *App) toolResult(mode string, err error) error {
	if err != nil {
		a.logger.Warn("patch tool failed", "mode", mode, "err", err)
	}
	return err
}

func (a *App) record(op, patch, source string, opErr error) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Record(op, patch, source, opErr); err != nil {
		a.logger.Warn("history not recorded", "op", op, "err", err)
	}
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
