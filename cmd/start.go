package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/fivefx/patcher/internal/backend"
	"github.com/fivefx/patcher/internal/config"
	"github.com/fivefx/patcher/internal/lifecycle"
	"github.com/fivefx/patcher/internal/logging"
	"github.com/fivefx/patcher/internal/mdns"
	"github.com/fivefx/patcher/internal/patcher"
	"github.com/fivefx/patcher/internal/storage"
)

// StartConfig holds the command line of "5fx-patcher start".
type StartConfig struct {
	Config    string
	PatchTool string
	LogLevel  string
	LogFile   string
	Mdns      bool
	NoHistory bool
	QuitOnly  bool
}

// Process hooks, replaced by tests.
var (
	startEnviron = os.Environ
	startInput   io.Reader = os.Stdin
	startContext           = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	}
	executablePath = func() string { return os.Args[0] }
	newBackend     = func(path string, stderr io.Writer, logger *log.Logger) backend.Backend {
		return backend.NewTool(path, stderr, logger)
	}
	newAdvertiser = func(cfg mdns.Config) advertiser {
		return mdns.NewAdvertiser(cfg)
	}
)

type advertiser interface {
	Start() error
	Stop()
}

func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	sc := &StartConfig{}
	fs.StringVar(&sc.Config, "config", "", "Path to settings file (default: ~/.5FX/patcher.toml)")
	fs.StringVar(&sc.PatchTool, "patch-tool", "", "Patch tool executable (default: jack-patch.py)")
	fs.StringVar(&sc.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	fs.StringVar(&sc.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.BoolVar(&sc.Mdns, "mdns", false, "Advertise the OSC listener via mDNS while a session is open")
	fs.BoolVar(&sc.NoHistory, "no-history", false, "Do not journal patch operations")
	fs.BoolVar(&sc.QuitOnly, "quit-only", false, "Standalone: stop only on 'quit' instead of any other line")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: 5fx-patcher start [options]

Run the patcher. With NSM_URL set it announces itself to the session manager
and serves /patcher/* over OSC; without it, it prints Ready and waits for
console input.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	fileCfg, err := config.Load(sc.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	settings := mergeSettings(sc, explicitFlags, fileCfg)

	logOut := stderr
	if settings.LogFile != "" {
		f, err := logging.OpenFile(settings.LogFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.New(logOut, settings.LogLevel)

	ctx, cancel := startContext()
	defer cancel()

	policy := lifecycle.LegacyStopPolicy
	if sc.QuitOnly {
		policy = lifecycle.QuitStopPolicy
	}
	ctrl := lifecycle.New(lifecycle.Options{
		Input:    startInput,
		Output:   stdout,
		Interval: settings.PollInterval(),
		Policy:   policy,
		Logger:   logger.WithPrefix("lifecycle"),
	})

	h := patcher.NewHandshake(patcher.HandshakeOptions{
		Env:        config.ParseEnviron(startEnviron()),
		Settings:   settings,
		Backend:    newBackend(settings.PatchTool, stderr, logger.WithPrefix("backend")),
		Executable: executablePath(),
		PID:        os.Getpid(),
		Logger:     logger.WithPrefix("nsm"),
		Prepare: func(app *patcher.App) error {
			openHistory(ctrl, app, settings, logger)
			return nil
		},
	})
	res, err := h.Run(ctx)
	if err != nil {
		ctrl.Teardown()
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted before the session opened")
			return 0
		}
		logger.Error("startup failed", "state", h.State().String(), "err", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if res.Server == nil {
		if err := ctrl.RunStandalone(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	registerManagedShutdown(ctrl, res, settings, logger)

	if err := ctrl.RunManaged(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// mergeSettings applies explicit command line values over the settings file
// and fills in defaults.
func mergeSettings(sc *StartConfig, explicitFlags map[string]bool, fileCfg *config.Config) config.Config {
	settings := *fileCfg

	if sc.PatchTool != "" {
		settings.PatchTool = sc.PatchTool
	}
	if sc.LogLevel != "" {
		settings.LogLevel = sc.LogLevel
	}
	if sc.LogFile != "" {
		settings.LogFile = sc.LogFile
	}
	// Boolean flags: apply the flag only if it was set, so --mdns=false
	// overrides mdns_enabled = true in the file.
	if explicitFlags["mdns"] {
		settings.MdnsEnabled = sc.Mdns
	}
	if explicitFlags["no-history"] {
		settings.DisableHistory = sc.NoHistory
	}

	return settings.Resolve()
}

// openHistory attaches the operation journal of the session, if enabled.
// A journal that cannot be opened is logged and skipped.
func openHistory(ctrl *lifecycle.Controller, app *patcher.App, settings config.Config, logger *log.Logger) {
	session := app.Session()
	path := settings.HistoryPath(session.InstancePath)
	if path == "" {
		return
	}

	store, err := storage.NewSQLiteStore(path, logger.WithPrefix("history"))
	if err != nil {
		logger.Warn("history disabled", "path", path, "err", err)
		return
	}
	app.SetRecorder(storage.NewHistoryRecorder(store, session.InstancePath, settings.HistoryMaxRows))
	ctrl.OnShutdown("history", store.Close)
}

// registerManagedShutdown wires the session's resources into the controller.
// Teardown runs in reverse: stop mDNS, stop the listener, flush config,
// close the history store. The listener is stopped before the flush so an
// operation handled during shutdown is still written.
func registerManagedShutdown(ctrl *lifecycle.Controller, res *patcher.Result, settings config.Config, logger *log.Logger) {
	app := res.App
	session := app.Session()

	ctrl.OnShutdown("config", app.Flush)
	ctrl.OnShutdown("listener", res.Server.Stop)

	if settings.MdnsEnabled {
		adv := newAdvertiser(mdns.Config{
			Port:     res.Server.Port(),
			Name:     session.DisplayName,
			ClientID: session.ClientID,
		})
		if err := adv.Start(); err != nil {
			logger.Warn("mdns advertisement failed", "err", err)
		} else {
			logger.Info("advertising", "service", mdns.ServiceType, "port", res.Server.Port())
			ctrl.OnShutdown("mdns", func() error {
				adv.Stop()
				return nil
			})
		}
	}
}
