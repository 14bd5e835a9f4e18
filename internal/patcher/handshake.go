package patcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fivefx/patcher/internal/backend"
	"github.com/fivefx/patcher/internal/config"
	"github.com/fivefx/patcher/internal/errors"
	"github.com/fivefx/patcher/internal/nsm"
	"github.com/fivefx/patcher/internal/osc"
)

// HandshakeOptions configures a Handshake.
type HandshakeOptions struct {
	// Env is the environment snapshot (HOME, NSM_URL).
	Env config.Environ

	// Settings are the resolved settings.
	Settings config.Config

	// Backend drives the patch tool.
	Backend backend.Backend

	// Executable and PID are sent with the announce.
	Executable string
	PID        int

	// Logger receives handshake progress. Nil discards it.
	Logger *log.Logger

	// Listen opens the OSC listener. Defaults to osc.Open.
	Listen func(osc.Options) (*osc.Server, error)

	// Prepare runs once the managed session is opened, before the graph is
	// activated and the open is acknowledged. An error aborts the handshake.
	Prepare func(app *App) error
}

// Result is the outcome of a successful handshake.
type Result struct {
	App *App

	// Server is the running listener; nil in standalone mode.
	Server *osc.Server

	// Manager is the session manager's address; nil in standalone mode.
	Manager net.Addr
}

// Handshake establishes the session: standalone when no manager is
// advertised in the environment, otherwise announce and wait for open.
//
//	NoManager -> Standalone
//	Discovering -> Announcing -> AwaitingOpen -> Opened -> Ready
type Handshake struct {
	opts   HandshakeOptions
	logger *log.Logger
	listen func(osc.Options) (*osc.Server, error)

	open        *nsm.OpenSignal
	announceErr chan error

	mu       sync.Mutex
	state    nsm.State
	openFrom net.Addr
}

// NewHandshake creates a Handshake in the init state.
func NewHandshake(opts HandshakeOptions) *Handshake {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	listen := opts.Listen
	if listen == nil {
		listen = osc.Open
	}
	return &Handshake{
		opts:        opts,
		logger:      logger,
		listen:      listen,
		open:        nsm.NewOpenSignal(),
		announceErr: make(chan error, 1),
		state:       nsm.StateInit,
	}
}

// State returns the current handshake state.
func (h *Handshake) State() nsm.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handshake) transition(s nsm.State) {
	h.mu.Lock()
	prev := h.state
	h.state = s
	h.mu.Unlock()
	h.logger.Debug("handshake", "from", prev.String(), "to", s.String())
}

// Run performs the handshake. HOME is checked before anything else. Any
// failure after the listener is bound stops it again, so no half-open
// session remains.
func (h *Handshake) Run(ctx context.Context) (*Result, error) {
	home, ok := h.opts.Env.Home()
	if !ok {
		h.transition(nsm.StateFailed)
		return nil, errors.HomeNotFound()
	}

	rawURL, ok := h.opts.Env.SessionManagerURL()
	if !ok {
		return h.runStandalone(home)
	}
	return h.runManaged(ctx, rawURL)
}

func (h *Handshake) runStandalone(home string) (*Result, error) {
	h.transition(nsm.StateNoManager)

	session := nsm.Session{
		InstancePath: config.StandaloneInstancePath(home),
		DisplayName:  config.ApplicationName,
		ClientID:     config.ApplicationName,
	}
	app := NewApp(h.opts.Backend, h.logger)
	if err := app.Open(ModeStandalone, session); err != nil {
		h.transition(nsm.StateFailed)
		return nil, err
	}
	app.MarkReady()

	h.transition(nsm.StateStandalone)
	h.logger.Info("running without session manager", "instance", session.InstancePath)
	return &Result{App: app}, nil
}

func (h *Handshake) runManaged(ctx context.Context, rawURL string) (res *Result, err error) {
	h.transition(nsm.StateDiscovering)

	managerAddr, err := nsm.ParseURL(rawURL)
	if err != nil {
		h.transition(nsm.StateFailed)
		return nil, err
	}

	s := h.opts.Settings
	server, err := h.listen(osc.Options{
		Host:         s.ListenHost,
		PortBase:     s.PortBase,
		PortSpan:     s.PortSpan,
		Attempts:     s.BindAttempts,
		MaxPerSecond: s.MaxOpsPerSecond,
		Logger:       h.logger.WithPrefix("osc"),
	})
	if err != nil {
		h.transition(nsm.StateFailed)
		return nil, err
	}
	defer func() {
		if err != nil {
			h.transition(nsm.StateFailed)
			server.Stop()
		}
	}()

	app := NewApp(h.opts.Backend, h.logger)
	app.Register(ctx, server)
	h.registerSession(server)
	server.Start()
	h.logger.Info("listening", "addr", server.LocalAddr().String(), "manager", managerAddr.String())

	h.transition(nsm.StateAnnouncing)
	announce := nsm.NewAnnouncement(config.ApplicationName, h.opts.Executable, h.opts.PID)
	if err := server.Send(managerAddr, nsm.PathAnnounce, announce.Args()...); err != nil {
		return nil, err
	}

	h.transition(nsm.StateAwaitingOpen)
	var session nsm.Session
	select {
	case <-h.open.Done():
		session, _ = h.open.Session()
	case err := <-h.announceErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.transition(nsm.StateOpened)
	h.logger.Info("session opened", "instance", session.InstancePath, "name", session.DisplayName, "client_id", session.ClientID)
	if err := app.Open(ModeManaged, session); err != nil {
		return nil, err
	}
	if h.opts.Prepare != nil {
		if err := h.opts.Prepare(app); err != nil {
			return nil, err
		}
	}
	if err := app.Activate(ctx); err != nil {
		return nil, err
	}

	replyTo := h.openSource(managerAddr)
	if err := server.Send(replyTo, nsm.PathReply, nsm.PathOpen, nsm.ReplyOK); err != nil {
		return nil, err
	}

	h.transition(nsm.StateReady)
	return &Result{App: app, Server: server, Manager: managerAddr}, nil
}

func (h *Handshake) openSource(fallback net.Addr) net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openFrom != nil {
		return h.openFrom
	}
	return fallback
}

// registerSession installs the manager-facing handlers.
func (h *Handshake) registerSession(server *osc.Server) {
	server.Handle(nsm.PathOpen, "sss", func(msg *osc.Message) error {
		path, _ := msg.String(0)
		display, _ := msg.String(1)
		clientID, _ := msg.String(2)

		h.mu.Lock()
		if !h.open.Delivered() {
			h.openFrom = msg.Source
		}
		h.mu.Unlock()

		if !h.open.Deliver(nsm.Session{InstancePath: path, DisplayName: display, ClientID: clientID}) {
			current, _ := h.open.Session()
			if err := server.Send(msg.Source, nsm.PathError, nsm.PathOpen, nsm.ErrGeneral, "session already open"); err != nil {
				h.logger.Warn("open rejection not sent", "err", err)
			}
			return errors.AlreadyOpen(current.InstancePath)
		}
		return nil
	})

	server.Handle(nsm.PathError, osc.AnyTypes, func(msg *osc.Message) error {
		path, _ := msg.String(0)
		code, _ := msg.Int32(1)
		text, _ := msg.String(2)
		h.logger.Error("session manager error", "path", path, "code", code, "message", text)

		if path == nsm.PathAnnounce {
			select {
			case h.announceErr <- errors.AnnounceFailed(code, text):
			default:
			}
		}
		return nil
	})

	server.Handle(nsm.PathReply, osc.AnyTypes, func(msg *osc.Message) error {
		path, _ := msg.String(0)
		if path == nsm.PathAnnounce {
			text, _ := msg.String(1)
			manager, _ := msg.String(2)
			h.logger.Info("announce accepted", "message", text, "manager", manager)
			return nil
		}
		h.logger.Debug("session manager reply", "args", fmt.Sprint(msg.Args...))
		return nil
	})

	server.Handle(nsm.PathSessionLoaded, "", func(msg *osc.Message) error {
		h.logger.Info("session loaded")
		return nil
	})
}
