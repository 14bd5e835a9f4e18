// Package osc provides the UDP listener that carries the session protocol and
// the patch operations.
//
// The wire codec comes from go-osc; this package owns the socket, the
// address table and the dispatch loop. All handlers run serially on a single
// goroutine, so handler code never races with other handlers.
package osc

import (
	stderrors "errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
	"golang.org/x/time/rate"

	"github.com/fivefx/patcher/internal/errors"
)

// maxPacketSize is the largest UDP payload we accept.
const maxPacketSize = 65507

// AnyTypes registers a handler that accepts any argument list.
const AnyTypes = "*"

// HandlerFunc handles one decoded message. Returned errors are logged;
// they never stop the listener.
type HandlerFunc func(msg *Message) error

// Options configures Open.
type Options struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string

	// PortBase and PortSpan define [PortBase, PortBase+PortSpan) from which
	// a port is drawn for each attempt. PortSpan <= 0 always uses PortBase
	// (0 lets the kernel pick).
	PortBase int
	PortSpan int

	// Attempts is the number of bind attempts. Values < 1 mean 1.
	Attempts int

	// MaxPerSecond throttles incoming messages. 0 disables throttling.
	MaxPerSecond int

	// Logger receives listener diagnostics. Nil discards them.
	Logger *log.Logger

	// ListenPacket replaces net.ListenPacket (tests).
	ListenPacket func(network, address string) (net.PacketConn, error)
}

type route struct {
	types   string
	handler HandlerFunc
}

// Server is a bound OSC listener with an address table.
type Server struct {
	conn    net.PacketConn
	logger  *log.Logger
	limiter *rate.Limiter

	mu       sync.RWMutex
	routes   map[string]route
	started  bool
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Open binds a UDP socket on a random port in the configured range, retrying
// with a fresh port up to opts.Attempts times. Exhaustion is reported as
// rpc.server_open_failed.
func Open(opts Options) (*Server, error) {
	listen := opts.ListenPacket
	if listen == nil {
		listen = net.ListenPacket
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var conn net.PacketConn
	tries := 0
	op := func() error {
		tries++
		port := pickPort(opts.PortBase, opts.PortSpan)
		addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
		c, err := listen("udp", addr)
		if err != nil {
			logger.Debug("bind failed", "addr", addr, "attempt", tries, "err", err)
			return err
		}
		conn = c
		return nil
	}

	// WithMaxRetries treats zero retries as unlimited.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		policy = backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1))
	}
	err := backoff.Retry(op, policy)
	if err != nil {
		return nil, errors.RPCServerOpenFailure(attempts, err)
	}

	s := &Server{
		conn:   conn,
		logger: logger,
		routes: make(map[string]route),
		done:   make(chan struct{}),
	}
	if opts.MaxPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxPerSecond), opts.MaxPerSecond)
	}
	logger.Debug("listener bound", "addr", conn.LocalAddr().String(), "attempts", tries)
	return s, nil
}

func pickPort(base, span int) int {
	if span <= 0 {
		return base
	}
	return base + rand.IntN(span)
}

// LocalAddr returns the bound address.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Port returns the bound UDP port.
func (s *Server) Port() int {
	if addr, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// URL returns the listener as an osc.udp:// URL using host for the host part.
func (s *Server) URL(host string) string {
	return fmt.Sprintf("osc.udp://%s/", net.JoinHostPort(host, strconv.Itoa(s.Port())))
}

// Handle registers fn for address. types is the exact type tag string the
// arguments must carry (e.g. "sss"), "" for no arguments, or AnyTypes.
// A later registration for the same address replaces the earlier one.
func (s *Server) Handle(address, types string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[address] = route{types: types, handler: fn}
}

// Start launches the receive loop. Calling Start twice is a no-op.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.serve()
}

// Stop closes the socket and waits for the receive loop to exit.
// It is safe to call more than once. It must not be called from a handler.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		started := s.started
		s.mu.Unlock()

		err = s.conn.Close()
		if started {
			<-s.done
		}
		s.logger.Debug("listener stopped")
	})
	return err
}

// Send encodes a message and writes it to addr from the listener socket,
// so replies to it come back to this listener. Go ints are sent as int32.
func (s *Server) Send(addr net.Addr, address string, args ...interface{}) error {
	msg := osc.NewMessage(address, normalizeArgs(args)...)
	data, err := msg.MarshalBinary()
	if err != nil {
		return errors.SendFailed(address, err)
	}
	if _, err := s.conn.WriteTo(data, addr); err != nil {
		return errors.SendFailed(address, err)
	}
	return nil
}

func normalizeArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case int:
			out[i] = int32(v)
		case uint32:
			out[i] = int32(v)
		default:
			out[i] = arg
		}
	}
	return out
}

func (s *Server) serve() {
	defer close(s.done)

	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) || s.isStopped() {
				return
			}
			s.logger.Warn("read failed", "err", err)
			continue
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			s.logger.Warn("dropping malformed packet", "from", src.String(), "err", err)
			continue
		}
		s.dispatchPacket(packet, src)
	}
}

func (s *Server) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// dispatchPacket flattens bundles; timetags are ignored and every message
// is handled on arrival.
func (s *Server) dispatchPacket(packet osc.Packet, src net.Addr) {
	switch p := packet.(type) {
	case *osc.Message:
		s.logResult(s.Dispatch(&Message{Address: p.Address, Args: p.Arguments, Source: src}))
	case *osc.Bundle:
		for _, m := range p.Messages {
			s.logResult(s.Dispatch(&Message{Address: m.Address, Args: m.Arguments, Source: src}))
		}
		for _, b := range p.Bundles {
			s.dispatchPacket(b, src)
		}
	}
}

func (s *Server) logResult(err error) {
	if err == nil {
		return
	}
	s.logger.Warn("message failed", "code", errors.GetCode(err), "err", err)
}

// Dispatch routes one message through the throttle, the address table and
// the type check, then runs its handler on the calling goroutine.
func (s *Server) Dispatch(msg *Message) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return errors.RateLimited(msg.Address)
	}

	s.mu.RLock()
	r, ok := s.routes[msg.Address]
	s.mu.RUnlock()
	if !ok {
		return errors.HandlerMissing(msg.Address)
	}

	if r.types != AnyTypes {
		if got := msg.TypeTags(); got != r.types {
			return errors.InvalidMessage(fmt.Sprintf("%s expects ,%s, got ,%s", msg.Address, r.types, got))
		}
	}

	s.logger.Debug("dispatch", "addr", msg.Address, "args", len(msg.Args))
	return r.handler(msg)
}
