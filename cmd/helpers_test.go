package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"

	"github.com/fivefx/patcher/internal/backend"
	"github.com/fivefx/patcher/internal/mdns"
)

// stubBackend writes empty graph dumps instead of running the patch tool.
type stubBackend struct{}

func (stubBackend) Clear(ctx context.Context) error { return nil }

func (stubBackend) Save(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(backend.EmptyGraph), 0644)
}

func (b stubBackend) Load(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return b.Save(ctx, path)
	}
	return nil
}

type fakeAdvertiser struct {
	mu      sync.Mutex
	cfg     mdns.Config
	started bool
	stopped bool
}

func (a *fakeAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	return nil
}

func (a *fakeAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

// startHooks replaces the process hooks of runStart for one test.
type startHooks struct {
	env   []string
	input io.Reader
	ctx   context.Context
}

// setStartHooks returns the advertiser handed out when mDNS is enabled.
func setStartHooks(t *testing.T, h startHooks) *fakeAdvertiser {
	t.Helper()
	oldEnviron, oldInput, oldContext := startEnviron, startInput, startContext
	oldExe, oldBackend, oldAdvertiser := executablePath, newBackend, newAdvertiser
	t.Cleanup(func() {
		startEnviron, startInput, startContext = oldEnviron, oldInput, oldContext
		executablePath, newBackend, newAdvertiser = oldExe, oldBackend, oldAdvertiser
	})

	startEnviron = func() []string { return h.env }
	startInput = h.input
	if h.ctx != nil {
		startContext = func() (context.Context, context.CancelFunc) {
			return context.WithCancel(h.ctx)
		}
	}
	executablePath = func() string { return "/usr/local/bin/5fx-patcher" }
	newBackend = func(string, io.Writer, *log.Logger) backend.Backend { return stubBackend{} }
	adv := &fakeAdvertiser{}
	newAdvertiser = func(cfg mdns.Config) advertiser {
		adv.mu.Lock()
		adv.cfg = cfg
		adv.mu.Unlock()
		return adv
	}
	return adv
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patcher.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testManager plays the session manager on a loopback socket.
type testManager struct {
	t    *testing.T
	conn net.PacketConn
}

func newTestManager(t *testing.T) *testManager {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testManager{t: t, conn: conn}
}

func (m *testManager) URL() string {
	return fmt.Sprintf("osc.udp://%s/", m.conn.LocalAddr())
}

func (m *testManager) receive() (*osc.Message, net.Addr) {
	m.t.Helper()
	buf := make([]byte, 65507)
	m.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, from, err := m.conn.ReadFrom(buf)
	if err != nil {
		m.t.Fatalf("read: %v", err)
	}
	packet, err := osc.ParsePacket(string(buf[:n]))
	if err != nil {
		m.t.Fatalf("parse: %v", err)
	}
	msg, ok := packet.(*osc.Message)
	if !ok {
		m.t.Fatalf("unexpected packet %T", packet)
	}
	return msg, from
}

func (m *testManager) send(to net.Addr, address string, args ...interface{}) {
	m.t.Helper()
	data, err := osc.NewMessage(address, args...).MarshalBinary()
	if err != nil {
		m.t.Fatalf("marshal: %v", err)
	}
	if _, err := m.conn.WriteTo(data, to); err != nil {
		m.t.Fatalf("write: %v", err)
	}
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never appeared", path)
}
