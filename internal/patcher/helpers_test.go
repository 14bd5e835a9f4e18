package patcher

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fivefx/patcher/internal/backend"
	"github.com/fivefx/patcher/internal/osc"
)

// fakeBackend mimics the patch tool on the filesystem: Save writes a dump
// numbered by call, Load creates missing files like the real tool adapter.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []string
	created []string
	dumps   int
	failOn  map[string]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failOn: make(map[string]error)}
}

func (f *fakeBackend) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "clear")
	return f.failOn["clear"]
}

func (f *fakeBackend) Save(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked(path)
}

func (f *fakeBackend) saveLocked(path string) error {
	f.calls = append(f.calls, "save "+filepath.Base(path))
	if err := f.failOn["save"]; err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f.created = append(f.created, filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f.dumps++
	return os.WriteFile(path, []byte(fmt.Sprintf("dump %d\n%s", f.dumps, backend.EmptyGraph)), 0644)
}

func (f *fakeBackend) Load(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f.calls = append(f.calls, "clear")
		if err := f.saveLocked(path); err != nil {
			return err
		}
	}
	f.calls = append(f.calls, "load "+filepath.Base(path))
	return f.failOn["load"]
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeBackend) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.created = nil
}

type recordedOp struct {
	op, patch, source string
	err               error
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
	err error
}

func (r *fakeRecorder) Record(op, patch, source string, opErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op, patch, source, opErr})
	return r.err
}

func (r *fakeRecorder) Ops() []recordedOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedOp(nil), r.ops...)
}

type sentMessage struct {
	to      net.Addr
	address string
	args    []interface{}
}

// fakeRouter captures handlers and outgoing messages without a socket.
type fakeRouter struct {
	handlers map[string]osc.HandlerFunc
	types    map[string]string
	sent     []sentMessage
	sendErr  error
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{handlers: make(map[string]osc.HandlerFunc), types: make(map[string]string)}
}

func (r *fakeRouter) Handle(address, types string, fn osc.HandlerFunc) {
	r.handlers[address] = fn
	r.types[address] = types
}

func (r *fakeRouter) Send(addr net.Addr, address string, args ...interface{}) error {
	r.sent = append(r.sent, sentMessage{addr, address, args})
	return r.sendErr
}

func (r *fakeRouter) call(t *testing.T, address string, source net.Addr, args ...interface{}) error {
	t.Helper()
	fn, ok := r.handlers[address]
	if !ok {
		t.Fatalf("no handler for %s", address)
	}
	return fn(&osc.Message{Address: address, Args: args, Source: source})
}
