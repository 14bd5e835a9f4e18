package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/fivefx/patcher/internal/mdns"
	"github.com/fivefx/patcher/internal/nsm"
	"github.com/fivefx/patcher/internal/osc"
	"github.com/fivefx/patcher/internal/patcher"
)

func stubDiscovery(t *testing.T, found []mdns.DiscoveredPatcher, err error) {
	t.Helper()
	old := discoverPatchers
	t.Cleanup(func() { discoverPatchers = old })
	discoverPatchers = func(ctx context.Context) ([]mdns.DiscoveredPatcher, error) {
		return found, err
	}
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		args    []string
		address string
		nargs   int
		wantErr bool
	}{
		{[]string{"new", "alt"}, patcher.PathNew, 1, false},
		{[]string{"load", "show.pb"}, patcher.PathLoad, 1, false},
		{[]string{"save"}, patcher.PathSave, 0, false},
		{[]string{"clear"}, patcher.PathClear, 0, false},
		{nil, "", 0, true},
		{[]string{"new"}, "", 0, true},
		{[]string{"save", "extra"}, "", 0, true},
		{[]string{"rename", "x"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			address, args, err := sendMessage(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if address != tt.address || len(args) != tt.nargs {
				t.Errorf("got %s %v", address, args)
			}
		})
	}
}

func TestResolveTarget(t *testing.T) {
	addr, err := resolveTarget(context.Background(), "127.0.0.1:8123")
	if err != nil || addr.String() != "127.0.0.1:8123" {
		t.Errorf("host:port = %v, %v", addr, err)
	}

	addr, err = resolveTarget(context.Background(), "osc.udp://127.0.0.1:8124/")
	if err != nil || addr.String() != "127.0.0.1:8124" {
		t.Errorf("url = %v, %v", addr, err)
	}

	if _, err := resolveTarget(context.Background(), "osc.udp://nohost/"); err == nil {
		t.Error("expected error for URL without port")
	}
}

func TestResolveTargetDiscovery(t *testing.T) {
	one := mdns.DiscoveredPatcher{Name: "studio", Host: "10.0.0.5", Port: 8123}
	two := mdns.DiscoveredPatcher{Name: "stage", Host: "10.0.0.6", Port: 8456}

	stubDiscovery(t, []mdns.DiscoveredPatcher{one}, nil)
	addr, err := resolveTarget(context.Background(), "")
	if err != nil || addr.String() != "10.0.0.5:8123" {
		t.Errorf("single = %v, %v", addr, err)
	}

	stubDiscovery(t, nil, nil)
	if _, err := resolveTarget(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "no patcher found") {
		t.Errorf("none = %v", err)
	}

	stubDiscovery(t, []mdns.DiscoveredPatcher{one, two}, nil)
	if _, err := resolveTarget(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "stage") {
		t.Errorf("several = %v", err)
	}

	boom := stderrors.New("no multicast")
	stubDiscovery(t, nil, boom)
	if _, err := resolveTarget(context.Background(), ""); !stderrors.Is(err, boom) {
		t.Errorf("error = %v", err)
	}
}

// fakePatcher answers like a running patcher: /patcher/save is acknowledged,
// everything else is recorded.
func fakePatcher(t *testing.T, ackSave bool) (*osc.Server, <-chan *osc.Message) {
	t.Helper()
	server, err := osc.Open(osc.Options{Host: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { server.Stop() })

	got := make(chan *osc.Message, 4)
	for _, path := range []string{patcher.PathNew, patcher.PathLoad, patcher.PathSave, patcher.PathClear} {
		path := path
		server.Handle(path, osc.AnyTypes, func(msg *osc.Message) error {
			got <- msg
			if path == patcher.PathSave && ackSave {
				return server.Send(msg.Source, nsm.PathReply, patcher.PathSave, nsm.ReplyOK)
			}
			return nil
		})
	}
	server.Start()
	return server, got
}

func TestSendNew(t *testing.T) {
	server, got := fakePatcher(t, true)

	var stdout, stderr bytes.Buffer
	code := runSend([]string{"--to", server.LocalAddr().String(), "new", "alt"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}

	select {
	case msg := <-got:
		if msg.Address != patcher.PathNew {
			t.Errorf("address = %s", msg.Address)
		}
		if name, _ := msg.String(0); name != "alt" {
			t.Errorf("name = %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("patcher received nothing")
	}
}

func TestSendSaveWaitsForReply(t *testing.T) {
	server, _ := fakePatcher(t, true)

	var stdout, stderr bytes.Buffer
	code := runSend([]string{"--to", server.LocalAddr().String(), "save"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "Saved") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestSendSaveTimeout(t *testing.T) {
	server, _ := fakePatcher(t, false)

	var stdout, stderr bytes.Buffer
	code := runSend([]string{"--to", server.LocalAddr().String(), "--timeout", "200ms", "save"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "no reply") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestSendUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runSend([]string{"--to", "127.0.0.1:1", "load"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "requires a patch name") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
