package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fivefx/patcher/internal/logging"
	"github.com/fivefx/patcher/internal/storage"
)

func seedHistory(t *testing.T, dir string) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "history.db"), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rec := storage.NewHistoryRecorder(store, dir, 0)
	if err := rec.Record("new", "alt", "127.0.0.1:9000", nil); err != nil {
		t.Fatal(err)
	}
	if err := rec.Record("load", "show.pb", "127.0.0.1:9000", stderrors.New("tool exited 1")); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryTable(t *testing.T) {
	dir := t.TempDir()
	seedHistory(t, dir)

	var stdout, stderr bytes.Buffer
	code := runHistory([]string{"--session", dir}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got:\n%s", stdout.String())
	}
	if !strings.Contains(lines[2], "load") || !strings.Contains(lines[2], "failed: tool exited 1") {
		t.Errorf("newest row = %q", lines[2])
	}
	if !strings.Contains(lines[3], "new") || !strings.Contains(lines[3], "alt") {
		t.Errorf("oldest row = %q", lines[3])
	}
}

func TestHistoryJSONWithLimit(t *testing.T) {
	dir := t.TempDir()
	seedHistory(t, dir)

	var stdout, stderr bytes.Buffer
	code := runHistory([]string{"--db", filepath.Join(dir, "history.db"), "--limit", "1", "--json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	var entries []storage.HistoryEntry
	if err := json.Unmarshal(stdout.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout.String())
	}
	if len(entries) != 1 || entries[0].Operation != "load" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHistoryMissingDatabase(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runHistory([]string{"--session", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "No history recorded.") {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestHistoryNoLocation(t *testing.T) {
	settings := writeSettings(t, "")

	var stdout, stderr bytes.Buffer
	code := runHistory([]string{"--config", settings}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--db or --session") {
		t.Errorf("unexpected error %q", stderr.String())
	}
}

func TestHistoryPathFromSettings(t *testing.T) {
	settings := writeSettings(t, `history_db = "/var/lib/patcher/history.db"`)
	got, err := historyPath(&HistoryConfig{Config: settings})
	if err != nil {
		t.Fatal(err)
	}
	if got != "/var/lib/patcher/history.db" {
		t.Errorf("historyPath() = %q", got)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{2 * time.Hour, "2h ago"},
		{72 * time.Hour, "3d ago"},
		{-time.Minute, "in the future"},
	}
	for _, tt := range tests {
		if got := formatAge(now, now.Add(-tt.ago)); got != tt.want {
			t.Errorf("formatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
