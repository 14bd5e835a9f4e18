package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/fivefx/patcher/internal/config"
	"github.com/fivefx/patcher/internal/logging"
	"github.com/fivefx/patcher/internal/storage"
)

// HistoryConfig holds the configuration for "5fx-patcher history".
type HistoryConfig struct {
	Config  string
	DB      string
	Session string
	Limit   int
	JSON    bool
}

// formatAge formats how long ago t was.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatAge(now, t time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

// historyPath picks the database: --db, then --session, then history_db
// from the settings file.
func historyPath(cfg *HistoryConfig) (string, error) {
	if cfg.DB != "" {
		return cfg.DB, nil
	}
	if cfg.Session != "" {
		return filepath.Join(cfg.Session, config.HistoryFileName), nil
	}
	settings, err := config.Load(cfg.Config)
	if err != nil {
		return "", err
	}
	if settings.HistoryDB != "" {
		return settings.HistoryDB, nil
	}
	return "", fmt.Errorf("no history database: pass --db or --session")
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &HistoryConfig{}
	fs.StringVar(&cfg.Config, "config", "", "Path to settings file (default: ~/.5FX/patcher.toml)")
	fs.StringVar(&cfg.DB, "db", "", "Path to history database")
	fs.StringVar(&cfg.Session, "session", "", "Session directory holding history.db")
	fs.IntVar(&cfg.Limit, "limit", 20, "Number of entries to show (0 = all)")
	fs.BoolVar(&cfg.JSON, "json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: 5fx-patcher history [options]\n\nList recorded patch operations, newest first.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	path, err := historyPath(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No history recorded.")
		return 0
	}

	store, err := storage.NewSQLiteStore(path, logging.Discard())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.ListHistory(cfg.Limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list history: %v\n", err)
		return 1
	}

	if cfg.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []*storage.HistoryEntry{}
		}
		enc.Encode(entries)
		return 0
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No history recorded.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tOPERATION\tPATCH\tSOURCE\tOUTCOME")
	fmt.Fprintln(w, "----\t---------\t-----\t------\t-------")

	now := time.Now()
	for _, e := range entries {
		outcome := e.Outcome
		if e.Error != "" {
			outcome += ": " + e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			formatAge(now, e.At),
			e.Operation,
			e.Patch,
			e.Source,
			outcome,
		)
	}
	w.Flush()

	return 0
}
