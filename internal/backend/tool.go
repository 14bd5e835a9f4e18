// Package backend runs the external patch tool that owns the JACK
// connection graph.
//
// The tool is invoked in three modes:
//
//	<tool> --clear            disconnect every port
//	<tool> --save  > file     dump the current graph to stdout
//	<tool> --load  < file     restore a graph read from stdin
//
// The patcher never interprets the dump format. It only guarantees that
// patch files exist before the tool reads them, seeding new files with
// EmptyGraph.
package backend

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/fivefx/patcher/internal/errors"
)

// DefaultTool is the patch tool looked up in PATH when none is configured.
const DefaultTool = "jack-patch.py"

// EmptyGraph is a valid dump of a graph without ports or connections.
const EmptyGraph = "{'ports': [], 'graph': []}\n"

// Backend manipulates the connection graph.
// Every method reports tool failures; callers decide whether they matter.
type Backend interface {
	// Clear disconnects every connection.
	Clear(ctx context.Context) error

	// Save dumps the current graph into the file at path.
	Save(ctx context.Context, path string) error

	// Load restores the graph stored at path, creating the file from the
	// current (cleared) graph first when it does not exist.
	Load(ctx context.Context, path string) error
}

// Tool is the Backend backed by the external patch tool.
type Tool struct {
	path   string
	stderr io.Writer
	logger *log.Logger

	// execCommand is a function that creates exec.Cmd instances.
	// This allows tests to inject mock command execution.
	// In production, this is exec.CommandContext.
	execCommand func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewTool creates a Tool running the executable at path (DefaultTool if empty).
// The tool's stderr is passed through to stderr.
func NewTool(path string, stderr io.Writer, logger *log.Logger) *Tool {
	if path == "" {
		path = DefaultTool
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tool{
		path:        path,
		stderr:      stderr,
		logger:      logger,
		execCommand: exec.CommandContext,
	}
}

// Path returns the executable the tool runs.
func (t *Tool) Path() string {
	return t.path
}

// Clear runs `<tool> --clear`.
func (t *Tool) Clear(ctx context.Context) error {
	cmd := t.execCommand(ctx, t.path, "--clear")
	cmd.Stderr = t.stderr

	t.logger.Debug("clearing connections")
	if err := cmd.Run(); err != nil {
		return errors.ToolFailed("clear", err)
	}
	return nil
}

// Save runs `<tool> --save` with stdout redirected into path.
//
// A missing file is first seeded with EmptyGraph. The dump is written to a
// temporary file next to path and renamed over it only when the tool
// succeeds, so a failed dump keeps the previous content.
func (t *Tool) Save(ctx context.Context, path string) error {
	if err := ensureFile(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.SeedFailed(path, err)
	}
	tmpPath := tmp.Name()

	cmd := t.execCommand(ctx, t.path, "--save")
	cmd.Stdout = tmp
	cmd.Stderr = t.stderr

	t.logger.Debug("saving graph", "path", path)
	runErr := cmd.Run()
	closeErr := tmp.Close()
	if runErr != nil {
		os.Remove(tmpPath)
		return errors.ToolFailed("save", runErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return errors.ToolFailed("save", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.ToolFailed("save", err)
	}
	return nil
}

// Load runs `<tool> --load` with stdin read from path.
//
// A missing file is created from the current graph after clearing it, so
// loading an unknown patch yields an empty graph and an empty patch file.
func (t *Tool) Load(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.logger.Info("creating missing patch", "path", path)
		if err := t.Clear(ctx); err != nil {
			t.logger.Warn("clear before create failed", "err", err)
		}
		if err := t.Save(ctx, path); err != nil {
			return err
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.ToolFailed("load", err)
	}
	defer file.Close()

	cmd := t.execCommand(ctx, t.path, "--load")
	cmd.Stdin = file
	cmd.Stderr = t.stderr

	t.logger.Debug("loading graph", "path", path)
	if err := cmd.Run(); err != nil {
		return errors.ToolFailed("load", err)
	}
	return nil
}

// ensureFile creates path with EmptyGraph content if it does not exist.
func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.SeedFailed(path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.SeedFailed(path, err)
	}
	if err := os.WriteFile(path, []byte(EmptyGraph), 0644); err != nil {
		return errors.SeedFailed(path, err)
	}
	return nil
}
