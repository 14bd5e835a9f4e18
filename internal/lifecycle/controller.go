// Package lifecycle runs the patcher until it is told to stop and then
// releases what was started, in reverse order.
//
// Stopping is cooperative. Signals and console input only clear the run
// flag (or cancel the context); teardown always happens on the goroutine
// that called Run, never inside a signal handler or a reader goroutine.
package lifecycle

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// ReadyMessage is printed to the console when a standalone session is ready.
const ReadyMessage = "Ready"

// QuitCommand is the console command recognised by the stop policies.
const QuitCommand = "quit"

// StopPolicy reports whether a console command ends the run loop.
type StopPolicy func(command string) bool

// LegacyStopPolicy stops on any command other than "quit" and keeps running
// on "quit". Existing setups depend on this behaviour.
func LegacyStopPolicy(command string) bool {
	return command != QuitCommand
}

// QuitStopPolicy stops only on "quit".
func QuitStopPolicy(command string) bool {
	return command == QuitCommand
}

// Options configures a Controller.
type Options struct {
	// Input is read for console commands in standalone mode.
	Input io.Reader

	// Output receives the ready line in standalone mode.
	Output io.Writer

	// Interval is the managed run loop period. Default 100ms.
	Interval time.Duration

	// Policy decides which console commands stop. Default LegacyStopPolicy.
	Policy StopPolicy

	// Logger receives lifecycle events. Nil discards them.
	Logger *log.Logger
}

type closer struct {
	name string
	fn   func() error
}

// Controller owns the run flag and the teardown list.
type Controller struct {
	input    io.Reader
	output   io.Writer
	interval time.Duration
	policy   StopPolicy
	logger   *log.Logger

	running atomic.Bool

	mu      sync.Mutex
	closers []closer
	closed  bool
}

// New creates a Controller. The run flag starts set.
func New(opts Options) *Controller {
	c := &Controller{
		input:    opts.Input,
		output:   opts.Output,
		interval: opts.Interval,
		policy:   opts.Policy,
		logger:   opts.Logger,
	}
	if c.input == nil {
		c.input = strings.NewReader("")
	}
	if c.output == nil {
		c.output = io.Discard
	}
	if c.interval <= 0 {
		c.interval = 100 * time.Millisecond
	}
	if c.policy == nil {
		c.policy = LegacyStopPolicy
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	c.running.Store(true)
	return c
}

// OnShutdown registers fn to run at teardown. Teardown runs closers in
// reverse registration order.
func (c *Controller) OnShutdown(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Stop clears the run flag. Safe to call from any goroutine.
func (c *Controller) Stop() {
	c.running.Store(false)
}

// Running reports whether the run flag is set.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// RunStandalone prints the ready line and reads console commands until the
// policy stops, input ends, Stop is called or ctx is done. Blank lines are
// ignored. Teardown runs before it returns.
func (c *Controller) RunStandalone(ctx context.Context) error {
	fmt.Fprintln(c.output, ReadyMessage)

	commands := make(chan string)
	go c.readCommands(commands)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for c.Running() {
		select {
		case <-ctx.Done():
			c.logger.Info("shutdown requested")
			c.Stop()
		case cmd, ok := <-commands:
			if !ok {
				c.logger.Info("console closed")
				c.Stop()
				continue
			}
			if c.policy(cmd) {
				c.logger.Info("stop command", "input", cmd)
				c.Stop()
			}
		case <-ticker.C:
		}
	}

	return c.Teardown()
}

// readCommands forwards trimmed non-empty lines and closes out at EOF.
// The goroutine stays blocked on a read that never completes when the loop
// exits first; the process is ending at that point.
func (c *Controller) readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(c.input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out <- line
	}
}

// RunManaged sleeps in Interval steps until Stop is called or ctx is done.
// All work happens on the listener goroutine meanwhile. Teardown runs before
// it returns.
func (c *Controller) RunManaged(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for c.Running() {
		select {
		case <-ctx.Done():
			c.logger.Info("shutdown requested")
			c.Stop()
		case <-ticker.C:
		}
	}

	return c.Teardown()
}

// Teardown runs the registered closers once, last registered first, and
// returns their joined errors.
func (c *Controller) Teardown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closers := c.closers
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		cl := closers[i]
		if err := cl.fn(); err != nil {
			c.logger.Warn("shutdown step failed", "step", cl.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", cl.name, err))
			continue
		}
		c.logger.Debug("shutdown step done", "step", cl.name)
	}
	return stderrors.Join(errs...)
}
