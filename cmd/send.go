package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/fivefx/patcher/internal/nsm"
	"github.com/fivefx/patcher/internal/osc"
	"github.com/fivefx/patcher/internal/patcher"
)

const sendUsage = `Usage: 5fx-patcher send [options] <op> [name]

Send one patch operation to a running patcher.

Operations:
  new <name>    Save the current patch, clear the graph and start <name>
  save          Save the current patch (waits for the reply)
  load <name>   Save the current patch and switch to <name>
  clear         Disconnect everything

Without --to, the target is looked up via mDNS and must be unique.

Options:
`

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	to := fs.String("to", "", "Target listener as host:port or osc.udp:// URL")
	timeout := fs.Duration("timeout", 3*time.Second, "Discovery and reply timeout")

	fs.Usage = func() {
		fmt.Fprint(stderr, sendUsage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	address, opArgs, err := sendMessage(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fs.Usage()
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target, err := resolveTarget(ctx, *to)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	server, err := osc.Open(osc.Options{})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer server.Stop()

	saved := make(chan struct{}, 1)
	server.Handle(nsm.PathReply, osc.AnyTypes, func(msg *osc.Message) error {
		path, _ := msg.String(0)
		if path == patcher.PathSave {
			select {
			case saved <- struct{}{}:
			default:
			}
		}
		return nil
	})
	server.Start()

	if err := server.Send(target, address, opArgs...); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if address != patcher.PathSave {
		fmt.Fprintf(stdout, "Sent %s to %s\n", address, target)
		return 0
	}

	select {
	case <-saved:
		fmt.Fprintf(stdout, "Saved (%s)\n", target)
		return 0
	case <-ctx.Done():
		fmt.Fprintf(stderr, "Error: no reply from %s\n", target)
		return 1
	}
}

// sendMessage maps the positional arguments to an OSC address and arguments.
func sendMessage(args []string) (string, []interface{}, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing operation")
	}

	op, rest := args[0], args[1:]
	switch op {
	case "new", "load":
		if len(rest) != 1 {
			return "", nil, fmt.Errorf("%s requires a patch name", op)
		}
		address := patcher.PathNew
		if op == "load" {
			address = patcher.PathLoad
		}
		return address, []interface{}{rest[0]}, nil
	case "save", "clear":
		if len(rest) != 0 {
			return "", nil, fmt.Errorf("%s takes no arguments", op)
		}
		if op == "save" {
			return patcher.PathSave, nil, nil
		}
		return patcher.PathClear, nil, nil
	default:
		return "", nil, fmt.Errorf("unknown operation: %s", op)
	}
}

// resolveTarget parses --to, or discovers the single advertised listener.
func resolveTarget(ctx context.Context, to string) (net.Addr, error) {
	if strings.HasPrefix(to, "osc.udp://") {
		addr, err := nsm.ParseURL(to)
		if err != nil {
			return nil, err
		}
		return addr, nil
	}
	if to != "" {
		addr, err := net.ResolveUDPAddr("udp", to)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", to, err)
		}
		return addr, nil
	}

	found, err := discoverPatchers(ctx)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("no patcher found on the network; pass --to")
	case 1:
		return net.ResolveUDPAddr("udp", found[0].Addr())
	default:
		names := make([]string, 0, len(found))
		for _, p := range found {
			names = append(names, p.Name+" ("+p.Addr()+")")
		}
		return nil, fmt.Errorf("several patchers found, pass --to: %s", strings.Join(names, ", "))
	}
}
