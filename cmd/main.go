package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `5fx-patcher - NSM session-aware JACK patchbay client

Usage:
  5fx-patcher [command] [options]

Commands:
  start         Run the patcher client (default; NSM launches it without arguments)
  init          Write a default settings file if missing
  history       List recorded patch operations of a session
  discover      Find patcher listeners on the local network
  send <op> [name]  Send new, save, load or clear to a running patcher
  version       Print the version
Run '5fx-patcher <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runStart(nil, stdout, stderr)
	}

	switch args[1] {
	case "start":
		return runStart(args[2:], stdout, stderr)
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "history":
		return runHistory(args[2:], stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "send":
		return runSend(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "5fx-patcher %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
