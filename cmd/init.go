package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/fivefx/patcher/internal/config"
)

// runInit implements "5fx-patcher init": write the documented default
// settings file unless one already exists.
func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "Path to settings file (default: ~/.5FX/patcher.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: 5fx-patcher init [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	configPath := *path
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to determine config path: %v\n", err)
			return 1
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(stdout, "Config already exists: %s\n", configPath)
		return 0
	}

	if err := config.WriteDefault(configPath); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Created config: %s\n", configPath)
	return 0
}
