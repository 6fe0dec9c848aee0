package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vburojevic/dth/internal/cli"
	"github.com/vburojevic/dth/internal/config"
)

const quickStart = `dth - Dart/Flutter DevTools host

Quick start:
  dth serve                             Start the DevTools server
  dth open -p inspector -u VM_URI       Open a page for a running app
  dth pages                             List known pages

For help:
  dth --help                            All commands and flags
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Apply config defaults before parsing
	// These will be overridden by CLI flags if specified
	vars := kong.Vars{
		"config_format": cfg.Format,
		"config_level":  cfg.Level,
	}

	ctx := kong.Parse(&c,
		kong.Name("dth"),
		kong.Description("Run and talk to the Dart DevTools server: spawn it, open its pages, register running apps"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// Create globals with config fallbacks
	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
