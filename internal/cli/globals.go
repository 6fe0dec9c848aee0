package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/vburojevic/dth/internal/config"
	"github.com/vburojevic/dth/internal/proc"
)

// CLI is the root kong command model
type CLI struct {
	Format  string `help:"Output format (ndjson, text)" enum:"ndjson,text" default:"${config_format}"`
	Level   string `help:"Log level (debug, default, error)" default:"${config_level}"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Verbose bool   `short:"v" help:"Enable verbose debug logging"`

	Open     OpenCmd     `cmd:"" help:"Open a DevTools page for a running app"`
	Serve    ServeCmd    `cmd:"" help:"Start the DevTools server and keep it running"`
	Discover DiscoverCmd `cmd:"" help:"Discover DevTools extensions provided by project packages"`
	Pages    PagesCmd    `cmd:"" help:"List known DevTools pages and their availability"`
	Config   ConfigCmd   `cmd:"" help:"Show configuration"`
	Doctor   DoctorCmd   `cmd:"" help:"Check tool resolution, runtime, and panel host health"`
}

// ConfigCmd groups configuration subcommands
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Show current configuration"`
	Path ConfigPathCmd `cmd:"" help:"Show which config file is in use"`
}

// Globals carries cross-command state into every Run method
type Globals struct {
	Format  string
	Level   string
	Quiet   bool
	Verbose bool

	Stdout io.Writer
	Stderr io.Writer

	Config *config.Config

	// Ports is the process-wide remembered-port state shared by every
	// server session the process creates.
	Ports *proc.PortState

	logger *agentLogger
}

// NewGlobalsWithConfig builds Globals from parsed flags with config fallbacks
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	g := &Globals{
		Format:  c.Format,
		Level:   c.Level,
		Quiet:   c.Quiet || cfg.Quiet,
		Verbose: c.Verbose || cfg.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
		Ports:   &proc.PortState{},
	}
	g.logger = newAgentLogger(g)
	return g
}

// Debug logs a formatted debug message when verbose mode is on
func (g *Globals) Debug(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debug(format, args...)
	}
}

// Printf writes to stdout unless quiet
func (g *Globals) Printf(format string, args ...interface{}) {
	if g.Quiet {
		return
	}
	fmt.Fprintf(g.Stdout, format, args...)
}
