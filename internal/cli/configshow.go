package cli

import (
	"encoding/json"
	"fmt"

	"github.com/vburojevic/dth/internal/config"
)

// ConfigShowCmd shows the effective configuration
type ConfigShowCmd struct{}

// configOutput is the NDJSON shape of the effective configuration
type configOutput struct {
	Type          string              `json:"type"` // "config"
	SchemaVersion int                 `json:"schemaVersion"`
	Format        string              `json:"format"`
	Level         string              `json:"level"`
	Quiet         bool                `json:"quiet"`
	Verbose       bool                `json:"verbose"`
	Tool          config.ToolConfig   `json:"tool"`
	Launch        config.LaunchConfig `json:"launch"`
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if globals.Format == "ndjson" {
		out := configOutput{
			Type:          "config",
			SchemaVersion: 1,
			Format:        cfg.Format,
			Level:         cfg.Level,
			Quiet:         cfg.Quiet,
			Verbose:       cfg.Verbose,
			Tool:          cfg.Tool,
			Launch:        cfg.Launch,
		}
		return json.NewEncoder(globals.Stdout).Encode(out)
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	fmt.Fprintf(globals.Stdout, "  format: %s\n", cfg.Format)
	fmt.Fprintf(globals.Stdout, "  level: %s\n", cfg.Level)
	fmt.Fprintf(globals.Stdout, "  quiet: %t\n", cfg.Quiet)
	fmt.Fprintf(globals.Stdout, "  verbose: %t\n", cfg.Verbose)
	fmt.Fprintln(globals.Stdout, "  Tool:")
	if cfg.Tool.CustomPath != "" {
		fmt.Fprintf(globals.Stdout, "    custom_path: %s\n", cfg.Tool.CustomPath)
	}
	fmt.Fprintf(globals.Stdout, "    runtime_path: %s\n", cfg.Tool.RuntimePath)
	if cfg.Tool.Port != 0 {
		fmt.Fprintf(globals.Stdout, "    port: %d\n", cfg.Tool.Port)
	}
	fmt.Fprintln(globals.Stdout, "  Launch:")
	fmt.Fprintf(globals.Stdout, "    default_placement: %s\n", cfg.Launch.DefaultPlacement)
	fmt.Fprintf(globals.Stdout, "    reuse_windows: %t\n", cfg.Launch.ReuseWindows)
	fmt.Fprintf(globals.Stdout, "    dark_theme: %t\n", cfg.Launch.DarkTheme)
	if cfg.Launch.Browser != "" {
		fmt.Fprintf(globals.Stdout, "    browser: %s\n", cfg.Launch.Browser)
	}
	for page, placement := range cfg.Launch.PlacementPerPage {
		fmt.Fprintf(globals.Stdout, "    placement[%s]: %s\n", page, placement)
	}
	return nil
}

// ConfigPathCmd shows which config file is in use
type ConfigPathCmd struct{}

// configPathOutput is the NDJSON shape for config path info
type configPathOutput struct {
	Type          string `json:"type"` // "config_path"
	SchemaVersion int    `json:"schemaVersion"`
	Path          string `json:"path,omitempty"`
	Found         bool   `json:"found"`
}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()

	if globals.Format == "ndjson" {
		out := configPathOutput{
			Type:          "config_path",
			SchemaVersion: 1,
			Path:          path,
			Found:         path != "",
		}
		return json.NewEncoder(globals.Stdout).Encode(out)
	}

	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found (using defaults)")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}
