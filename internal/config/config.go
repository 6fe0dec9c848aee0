package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Level   string `mapstructure:"level"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	// Tool server process settings
	Tool ToolConfig `mapstructure:"tool"`

	// Launch routing settings
	Launch LaunchConfig `mapstructure:"launch"`
}

// ToolConfig controls how the backing tool server process is located and
// spawned
type ToolConfig struct {
	// CustomPath points at a user-built tool; when set it wins over every
	// other launch strategy
	CustomPath string   `mapstructure:"custom_path"`
	CustomArgs []string `mapstructure:"custom_args"`

	// Port pins the server to a fixed port (0 = let the server pick)
	Port int `mapstructure:"port"`

	// RuntimePath is the host runtime executable (dart)
	RuntimePath string `mapstructure:"runtime_path"`

	// RuntimeBundlesTool marks runtimes that can run the tool natively
	// without going through the package manager
	RuntimeBundlesTool bool `mapstructure:"runtime_bundles_tool"`

	// PackageManager overrides the pub executable used by the fallback
	// strategy
	PackageManager string `mapstructure:"package_manager"`
}

// LaunchConfig holds placement and browser preferences
type LaunchConfig struct {
	DefaultPlacement string            `mapstructure:"default_placement"`
	PlacementPerPage map[string]string `mapstructure:"placement_per_page"`
	ReuseWindows     bool              `mapstructure:"reuse_windows"`
	DarkTheme        bool              `mapstructure:"dark_theme"`
	Browser          string            `mapstructure:"browser"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "ndjson",
		Level:   "default",
		Quiet:   false,
		Verbose: false,
		Tool: ToolConfig{
			RuntimePath: "dart",
		},
		Launch: LaunchConfig{
			DefaultPlacement: "beside",
			ReuseWindows:     true,
		},
	}
}

// searchViper builds the config-file search shared by Load and ConfigFile,
// so the path reported as "in use" is always the one Load actually reads
func searchViper() *viper.Viper {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("dth")
	v.SetConfigType("yaml")

	// Add config paths (in order of precedence, lowest first)
	// 1. System-wide config
	v.AddConfigPath("/etc/dth/")
	// 2. User config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "dth"))
	}
	// 3. Home directory (as .dthrc.yaml or .dth.yaml)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".dth")
	}
	// 4. Current directory
	v.AddConfigPath(".")

	// Also check for .dthrc file
	v.SetConfigName(".dthrc")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	// An explicitly named file in the working directory wins over the
	// search paths
	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
	}

	return v
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := searchViper()

	// Environment variables
	v.SetEnvPrefix("DTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	v.BindEnv("format", "DTH_FORMAT")
	v.BindEnv("level", "DTH_LEVEL")
	v.BindEnv("quiet", "DTH_QUIET")
	v.BindEnv("verbose", "DTH_VERBOSE")
	v.BindEnv("tool.custom_path", "DTH_TOOL_PATH")
	v.BindEnv("tool.port", "DTH_TOOL_PORT")
	v.BindEnv("launch.browser", "DTH_BROWSER")

	// Set defaults
	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("level", cfg.Level)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("tool.runtime_path", cfg.Tool.RuntimePath)
	v.SetDefault("launch.default_placement", cfg.Launch.DefaultPlacement)
	v.SetDefault("launch.reuse_windows", cfg.Launch.ReuseWindows)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, err
		}
		// Config file not found; use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies DTH_* variables on top of a loaded config, for
// keys viper's automatic env handling misses when no config file exists
func applyEnvOverrides(cfg *Config) {
	if format := os.Getenv("DTH_FORMAT"); format != "" {
		cfg.Format = format
	}
	if level := os.Getenv("DTH_LEVEL"); level != "" {
		cfg.Level = level
	}
	if quiet := os.Getenv("DTH_QUIET"); quiet == "true" || quiet == "1" {
		cfg.Quiet = true
	}
	if verbose := os.Getenv("DTH_VERBOSE"); verbose == "true" || verbose == "1" {
		cfg.Verbose = true
	}
	if path := os.Getenv("DTH_TOOL_PATH"); path != "" {
		cfg.Tool.CustomPath = path
	}
	if browser := os.Getenv("DTH_BROWSER"); browser != "" {
		cfg.Launch.Browser = browser
	}
}

// findConfigFile returns the path of the config file that would be used,
// preferring .dth.yaml over .dth.yml in the current directory
func findConfigFile() string {
	for _, name := range []string{".dth.yaml", ".dth.yml", "dth.yaml", "dth.yml"} {
		if _, err := os.Stat(name); err == nil {
			abs, err := filepath.Abs(name)
			if err != nil {
				return name
			}
			return abs
		}
	}
	return ""
}

// ConfigFile returns the path of the config file Load would read, by
// running the same search Load performs
func ConfigFile() string {
	v := searchViper()
	if err := v.ReadInConfig(); err == nil {
		return v.ConfigFileUsed()
	}
	return ""
}
