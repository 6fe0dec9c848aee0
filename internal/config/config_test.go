package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, "ndjson", cfg.Format)
	assert.Equal(t, "default", cfg.Level)
	assert.False(t, cfg.Quiet)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "dart", cfg.Tool.RuntimePath)
	assert.Empty(t, cfg.Tool.CustomPath)
	assert.Zero(t, cfg.Tool.Port)
	assert.Equal(t, "beside", cfg.Launch.DefaultPlacement)
	assert.True(t, cfg.Launch.ReuseWindows)
}

func TestLoad(t *testing.T) {
	t.Run("returns defaults when no config file exists", func(t *testing.T) {
		// Create temp dir with no config
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		defer os.Chdir(origDir)

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Should have default values
		assert.Equal(t, "ndjson", cfg.Format)
		assert.Equal(t, "beside", cfg.Launch.DefaultPlacement)
	})

	t.Run("loads config from file", func(t *testing.T) {
		tmpDir := t.TempDir()

		// Create config file
		configContent := `
format: text
level: error
quiet: true
tool:
  custom_path: /opt/devtools/bin/devtools
  port: 9100
launch:
  default_placement: external
  reuse_windows: false
`
		configPath := filepath.Join(tmpDir, "dth.yaml")
		err := os.WriteFile(configPath, []byte(configContent), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "text", cfg.Format)
		assert.Equal(t, "error", cfg.Level)
		assert.True(t, cfg.Quiet)
		assert.Equal(t, "/opt/devtools/bin/devtools", cfg.Tool.CustomPath)
		assert.Equal(t, 9100, cfg.Tool.Port)
		assert.Equal(t, "external", cfg.Launch.DefaultPlacement)
		assert.False(t, cfg.Launch.ReuseWindows)
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("returns error for non-existent file", func(t *testing.T) {
		cfg, err := LoadFromFile("/nonexistent/path/config.yaml")
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "bad.yaml")
		err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("parses all config fields", func(t *testing.T) {
		tmpDir := t.TempDir()
		configContent := `
format: ndjson
level: debug
quiet: false
verbose: true
tool:
  custom_path: /custom/devtools
  custom_args:
    - --profile-memory
  port: 9200
  runtime_path: /sdk/bin/dart
  runtime_bundles_tool: true
  package_manager: /sdk/bin/pub
launch:
  default_placement: active
  placement_per_page:
    memory: external
    inspector: beside
  reuse_windows: true
  dark_theme: true
  browser: firefox
`
		configPath := filepath.Join(tmpDir, "dth.yaml")
		err := os.WriteFile(configPath, []byte(configContent), 0644)
		require.NoError(t, err)

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "ndjson", cfg.Format)
		assert.Equal(t, "debug", cfg.Level)
		assert.False(t, cfg.Quiet)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, "/custom/devtools", cfg.Tool.CustomPath)
		assert.Contains(t, cfg.Tool.CustomArgs, "--profile-memory")
		assert.Equal(t, 9200, cfg.Tool.Port)
		assert.Equal(t, "/sdk/bin/dart", cfg.Tool.RuntimePath)
		assert.True(t, cfg.Tool.RuntimeBundlesTool)
		assert.Equal(t, "/sdk/bin/pub", cfg.Tool.PackageManager)
		assert.Equal(t, "active", cfg.Launch.DefaultPlacement)
		assert.Equal(t, "external", cfg.Launch.PlacementPerPage["memory"])
		assert.Equal(t, "beside", cfg.Launch.PlacementPerPage["inspector"])
		assert.True(t, cfg.Launch.ReuseWindows)
		assert.True(t, cfg.Launch.DarkTheme)
		assert.Equal(t, "firefox", cfg.Launch.Browser)
	})
}

func TestConfigEnvironmentVariables(t *testing.T) {
	// Save original env
	origFormat := os.Getenv("DTH_FORMAT")
	origPath := os.Getenv("DTH_TOOL_PATH")
	defer func() {
		os.Setenv("DTH_FORMAT", origFormat)
		os.Setenv("DTH_TOOL_PATH", origPath)
	}()

	// Set env variables
	os.Setenv("DTH_FORMAT", "text")
	os.Setenv("DTH_TOOL_PATH", "/env/devtools")

	// Load config (should pick up env vars)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "/env/devtools", cfg.Tool.CustomPath)
}

func TestFindConfigFile(t *testing.T) {
	t.Run("finds .dth.yaml in current directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		defer os.Chdir(origDir)

		// Create config file
		configPath := filepath.Join(tmpDir, ".dth.yaml")
		err := os.WriteFile(configPath, []byte("format: text"), 0644)
		require.NoError(t, err)

		found := findConfigFile()
		// Resolve symlinks for comparison (macOS /var -> /private/var)
		expectedPath, _ := filepath.EvalSymlinks(configPath)
		foundPath, _ := filepath.EvalSymlinks(found)
		assert.Equal(t, expectedPath, foundPath)
	})

	t.Run("prefers .dth.yaml over .dth.yml", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		defer os.Chdir(origDir)

		// Create both files
		yamlPath := filepath.Join(tmpDir, ".dth.yaml")
		ymlPath := filepath.Join(tmpDir, ".dth.yml")
		err := os.WriteFile(yamlPath, []byte("format: yaml"), 0644)
		require.NoError(t, err)
		err = os.WriteFile(ymlPath, []byte("format: yml"), 0644)
		require.NoError(t, err)

		found := findConfigFile()
		expectedPath, _ := filepath.EvalSymlinks(yamlPath)
		foundPath, _ := filepath.EvalSymlinks(found)
		assert.Equal(t, expectedPath, foundPath)
	})

	t.Run("returns empty string when no config found", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		os.Chdir(tmpDir)
		defer os.Chdir(origDir)

		found := findConfigFile()
		assert.Empty(t, found)
	})
}

func TestConfigFileMatchesLoad(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	configPath := filepath.Join(tmpDir, ".dth.yaml")
	err := os.WriteFile(configPath, []byte("format: text"), 0644)
	require.NoError(t, err)

	// The file ConfigFile reports is the file Load actually reads
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Format)

	expectedPath, _ := filepath.EvalSymlinks(configPath)
	usedPath, _ := filepath.EvalSymlinks(ConfigFile())
	assert.Equal(t, expectedPath, usedPath)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("overrides format from env", func(t *testing.T) {
		cfg := Default()
		os.Setenv("DTH_FORMAT", "text")
		defer os.Unsetenv("DTH_FORMAT")

		applyEnvOverrides(cfg)
		assert.Equal(t, "text", cfg.Format)
	})

	t.Run("overrides quiet from env with true", func(t *testing.T) {
		cfg := Default()
		os.Setenv("DTH_QUIET", "true")
		defer os.Unsetenv("DTH_QUIET")

		applyEnvOverrides(cfg)
		assert.True(t, cfg.Quiet)
	})

	t.Run("overrides quiet from env with 1", func(t *testing.T) {
		cfg := Default()
		os.Setenv("DTH_QUIET", "1")
		defer os.Unsetenv("DTH_QUIET")

		applyEnvOverrides(cfg)
		assert.True(t, cfg.Quiet)
	})

	t.Run("does not override quiet with other values", func(t *testing.T) {
		cfg := Default()
		os.Setenv("DTH_QUIET", "yes")
		defer os.Unsetenv("DTH_QUIET")

		applyEnvOverrides(cfg)
		assert.False(t, cfg.Quiet)
	})

	t.Run("overrides browser from env", func(t *testing.T) {
		cfg := Default()
		os.Setenv("DTH_BROWSER", "chromium")
		defer os.Unsetenv("DTH_BROWSER")

		applyEnvOverrides(cfg)
		assert.Equal(t, "chromium", cfg.Launch.Browser)
	})
}
