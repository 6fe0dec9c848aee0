package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/dth/internal/config"
	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/proc"
)

// testGlobals creates a Globals struct with captured stdout/stderr
func testGlobals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	g := &Globals{
		Format:  format,
		Level:   "default",
		Quiet:   false,
		Verbose: false,
		Stdout:  stdout,
		Stderr:  stderr,
		Config:  config.Default(),
		Ports:   &proc.PortState{},
	}
	g.logger = newAgentLogger(g)
	return g, stdout, stderr
}

// --- Config Command Tests ---

func TestConfigShowCmd_Run(t *testing.T) {
	t.Run("outputs config in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		output := stdout.String()
		assert.Contains(t, output, "Current Configuration:")
		assert.Contains(t, output, "format:")
		assert.Contains(t, output, "level:")
		assert.Contains(t, output, "Tool:")
		assert.Contains(t, output, "Launch:")
	})

	t.Run("outputs config in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		cmd := &ConfigShowCmd{}

		err := cmd.Run(globals)
		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(stdout.Bytes(), &result)
		require.NoError(t, err)

		assert.Equal(t, "config", result["type"])
		assert.Contains(t, result, "format")
		assert.Contains(t, result, "tool")
		assert.Contains(t, result, "launch")
	})
}

// --- Pages Command Tests ---

func TestPagesCmd_Run(t *testing.T) {
	t.Run("lists pages as NDJSON with availability", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		cmd := &PagesCmd{Flutter: false, SDKVersion: "2.18.0"}

		err := cmd.Run(globals)
		require.NoError(t, err)

		dec := json.NewDecoder(stdout)
		byID := map[string]map[string]interface{}{}
		for dec.More() {
			var m map[string]interface{}
			require.NoError(t, dec.Decode(&m))
			require.Equal(t, "page", m["type"])
			byID[m["id"].(string)] = m
		}

		require.Contains(t, byID, "inspector")
		assert.Equal(t, false, byID["inspector"]["available"])
		assert.Contains(t, byID["inspector"]["reason"], "Flutter")
		assert.Equal(t, false, byID["network"]["available"])
		assert.Equal(t, true, byID["memory"]["available"])
	})

	t.Run("renders a table in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		cmd := &PagesCmd{Flutter: true, SDKVersion: "3.0.0"}

		err := cmd.Run(globals)
		require.NoError(t, err)

		output := stdout.String()
		assert.Contains(t, output, "inspector")
		assert.Contains(t, output, "memory")
	})
}

// --- Error Emission Tests ---

func TestOutputErrorCommon(t *testing.T) {
	t.Run("emits NDJSON error", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")

		err := outputErrorCommon(globals, "TEST_CODE", "something broke", "try this")
		require.Error(t, err)
		assert.Equal(t, "something broke", err.Error())

		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &m))
		assert.Equal(t, "error", m["type"])
		assert.Equal(t, "TEST_CODE", m["code"])
	})

	t.Run("writes text errors to stderr", func(t *testing.T) {
		globals, stdout, stderr := testGlobals("text")

		err := outputErrorCommon(globals, "TEST_CODE", "something broke", "try this")
		require.Error(t, err)
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "Error [TEST_CODE]: something broke")
		assert.Contains(t, stderr.String(), "hint: try this")
	})
}

// --- Flag Validation Tests ---

func TestValidateFlags(t *testing.T) {
	t.Run("rejects quiet with text format", func(t *testing.T) {
		globals, _, _ := testGlobals("text")
		globals.Quiet = true

		err := validateFlags(globals, "beside", "inspector")
		assert.Error(t, err)
	})

	t.Run("rejects quiet without page unless external", func(t *testing.T) {
		globals, _, _ := testGlobals("ndjson")
		globals.Quiet = true

		assert.Error(t, validateFlags(globals, "beside", ""))
		assert.NoError(t, validateFlags(globals, "external", ""))
		assert.NoError(t, validateFlags(globals, "beside", "inspector"))
	})

	t.Run("accepts defaults", func(t *testing.T) {
		globals, _, _ := testGlobals("ndjson")
		assert.NoError(t, validateFlags(globals, "", "inspector"))
	})
}

// --- Wiring Tests ---

func TestToolchainFromConfig(t *testing.T) {
	globals, _, _ := testGlobals("ndjson")
	globals.Config.Tool.CustomPath = "/custom/devtools"
	globals.Config.Tool.CustomArgs = []string{"--no-analytics"}

	tc := toolchainFromConfig(globals)
	assert.Equal(t, "/custom/devtools", tc.CustomToolPath)
	assert.Contains(t, tc.CustomToolArgs, "--no-analytics")

	inv := proc.ResolveInvocation(tc, "", nil)
	assert.Equal(t, proc.StrategyCustomTool, inv.Kind)
}

func TestBuildCoordinatorUsesConfigPlacements(t *testing.T) {
	globals, _, _ := testGlobals("ndjson")
	globals.Config.Launch.DefaultPlacement = "external"
	globals.Config.Launch.PlacementPerPage = map[string]string{"memory": "active"}

	coordinator := buildCoordinator(globals, devtools.Workspace{})
	require.NotNil(t, coordinator)
	t.Cleanup(coordinator.Dispose)
}

// --- Browser Opener Tests ---

func TestBrowserOpenerLauncher(t *testing.T) {
	t.Run("uses configured command", func(t *testing.T) {
		b := browserOpener{command: "firefox"}
		name, args := b.launcher()
		assert.Equal(t, "firefox", name)
		assert.Empty(t, args)
	})

	t.Run("falls back to platform default", func(t *testing.T) {
		b := browserOpener{}
		name, _ := b.launcher()
		assert.NotEmpty(t, name)
	})
}
