package proc

import "path/filepath"

// StrategyKind names the mutually exclusive ways of locating the backing
// tool executable. Exactly one strategy is selected per construction and
// never re-derived.
type StrategyKind int

const (
	// StrategyCustomTool runs a user-specified tool build directly.
	StrategyCustomTool StrategyKind = iota
	// StrategyDirectRuntime runs the built-in tool through the host
	// runtime, available when the runtime natively bundles the tool.
	StrategyDirectRuntime
	// StrategyPackageManager falls back to a package-manager-mediated
	// invocation of a globally activated tool package.
	StrategyPackageManager
)

// String returns a human-readable strategy name.
func (k StrategyKind) String() string {
	switch k {
	case StrategyCustomTool:
		return "custom-tool"
	case StrategyDirectRuntime:
		return "direct-runtime"
	case StrategyPackageManager:
		return "package-manager"
	default:
		return "unknown"
	}
}

// Toolchain describes what the host environment offers for locating the
// tool: an optional user override, the runtime executable, and the package
// manager used as a last resort.
type Toolchain struct {
	// CustomToolPath, when set, wins over everything else.
	CustomToolPath string
	// CustomToolArgs are extra args for a custom tool build.
	CustomToolArgs []string

	// RuntimePath is the host runtime executable (e.g. the SDK's dart).
	RuntimePath string
	// RuntimeBundlesTool reports whether the runtime can run the tool
	// natively via a subcommand.
	RuntimeBundlesTool bool

	// PackageManagerPath runs a globally activated tool package.
	PackageManagerPath string
}

// Invocation is the concrete executable/args/cwd/env computed once from a
// Toolchain. BaseArgs always request machine-readable line-JSON output.
type Invocation struct {
	Kind       StrategyKind
	Executable string
	BaseArgs   []string
	Dir        string
	Env        []string
}

// machineArgs puts the tool into its line-delimited JSON protocol mode.
var machineArgs = []string{"--machine"}

// ResolveInvocation selects the launch strategy for the given toolchain.
// Priority: custom tool, then direct runtime, then package manager.
func ResolveInvocation(tc Toolchain, workDir string, env []string) Invocation {
	if tc.CustomToolPath != "" {
		args := append(append([]string{}, tc.CustomToolArgs...), machineArgs...)
		return Invocation{
			Kind:       StrategyCustomTool,
			Executable: tc.CustomToolPath,
			BaseArgs:   args,
			Dir:        workDir,
			Env:        env,
		}
	}

	if tc.RuntimeBundlesTool && tc.RuntimePath != "" {
		return Invocation{
			Kind:       StrategyDirectRuntime,
			Executable: tc.RuntimePath,
			BaseArgs:   append([]string{"devtools"}, machineArgs...),
			Dir:        workDir,
			Env:        env,
		}
	}

	pm := tc.PackageManagerPath
	if pm == "" && tc.RuntimePath != "" {
		// Package manager lives next to the runtime in an SDK layout.
		pm = filepath.Join(filepath.Dir(tc.RuntimePath), "pub")
	}
	return Invocation{
		Kind:       StrategyPackageManager,
		Executable: pm,
		BaseArgs:   append([]string{"global", "run", "devtools"}, machineArgs...),
		Dir:        workDir,
		Env:        env,
	}
}
