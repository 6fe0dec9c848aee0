package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/launch"
	"github.com/vburojevic/dth/internal/proc"
	"github.com/vburojevic/dth/internal/tmux"
)

// toolchainFromConfig maps config onto the launch-strategy inputs.
func toolchainFromConfig(globals *Globals) proc.Toolchain {
	tool := globals.Config.Tool
	return proc.Toolchain{
		CustomToolPath:     tool.CustomPath,
		CustomToolArgs:     tool.CustomArgs,
		RuntimePath:        tool.RuntimePath,
		RuntimeBundlesTool: tool.RuntimeBundlesTool,
		PackageManagerPath: tool.PackageManager,
	}
}

// pubInstaller reinstalls the tool package through the package manager when
// a crash retry is accepted.
type pubInstaller struct {
	packageManager string
}

func (i pubInstaller) Reinstall(ctx context.Context) error {
	pm := i.packageManager
	if pm == "" {
		pm = "pub"
	}
	cmd := exec.CommandContext(ctx, pm, "global", "activate", "devtools")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("activate devtools: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// offerRetry asks on the terminal whether to reinstall and retry after an
// abnormal server exit. Non-interactive runs decline.
func offerRetry(globals *Globals) func(proc.ExitStatus) bool {
	return func(status proc.ExitStatus) bool {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return false
		}
		fmt.Fprintf(globals.Stderr,
			"DevTools exited with code %d. Reinstall and retry? [y/N] ", status.Code)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

// stderrNotifier routes coordinator warnings and errors to the user.
type stderrNotifier struct {
	globals *Globals
}

func (n stderrNotifier) Warn(msg string) {
	fmt.Fprintln(n.globals.Stderr, "Warning: "+msg)
}

func (n stderrNotifier) Error(msg string) {
	outputErrorCommon(n.globals, "LAUNCH_FAILED", msg)
}

// identityExposer is the local (non-tunneled) URL exposure.
type identityExposer struct{}

func (identityExposer) Expose(url string) (string, error) { return url, nil }

// buildCoordinator wires config, session factory, panel host, and user
// collaborators into a launch coordinator.
func buildCoordinator(globals *Globals, workspace devtools.Workspace) *launch.Coordinator {
	cfg := globals.Config
	log := globals.logger.Logger()
	invocation := proc.ResolveInvocation(toolchainFromConfig(globals), "", os.Environ())

	newSession := func() *devtools.Session {
		return devtools.NewSession(devtools.Config{
			Invocation:   invocation,
			Ports:        globals.Ports,
			PortOverride: cfg.Tool.Port,
			Installer:    pubInstaller{packageManager: cfg.Tool.PackageManager},
			OfferRetry:   offerRetry(globals),
			Log:          log,
		})
	}

	defaultPlacement, _ := launch.ParsePlacement(cfg.Launch.DefaultPlacement)
	perPage := make(map[string]launch.Placement, len(cfg.Launch.PlacementPerPage))
	for page, value := range cfg.Launch.PlacementPerPage {
		if p, err := launch.ParsePlacement(value); err == nil {
			perPage[page] = p
		}
	}

	return launch.NewCoordinator(launch.Config{
		NewSession:       newSession,
		ToolVersion:      Version,
		CustomTool:       cfg.Tool.CustomPath != "",
		DefaultPlacement: defaultPlacement,
		PlacementPerPage: perPage,
		ReuseWindows:     cfg.Launch.ReuseWindows,
		Workspace:        workspace,
		Prompter:         pagePicker{},
		Browser:          browserOpener{command: cfg.Launch.Browser},
		Exposer:          identityExposer{},
		Panels:           tmux.NewHost(tmux.Config{}, log),
		Notifier:         stderrNotifier{globals: globals},
		Progress:         spinnerProgress{quiet: globals.Quiet},
		Log:              log,
	})
}
