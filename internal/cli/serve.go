package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/domain"
	"github.com/vburojevic/dth/internal/output"
)

// ServeCmd starts the DevTools server and keeps it alive until interrupted
type ServeCmd struct {
	Silent bool `help:"Suppress the startup progress indicator"`
}

// Run executes the serve command
func (c *ServeCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	coordinator := buildCoordinator(globals, devtools.Workspace{})
	defer coordinator.Dispose()

	globals.Debug("Starting DevTools server...")
	url, err := coordinator.EnsureStarted(ctx, c.Silent)
	if err != nil {
		return outputErrorCommon(globals, "TOOL_START_FAILED", err.Error(), "check that the Dart SDK is on PATH or set tool.custom_path")
	}

	info, err := coordinator.ServerInfo(ctx)
	if err != nil {
		return outputErrorCommon(globals, "TOOL_START_FAILED", err.Error())
	}

	ev := domain.NewServerStarted(url, info.Host, info.Port, info.PID, info.ProtocolVersion)
	if globals.Format == "ndjson" {
		if err := output.NewNDJSONWriter(globals.Stdout).WriteServerStarted(ev); err != nil {
			return err
		}
	} else {
		globals.Printf("DevTools running at %s (pid %d)\n", url, info.PID)
		globals.Printf("Press Ctrl-C to stop.\n")
	}

	select {
	case <-ctx.Done():
		return nil
	case <-coordinator.ServerDone():
		if globals.Format == "ndjson" {
			status, _ := coordinator.ServerExitStatus()
			exit := domain.NewServerExit(status.Code, status.Stderr, status.Retried)
			if err := output.NewNDJSONWriter(globals.Stdout).WriteServerExit(exit); err != nil {
				return err
			}
		}
		return outputErrorCommon(globals, "TOOL_EXITED", "DevTools server exited unexpectedly")
	}
}
