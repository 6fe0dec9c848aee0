package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/domain"
	"github.com/vburojevic/dth/internal/launch"
	"github.com/vburojevic/dth/internal/output"
	"github.com/vburojevic/dth/internal/session"
)

// OpenCmd opens a DevTools page for a running app
type OpenCmd struct {
	Page       string `short:"p" help:"DevTools page to open (prompts when omitted)"`
	Placement  string `help:"Where to show the page (beside, active, external)"`
	URI        string `short:"u" help:"VM service URI of the running app"`
	Name       string `short:"n" default:"app" help:"Debug target name"`
	Root       string `default:"." help:"Project root directory"`
	Flutter    bool   `help:"Target is a Flutter app"`
	SDKVersion string `help:"Dart SDK version used for page availability checks"`
	Dark       bool   `help:"Request the dark theme"`
	Feature    string `default:"cli" help:"Feature source tag attached to the URL"`
	Detach     bool   `help:"Exit immediately instead of keeping the server alive"`
}

// Run executes the open command
func (c *OpenCmd) Run(globals *Globals) error {
	if err := validateFlags(globals, c.Placement, c.Page); err != nil {
		return err
	}

	placement, err := launch.ParsePlacement(c.Placement)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_PLACEMENT", err.Error(), "use beside, active, or external")
	}
	if c.Page != "" {
		if _, ok := devtools.PageByID(c.Page); !ok {
			return outputErrorCommon(globals, "UNKNOWN_PAGE", "unknown DevTools page: "+c.Page, "run 'dth pages' to list known pages")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	workspace := devtools.Workspace{
		HasFlutterProjects: c.Flutter,
		DartSDKVersion:     c.SDKVersion,
	}
	coordinator := buildCoordinator(globals, workspace)
	defer coordinator.Dispose()

	registry := session.NewRegistry(coordinator, globals.logger.Logger())
	target := registry.Start(c.Name, c.Root, c.Flutter)
	if c.URI != "" {
		target.SetEndpoint(c.URI)
	}

	globals.Debug("Opening page %q with placement %q", c.Page, placement)
	url := coordinator.SpawnForSession(ctx, target, launch.Options{
		Page:       c.Page,
		Placement:  placement,
		DarkTheme:  c.Dark || globals.Config.Launch.DarkTheme,
		IDEFeature: c.Feature,
	})
	if url == "" {
		// Cancellation is a clean no-op; real failures were already
		// reported by the coordinator.
		return nil
	}

	if c.URI != "" {
		if err := registry.EndpointKnown(ctx, target.ID, c.URI); err != nil {
			globals.Debug("endpoint registration skipped: %v", err)
		} else if globals.Format == "ndjson" {
			registered := domain.NewTargetRegistered(target, c.URI)
			if err := output.NewNDJSONWriter(globals.Stdout).WriteTargetRegistered(registered); err != nil {
				return err
			}
		}
	}

	location := "external"
	if _, known := devtools.PageByID(c.Page); known && placement != launch.PlacementExternal {
		location = "embedded"
	}
	ev := domain.NewLaunch(url, c.Page, location, target, false)
	if globals.Format == "ndjson" {
		if err := output.NewNDJSONWriter(globals.Stdout).WriteLaunch(ev); err != nil {
			return err
		}
	} else {
		globals.Printf("Opened %s\n", url)
	}

	if !c.Detach {
		// The server dies with this process, so stay alive until the user
		// is done with the page.
		globals.Printf("Press Ctrl-C to stop the DevTools server.\n")
		<-ctx.Done()
	}
	return nil
}
