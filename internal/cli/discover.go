package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/output"
)

// DiscoverCmd asks the server which DevTools extensions project packages provide
type DiscoverCmd struct {
	Roots []string `arg:"" optional:"" help:"Project roots to scan (default: current directory)"`
}

// Run executes the discover command
func (c *DiscoverCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	roots := c.Roots
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return outputErrorCommon(globals, "DISCOVER_FAILED", err.Error())
		}
		roots = []string{cwd}
	}

	coordinator := buildCoordinator(globals, devtools.Workspace{})
	defer coordinator.Dispose()

	if _, err := coordinator.EnsureStarted(ctx, true); err != nil {
		return outputErrorCommon(globals, "TOOL_START_FAILED", err.Error(), "check that the Dart SDK is on PATH or set tool.custom_path")
	}

	globals.Debug("Discovering extensions for %d roots", len(roots))
	results, err := coordinator.DiscoverExtensions(ctx, roots)
	if err != nil {
		return outputErrorCommon(globals, "DISCOVER_FAILED", err.Error())
	}

	if globals.Format == "ndjson" {
		return c.outputNDJSON(globals, results)
	}
	return c.outputTable(globals, results)
}

func (c *DiscoverCmd) outputNDJSON(globals *Globals, results map[string]devtools.ExtensionResults) error {
	w := output.NewNDJSONWriter(globals.Stdout)
	for _, root := range sortedRoots(results) {
		res := results[root]
		packages := lo.Map(res.Extensions, func(e devtools.ExtensionEntry, _ int) string {
			return e.PackageName
		})
		if err := w.WriteDiscovery(root, packages, len(res.ParseErrors)); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscoverCmd) outputTable(globals *Globals, results map[string]devtools.ExtensionResults) error {
	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Root", "Package", "Parse Errors")

	for _, root := range sortedRoots(results) {
		res := results[root]
		if len(res.Extensions) == 0 {
			table.Append(root, "(none)", fmt.Sprintf("%d", len(res.ParseErrors)))
			continue
		}
		for _, ext := range res.Extensions {
			table.Append(root, ext.PackageName, fmt.Sprintf("%d", len(res.ParseErrors)))
		}
	}
	return table.Render()
}

func sortedRoots(results map[string]devtools.ExtensionResults) []string {
	roots := lo.Keys(results)
	sort.Strings(roots)
	return roots
}
