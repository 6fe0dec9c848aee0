package cli

import (
	"fmt"

	"github.com/olekukonko/tablewriter"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/output"
)

// PagesCmd lists known DevTools pages with workspace availability
type PagesCmd struct {
	Flutter    bool   `help:"Treat the workspace as containing Flutter projects"`
	SDKVersion string `help:"Dart SDK version used for availability checks"`
}

// Run executes the pages command
func (c *PagesCmd) Run(globals *Globals) error {
	workspace := devtools.Workspace{
		HasFlutterProjects: c.Flutter,
		DartSDKVersion:     c.SDKVersion,
	}

	if globals.Format == "ndjson" {
		w := output.NewNDJSONWriter(globals.Stdout)
		for _, page := range devtools.KnownPages {
			available := page.AvailableIn(workspace)
			if err := w.WritePage(page.ID, page.Title, available, unavailableReason(page, workspace)); err != nil {
				return err
			}
		}
		return nil
	}

	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("Page", "Title", "Available", "Requires")
	for _, page := range devtools.KnownPages {
		table.Append(page.ID, page.Title,
			fmt.Sprintf("%t", page.AvailableIn(workspace)), requirements(page))
	}
	return table.Render()
}

func requirements(page devtools.Page) string {
	switch {
	case page.RequiresFlutter && page.RequiredDartSDKVersion != "":
		return fmt.Sprintf("Flutter, SDK >= %s", page.RequiredDartSDKVersion)
	case page.RequiresFlutter:
		return "Flutter"
	case page.RequiredDartSDKVersion != "":
		return "SDK >= " + page.RequiredDartSDKVersion
	default:
		return "-"
	}
}

func unavailableReason(page devtools.Page, ws devtools.Workspace) string {
	if page.AvailableIn(ws) {
		return ""
	}
	if page.RequiresFlutter && !ws.HasFlutterProjects {
		return "requires a Flutter project"
	}
	return "requires Dart SDK " + page.RequiredDartSDKVersion + " or newer"
}
