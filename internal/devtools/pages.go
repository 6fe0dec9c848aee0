package devtools

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Page is one statically known page of the tool's front end.
type Page struct {
	ID    string
	Title string

	// RequiresFlutter marks pages that only make sense with a Flutter
	// project in the workspace.
	RequiresFlutter bool

	// RequiredDartSDKVersion is the minimum SDK that ships the page's
	// backing service, empty when any SDK works.
	RequiredDartSDKVersion string
}

// KnownPages is the static page catalog. Only these pages may be embedded;
// anything else opens externally.
var KnownPages = []Page{
	{ID: "inspector", Title: "Widget Inspector", RequiresFlutter: true},
	{ID: "timeline", Title: "Timeline", RequiresFlutter: true},
	{ID: "cpu-profiler", Title: "CPU Profiler"},
	{ID: "memory", Title: "Memory"},
	{ID: "performance", Title: "Performance"},
	{ID: "network", Title: "Network", RequiredDartSDKVersion: "2.19.0"},
	{ID: "logging", Title: "Logging & Diagnostics"},
	{ID: "app-size", Title: "App Size", RequiredDartSDKVersion: "2.19.0"},
}

// PageByID looks a page up in the catalog.
func PageByID(id string) (Page, bool) {
	return lo.Find(KnownPages, func(p Page) bool { return p.ID == id })
}

// Workspace is the snapshot of workspace facts page availability depends
// on. Populating it (project scanning, SDK detection) is the embedder's
// concern.
type Workspace struct {
	HasFlutterProjects bool
	DartSDKVersion     string
}

// AvailableIn reports whether the page can work in the given workspace.
// An unknown SDK version is treated as compatible; only a detected,
// too-old SDK disables a page.
func (p Page) AvailableIn(ws Workspace) bool {
	if p.RequiresFlutter && !ws.HasFlutterProjects {
		return false
	}
	if p.RequiredDartSDKVersion != "" && ws.DartSDKVersion != "" {
		return versionAtLeast(ws.DartSDKVersion, p.RequiredDartSDKVersion)
	}
	return true
}

// AvailablePages filters the catalog for a workspace.
func AvailablePages(ws Workspace) []Page {
	return lo.Filter(KnownPages, func(p Page, _ int) bool { return p.AvailableIn(ws) })
}

// versionAtLeast compares dotted numeric versions component-wise, ignoring
// any pre-release or build suffix. Missing components count as zero.
func versionAtLeast(have, want string) bool {
	if have == "" {
		return false
	}
	h := parseVersion(have)
	w := parseVersion(want)
	for i := 0; i < 3; i++ {
		if h[i] != w[i] {
			return h[i] > w[i]
		}
	}
	return true
}

func parseVersion(v string) [3]int {
	v = strings.SplitN(v, "-", 2)[0]
	v = strings.SplitN(v, "+", 2)[0]

	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}
