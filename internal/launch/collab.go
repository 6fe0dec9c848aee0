// Package launch coordinates the single shared tool server against many
// concurrent "open a page" requests: it deduplicates starts into one shared
// future, routes each launch to a delegated, embedded, or external surface,
// and reconciles panel reuse with debug-target lifecycle.
package launch

import (
	"context"
	"fmt"

	"github.com/vburojevic/dth/internal/devtools"
)

// Placement is where a launched page is shown.
type Placement int

const (
	// PlacementUnset means no explicit choice was made; resolution falls
	// through per-page config, the global default, then beside.
	PlacementUnset Placement = iota
	PlacementBeside
	PlacementActive
	PlacementExternal
)

// String returns the configuration spelling of the placement.
func (p Placement) String() string {
	switch p {
	case PlacementBeside:
		return "beside"
	case PlacementActive:
		return "active"
	case PlacementExternal:
		return "external"
	default:
		return "unset"
	}
}

// ParsePlacement parses a configuration value into a Placement.
func ParsePlacement(s string) (Placement, error) {
	switch s {
	case "":
		return PlacementUnset, nil
	case "beside":
		return PlacementBeside, nil
	case "active":
		return PlacementActive, nil
	case "external":
		return PlacementExternal, nil
	default:
		return PlacementUnset, fmt.Errorf("unknown placement %q", s)
	}
}

// PageChoice is the outcome of the interactive page prompt.
type PageChoice struct {
	// Page is the chosen page ID, empty when External or Cancelled.
	Page string
	// External means the user picked "open externally" instead of a page.
	External bool
	// Cancelled means the prompt was dismissed; the whole operation is a
	// no-op.
	Cancelled bool
}

// Prompter asks the user to pick a page when a launch did not name one.
type Prompter interface {
	ChoosePage(ctx context.Context, pages []devtools.Page) (PageChoice, error)
}

// BrowserOpener opens a URL in an external browser.
type BrowserOpener interface {
	OpenURL(url string) error
}

// URLExposer rewrites a locally bound URL for the environment it will be
// opened from (tunneling in remote scenarios). Local hosts return the URL
// unchanged.
type URLExposer interface {
	Expose(url string) (string, error)
}

// DelegationChannel is a sibling service that may perform the browser launch
// on our behalf.
type DelegationChannel interface {
	// Ready reports whether the channel has confirmed it can launch.
	Ready() bool
	LaunchBrowser(url string) error
}

// PanelDisplay is one embedded surface showing a tool page.
type PanelDisplay interface {
	Navigate(url string) error
	Close() error
}

// PanelHost creates embedded panel surfaces. onClose must be invoked when
// the user closes the surface so the arena can drop its registration.
type PanelHost interface {
	SupportsEmbedding() bool
	CreatePanel(page string, placement Placement, onClose func()) (PanelDisplay, error)
}

// Notifier surfaces terminal failures and warnings to the user. Coordinator
// entrypoints report through it instead of returning errors.
type Notifier interface {
	Warn(msg string)
	Error(msg string)
}

// Progress shows a user-visible "starting" indication; the returned func
// ends it.
type Progress interface {
	Begin(msg string) func()
}
