package domain

import (
	"sync"

	"github.com/google/uuid"
)

// DebugTarget is one debuggable app run the tool server can attach to. Its
// runtime endpoint usually becomes known some time after the target is
// created, so the URI is set later and read under the lock.
type DebugTarget struct {
	// ID is stable for the life of the run and is used to match panels back
	// to their target across reconnects.
	ID string

	// Name is a short human label (project or launch-config name).
	Name string

	// ProjectRoot is the workspace folder the target was launched from.
	ProjectRoot string

	// Flutter reports whether the target runs a Flutter app, which gates
	// framework-specific pages.
	Flutter bool

	// Test reports whether this is a test run; test runs never delegate
	// launches to the debug adapter.
	Test bool

	mu       sync.Mutex
	endpoint string
	ended    bool
}

// NewDebugTarget creates a target with a fresh identity and no endpoint yet.
func NewDebugTarget(name, projectRoot string) *DebugTarget {
	return &DebugTarget{
		ID:          uuid.NewString(),
		Name:        name,
		ProjectRoot: projectRoot,
	}
}

// SetEndpoint records the target's runtime service URI once known.
func (t *DebugTarget) SetEndpoint(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoint = uri
}

// Endpoint returns the runtime service URI, or "" while still unknown.
func (t *DebugTarget) Endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

// MarkEnded flags the target as terminated. Panels bound to an ended target
// become candidates for reuse.
func (t *DebugTarget) MarkEnded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
}

// Ended reports whether the target has terminated.
func (t *DebugTarget) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}
