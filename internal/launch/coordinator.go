package launch

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/domain"
	"github.com/vburojevic/dth/internal/proc"
)

// Fixed query parameters every generated URL carries.
const (
	paramHideValue = "debugger"
	paramIDEValue  = "VSCode"
)

// How long to wait for the delegation channel to report readiness before
// falling back to a direct launch.
const (
	delegationPollInterval = 50 * time.Millisecond
	delegationPollBudget   = 500 * time.Millisecond
)

// Options shapes a single launch request.
type Options struct {
	// Page is the tool page to open; empty triggers the interactive prompt
	// in SpawnForSession.
	Page string

	// Placement overrides configured placement resolution when set.
	Placement Placement

	DarkTheme    bool
	IDEFeature   string
	InspectorRef string
}

// Config assembles the coordinator's collaborators and policy knobs.
type Config struct {
	// NewSession constructs a fresh server session; called once per start,
	// never reused after the session stops.
	NewSession func() *devtools.Session

	// ToolVersion seeds the cache-busting token.
	ToolVersion string

	// CustomTool is set when a user-specified tool build is configured.
	// Custom builds always show progress and get a timestamped cache-bust
	// token, since their contents may change without a version bump.
	CustomTool bool

	DefaultPlacement Placement
	PlacementPerPage map[string]Placement

	// ReuseWindows gates the panel-reuse scan; when false every launch
	// creates a fresh panel.
	ReuseWindows bool

	// TestRun disables delegation entirely.
	TestRun bool

	Workspace devtools.Workspace

	Prompter   Prompter
	Browser    BrowserOpener
	Exposer    URLExposer
	Delegation DelegationChannel
	Panels     PanelHost
	Notifier   Notifier
	Progress   Progress

	Clock clock.Clock
	Log   *zap.Logger
}

// Coordinator owns the process-wide server session and the panel arena.
type Coordinator struct {
	cfg   Config
	log   *zap.Logger
	clock clock.Clock

	mu         sync.Mutex
	current    *devtools.Session
	future     *startFuture
	lastExit   proc.ExitStatus
	lastExitOK bool

	panels *PanelSet

	delegationWarned sync.Once
}

// NewCoordinator creates a coordinator; no process is spawned until the
// first start request.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Coordinator{
		cfg:    cfg,
		log:    cfg.Log,
		clock:  cfg.Clock,
		panels: NewPanelSet(),
	}
}

// EnsureStarted returns the running server's base URL, starting it if
// needed. Concurrent callers share one in-flight start; silent suppresses
// the progress indicator unless a custom tool build is configured, which may
// be slow enough that a spinner-less wait looks like a hang.
func (c *Coordinator) EnsureStarted(ctx context.Context, silent bool) (string, error) {
	c.mu.Lock()
	if c.future != nil && !c.future.Failed() {
		f := c.future
		c.mu.Unlock()
		return f.Wait(ctx)
	}

	old := c.current
	f := newStartFuture()
	sess := c.cfg.NewSession()
	c.future = f
	c.current = sess
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	var end func()
	if c.cfg.Progress != nil && (!silent || c.cfg.CustomTool) {
		end = c.cfg.Progress.Begin("Starting DevTools...")
	}

	// The start runs detached from any one caller's context: a caller
	// abandoning its wait must not poison the shared future.
	go func() {
		url, err := sess.Start(context.Background())
		if end != nil {
			end()
		}
		if err != nil {
			c.recordExit(sess)
			f.resolve(url, err)
			c.invalidate(sess)
			return
		}
		f.resolve(url, nil)
		go func() {
			<-sess.Done()
			c.recordExit(sess)
			c.invalidate(sess)
		}()
	}()

	return f.Wait(ctx)
}

// recordExit captures the session's terminal status for later reporting.
func (c *Coordinator) recordExit(sess *devtools.Session) {
	if status, ok := sess.ExitStatus(); ok {
		c.mu.Lock()
		c.lastExit, c.lastExitOK = status, true
		c.mu.Unlock()
	}
}

// invalidate forgets a stopped session so the next caller starts fresh.
func (c *Coordinator) invalidate(sess *devtools.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == sess {
		c.current = nil
		c.future = nil
	}
}

// session returns the live session once its start future has resolved.
func (c *Coordinator) session(ctx context.Context) (*devtools.Session, string, error) {
	c.mu.Lock()
	sess, f := c.current, c.future
	c.mu.Unlock()
	if sess == nil || f == nil {
		return nil, "", devtools.ErrNotRunning
	}
	url, err := f.Wait(ctx)
	if err != nil {
		return nil, "", err
	}
	return sess, url, nil
}

// SpawnStandalone opens the tool with no page and no target in an external
// browser. Failures are reported to the user; the returned URL is empty when
// the launch did not happen.
func (c *Coordinator) SpawnStandalone(ctx context.Context, commandSource string) string {
	if _, err := c.EnsureStarted(ctx, false); err != nil {
		c.notifyError(fmt.Sprintf("Failed to start DevTools: %v", err))
		return ""
	}
	return c.Launch(ctx, false, nil, Options{
		Placement:  PlacementExternal,
		IDEFeature: commandSource,
	})
}

// SpawnForSession opens a tool page for a debug target, resolving placement
// and prompting for a page when none was named. A cancelled prompt aborts
// the whole operation before any process or URL work.
func (c *Coordinator) SpawnForSession(ctx context.Context, target *domain.DebugTarget, opts Options) string {
	placement := c.resolvePlacement(opts)

	if placement != PlacementExternal && (c.cfg.Panels == nil || !c.cfg.Panels.SupportsEmbedding()) {
		placement = PlacementExternal
	}

	if opts.Page == "" && placement != PlacementExternal {
		choice, err := c.promptForPage(ctx, target)
		if err != nil {
			c.notifyError(fmt.Sprintf("Failed to choose a DevTools page: %v", err))
			return ""
		}
		if choice.Cancelled {
			return ""
		}
		if choice.External {
			placement = PlacementExternal
		} else {
			opts.Page = choice.Page
		}
	}

	opts.Placement = placement
	return c.Launch(ctx, placement == PlacementExternal, target, opts)
}

// resolvePlacement picks the effective placement: explicit option, then
// per-page configuration, then the global default, then beside.
func (c *Coordinator) resolvePlacement(opts Options) Placement {
	if opts.Placement != PlacementUnset {
		return opts.Placement
	}
	if p, ok := c.cfg.PlacementPerPage[opts.Page]; ok && p != PlacementUnset {
		return p
	}
	if c.cfg.DefaultPlacement != PlacementUnset {
		return c.cfg.DefaultPlacement
	}
	return PlacementBeside
}

func (c *Coordinator) promptForPage(ctx context.Context, target *domain.DebugTarget) (PageChoice, error) {
	if c.cfg.Prompter == nil {
		return PageChoice{External: true}, nil
	}
	ws := c.cfg.Workspace
	if target != nil && target.Flutter {
		ws.HasFlutterProjects = true
	}
	return c.cfg.Prompter.ChoosePage(ctx, devtools.AvailablePages(ws))
}

// Launch ensures the server is up, builds the page URL, and routes it:
// delegated to a sibling channel, into an embedded panel, or to an external
// browser. Failures are surfaced to the user, never returned; the result is
// the launched URL or empty.
func (c *Coordinator) Launch(ctx context.Context, allowDelegation bool, target *domain.DebugTarget, opts Options) string {
	if _, err := c.EnsureStarted(ctx, false); err != nil {
		c.notifyError(fmt.Sprintf("Failed to start DevTools: %v", err))
		return ""
	}
	sess, base, err := c.session(ctx)
	if err != nil {
		c.notifyError(fmt.Sprintf("Failed to start DevTools: %v", err))
		return ""
	}

	placement := opts.Placement
	if placement == PlacementUnset {
		placement = c.resolvePlacement(opts)
	}

	_, knownPage := devtools.PageByID(opts.Page)
	embedded := placement != PlacementExternal && opts.Page != "" && knownPage

	q := c.buildParams(target, opts, embedded)
	url := devtools.BuildToolURL(base, opts.Page, sess.SupportsPathURLs(), q)

	if allowDelegation && placement == PlacementExternal && !c.cfg.TestRun && c.cfg.Delegation != nil {
		if c.delegationReady(ctx) {
			err := c.cfg.Delegation.LaunchBrowser(url)
			if err == nil {
				c.log.Debug("launch delegated", zap.String("url", url))
				return url
			}
			c.reportDelegationFailure(err)
		}
	}

	exposed, err := c.expose(url)
	if err != nil {
		c.notifyError(fmt.Sprintf("Failed to expose DevTools URL: %v", err))
		return ""
	}

	if embedded {
		if err := c.launchInPanel(exposed, target, opts.Page, placement); err != nil {
			c.notifyError(fmt.Sprintf("Failed to open DevTools panel: %v", err))
			return ""
		}
		return exposed
	}

	if err := c.cfg.Browser.OpenURL(exposed); err != nil {
		c.notifyError(fmt.Sprintf("Failed to open browser: %v", err))
		return ""
	}
	return exposed
}

// buildParams assembles the query string in its documented order; unset
// optional values are omitted entirely.
func (c *Coordinator) buildParams(target *domain.DebugTarget, opts Options, embedded bool) *devtools.QueryParams {
	cacheBust := c.cfg.ToolVersion
	if c.cfg.CustomTool {
		cacheBust += "-" + strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
	}

	q := &devtools.QueryParams{}
	q.Add("cacheBust", cacheBust)
	q.Add("hide", paramHideValue)
	q.Add("ide", paramIDEValue)
	if embedded {
		q.Add("embed", "true")
	}
	if target != nil {
		if uri := target.Endpoint(); uri != "" {
			q.Add("uri", uri)
		}
	}
	if opts.DarkTheme {
		q.Add("theme", "dark")
	}
	if opts.IDEFeature != "" {
		q.Add("ideFeature", opts.IDEFeature)
	}
	if opts.InspectorRef != "" {
		q.Add("inspectorRef", opts.InspectorRef)
	}
	return q
}

// delegationReady polls the channel for a bounded interval; an unready
// channel is not an error, just grounds to launch directly.
func (c *Coordinator) delegationReady(ctx context.Context) bool {
	deadline := c.clock.Now().Add(delegationPollBudget)
	for {
		if c.cfg.Delegation.Ready() {
			return true
		}
		if !c.clock.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-c.clock.After(delegationPollInterval):
		}
	}
}

// reportDelegationFailure logs the failure, writes full detail to a temp
// file, and warns the user once. The launch falls back to a direct open.
func (c *Coordinator) reportDelegationFailure(err error) {
	c.log.Warn("delegated launch failed, falling back to direct open", zap.Error(err))
	c.delegationWarned.Do(func() {
		detail := fmt.Sprintf("delegated browser launch failed:\n%v\n", err)
		msg := "DevTools could not be launched through the companion service; opened directly instead."
		if f, werr := os.CreateTemp("", "dth-delegation-*.log"); werr == nil {
			_, _ = f.WriteString(detail)
			_ = f.Close()
			msg += " Details: " + f.Name()
		}
		if c.cfg.Notifier != nil {
			c.cfg.Notifier.Warn(msg)
		}
	})
}

func (c *Coordinator) expose(url string) (string, error) {
	if c.cfg.Exposer == nil {
		return url, nil
	}
	return c.cfg.Exposer.Expose(url)
}

// launchInPanel reuses an existing panel for the page when allowed, else
// creates one. Reuse prefers a panel already bound to this target, then the
// first panel whose target has ended.
func (c *Coordinator) launchInPanel(url string, target *domain.DebugTarget, page string, placement Placement) error {
	if c.cfg.ReuseWindows {
		if p := c.panels.FindReusable(page, target); p != nil {
			p.Rebind(target)
			c.log.Debug("reusing panel", zap.String("page", page), zap.String("handle", p.Handle))
			return p.Navigate(url)
		}
	}

	var panel *Panel
	display, err := c.cfg.Panels.CreatePanel(page, placement, func() {
		if panel != nil {
			c.panels.Remove(panel.Handle)
		}
	})
	if err != nil {
		return err
	}
	panel = newPanel(page, placement, target, display)
	c.panels.Add(panel)
	return panel.Navigate(url)
}

// ServerInfo returns the running server's handshake payload.
func (c *Coordinator) ServerInfo(ctx context.Context) (devtools.ServerInfo, error) {
	sess, _, err := c.session(ctx)
	if err != nil {
		return devtools.ServerInfo{}, err
	}
	return sess.Info(), nil
}

// ServerDone exposes the current session's termination signal; a nil channel
// means no session exists.
func (c *Coordinator) ServerDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.Done()
}

// ServerExitStatus reports how the most recent server process ended. ok is
// false until a session has exited.
func (c *Coordinator) ServerExitStatus() (proc.ExitStatus, bool) {
	c.mu.Lock()
	sess := c.current
	last, ok := c.lastExit, c.lastExitOK
	c.mu.Unlock()
	if ok {
		return last, true
	}
	// The session records its status before signalling Done, so a caller
	// woken by ServerDone can read it here even if the watcher goroutine
	// has not captured it yet.
	if sess != nil {
		return sess.ExitStatus()
	}
	return proc.ExitStatus{}, false
}

// DiscoverExtensions forwards discovery to the running server.
func (c *Coordinator) DiscoverExtensions(ctx context.Context, roots []string) (map[string]devtools.ExtensionResults, error) {
	sess, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return sess.DiscoverExtensions(ctx, roots)
}

// ReconnectOrphaned lets already-open panels follow a fresh debug run: every
// page with a panel whose target has ended gets that panel rebound to the
// new target and relaunched beside.
func (c *Coordinator) ReconnectOrphaned(ctx context.Context, target *domain.DebugTarget) {
	for _, page := range c.panels.Pages() {
		p := c.panels.FindEnded(page)
		if p == nil {
			continue
		}
		p.Rebind(target)
		c.Launch(ctx, false, target, Options{Page: page, Placement: PlacementBeside})
	}
}

// HandleEndpointKnown registers a target's newly known endpoint with the
// running server, then reconnects orphaned panels. Registration waits for
// the session to be fully up; with no session in flight there is nothing to
// register with.
func (c *Coordinator) HandleEndpointKnown(ctx context.Context, target *domain.DebugTarget) {
	sess, _, err := c.session(ctx)
	if err != nil {
		return
	}
	endpoint := target.Endpoint()
	if endpoint == "" {
		return
	}
	if err := sess.Register(ctx, endpoint); err != nil {
		c.log.Warn("endpoint registration failed",
			zap.String("endpoint", endpoint), zap.Error(err))
		return
	}
	c.log.Debug("endpoint registered",
		zap.String("target", target.ID), zap.String("endpoint", endpoint))
	c.ReconnectOrphaned(ctx, target)
}

// HandleTargetEnded marks the target ended; its panels become reusable.
func (c *Coordinator) HandleTargetEnded(target *domain.DebugTarget) {
	target.MarkEnded()
}

// IsPageAvailable reports whether the page exists and its requirements are
// met by the current workspace.
func (c *Coordinator) IsPageAvailable(pageID string) bool {
	p, ok := devtools.PageByID(pageID)
	if !ok {
		return false
	}
	return p.AvailableIn(c.cfg.Workspace)
}

// Dispose terminates the server process tree and clears all panel state.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.future = nil
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
	c.panels.Clear()
}

func (c *Coordinator) notifyError(msg string) {
	c.log.Error(msg)
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Error(msg)
	}
}
