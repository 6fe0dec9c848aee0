// Package tmux hosts embedded tool panels as tmux panes: each panel is a
// pane running a URL viewer inside a dedicated dth session, and the pane id
// is the panel's stable display handle.
package tmux

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/GianlucaP106/gotmux/gotmux"
	"go.uber.org/zap"

	"github.com/vburojevic/dth/internal/launch"
)

// ErrNoPaneAvailable is returned when an operation targets a pane that no
// longer exists.
var ErrNoPaneAvailable = errors.New("tmux pane no longer exists")

// DefaultSessionName is the tmux session panels are created in.
const DefaultSessionName = "dth"

// Config controls the panel host.
type Config struct {
	// SessionName is the tmux session to hold panels.
	SessionName string

	// Viewer is the command used to show a URL in a pane. %s is replaced
	// with the quoted URL; without %s the URL is appended.
	Viewer string
}

// Host implements the embedded panel surface on top of a tmux server.
type Host struct {
	mu     sync.Mutex
	config Config
	server *gotmux.Tmux
	log    *zap.Logger
}

// NewHost connects to the default tmux server. A nil server (tmux missing or
// unreachable) is not an error; the host just reports no embedding support.
func NewHost(config Config, log *zap.Logger) *Host {
	if config.SessionName == "" {
		config.SessionName = DefaultSessionName
	}
	if config.Viewer == "" {
		config.Viewer = "lynx"
	}
	if log == nil {
		log = zap.NewNop()
	}

	server, err := gotmux.DefaultTmux()
	if err != nil {
		log.Debug("tmux unavailable", zap.Error(err))
		server = nil
	}
	return &Host{config: config, server: server, log: log}
}

// SupportsEmbedding reports whether panes can be created at all.
func (h *Host) SupportsEmbedding() bool {
	return h.server != nil
}

// Command runs a raw tmux subcommand and returns its trimmed output.
func (h *Host) Command(args ...string) (string, error) {
	out, err := exec.Command("tmux", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// ensureSession creates the panel session if it does not exist yet.
func (h *Host) ensureSession() error {
	session, err := h.server.GetSessionByName(h.config.SessionName)
	if err == nil && session != nil {
		return nil
	}
	if _, err := h.server.NewSession(&gotmux.SessionOptions{Name: h.config.SessionName}); err != nil {
		return fmt.Errorf("create tmux session %q: %w", h.config.SessionName, err)
	}
	return nil
}

// CreatePanel creates a pane for the page. Beside placement splits the
// session's current window; active placement opens a fresh window named
// after the page.
func (h *Host) CreatePanel(page string, placement launch.Placement, onClose func()) (launch.PanelDisplay, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server == nil {
		return nil, errors.New("tmux server unavailable")
	}
	if err := h.ensureSession(); err != nil {
		return nil, err
	}

	var paneID string
	var err error
	switch placement {
	case launch.PlacementActive:
		paneID, err = h.Command("new-window", "-t", h.config.SessionName+":",
			"-n", page, "-P", "-F", "#{pane_id}")
	default:
		paneID, err = h.Command("split-window", "-h", "-t", h.config.SessionName+":",
			"-P", "-F", "#{pane_id}")
	}
	if err != nil {
		return nil, err
	}

	h.log.Debug("panel pane created",
		zap.String("page", page), zap.String("pane", paneID))
	return &paneDisplay{host: h, paneID: paneID, onClose: onClose}, nil
}

// SessionName returns the configured panel session name.
func (h *Host) SessionName() string {
	return h.config.SessionName
}

// paneDisplay is one panel pane. The pane id ("%12") stays valid across
// navigations; a missing pane means the user closed it.
type paneDisplay struct {
	host    *Host
	paneID  string
	onClose func()

	mu     sync.Mutex
	closed bool
}

// Navigate restarts the viewer in the pane pointed at the new URL.
func (p *paneDisplay) Navigate(url string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrNoPaneAvailable
	}

	if !p.host.paneExists(p.paneID) {
		p.markClosed()
		return ErrNoPaneAvailable
	}

	cmd := p.host.viewerCommand(url)
	_, err := p.host.Command("respawn-pane", "-k", "-t", p.paneID, cmd)
	return err
}

// Close kills the pane and unregisters the panel.
func (p *paneDisplay) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_, err := p.host.Command("kill-pane", "-t", p.paneID)
	if p.onClose != nil {
		p.onClose()
	}
	return err
}

func (p *paneDisplay) markClosed() {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if !already && p.onClose != nil {
		p.onClose()
	}
}

// paneExists checks the pane id against the session's live panes.
func (h *Host) paneExists(paneID string) bool {
	out, err := h.Command("list-panes", "-s", "-t", h.config.SessionName+":", "-F", "#{pane_id}")
	if err != nil {
		return false
	}
	for _, id := range strings.Split(out, "\n") {
		if strings.TrimSpace(id) == paneID {
			return true
		}
	}
	return false
}

// viewerCommand builds the shell command shown in a pane for a URL.
func (h *Host) viewerCommand(url string) string {
	quoted := "'" + strings.ReplaceAll(url, "'", `'"'"'`) + "'"
	if strings.Contains(h.config.Viewer, "%s") {
		return strings.ReplaceAll(h.config.Viewer, "%s", quoted)
	}
	return h.config.Viewer + " " + quoted
}
