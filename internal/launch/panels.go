package launch

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vburojevic/dth/internal/domain"
)

// Panel is one registered display surface for a tool page, bound to the
// debug target it currently shows.
type Panel struct {
	// Handle is the stable identity used for removal; displays are never
	// compared by object identity.
	Handle string

	Page      string
	Placement Placement

	mu      sync.Mutex
	target  *domain.DebugTarget
	display PanelDisplay
}

func newPanel(page string, placement Placement, target *domain.DebugTarget, display PanelDisplay) *Panel {
	return &Panel{
		Handle:    uuid.NewString(),
		Page:      page,
		Placement: placement,
		target:    target,
		display:   display,
	}
}

// Target returns the currently bound debug target.
func (p *Panel) Target() *domain.DebugTarget {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// Rebind points the panel at a new target, typically a fresh debug run
// replacing an ended one.
func (p *Panel) Rebind(target *domain.DebugTarget) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
}

// Navigate loads a new URL into the panel's display.
func (p *Panel) Navigate(url string) error {
	p.mu.Lock()
	display := p.display
	p.mu.Unlock()
	return display.Navigate(url)
}

func (p *Panel) close() {
	p.mu.Lock()
	display := p.display
	p.mu.Unlock()
	_ = display.Close()
}

// PanelSet keeps panels per page in creation order.
type PanelSet struct {
	mu     sync.Mutex
	byPage map[string][]*Panel
}

func NewPanelSet() *PanelSet {
	return &PanelSet{byPage: make(map[string][]*Panel)}
}

// Add appends a panel to its page's collection.
func (s *PanelSet) Add(p *Panel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPage[p.Page] = append(s.byPage[p.Page], p)
}

// FindReusable scans the page's panels in order for one already bound to
// target, or failing that the first one whose target has ended.
func (s *PanelSet) FindReusable(page string, target *domain.DebugTarget) *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()

	panels := s.byPage[page]
	if p, ok := lo.Find(panels, func(p *Panel) bool { return p.Target() == target }); ok {
		return p
	}
	if p, ok := lo.Find(panels, func(p *Panel) bool {
		t := p.Target()
		return t != nil && t.Ended()
	}); ok {
		return p
	}
	return nil
}

// FindEnded returns the first panel for page whose target has ended.
func (s *PanelSet) FindEnded(page string) *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, _ := lo.Find(s.byPage[page], func(p *Panel) bool {
		t := p.Target()
		return t != nil && t.Ended()
	})
	return p
}

// Remove drops the panel with the given handle, if still registered.
func (s *PanelSet) Remove(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for page, panels := range s.byPage {
		filtered := lo.Reject(panels, func(p *Panel, _ int) bool { return p.Handle == handle })
		if len(filtered) != len(panels) {
			s.byPage[page] = filtered
			return
		}
	}
}

// Pages returns the page identifiers that currently have panels.
func (s *PanelSet) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.byPage)
}

// Clear drains every panel, closing its display.
func (s *PanelSet) Clear() {
	s.mu.Lock()
	all := lo.Flatten(lo.Values(s.byPage))
	s.byPage = make(map[string][]*Panel)
	s.mu.Unlock()

	for _, p := range all {
		p.close()
	}
}
