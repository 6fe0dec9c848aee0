package proc

import "sync"

// PortState remembers the last successfully bound server port across
// supervisor restarts, so URLs handed out before a silent restart stay
// valid when the replacement server binds the same port.
//
// Transitions: Set on every successful server start; Reset to the
// no-preference sentinel on abnormal process exit so a bad port is never
// re-requested.
type PortState struct {
	mu   sync.Mutex
	port int
}

// NoPreference is the sentinel meaning "let the server pick a port".
const NoPreference = 0

// Set records port as the preferred port for the next start.
func (s *PortState) Set(port int) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

// Reset clears the preference.
func (s *PortState) Reset() {
	s.Set(NoPreference)
}

// Preferred returns the remembered port, or NoPreference.
func (s *PortState) Preferred() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}
