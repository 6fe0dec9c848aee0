package domain

import "time"

// ServerStarted is emitted when the tool server reports its bound address.
type ServerStarted struct {
	Type            string `json:"type"`          // "server_started"
	SchemaVersion   int    `json:"schemaVersion"` // 1
	URL             string `json:"url"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	PID             int    `json:"pid"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO8601 timestamp
}

// Launch is emitted when a tool page is opened for a target.
type Launch struct {
	Type          string `json:"type"`          // "launch"
	SchemaVersion int    `json:"schemaVersion"` // 1
	URL           string `json:"url"`
	Page          string `json:"page,omitempty"`
	Location      string `json:"location"` // "embedded", "external", "delegated"
	TargetID      string `json:"target_id,omitempty"`
	TargetName    string `json:"target_name,omitempty"`
	Reused        bool   `json:"reused,omitempty"` // existing panel was re-navigated
	Timestamp     string `json:"timestamp"`
}

// TargetRegistered is emitted when a debug target's endpoint is reported to
// the running server.
type TargetRegistered struct {
	Type          string `json:"type"`          // "target_registered"
	SchemaVersion int    `json:"schemaVersion"` // 1
	TargetID      string `json:"target_id"`
	TargetName    string `json:"target_name,omitempty"`
	Endpoint      string `json:"endpoint"`
	Timestamp     string `json:"timestamp"`
}

// ServerExit is emitted when the tool server process terminates.
type ServerExit struct {
	Type          string `json:"type"`          // "server_exit"
	SchemaVersion int    `json:"schemaVersion"` // 1
	Code          int    `json:"code"`
	Stderr        string `json:"stderr,omitempty"`
	Retried       bool   `json:"retried,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// NewServerStarted creates a ServerStarted event.
func NewServerStarted(url, host string, port, pid int, protocolVersion string) *ServerStarted {
	return &ServerStarted{
		Type:            "server_started",
		SchemaVersion:   1,
		URL:             url,
		Host:            host,
		Port:            port,
		PID:             pid,
		ProtocolVersion: protocolVersion,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

// NewLaunch creates a Launch event.
func NewLaunch(url, page, location string, target *DebugTarget, reused bool) *Launch {
	l := &Launch{
		Type:          "launch",
		SchemaVersion: 1,
		URL:           url,
		Page:          page,
		Location:      location,
		Reused:        reused,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if target != nil {
		l.TargetID = target.ID
		l.TargetName = target.Name
	}
	return l
}

// NewTargetRegistered creates a TargetRegistered event.
func NewTargetRegistered(target *DebugTarget, endpoint string) *TargetRegistered {
	return &TargetRegistered{
		Type:          "target_registered",
		SchemaVersion: 1,
		TargetID:      target.ID,
		TargetName:    target.Name,
		Endpoint:      endpoint,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

// NewServerExit creates a ServerExit event.
func NewServerExit(code int, stderr string, retried bool) *ServerExit {
	return &ServerExit{
		Type:          "server_exit",
		SchemaVersion: 1,
		Code:          code,
		Stderr:        stderr,
		Retried:       retried,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}
