// Package output writes machine-readable NDJSON events: one JSON object per
// line, each carrying a type and schemaVersion.
package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/vburojevic/dth/internal/domain"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = 1

// ErrorEvent reports a failure with an optional remediation hint.
type ErrorEvent struct {
	Type          string   `json:"type"`          // "error"
	SchemaVersion int      `json:"schemaVersion"` // 1
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	Hints         []string `json:"hints,omitempty"`
	Timestamp     string   `json:"timestamp"`
}

// PageInfo lists one known tool page and whether the workspace can use it.
type PageInfo struct {
	Type          string `json:"type"`          // "page"
	SchemaVersion int    `json:"schemaVersion"` // 1
	ID            string `json:"id"`
	Title         string `json:"title"`
	Available     bool   `json:"available"`
	Reason        string `json:"reason,omitempty"`
}

// Discovery reports the extension-discovery result for one project root.
type Discovery struct {
	Type          string   `json:"type"`          // "discovery"
	SchemaVersion int      `json:"schemaVersion"` // 1
	Root          string   `json:"root"`
	Packages      []string `json:"packages"`
	ParseErrors   int      `json:"parse_errors"`
	Timestamp     string   `json:"timestamp"`
}

// NDJSONWriter serializes events onto a single stream. Writes are mutexed so
// concurrent emitters cannot interleave partial lines.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer targeting w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Write serializes any event as one line.
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// WriteError emits an error event.
func (w *NDJSONWriter) WriteError(code, message string, hints ...string) error {
	return w.Write(&ErrorEvent{
		Type:          "error",
		SchemaVersion: SchemaVersion,
		Code:          code,
		Message:       message,
		Hints:         hints,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteServerStarted emits a server_started event.
func (w *NDJSONWriter) WriteServerStarted(ev *domain.ServerStarted) error {
	return w.Write(ev)
}

// WriteServerExit emits a server_exit event.
func (w *NDJSONWriter) WriteServerExit(ev *domain.ServerExit) error {
	return w.Write(ev)
}

// WriteLaunch emits a launch event.
func (w *NDJSONWriter) WriteLaunch(ev *domain.Launch) error {
	return w.Write(ev)
}

// WriteTargetRegistered emits a target_registered event.
func (w *NDJSONWriter) WriteTargetRegistered(ev *domain.TargetRegistered) error {
	return w.Write(ev)
}

// WritePage emits one page listing entry.
func (w *NDJSONWriter) WritePage(id, title string, available bool, reason string) error {
	return w.Write(&PageInfo{
		Type:          "page",
		SchemaVersion: SchemaVersion,
		ID:            id,
		Title:         title,
		Available:     available,
		Reason:        reason,
	})
}

// WriteDiscovery emits the discovery result for one root.
func (w *NDJSONWriter) WriteDiscovery(root string, packages []string, parseErrors int) error {
	return w.Write(&Discovery{
		Type:          "discovery",
		SchemaVersion: SchemaVersion,
		Root:          root,
		Packages:      packages,
		ParseErrors:   parseErrors,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
