// Package devtools models one running instance of the backing tool server:
// its process, its line-JSON control protocol, and the typed operations the
// rest of the program issues against it.
package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vburojevic/dth/internal/proc"
	"github.com/vburojevic/dth/internal/rpc"
)

// Protocol method and event names spoken with the server.
const (
	eventServerStarted       = "server.started"
	methodRegister           = "vm.register"
	methodDiscoverExtensions = "vscode.extensions.discover"
)

// State is the session lifecycle state.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrNotRunning indicates a typed operation was issued before the
	// server reported its address or after it stopped.
	ErrNotRunning = errors.New("tool server not running")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("session already started")
)

// ServerInfo is the payload of the server.started handshake notification.
type ServerInfo struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	PID             int    `json:"pid"`
	ProtocolVersion string `json:"protocolVersion"`
}

// ExtensionEntry is one matched extension from discovery.
type ExtensionEntry struct {
	PackageName string         `json:"packageName"`
	Extension   map[string]any `json:"extension"`
}

// ParseError is a package whose extension manifest failed to parse.
type ParseError struct {
	PackageName string `json:"packageName"`
	Error       string `json:"error"`
}

// ExtensionResults groups discovery output for one project root.
type ExtensionResults struct {
	Extensions  []ExtensionEntry `json:"extensions"`
	ParseErrors []ParseError     `json:"parseErrors"`
}

// Config assembles a session's collaborators.
type Config struct {
	Invocation proc.Invocation

	// Ports is the process-wide remembered-port state shared across
	// session replacements.
	Ports *proc.PortState

	// PortOverride pins the server to a fixed port; it wins over the
	// remembered port.
	PortOverride int

	// Installer reinstalls the tool package when a retry is accepted.
	Installer proc.Installer

	// OfferRetry asks the user whether to retry after an abnormal exit.
	OfferRetry func(proc.ExitStatus) bool

	Log *zap.Logger

	// SupervisorOpts are extra supervisor options (clock, delays) used by
	// tests.
	SupervisorOpts []proc.Option
}

// Session composes a Supervisor and an rpc client into a single server
// instance with a NotStarted -> Starting -> Running -> Stopped lifecycle.
// A stopped session is never restarted; the coordinator replaces it.
type Session struct {
	cfg Config
	log *zap.Logger
	sup *proc.Supervisor

	state atomic.Int32

	mu       sync.Mutex
	client   *rpc.Client
	info     ServerInfo
	baseURL  string
	startErr error
	exit     proc.ExitStatus
	exited   bool

	started     chan struct{}
	startedOnce sync.Once
	done        chan struct{}
	doneOnce    sync.Once
}

// NewSession creates a session; nothing is spawned until Start.
func NewSession(cfg Config) *Session {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Ports == nil {
		cfg.Ports = &proc.PortState{}
	}

	s := &Session{
		cfg:     cfg,
		log:     cfg.Log,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateNotStarted))

	opts := append([]proc.Option{}, cfg.SupervisorOpts...)
	if cfg.Installer != nil {
		opts = append(opts, proc.WithInstaller(cfg.Installer))
	}
	opts = append(opts, proc.WithExtraArgs(s.portArgs))

	s.sup = proc.NewSupervisor(cfg.Invocation, cfg.Ports, proc.Callbacks{
		OnSpawn:    s.attach,
		OfferRetry: cfg.OfferRetry,
		OnExit:     s.onExit,
	}, cfg.Log, opts...)

	return s
}

// portArgs computes the port request for each spawn: the configured
// override wins, then the port remembered from the previous successful
// start, then none.
func (s *Session) portArgs() []string {
	if s.cfg.PortOverride > 0 {
		return []string{fmt.Sprintf("--port=%d", s.cfg.PortOverride)}
	}
	if p := s.cfg.Ports.Preferred(); p != proc.NoPreference {
		return []string{fmt.Sprintf("--port=%d", p)}
	}
	return nil
}

// Start spawns the server and blocks until it reports its bound address,
// the process dies, or ctx is cancelled. On success it returns the base
// URL. There is no startup timeout beyond ctx.
func (s *Session) Start(ctx context.Context) (string, error) {
	if !s.state.CompareAndSwap(int32(StateNotStarted), int32(StateStarting)) {
		switch s.State() {
		case StateRunning:
			url, _ := s.BaseURL()
			return url, nil
		case StateStarting:
			return s.waitStarted(ctx)
		default:
			return "", ErrAlreadyStarted
		}
	}

	if err := s.sup.Start(ctx); err != nil {
		s.fail(err)
		return "", err
	}

	return s.waitStarted(ctx)
}

func (s *Session) waitStarted(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.started:
		url, _ := s.BaseURL()
		return url, nil
	case <-s.done:
		s.mu.Lock()
		err := s.startErr
		s.mu.Unlock()
		if err == nil {
			err = errors.New("tool server exited before reporting its address")
		}
		return "", err
	}
}

// attach wires a fresh rpc client to a newly spawned process. Runs as the
// supervisor's OnSpawn callback; it defers supervisor calls to the
// handshake handler.
func (s *Session) attach(pid int, stdin io.WriteCloser, stdout io.Reader) {
	client := rpc.NewClient(stdin, classifyFrame, s.log)
	client.Subscribe([]string{eventServerStarted}, s.handleServerStarted)
	client.Start(stdout)

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()

	if old != nil {
		old.Close(rpc.ErrProcessExited)
	}
	s.log.Debug("protocol client attached", zap.Int("pid", pid))
}

// classifyFrame treats frames with an event field as notifications; older
// servers report the handshake as a method instead.
func classifyFrame(frame []byte) (string, bool) {
	if ev := gjson.GetBytes(frame, "event"); ev.Exists() {
		return ev.String(), true
	}
	if gjson.GetBytes(frame, "method").String() == eventServerStarted {
		return eventServerStarted, true
	}
	return "", false
}

// handleServerStarted performs the Starting -> Running transition.
func (s *Session) handleServerStarted(_ string, payload json.RawMessage) {
	var info ServerInfo
	if err := json.Unmarshal(payload, &info); err != nil || info.Port <= 0 {
		s.log.Warn("ignoring malformed server.started handshake",
			zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	if info.Host == "" {
		info.Host = "127.0.0.1"
	}

	s.mu.Lock()
	s.info = info
	s.baseURL = fmt.Sprintf("http://%s:%d/", info.Host, info.Port)
	url := s.baseURL
	s.mu.Unlock()

	// The handshake may report a pid for a second-level process spawned by
	// a runner; both must be terminated on dispose.
	s.sup.TrackPID(info.PID)
	s.cfg.Ports.Set(info.Port)
	// A healthy start makes a later unrelated crash eligible for one retry
	// again.
	s.sup.ResetRetry()

	s.state.Store(int32(StateRunning))
	s.startedOnce.Do(func() { close(s.started) })

	s.log.Info("tool server running",
		zap.String("url", url),
		zap.Int("pid", info.PID),
		zap.String("protocolVersion", info.ProtocolVersion))
}

// onExit records the terminal outcome and moves the session to Stopped.
func (s *Session) onExit(status proc.ExitStatus, cause error) {
	s.mu.Lock()
	s.exit = status
	s.exited = true
	s.mu.Unlock()
	s.fail(cause)
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.startErr == nil {
		s.startErr = cause
	}
	s.baseURL = ""
	client := s.client
	s.mu.Unlock()

	s.state.Store(int32(StateStopped))
	if client != nil {
		client.Close(rpc.ErrProcessExited)
	}
	s.doneOnce.Do(func() { close(s.done) })
}

// Register reports a debug target's live endpoint to the server. The server
// treats re-registration of the same endpoint as a no-op, so callers may
// register without deduplicating.
func (s *Session) Register(ctx context.Context, endpointURI string) error {
	client, err := s.runningClient()
	if err != nil {
		return err
	}
	_, err = client.Call(ctx, methodRegister, struct {
		URI string `json:"uri"`
	}{endpointURI})
	return err
}

// DiscoverExtensions asks the server which tool extensions the given
// project roots provide.
func (s *Session) DiscoverExtensions(ctx context.Context, rootPaths []string) (map[string]ExtensionResults, error) {
	client, err := s.runningClient()
	if err != nil {
		return nil, err
	}
	raw, err := client.Call(ctx, methodDiscoverExtensions, struct {
		RootPaths []string `json:"rootPaths"`
	}{rootPaths})
	if err != nil {
		return nil, err
	}

	results := make(map[string]ExtensionResults)
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode discovery result: %w", err)
	}
	return results, nil
}

func (s *Session) runningClient() (*rpc.Client, error) {
	if s.State() != StateRunning {
		return nil, ErrNotRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotRunning
	}
	return s.client, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// BaseURL returns the server's base URL once Running.
func (s *Session) BaseURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL, s.baseURL != ""
}

// Info returns the handshake payload (zero value before Running).
func (s *Session) Info() ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SupportsPathURLs reports whether the server routes pages as URL path
// segments, available from protocol version 1.1.
func (s *Session) SupportsPathURLs() bool {
	return versionAtLeast(s.Info().ProtocolVersion, "1.1.0")
}

// Done is closed when the session reaches Stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ExitStatus reports how the backing process ended. ok is false until the
// process has actually exited.
func (s *Session) ExitStatus() (proc.ExitStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit, s.exited
}

// PIDs exposes the termination list for diagnostics.
func (s *Session) PIDs() []int {
	return s.sup.PIDs()
}

// Stop tears the session down: the tracked process tree is force-killed and
// the session moves to Stopped.
func (s *Session) Stop() {
	s.sup.Dispose()
	s.fail(nil)
}
