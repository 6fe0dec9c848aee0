// Package proc owns spawning and supervising the backing tool-server
// process: strategy selection for locating the executable, pid tracking for
// forced termination, and a bounded one-shot reinstall-and-retry policy on
// abnormal exit.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// restartDelay is how long to wait before respawning after an accepted
// retry, giving a crashed server time to release its port.
const restartDelay = 2 * time.Second

// Installer reinstalls the backing tool package before a retry respawn.
type Installer interface {
	Reinstall(ctx context.Context) error
}

// ExitStatus describes how the supervised process ended.
type ExitStatus struct {
	Code   int
	Err    error
	Stderr string

	// Retried marks an exit that followed an already-spent retry respawn.
	Retried bool
}

// Callbacks connect the supervisor to its owner. All callbacks run on the
// supervisor's monitor goroutine.
type Callbacks struct {
	// OnSpawn fires after every successful spawn (including a retry
	// respawn) with the child's pid and its standard streams. It runs with
	// the supervisor's lock held and must not call back into the
	// Supervisor; deferring such calls to another goroutine is fine.
	OnSpawn func(pid int, stdin io.WriteCloser, stdout io.Reader)

	// OfferRetry asks the owner whether to reinstall and respawn after an
	// abnormal exit. It is consulted at most once per eligibility window;
	// eligibility resets when the owner calls ResetRetry.
	OfferRetry func(status ExitStatus) bool

	// OnExit fires when the process is definitively down for this
	// supervisor: cause is nil on clean exit, *ExitError on abnormal exit,
	// *InstallError when the retry's reinstall failed.
	OnExit func(status ExitStatus, cause error)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock substitutes the clock used for the restart delay.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithRestartDelay overrides the delay before a retry respawn.
func WithRestartDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.restartDelay = d }
}

// WithInstaller sets the package installer used on retry.
func WithInstaller(i Installer) Option {
	return func(s *Supervisor) { s.installer = i }
}

// WithExtraArgs supplies per-spawn arguments appended to the invocation's
// base args, recomputed on every spawn (used for the port preference).
func WithExtraArgs(fn func() []string) Option {
	return func(s *Supervisor) { s.extraArgs = fn }
}

// Supervisor spawns the tool-server process for one session and tracks its
// lifecycle. It is safe for concurrent use.
type Supervisor struct {
	inv          Invocation
	callbacks    Callbacks
	ports        *PortState
	installer    Installer
	extraArgs    func() []string
	clock        clock.Clock
	restartDelay time.Duration
	log          *zap.Logger

	mu           sync.Mutex
	cmd          *exec.Cmd
	stderrBuf    string
	stderrDone   chan struct{}
	pids         []int
	started      bool
	retryOffered bool
	disposed     bool
}

// NewSupervisor creates a supervisor for the given invocation. The port
// state is shared process-wide and reset on abnormal exit.
func NewSupervisor(inv Invocation, ports *PortState, cb Callbacks, log *zap.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if ports == nil {
		ports = &PortState{}
	}
	s := &Supervisor{
		inv:          inv,
		callbacks:    cb,
		ports:        ports,
		clock:        clock.New(),
		restartDelay: restartDelay,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the process. It may only be called once per supervisor.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	return s.spawnLocked(ctx)
}

// spawnLocked starts the child and its monitor goroutines. Must hold mu.
func (s *Supervisor) spawnLocked(ctx context.Context) error {
	args := append([]string{}, s.inv.BaseArgs...)
	if s.extraArgs != nil {
		args = append(args, s.extraArgs()...)
	}

	s.log.Debug("spawning tool server",
		zap.String("strategy", s.inv.Kind.String()),
		zap.String("executable", s.inv.Executable),
		zap.Strings("args", args))

	cmd := exec.Command(s.inv.Executable, args...)
	cmd.Dir = s.inv.Dir
	if len(s.inv.Env) > 0 {
		cmd.Env = append(os.Environ(), s.inv.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %s: %w", s.inv.Executable, err)
	}

	pid := cmd.Process.Pid
	s.cmd = cmd
	s.stderrBuf = ""
	s.stderrDone = make(chan struct{})
	s.pids = append(s.pids, pid)

	s.log.Info("tool server spawned", zap.Int("pid", pid))

	go s.drainStderr(stderr, s.stderrDone)
	go s.monitorExit(ctx, cmd, s.stderrDone)

	if s.callbacks.OnSpawn != nil {
		s.callbacks.OnSpawn(pid, stdin, stdout)
	}
	return nil
}

// TrackPID adds a pid to the termination list. The handshake notification
// reports the server's own pid, which can differ from the spawned process
// when the tool launches through a runner.
func (s *Supervisor) TrackPID(pid int) {
	if pid <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pids {
		if p == pid {
			return
		}
	}
	s.pids = append(s.pids, pid)
}

// PIDs returns a copy of the termination list.
func (s *Supervisor) PIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int{}, s.pids...)
}

// ResetRetry makes the one-shot retry available again. Called by the owner
// on every successful transition to running, so a later unrelated crash is
// again eligible for one retry.
func (s *Supervisor) ResetRetry() {
	s.mu.Lock()
	s.retryOffered = false
	s.mu.Unlock()
}

// Strategy returns the selected launch strategy.
func (s *Supervisor) Strategy() StrategyKind {
	return s.inv.Kind
}

// Dispose force-terminates the whole tracked process tree and drains the
// pid list. Safe to call more than once.
func (s *Supervisor) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	pids := s.pids
	s.pids = nil
	s.mu.Unlock()

	for _, pid := range pids {
		if p, err := os.FindProcess(pid); err == nil {
			if killErr := p.Kill(); killErr != nil {
				s.log.Debug("kill failed (process may be gone)", zap.Int("pid", pid), zap.Error(killErr))
			}
		}
	}
}

// drainStderr captures stderr so exit reporting can include it.
func (s *Supervisor) drainStderr(r io.ReadCloser, done chan struct{}) {
	defer close(done)
	data, err := io.ReadAll(r)
	if err != nil {
		s.log.Debug("stderr read ended", zap.Error(err))
	}
	if len(data) > 0 {
		s.mu.Lock()
		s.stderrBuf = strings.TrimSpace(string(data))
		s.mu.Unlock()
	}
}

// monitorExit is the sole caller of cmd.Wait for its spawn.
func (s *Supervisor) monitorExit(ctx context.Context, cmd *exec.Cmd, stderrDone chan struct{}) {
	waitErr := cmd.Wait()
	<-stderrDone

	s.mu.Lock()
	stderr := s.stderrBuf
	disposed := s.disposed
	s.mu.Unlock()

	code := exitCode(waitErr)
	status := ExitStatus{Code: code, Err: waitErr, Stderr: stderr}

	if disposed {
		s.log.Debug("process exited after dispose", zap.Int("code", code))
		return
	}

	if code == 0 {
		s.log.Info("tool server exited cleanly")
		s.emitExit(status, nil)
		return
	}

	// A dead server's port must not be preferred by the next start.
	s.ports.Reset()
	s.log.Warn("tool server exited abnormally", zap.Int("code", code), zap.String("stderr", stderr))

	s.mu.Lock()
	offered := s.retryOffered
	s.retryOffered = true
	s.mu.Unlock()
	status.Retried = offered

	if !offered && s.callbacks.OfferRetry != nil && s.callbacks.OfferRetry(status) {
		if err := s.reinstallAndRespawn(ctx); err != nil {
			s.emitExit(status, err)
		}
		return
	}

	s.emitExit(status, &ExitError{Code: code, Stderr: stderr})
}

// reinstallAndRespawn runs the accepted retry: synchronous package
// reinstall, a short delay, then a fresh spawn.
func (s *Supervisor) reinstallAndRespawn(ctx context.Context) error {
	if s.installer != nil {
		s.log.Info("reinstalling tool package before retry")
		if err := s.installer.Reinstall(ctx); err != nil {
			return &InstallError{Err: err}
		}
	}

	if s.restartDelay > 0 {
		s.clock.Sleep(s.restartDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if err := s.spawnLocked(ctx); err != nil {
		return fmt.Errorf("retry respawn: %w", err)
	}
	return nil
}

func (s *Supervisor) emitExit(status ExitStatus, cause error) {
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(status, cause)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
