package proc

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted indicates the supervisor already spawned its process.
	ErrAlreadyStarted = errors.New("supervisor already started")

	// ErrDisposed indicates the supervisor was disposed.
	ErrDisposed = errors.New("supervisor disposed")
)

// ExitError reports an abnormal process exit that is terminal for this
// start attempt.
type ExitError struct {
	Code   int
	Stderr string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("tool server exited with code %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("tool server exited with code %d", e.Code)
}

// InstallError reports that reinstalling the backing package failed.
// Fatal for the start attempt; no further retry is offered.
type InstallError struct {
	Err error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	return fmt.Sprintf("tool package install failed: %v", e.Err)
}

// Unwrap exposes the underlying install failure.
func (e *InstallError) Unwrap() error { return e.Err }
