package rpc

import (
	"errors"
	"fmt"
)

// Standard errors returned by the stdio client.
var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("stdio client closed")

	// ErrProcessExited indicates the backing process exited while requests
	// were still outstanding.
	ErrProcessExited = errors.New("process exited with requests outstanding")

	// ErrMalformedFrame indicates a line matched the frame predicate but
	// did not parse as JSON.
	ErrMalformedFrame = errors.New("malformed protocol frame")
)

// ServerError is an error object carried inside a response frame.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}
