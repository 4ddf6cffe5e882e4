package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchTimeout is returned when a fetch exceeds its wall-clock limit.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrTransport is returned when the browser reports a navigation or
	// protocol failure, or a session cannot be opened.
	ErrTransport = errors.New("browser transport error")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("session pool closed")
)

// IsTransient reports whether err is worth retrying: timeouts and transport
// failures are, cancellation and closed pools are not.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFetchTimeout) || errors.Is(err, ErrTransport)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// OverrunError is returned by Fetch when it gave up on a session call that
// was still running. The session and whatever capacity it stands for stay in
// use until Settled is closed.
type OverrunError struct {
	err     error
	settled <-chan struct{}
}

func (e *OverrunError) Error() string { return e.err.Error() }

func (e *OverrunError) Unwrap() error { return e.err }

// Settled is closed once the abandoned session call has returned.
func (e *OverrunError) Settled() <-chan struct{} { return e.settled }
