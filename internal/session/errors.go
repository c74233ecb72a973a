package session

import "errors"

var (
	// ErrParameterChainFailed reports a creation chain that could not be built.
	ErrParameterChainFailed = errors.New("parameter chain failed")
	// ErrInstanceCreationFailed reports a plugin that refused to create an
	// instance. The session is left inert; callers may build a new one.
	ErrInstanceCreationFailed = errors.New("instance creation failed")
	// ErrNotReady is returned by inert or closed sessions.
	ErrNotReady = errors.New("session not ready")
	// ErrTooBusy reports that the evaluation queue is full or the wait for a
	// slot timed out.
	ErrTooBusy = errors.New("session too busy")
	// ErrIncomplete marks a stream whose terminal state is not done.
	ErrIncomplete = errors.New("evaluation did not complete")
)

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool { return errors.Is(err, ErrTooBusy) }

// IsNotReady reports whether err comes from an inert or closed session.
func IsNotReady(err error) bool { return errors.Is(err, ErrNotReady) }

// IsCreateFailed reports whether err is a recoverable construction failure.
func IsCreateFailed(err error) bool {
	return errors.Is(err, ErrParameterChainFailed) || errors.Is(err, ErrInstanceCreationFailed)
}
