package push

import "errors"

// Sentinel errors returned by Session and Client operations.
var (
	// ErrAlreadyStarted is returned by Start when the session's socket is
	// already live.
	ErrAlreadyStarted = errors.New("push: session already started")

	// ErrSessionClosed is returned by operations attempted on a stopped
	// session.
	ErrSessionClosed = errors.New("push: session closed")

	// ErrNoMonitorID is returned by CreateSession when no monitor id was
	// supplied.
	ErrNoMonitorID = errors.New("push: monitor id must be provided")

	// ErrClientClosed is returned by CreateSession once StopAll has been
	// called.
	ErrClientClosed = errors.New("push: client closed")
)

// TransportError wraps a socket open/read/write failure. The session's
// socket has already been closed and cleared by the time this is
// returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "push: transport: " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// HandshakeError reports a failed ConnectionRequest/ConnectionResponse
// exchange: a short read, an unexpected frame type, or a non-200 status.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string { return "push: handshake failed: " + e.Reason }

// ProtocolError reports an unexpected frame encountered in steady state.
// It is logged and the frame is skipped; it never propagates to a caller.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "push: protocol error: " + e.Reason }
