package transport

import (
	"context"
	"fmt"
)

// Close codes
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Handlers receive inbound traffic from a Conn. Both may be nil.
type Handlers struct {
	// OnMessage is called for every inbound text or binary message
	OnMessage func(data []byte)

	// OnClose is called at most once, when the connection ends for any
	// reason other than Detach or Close
	OnClose func(code int, reason string)
}

// Conn is an open bidirectional message socket
type Conn interface {
	WriteBinary(data []byte) error
	WriteText(data []byte) error

	// Detach stops handler delivery. Once it returns no handler is running
	// and none will run again. Must not be called from inside a handler.
	Detach()

	// Close sends a normal closure and releases the socket. Safe to call
	// more than once.
	Close() error
}

// Dialer opens connections. Dial returns once the connection is open or has
// failed; it never resolves both ways.
type Dialer interface {
	Dial(ctx context.Context, url string, handlers Handlers) (Conn, error)
}

// ConnectionError reports a connection that failed before opening
type ConnectionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("couldn't connect to the server: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("couldn't connect to the server: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
