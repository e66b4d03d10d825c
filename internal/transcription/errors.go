package transcription

import "fmt"

// NetworkError reports a handshake that failed in transport or returned a
// non-success status. StatusCode is zero when no response was received.
type NetworkError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("network error: %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("network error: %d: %s", e.StatusCode, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a handshake response that could not be used
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}
