// Package transcription implements the live session handshake.
// It posts the session config with the API key and returns the streaming URL.
// Each handshake is a single attempt; retry policy belongs to the caller.
package transcription
