// Package server implements the optional status API of the streaming client.
// It reports health, live session statistics, sanitized configuration and
// Prometheus metrics while a recording is being streamed.
package server
