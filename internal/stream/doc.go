// Package stream provides the live streaming session and its lifecycle.
// A session negotiates an endpoint, opens the transport, paces audio frames
// against wall-clock time and routes decoded events to a sink until the
// server closes the stream or the caller stops it.
package stream
