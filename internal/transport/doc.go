// Package transport provides the bidirectional message socket used for live
// streaming. Dial resolves once, handlers can be detached before teardown,
// and the websocket implementation is built on gorilla/websocket.
package transport
