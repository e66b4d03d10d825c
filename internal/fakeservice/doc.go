// Package fakeservice emulates the live transcription API for tests and
// local runs. It serves the handshake and the websocket stream, records what
// the client sends and replays scripted events.
package fakeservice
