package output

import "github.com/sasportasjordan/gladia-use-case/internal/protocol"

// Sink receives events in delivery order
type Sink interface {
	Deliver(event protocol.Event)
}

// Multi delivers every event to each sink in order
type Multi []Sink

// Deliver forwards the event
func (m Multi) Deliver(event protocol.Event) {
	for _, sink := range m {
		sink.Deliver(event)
	}
}

// SinkFunc adapts a function to Sink
type SinkFunc func(event protocol.Event)

// Deliver calls f
func (f SinkFunc) Deliver(event protocol.Event) {
	f(event)
}
