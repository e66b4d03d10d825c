// Package protocol implements the live transcription wire format.
// It encodes the handshake body and outbound control frames, and decodes
// inbound JSON envelopes into transcript, summarization and chapter events.
package protocol
