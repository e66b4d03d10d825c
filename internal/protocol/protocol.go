package protocol

import (
	"encoding/json"

	"github.com/sasportasjordan/gladia-use-case/internal/audio"
)

// Inbound frame types
const (
	TypeTranscript         = "transcript"
	TypePostSummarization  = "post_summarization"
	TypePostChapterization = "post_chapterization"
)

// Outbound control frame types
const (
	TypeStopRecording = "stop_recording"
)

// Features holds the processing options requested for a live session
type Features struct {
	SentimentAnalysis bool
	Summarization     bool
	SummarizationType string
	Chapterization    bool
	Callback          bool
	CallbackURL       string
}

// SessionConfig is the audio descriptor plus requested features. It is sent
// verbatim as the handshake body and stays read-only afterwards.
type SessionConfig struct {
	Audio    audio.Descriptor
	Features Features
}

// NewSessionConfig combines a descriptor with the requested features
func NewSessionConfig(desc audio.Descriptor, features Features) SessionConfig {
	return SessionConfig{
		Audio:    desc,
		Features: features,
	}
}

// Wire layout of the handshake body
type (
	sessionConfigBody struct {
		Encoding           audio.Encoding         `json:"encoding"`
		SampleRate         uint32                 `json:"sample_rate"`
		Channels           uint16                 `json:"channels"`
		BitDepth           uint16                 `json:"bit_depth"`
		RealtimeProcessing realtimeProcessingBody `json:"realtime_processing"`
		PostProcessing     postProcessingBody     `json:"post_processing"`
		Callback           bool                   `json:"callback"`
		CallbackConfig     *callbackConfigBody    `json:"callback_config,omitempty"`
	}

	realtimeProcessingBody struct {
		SentimentAnalysis bool `json:"sentiment_analysis"`
	}

	postProcessingBody struct {
		Summarization       bool                     `json:"summarization"`
		SummarizationConfig *summarizationConfigBody `json:"summarization_config,omitempty"`
		Chapterization      bool                     `json:"chapterization"`
	}

	summarizationConfigBody struct {
		Type string `json:"type,omitempty"`
	}

	callbackConfigBody struct {
		URL                       string `json:"url"`
		ReceiveFinalTranscripts   bool   `json:"receive_final_transcripts"`
		ReceivePartialTranscripts bool   `json:"receive_partial_transcripts"`
	}
)

// MarshalJSON encodes the config as the handshake request body
func (c SessionConfig) MarshalJSON() ([]byte, error) {
	body := sessionConfigBody{
		Encoding:   c.Audio.Encoding,
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		BitDepth:   c.Audio.BitDepth,
		RealtimeProcessing: realtimeProcessingBody{
			SentimentAnalysis: c.Features.SentimentAnalysis,
		},
		PostProcessing: postProcessingBody{
			Summarization:  c.Features.Summarization,
			Chapterization: c.Features.Chapterization,
		},
		Callback: c.Features.Callback,
	}

	if c.Features.Summarization {
		body.PostProcessing.SummarizationConfig = &summarizationConfigBody{
			Type: c.Features.SummarizationType,
		}
	}

	if c.Features.Callback && c.Features.CallbackURL != "" {
		body.CallbackConfig = &callbackConfigBody{
			URL:                       c.Features.CallbackURL,
			ReceiveFinalTranscripts:   true,
			ReceivePartialTranscripts: true,
		}
	}

	return json.Marshal(body)
}

type controlFrame struct {
	Type string `json:"type"`
}

// StopRecordingFrame returns the control frame that ends the audio stream
func StopRecordingFrame() []byte {
	frame, _ := json.Marshal(controlFrame{Type: TypeStopRecording})
	return frame
}
