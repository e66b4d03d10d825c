package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NoChannel labels transcripts of single-channel streams
const NoChannel = -1

// ErrIgnoredFrame marks inbound frames that carry no event. Callers drop them.
var ErrIgnoredFrame = errors.New("ignored frame")

// Event is a decoded inbound frame. The set of implementations is closed.
type Event interface {
	Type() string
	isEvent()
}

// PartialTranscript is an interim result. It replaces any earlier partial
// that was not yet confirmed.
type PartialTranscript struct {
	Channel int    `json:"channel"`
	Text    string `json:"text"`
}

// FinalTranscript is a confirmed utterance
type FinalTranscript struct {
	Channel int    `json:"channel"`
	Text    string `json:"text"`
}

// SummarizationResult carries the summary produced after the stream ends
type SummarizationResult struct {
	Text string `json:"text"`
}

// Chapter is one segment of a chapterization result
type Chapter struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Gist     string `json:"gist"`
}

// ChapterizationResult carries chapters produced after the stream ends
type ChapterizationResult struct {
	Chapters []Chapter `json:"chapters"`
}

func (PartialTranscript) Type() string    { return "partial_transcript" }
func (FinalTranscript) Type() string      { return "final_transcript" }
func (SummarizationResult) Type() string  { return "summarization" }
func (ChapterizationResult) Type() string { return "chapterization" }

func (PartialTranscript) isEvent()    {}
func (FinalTranscript) isEvent()      {}
func (SummarizationResult) isEvent()  {}
func (ChapterizationResult) isEvent() {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptData struct {
	IsFinal   bool `json:"is_final"`
	Utterance *struct {
		Channel int    `json:"channel"`
		Text    string `json:"text"`
	} `json:"utterance"`
}

type resultsData struct {
	Results json.RawMessage `json:"results"`
}

// Decode parses an inbound frame. channels is the channel count announced in
// the session config; with a single channel transcripts are labelled
// NoChannel. Frames of unknown type or with a malformed body return an error
// wrapping ErrIgnoredFrame.
func Decode(frame []byte, channels int) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIgnoredFrame, err)
	}

	switch env.Type {
	case TypeTranscript:
		return decodeTranscript(env.Data, channels)
	case TypePostSummarization:
		return decodeSummarization(env.Data)
	case TypePostChapterization:
		return decodeChapterization(env.Data)
	default:
		return nil, fmt.Errorf("%w: type %q", ErrIgnoredFrame, env.Type)
	}
}

func decodeTranscript(raw json.RawMessage, channels int) (Event, error) {
	var data transcriptData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: transcript: %v", ErrIgnoredFrame, err)
	}
	if data.Utterance == nil {
		return nil, fmt.Errorf("%w: transcript without utterance", ErrIgnoredFrame)
	}

	channel := NoChannel
	if channels > 1 {
		channel = data.Utterance.Channel
	}

	if data.IsFinal {
		return FinalTranscript{Channel: channel, Text: data.Utterance.Text}, nil
	}
	return PartialTranscript{Channel: channel, Text: data.Utterance.Text}, nil
}

func decodeSummarization(raw json.RawMessage) (Event, error) {
	results, err := decodeResults(raw)
	if err != nil {
		return nil, err
	}
	return SummarizationResult{Text: rawText(results)}, nil
}

func decodeChapterization(raw json.RawMessage) (Event, error) {
	results, err := decodeResults(raw)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(results, &items); err != nil || items == nil {
		return ChapterizationResult{
			Chapters: []Chapter{{Summary: rawText(results)}},
		}, nil
	}

	chapters := make([]Chapter, 0, len(items))
	for _, item := range items {
		chapters = append(chapters, decodeChapter(item))
	}
	return ChapterizationResult{Chapters: chapters}, nil
}

// decodeChapter renders fields that are not strings as their JSON text. An
// element that is not an object becomes the chapter summary.
func decodeChapter(raw json.RawMessage) Chapter {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Chapter{Summary: rawText(raw)}
	}
	return Chapter{
		Headline: fieldText(fields["headline"]),
		Summary:  fieldText(fields["summary"]),
		Gist:     fieldText(fields["gist"]),
	}
}

func fieldText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return rawText(raw)
}

func decodeResults(raw json.RawMessage) (json.RawMessage, error) {
	var data resultsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: results: %v", ErrIgnoredFrame, err)
	}
	return data.Results, nil
}

// rawText returns a JSON string value unquoted and anything else as its JSON text
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
