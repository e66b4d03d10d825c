package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Container markers
const (
	riffMarker = "RIFF"
	waveMarker = "WAVE"
	fmtMarker  = "fmt "
	dataMarker = "data"

	// fmt sub-chunk body starts right after "fmt " and its size field
	fmtBodyOffset   = 20
	minFmtChunkSize = 16

	// StreamChannels is the channel count announced for every stream,
	// whatever the container header says.
	StreamChannels uint16 = 2
)

// Encoding identifies the sample encoding in the wire format expected by the
// live transcription API.
type Encoding string

const (
	EncodingPCM  Encoding = "wav/pcm"
	EncodingALaw Encoding = "wav/alaw"
	EncodingULaw Encoding = "wav/ulaw"
)

// Format codes found in the fmt sub-chunk
const (
	FormatCodePCM  uint16 = 1
	FormatCodeALaw uint16 = 6
	FormatCodeULaw uint16 = 7
)

// Descriptor describes the audio carried by a container
type Descriptor struct {
	Encoding   Encoding `json:"encoding"`
	SampleRate uint32   `json:"sample_rate"`
	Channels   uint16   `json:"channels"`
	BitDepth   uint16   `json:"bit_depth"`

	// HeaderChannels is the channel count declared in the fmt sub-chunk.
	// Channels is pinned to StreamChannels and does not follow it.
	HeaderChannels uint16 `json:"-"`
}

// SampleData is the payload of the container's data sub-chunk. It borrows
// the buffer given to Demux and must not be modified.
type SampleData []byte

// FormatError reports a buffer that is not a usable RIFF/WAVE container
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Reason
}

// UnsupportedEncodingError reports a format code outside PCM, A-law and µ-law
type UnsupportedEncodingError struct {
	FormatCode uint16
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported encoding: format code %d", e.FormatCode)
}

// Demux parses a RIFF/WAVE buffer into its audio descriptor and sample data.
// No partial result is returned on error.
func Demux(data []byte) (*Descriptor, SampleData, error) {
	if len(data) < 16 ||
		string(data[0:4]) != riffMarker ||
		string(data[8:12]) != waveMarker ||
		string(data[12:16]) != fmtMarker {
		return nil, nil, &FormatError{Reason: "not a recognized container"}
	}

	if len(data) < fmtBodyOffset {
		return nil, nil, &FormatError{Reason: "truncated fmt chunk"}
	}
	fmtSize := binary.LittleEndian.Uint32(data[16:20])
	if fmtSize < minFmtChunkSize {
		return nil, nil, &FormatError{Reason: fmt.Sprintf("fmt chunk too small: %d bytes", fmtSize)}
	}
	if uint64(len(data)) < fmtBodyOffset+minFmtChunkSize {
		return nil, nil, &FormatError{Reason: "truncated fmt chunk"}
	}

	body := data[fmtBodyOffset:]
	formatCode := binary.LittleEndian.Uint16(body[0:2])
	encoding, err := encodingFor(formatCode)
	if err != nil {
		return nil, nil, err
	}

	desc := &Descriptor{
		Encoding:       encoding,
		HeaderChannels: binary.LittleEndian.Uint16(body[2:4]),
		Channels:       StreamChannels,
		SampleRate:     binary.LittleEndian.Uint32(body[4:8]),
		BitDepth:       binary.LittleEndian.Uint16(body[14:16]),
	}

	start, length, err := findDataChunk(data, uint64(fmtBodyOffset)+uint64(fmtSize))
	if err != nil {
		return nil, nil, err
	}

	return desc, SampleData(data[start : start+length]), nil
}

func encodingFor(formatCode uint16) (Encoding, error) {
	switch formatCode {
	case FormatCodePCM:
		return EncodingPCM, nil
	case FormatCodeALaw:
		return EncodingALaw, nil
	case FormatCodeULaw:
		return EncodingULaw, nil
	default:
		return "", &UnsupportedEncodingError{FormatCode: formatCode}
	}
}

// findDataChunk walks the sub-chunks starting at offset and returns the
// bounds of the data payload. A declared length past the end of the buffer
// is clamped to what is available.
func findDataChunk(data []byte, offset uint64) (int, int, error) {
	size := uint64(len(data))
	for {
		if offset+8 > size {
			return 0, 0, &FormatError{Reason: "no data chunk found"}
		}

		tag := string(data[offset : offset+4])
		chunkLen := uint64(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if tag == dataMarker {
			start := offset + 8
			if start+chunkLen > size {
				chunkLen = size - start
			}
			return int(start), int(chunkLen), nil
		}

		offset += 8 + chunkLen
	}
}

// WithHeaderChannels returns a copy of the descriptor that announces the
// channel count declared in the container header.
func (d Descriptor) WithHeaderChannels() Descriptor {
	if d.HeaderChannels > 0 {
		d.Channels = d.HeaderChannels
	}
	return d
}

// BytesPerSecond returns the byte rate of the stream as announced
func (d Descriptor) BytesPerSecond() float64 {
	bytesPerSample := float64(d.BitDepth) / 8
	return float64(d.SampleRate) * float64(d.Channels) * bytesPerSample
}

// Duration returns the playback time of n bytes of sample data
func (d Descriptor) Duration(n int) time.Duration {
	bps := d.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(n) / bps * float64(time.Second))
}

// Chunk is an extra sub-chunk written between fmt and data by EncodeWAV
type Chunk struct {
	Tag  string
	Data []byte
}

// EncodeWAV builds a container with a canonical 16-byte fmt sub-chunk, the
// given extra chunks, then the data sub-chunk.
func EncodeWAV(formatCode uint16, channels uint16, sampleRate uint32, bitDepth uint16, samples []byte, extra ...Chunk) ([]byte, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}
	if channels == 0 {
		return nil, fmt.Errorf("channel count must be positive")
	}

	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)

	var chunks bytes.Buffer
	for _, c := range extra {
		if len(c.Tag) != 4 {
			return nil, fmt.Errorf("chunk tag must be 4 bytes, got %q", c.Tag)
		}
		chunks.WriteString(c.Tag)
		binary.Write(&chunks, binary.LittleEndian, uint32(len(c.Data)))
		chunks.Write(c.Data)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+chunks.Len()+len(samples)))
	buf.WriteString(riffMarker)
	binary.Write(buf, binary.LittleEndian, uint32(36+chunks.Len()+len(samples)))
	buf.WriteString(waveMarker)

	buf.WriteString(fmtMarker)
	fields := []any{
		uint32(minFmtChunkSize),
		formatCode,
		channels,
		sampleRate,
		byteRate,
		blockAlign,
		bitDepth,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("failed to write fmt chunk: %w", err)
		}
	}

	buf.Write(chunks.Bytes())

	buf.WriteString(dataMarker)
	binary.Write(buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)

	return buf.Bytes(), nil
}
