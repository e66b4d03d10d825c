package audio

import (
	"fmt"
	"math"
	"time"
)

// DefaultChunkDuration is the amount of audio carried by one outbound frame
const DefaultChunkDuration = 50 * time.Millisecond

// ChunkSize returns the number of bytes covering window of audio for the
// descriptor, rounded to the nearest byte.
func ChunkSize(desc Descriptor, window time.Duration) int {
	return int(math.Round(window.Seconds() * desc.BytesPerSecond()))
}

// Chunker splits sample data into fixed strides in increasing offset order.
// The last stride may be shorter and is returned as-is.
type Chunker struct {
	data   SampleData
	size   int
	offset int
	index  int
}

// AudioChunk is one stride of sample data
type AudioChunk struct {
	Index  int
	Offset int
	Data   []byte
}

// NewChunker creates a chunker producing strides of size bytes
func NewChunker(data SampleData, size int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}

	return &Chunker{
		data: data,
		size: size,
	}, nil
}

// Next returns the next stride, or false once the data is exhausted
func (c *Chunker) Next() (AudioChunk, bool) {
	if c.offset >= len(c.data) {
		return AudioChunk{}, false
	}

	end := c.offset + c.size
	if end > len(c.data) {
		end = len(c.data)
	}

	chunk := AudioChunk{
		Index:  c.index,
		Offset: c.offset,
		Data:   c.data[c.offset:end:end],
	}
	c.offset = end
	c.index++

	return chunk, true
}

// Remaining returns the number of bytes not yet handed out
func (c *Chunker) Remaining() int {
	return len(c.data) - c.offset
}

// Count returns the total number of strides the data splits into
func (c *Chunker) Count() int {
	return (len(c.data) + c.size - 1) / c.size
}
