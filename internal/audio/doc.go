// Package audio handles RIFF/WAVE containers and the pacing of their samples.
// It extracts the encoding, sample rate and bit depth from the fmt sub-chunk,
// locates the data sub-chunk, and splits sample data into fixed-duration strides.
package audio
