package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sasportasjordan/gladia-use-case/internal/audio"
	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Print the audio parameters of a WAV recording",
	Long: `Parse a WAV recording and print the parameters that would be announced
to the live API, the number of audio bytes and how the recording would be
split into frames. Nothing is sent over the network.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the handshake body as JSON")
}

// Inspection summarizes a recording as it would be streamed
type Inspection struct {
	File           string           `json:"file"`
	Descriptor     audio.Descriptor `json:"descriptor"`
	HeaderChannels uint16           `json:"header_channels"`
	DataBytes      int              `json:"data_bytes"`
	Duration       string           `json:"duration"`
	ChunkDuration  string           `json:"chunk_duration"`
	ChunkSize      int              `json:"chunk_size"`
	Chunks         int              `json:"chunks"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	desc, samples, err := readRecording(args[0])
	if err != nil {
		return err
	}
	if cfg.Streaming.TrustHeaderChannels {
		*desc = desc.WithHeaderChannels()
	}

	inspection, err := inspect(args[0], *desc, samples, cfg.Streaming.GetChunkDuration())
	if err != nil {
		return err
	}

	if inspectJSON {
		body, err := json.MarshalIndent(protocol.NewSessionConfig(*desc, cfg.Features.Protocol()), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode handshake body: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(body))
		return nil
	}

	fmt.Fprintf(os.Stdout, "File:            %s\n", inspection.File)
	fmt.Fprintf(os.Stdout, "Encoding:        %s\n", inspection.Descriptor.Encoding)
	fmt.Fprintf(os.Stdout, "Sample rate:     %d Hz\n", inspection.Descriptor.SampleRate)
	fmt.Fprintf(os.Stdout, "Channels:        %d (header: %d)\n", inspection.Descriptor.Channels, inspection.HeaderChannels)
	fmt.Fprintf(os.Stdout, "Bit depth:       %d\n", inspection.Descriptor.BitDepth)
	fmt.Fprintf(os.Stdout, "Data:            %d bytes (%s)\n", inspection.DataBytes, inspection.Duration)
	fmt.Fprintf(os.Stdout, "Frames:          %d x %d bytes per %s\n", inspection.Chunks, inspection.ChunkSize, inspection.ChunkDuration)
	return nil
}

func inspect(file string, desc audio.Descriptor, samples audio.SampleData, window time.Duration) (*Inspection, error) {
	size := audio.ChunkSize(desc, window)
	chunker, err := audio.NewChunker(samples, size)
	if err != nil {
		return nil, fmt.Errorf("cannot split %s into %v frames: %w", file, window, err)
	}

	return &Inspection{
		File:           file,
		Descriptor:     desc,
		HeaderChannels: desc.HeaderChannels,
		DataBytes:      len(samples),
		Duration:       desc.Duration(len(samples)).String(),
		ChunkDuration:  window.String(),
		ChunkSize:      size,
		Chunks:         chunker.Count(),
	}, nil
}
