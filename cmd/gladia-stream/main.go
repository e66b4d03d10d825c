// Package main provides the gladia-stream CLI tool.
//
// Usage:
//
//	gladia-stream [flags] <command> [args]
//
// Commands:
//
//	stream  - Stream a WAV recording to the live transcription API
//	inspect - Print the audio parameters of a WAV recording
//
// Configuration:
//
//	Settings come from an optional YAML file (--config), then .env and
//	GLADIA_* environment variables, then command line flags.
package main

import (
	"fmt"
	"os"

	"github.com/sasportasjordan/gladia-use-case/cmd/gladia-stream/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
