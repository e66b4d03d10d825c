package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sasportasjordan/gladia-use-case/internal/config"
)

const (
	serviceName    = "gladia-stream"
	serviceVersion = "1.0.0"
)

var (
	// Global flags
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
	logOutput string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Gladia live transcription client",
	Long: `gladia-stream - A command line client for the Gladia live transcription API.

It reads a WAV recording (PCM, A-law or mu-law), opens a live session,
streams the audio at real-time pace and prints transcripts as they arrive.
Summarization and chapterization results are printed once the recording ends.

Configuration is read from an optional YAML file, then .env and GLADIA_*
environment variables, then flags.

Examples:
  # Stream a recording with the key from the environment
  GLADIA_API_KEY=... gladia-stream stream call.wav

  # Request a summary and emit JSON lines for another program
  gladia-stream stream call.wav --summarization --json | jq .

  # Show what would be announced to the service
  gladia-stream inspect call.wav
`,
	Version:       serviceVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML), see configs/config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file, skipped when missing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "", "log output: stdout, stderr or a file path")

	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(inspectCmd)
}

// loadConfig layers the config file, environment and global flags over the defaults
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if logOutput != "" {
		cfg.Logging.Output = logOutput
	}

	return cfg, nil
}

// validateConfig checks the final configuration after flag overrides
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
