package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
	"github.com/sasportasjordan/gladia-use-case/internal/transcription"
)

// Environment variables read by ApplyEnv
const (
	EnvAPIKey   = "GLADIA_API_KEY"
	EnvEndpoint = "GLADIA_ENDPOINT"
)

// Config represents the complete client configuration
type Config struct {
	Gladia    GladiaConfig    `yaml:"gladia"`
	Streaming StreamingConfig `yaml:"streaming"`
	Features  FeaturesConfig  `yaml:"features"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GladiaConfig contains live API configuration
type GladiaConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// StreamingConfig contains audio streaming parameters
type StreamingConfig struct {
	ChunkDurationMs     int  `yaml:"chunk_duration_ms"`
	WriteTimeout        int  `yaml:"write_timeout"` // seconds
	TrustHeaderChannels bool `yaml:"trust_header_channels"`
}

// FeaturesConfig selects the processing requested from the service
type FeaturesConfig struct {
	SentimentAnalysis bool   `yaml:"sentiment_analysis"`
	Summarization     bool   `yaml:"summarization"`
	SummarizationType string `yaml:"summarization_type"`
	Chapterization    bool   `yaml:"chapterization"`
	Callback          bool   `yaml:"callback"`
	CallbackURL       string `yaml:"callback_url"`
}

// HTTPConfig contains status API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration usable without a file
func Default() *Config {
	return &Config{
		Gladia: GladiaConfig{
			Endpoint: transcription.DefaultEndpoint,
			Timeout:  30,
		},
		Streaming: StreamingConfig{
			ChunkDurationMs: 50,
			WriteTimeout:    10,
		},
		Features: FeaturesConfig{
			SummarizationType: "general",
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv loads the given .env files, skipping missing ones, then applies
// the GLADIA_* variables. Variables already set in the process win over
// .env entries.
func (c *Config) ApplyEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		c.Gladia.APIKey = key
	}
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		c.Gladia.Endpoint = endpoint
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Gladia.Validate(); err != nil {
		return fmt.Errorf("gladia config: %w", err)
	}

	if err := c.Streaming.Validate(); err != nil {
		return fmt.Errorf("streaming config: %w", err)
	}

	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates live API configuration. The API key is checked by
// Credential since it may arrive from the environment after loading.
func (g *GladiaConfig) Validate() error {
	if g.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(g.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) URL, got '%s'", g.Endpoint)
	}

	if g.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", g.Timeout)
	}

	return nil
}

// Credential returns the API key or an error naming where to set it
func (g *GladiaConfig) Credential() (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("api_key cannot be empty: set gladia.api_key or %s", EnvAPIKey)
	}
	return g.APIKey, nil
}

// Validate validates streaming configuration
func (s *StreamingConfig) Validate() error {
	if s.ChunkDurationMs < 10 || s.ChunkDurationMs > 1000 {
		return fmt.Errorf("chunk_duration_ms must be between 10 and 1000, got %d", s.ChunkDurationMs)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates feature configuration
func (f *FeaturesConfig) Validate() error {
	if f.Summarization {
		validTypes := map[string]bool{"general": true, "bullet_points": true, "concise": true}
		if !validTypes[f.SummarizationType] {
			return fmt.Errorf("summarization_type must be one of [general, bullet_points, concise], got '%s'", f.SummarizationType)
		}
	}

	if f.CallbackURL != "" {
		u, err := url.Parse(f.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callback_url must be an http(s) URL, got '%s'", f.CallbackURL)
		}
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetTimeoutDuration returns the handshake timeout as a time.Duration
func (g *GladiaConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// GetChunkDuration returns the audio window per frame as a time.Duration
func (s *StreamingConfig) GetChunkDuration() time.Duration {
	return time.Duration(s.ChunkDurationMs) * time.Millisecond
}

// GetWriteTimeoutDuration returns the frame write timeout as a time.Duration
func (s *StreamingConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ListenAddress returns the status server address
func (h *HTTPConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// Protocol converts the feature selection to its wire form
func (f *FeaturesConfig) Protocol() protocol.Features {
	return protocol.Features{
		SentimentAnalysis: f.SentimentAnalysis,
		Summarization:     f.Summarization,
		SummarizationType: f.SummarizationType,
		Chapterization:    f.Chapterization,
		Callback:          f.Callback,
		CallbackURL:       f.CallbackURL,
	}
}
