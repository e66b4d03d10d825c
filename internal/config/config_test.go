package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
)

func TestDefaultIsValid(t *testing.T) {
	config := Default()

	if err := config.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	if config.Streaming.GetChunkDuration() != 50*time.Millisecond {
		t.Errorf("Expected 50ms chunks, got %v", config.Streaming.GetChunkDuration())
	}

	if _, err := config.Gladia.Credential(); err == nil {
		t.Error("Expected missing credential error on defaults")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			modify:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "empty endpoint",
			modify:      func(c *Config) { c.Gladia.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name:        "websocket endpoint",
			modify:      func(c *Config) { c.Gladia.Endpoint = "wss://api.gladia.io/v2/live" },
			expectError: true,
			errorMsg:    "endpoint must be an http(s) URL",
		},
		{
			name:        "zero timeout",
			modify:      func(c *Config) { c.Gladia.Timeout = 0 },
			expectError: true,
			errorMsg:    "timeout must be at least 1 second",
		},
		{
			name:        "chunk too short",
			modify:      func(c *Config) { c.Streaming.ChunkDurationMs = 5 },
			expectError: true,
			errorMsg:    "chunk_duration_ms must be between 10 and 1000",
		},
		{
			name:        "chunk too long",
			modify:      func(c *Config) { c.Streaming.ChunkDurationMs = 2000 },
			expectError: true,
			errorMsg:    "chunk_duration_ms must be between 10 and 1000",
		},
		{
			name: "unknown summarization type",
			modify: func(c *Config) {
				c.Features.Summarization = true
				c.Features.SummarizationType = "haiku"
			},
			expectError: true,
			errorMsg:    "summarization_type must be one of",
		},
		{
			name:        "summarization type ignored when disabled",
			modify:      func(c *Config) { c.Features.SummarizationType = "haiku" },
			expectError: false,
		},
		{
			name:        "invalid callback url",
			modify:      func(c *Config) { c.Features.CallbackURL = "not a url" },
			expectError: true,
			errorMsg:    "callback_url must be an http(s) URL",
		},
		{
			name: "http enabled with bad port",
			modify: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "http disabled ignores port",
			modify:      func(c *Config) { c.HTTP.Port = 0 },
			expectError: false,
		},
		{
			name:        "invalid log level",
			modify:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)

			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
gladia:
  endpoint: "https://api.gladia.io/v2/live"
  api_key: "test-key"
  timeout: 15
streaming:
  chunk_duration_ms: 100
  write_timeout: 5
features:
  summarization: true
  summarization_type: "bullet_points"
  chapterization: true
http:
  enabled: true
  address: "0.0.0.0"
  port: 8080
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "partial file keeps defaults",
			configYAML: `
features:
  sentiment_analysis: true
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
streaming:
  chunk_duration_ms: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid value",
			configYAML: `
logging:
  format: "xml"
`,
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gladia:
  api_key: "file-key"
streaming:
  chunk_duration_ms: 100
  trust_header_channels: true
features:
  summarization: true
  summarization_type: "concise"
  callback: true
  callback_url: "https://hooks.example.com/gladia"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Gladia.Endpoint != "https://api.gladia.io/v2/live" {
		t.Errorf("Expected default endpoint, got %s", config.Gladia.Endpoint)
	}
	if config.Gladia.Timeout != 30 {
		t.Errorf("Expected default timeout 30, got %d", config.Gladia.Timeout)
	}
	if !config.Streaming.TrustHeaderChannels {
		t.Error("Expected trust_header_channels to be set")
	}
	if config.Streaming.GetChunkDuration() != 100*time.Millisecond {
		t.Errorf("Expected 100ms chunks, got %v", config.Streaming.GetChunkDuration())
	}

	key, err := config.Gladia.Credential()
	if err != nil || key != "file-key" {
		t.Errorf("Expected credential file-key, got %q (%v)", key, err)
	}

	expected := protocol.Features{
		Summarization:     true,
		SummarizationType: "concise",
		Callback:          true,
		CallbackURL:       "https://hooks.example.com/gladia",
	}
	if got := config.Features.Protocol(); got != expected {
		t.Errorf("Expected features %+v, got %+v", expected, got)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("environment overrides file value", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "env-key")
		t.Setenv(EnvEndpoint, "")

		config := Default()
		config.Gladia.APIKey = "file-key"

		if err := config.ApplyEnv(); err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}
		if config.Gladia.APIKey != "env-key" {
			t.Errorf("Expected env-key, got %s", config.Gladia.APIKey)
		}
	})

	t.Run("dotenv file", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "")
		t.Setenv(EnvEndpoint, "")
		os.Unsetenv(EnvAPIKey)
		os.Unsetenv(EnvEndpoint)

		envPath := filepath.Join(t.TempDir(), ".env")
		content := "GLADIA_API_KEY=dotenv-key\nGLADIA_ENDPOINT=http://localhost:8081/v2/live\n"
		if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create env file: %v", err)
		}

		config := Default()
		if err := config.ApplyEnv(envPath); err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}
		if config.Gladia.APIKey != "dotenv-key" {
			t.Errorf("Expected dotenv-key, got %s", config.Gladia.APIKey)
		}
		if config.Gladia.Endpoint != "http://localhost:8081/v2/live" {
			t.Errorf("Expected endpoint from env file, got %s", config.Gladia.Endpoint)
		}
	})

	t.Run("missing dotenv file is skipped", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "")

		config := Default()
		if err := config.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Errorf("Expected missing file to be skipped, got %v", err)
		}
		if config.Gladia.APIKey != "" {
			t.Errorf("Expected empty key, got %s", config.Gladia.APIKey)
		}
	})
}

func TestDurationHelpers(t *testing.T) {
	gladia := GladiaConfig{Timeout: 30}
	if gladia.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", gladia.GetTimeoutDuration())
	}

	streaming := StreamingConfig{ChunkDurationMs: 250, WriteTimeout: 5}
	if streaming.GetChunkDuration() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", streaming.GetChunkDuration())
	}
	if streaming.GetWriteTimeoutDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", streaming.GetWriteTimeoutDuration())
	}

	http := HTTPConfig{Address: "127.0.0.1", Port: 9090}
	if http.ListenAddress() != "127.0.0.1:9090" {
		t.Errorf("Expected 127.0.0.1:9090, got %s", http.ListenAddress())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/tmp/gladia.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "empty output",
			config: LoggingConfig{Level: "info", Format: "text"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestShippedConfigLoads(t *testing.T) {
	config, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Expected shipped config to load, got %v", err)
	}
	if config.Streaming.ChunkDurationMs != 50 {
		t.Errorf("Expected 50ms chunks, got %d", config.Streaming.ChunkDurationMs)
	}
}
