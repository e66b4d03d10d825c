package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
)

// DefaultEndpoint is the live session initiation endpoint
const DefaultEndpoint = "https://api.gladia.io/v2/live"

// CredentialHeader carries the API key on the handshake request
const CredentialHeader = "X-GLADIA-KEY"

// maxErrorBody bounds how much of a failed response is kept in NetworkError
const maxErrorBody = 64 << 10

// Client performs live session handshakes. Every call is a single attempt.
type Client struct {
	config     Config
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	lastLatency     time.Duration

	mu sync.RWMutex
}

// Config contains handshake client configuration
type Config struct {
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// Endpoint is the result of a successful handshake
type Endpoint struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	LastLatency     time.Duration `json:"last_latency"`
}

// NewClient creates a new handshake client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	if !strings.HasPrefix(config.Endpoint, "http://") && !strings.HasPrefix(config.Endpoint, "https://") {
		return nil, fmt.Errorf("endpoint must be an http(s) URL, got %q", config.Endpoint)
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.UserAgent == "" {
		config.UserAgent = "gladia-stream/1.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Negotiate posts the session config and returns the streaming endpoint
func (c *Client) Negotiate(ctx context.Context, credential string, cfg protocol.SessionConfig) (*Endpoint, error) {
	startTime := time.Now()
	c.incrementTotalRequests()

	endpoint, err := c.doRequest(ctx, credential, cfg)

	c.recordResult(err == nil, time.Since(startTime))
	if err != nil {
		return nil, err
	}
	return endpoint, nil
}

// doRequest performs the single handshake HTTP request
func (c *Client) doRequest(ctx context.Context, credential string, cfg protocol.SessionConfig) (*Endpoint, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session config: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set(CredentialHeader, credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &NetworkError{StatusCode: resp.StatusCode, Message: message}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var endpoint Endpoint
	if err := json.Unmarshal(respBody, &endpoint); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid response JSON: %v", err)}
	}
	if endpoint.URL == "" {
		return nil, &ProtocolError{Reason: "response has no url field"}
	}

	return &endpoint, nil
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) recordResult(success bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		c.successRequests++
	} else {
		c.failedRequests++
	}
	c.lastLatency = latency
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		LastLatency:     c.lastLatency,
	}
}
