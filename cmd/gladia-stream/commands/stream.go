package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sasportasjordan/gladia-use-case/internal/audio"
	"github.com/sasportasjordan/gladia-use-case/internal/config"
	"github.com/sasportasjordan/gladia-use-case/internal/metrics"
	"github.com/sasportasjordan/gladia-use-case/internal/output"
	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
	"github.com/sasportasjordan/gladia-use-case/internal/server"
	"github.com/sasportasjordan/gladia-use-case/internal/stream"
	"github.com/sasportasjordan/gladia-use-case/internal/transcription"
	"github.com/sasportasjordan/gladia-use-case/internal/transport"
)

var (
	streamAPIKey            string
	streamEndpoint          string
	streamChunkMs           int
	streamTrustChannels     bool
	streamSentiment         bool
	streamSummarization     bool
	streamSummarizationType string
	streamChapterization    bool
	streamCallback          bool
	streamCallbackURL       string
	streamJSON              bool
	streamHTTP              bool
	streamHTTPPort          int
)

var streamCmd = &cobra.Command{
	Use:   "stream FILE",
	Short: "Stream a WAV recording to the live transcription API",
	Long: `Open a live session for a WAV recording and stream its samples at
real-time pace. Partial transcripts overwrite the current line, final
transcripts are printed as they are confirmed. When the whole recording has
been sent the client asks the service to stop and prints post-processing
results before the service closes the session.

Ctrl-C stops the session immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

func init() {
	flags := streamCmd.Flags()
	flags.StringVar(&streamAPIKey, "api-key", "", "API key (overrides config and "+config.EnvAPIKey+")")
	flags.StringVar(&streamEndpoint, "endpoint", "", "live session endpoint")
	flags.IntVar(&streamChunkMs, "chunk-ms", 0, "audio per frame in milliseconds")
	flags.BoolVar(&streamTrustChannels, "trust-header-channels", false, "announce the channel count read from the file instead of 2")
	flags.BoolVar(&streamSentiment, "sentiment-analysis", false, "request sentiment analysis")
	flags.BoolVar(&streamSummarization, "summarization", false, "request a summary after the recording")
	flags.StringVar(&streamSummarizationType, "summarization-type", "", "summary type: general, bullet_points, concise")
	flags.BoolVar(&streamChapterization, "chapterization", false, "request chapters after the recording")
	flags.BoolVar(&streamCallback, "callback", false, "ask the service to post transcripts to --callback-url")
	flags.StringVar(&streamCallbackURL, "callback-url", "", "callback URL")
	flags.BoolVar(&streamJSON, "json", false, "write events as JSON lines to stdout")
	flags.BoolVar(&streamHTTP, "http", false, "serve the status API while streaming")
	flags.IntVar(&streamHTTPPort, "http-port", 0, "status API port")
}

// applyStreamFlags overrides configuration with the flags set on the command line
func applyStreamFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.Gladia.APIKey = streamAPIKey
	}
	if flags.Changed("endpoint") {
		cfg.Gladia.Endpoint = streamEndpoint
	}
	if flags.Changed("chunk-ms") {
		cfg.Streaming.ChunkDurationMs = streamChunkMs
	}
	if flags.Changed("trust-header-channels") {
		cfg.Streaming.TrustHeaderChannels = streamTrustChannels
	}
	if flags.Changed("sentiment-analysis") {
		cfg.Features.SentimentAnalysis = streamSentiment
	}
	if flags.Changed("summarization") {
		cfg.Features.Summarization = streamSummarization
	}
	if flags.Changed("summarization-type") {
		cfg.Features.SummarizationType = streamSummarizationType
	}
	if flags.Changed("chapterization") {
		cfg.Features.Chapterization = streamChapterization
	}
	if flags.Changed("callback") {
		cfg.Features.Callback = streamCallback
	}
	if flags.Changed("callback-url") {
		cfg.Features.CallbackURL = streamCallbackURL
	}
	if flags.Changed("http") {
		cfg.HTTP.Enabled = streamHTTP
	}
	if flags.Changed("http-port") {
		cfg.HTTP.Port = streamHTTPPort
	}
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyStreamFlags(cmd, cfg)
	if err := validateConfig(cfg); err != nil {
		return err
	}

	credential, err := cfg.Gladia.Credential()
	if err != nil {
		return err
	}

	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	desc, samples, err := readRecording(args[0])
	if err != nil {
		return err
	}
	if cfg.Streaming.TrustHeaderChannels {
		*desc = desc.WithHeaderChannels()
	}

	logger.Info("Recording loaded",
		slog.String("file", args[0]),
		slog.String("encoding", string(desc.Encoding)),
		slog.Uint64("sample_rate", uint64(desc.SampleRate)),
		slog.Int("channels", int(desc.Channels)),
		slog.Int("header_channels", int(desc.HeaderChannels)),
		slog.Int("bit_depth", int(desc.BitDepth)),
		slog.Duration("duration", desc.Duration(len(samples))),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:  cfg.Gladia.Endpoint,
		Timeout:   cfg.Gladia.GetTimeoutDuration(),
		UserAgent: serviceName + "/" + serviceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create handshake client: %w", err)
	}

	sessionID := uuid.NewString()
	sinks := buildSinks(os.Stdout, sessionID, int(desc.Channels), logger)

	session, err := stream.NewSession(stream.Options{
		ID:            sessionID,
		Credential:    credential,
		Config:        protocol.NewSessionConfig(*desc, cfg.Features.Protocol()),
		ChunkDuration: cfg.Streaming.GetChunkDuration(),
		Negotiator:    client,
		Dialer: &transport.WebSocketDialer{
			Header:       http.Header{"User-Agent": []string{serviceName + "/" + serviceVersion}},
			WriteTimeout: cfg.Streaming.GetWriteTimeoutDuration(),
		},
		Sink:    sinks.sink,
		Logger:  logger,
		Metrics: appMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if sinks.console != nil {
		sinks.console.Banner("Begin session")
	}

	g.Go(func() error {
		defer stopServer()
		return session.Run(gctx, samples)
	})

	if cfg.HTTP.Enabled {
		httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, session, client, appMetrics, registry)
		g.Go(func() error {
			return httpServer.Run(serverCtx)
		})
	}

	err = g.Wait()

	if sinks.console != nil {
		sinks.console.Flush()
		sinks.console.Banner("End of session")
	}

	stats := session.Stats()
	logger.Info("Final session statistics",
		slog.String("state", stats.State),
		slog.Uint64("chunks_sent", stats.ChunksSent),
		slog.Uint64("bytes_sent", stats.BytesSent),
		slog.Int("bytes_remaining", stats.BytesRemaining),
		slog.Uint64("events_delivered", stats.EventsDelivered),
		slog.Uint64("frames_dropped", stats.FramesDropped),
	)

	if err != nil {
		return err
	}
	if err := sinks.err(); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	return nil
}

func readRecording(path string) (*audio.Descriptor, audio.SampleData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read recording: %w", err)
	}

	desc, samples, err := audio.Demux(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return desc, samples, nil
}

type streamSinks struct {
	sink      stream.Sink
	console   *output.Console
	jsonLines *output.JSONLines
}

// err reports the first failed write of the JSON lines renderer
func (s streamSinks) err() error {
	if s.jsonLines == nil {
		return nil
	}
	return s.jsonLines.Err()
}

// buildSinks selects the console or JSON lines renderer and traces every
// event at debug level
func buildSinks(w io.Writer, sessionID string, channels int, logger *slog.Logger) streamSinks {
	var result streamSinks
	var renderer output.Sink

	if streamJSON {
		result.jsonLines = output.NewJSONLines(w, sessionID)
		renderer = result.jsonLines
	} else {
		result.console = output.NewConsole(w, channels)
		renderer = result.console
	}

	result.sink = output.Multi{
		renderer,
		output.SinkFunc(func(event protocol.Event) {
			logger.Debug("Event delivered", slog.String("type", event.Type()))
		}),
	}
	return result
}
