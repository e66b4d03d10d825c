package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sasportasjordan/gladia-use-case/internal/audio"
	"github.com/sasportasjordan/gladia-use-case/internal/metrics"
	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
	"github.com/sasportasjordan/gladia-use-case/internal/transcription"
	"github.com/sasportasjordan/gladia-use-case/internal/transport"
)

// ErrAlreadyStarted is returned by Run on a session that is already running
var ErrAlreadyStarted = errors.New("session already started")

// Negotiator performs the live session handshake
type Negotiator interface {
	Negotiate(ctx context.Context, credential string, cfg protocol.SessionConfig) (*transcription.Endpoint, error)
}

// Sink receives decoded events in delivery order. Deliver must not block and
// must not call back into the session.
type Sink interface {
	Deliver(event protocol.Event)
}

// ConnectionLostError reports a transport that ended abnormally after opening
type ConnectionLostError struct {
	Code   int
	Reason string
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("lost connection to the server: [%d] %s", e.Code, e.Reason)
}

// Options configure a streaming session
type Options struct {
	// ID is the local session identifier. A random UUID is used when empty.
	ID string

	Credential string
	Config     protocol.SessionConfig

	// ChunkDuration is the audio carried by each frame and the pause between
	// frames. Defaults to audio.DefaultChunkDuration.
	ChunkDuration time.Duration

	Negotiator Negotiator
	Dialer     transport.Dialer
	Sink       Sink

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Stats is a snapshot of a session
type Stats struct {
	ID              string    `json:"id"`
	LiveSessionID   string    `json:"live_session_id,omitempty"`
	State           string    `json:"state"`
	Error           string    `json:"error,omitempty"`
	ChunkSize       int       `json:"chunk_size"`
	ChunksTotal     int       `json:"chunks_total"`
	ChunksSent      uint64    `json:"chunks_sent"`
	BytesSent       uint64    `json:"bytes_sent"`
	BytesRemaining  int       `json:"bytes_remaining"`
	EventsDelivered uint64    `json:"events_delivered"`
	FramesDropped   uint64    `json:"frames_dropped"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	EndedAt         time.Time `json:"ended_at,omitempty"`
}

// Session streams one recording to the live API and routes the resulting
// events to a sink
type Session struct {
	id            string
	credential    string
	config        protocol.SessionConfig
	chunkDuration time.Duration
	chunkSize     int

	negotiator Negotiator
	dialer     transport.Dialer
	sink       Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	state         State
	err           error
	conn          transport.Conn
	cancel        context.CancelFunc
	liveSessionID string
	startedAt     time.Time
	endedAt       time.Time
	chunksTotal   int
	chunksSent    uint64
	bytesSent     uint64
	bytesLeft     int

	eventsDelivered atomic.Uint64
	framesDropped   atomic.Uint64

	done chan struct{}
}

// NewSession creates an idle session
func NewSession(opts Options) (*Session, error) {
	if opts.Negotiator == nil {
		return nil, fmt.Errorf("negotiator cannot be nil")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}

	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = audio.DefaultChunkDuration
	}

	chunkSize := audio.ChunkSize(opts.Config.Audio, opts.ChunkDuration)
	if chunkSize <= 0 {
		return nil, fmt.Errorf("audio descriptor %+v yields an empty chunk for %v", opts.Config.Audio, opts.ChunkDuration)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Session{
		id:            id,
		credential:    opts.Credential,
		config:        opts.Config,
		chunkDuration: opts.ChunkDuration,
		chunkSize:     chunkSize,
		negotiator:    opts.Negotiator,
		dialer:        opts.Dialer,
		sink:          opts.Sink,
		logger:        opts.Logger.With(slog.String("session_id", id)),
		metrics:       opts.Metrics,
		state:         StateIdle,
		done:          make(chan struct{}),
	}, nil
}

// Run negotiates, connects, streams samples at real-time pace and waits for
// the server to close the stream. It returns nil when the session ends
// Closed and the failure otherwise. Cancelling ctx has the effect of Stop.
func (s *Session) Run(ctx context.Context, samples audio.SampleData) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return s.Err()
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startedAt = time.Now()
	s.bytesLeft = len(samples)
	s.state = StateNegotiating
	s.mu.Unlock()

	defer cancel()
	stopOnCancel := context.AfterFunc(ctx, s.Stop)
	defer stopOnCancel()

	s.metrics.RecordSessionStarted()

	endpoint, err := s.negotiate(runCtx)
	if err != nil {
		s.abort(ctx, fmt.Errorf("negotiation failed: %w", err))
		return s.wait()
	}

	if !s.transition(StateNegotiating, StateConnecting) {
		return s.wait()
	}

	s.logger.Info("Connecting to live session",
		slog.String("live_session_id", endpoint.ID),
	)

	conn, err := s.dialer.Dial(runCtx, endpoint.URL, transport.Handlers{
		OnMessage: s.handleFrame,
		OnClose:   s.handleClose,
	})
	if err != nil {
		s.abort(ctx, err)
		return s.wait()
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		conn.Detach()
		conn.Close()
		return s.wait()
	}
	s.conn = conn
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Info("Streaming audio",
		slog.Int("bytes", len(samples)),
		slog.Int("chunk_size", s.chunkSize),
		slog.Duration("chunk_duration", s.chunkDuration),
		slog.Duration("audio_duration", s.config.Audio.Duration(len(samples))),
	)

	s.streamAudio(runCtx, samples)

	return s.wait()
}

func (s *Session) negotiate(ctx context.Context) (*transcription.Endpoint, error) {
	s.logger.Info("Negotiating live session",
		slog.String("encoding", string(s.config.Audio.Encoding)),
		slog.Uint64("sample_rate", uint64(s.config.Audio.SampleRate)),
		slog.Int("channels", int(s.config.Audio.Channels)),
		slog.Int("bit_depth", int(s.config.Audio.BitDepth)),
	)

	startTime := time.Now()
	endpoint, err := s.negotiator.Negotiate(ctx, s.credential, s.config)
	s.metrics.RecordNegotiation(err == nil, time.Since(startTime).Seconds())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.liveSessionID = endpoint.ID
	s.mu.Unlock()

	return endpoint, nil
}

// streamAudio sends the samples in order, pausing one chunk duration after
// each frame, then sends the stop control frame.
func (s *Session) streamAudio(ctx context.Context, samples audio.SampleData) {
	chunker, err := audio.NewChunker(samples, s.chunkSize)
	if err != nil {
		s.fail(err)
		return
	}

	s.mu.Lock()
	s.chunksTotal = chunker.Count()
	s.bytesLeft = chunker.Remaining()
	s.mu.Unlock()

	timer := time.NewTimer(s.chunkDuration)
	timer.Stop()
	defer timer.Stop()

	for {
		chunk, ok := chunker.Next()
		if !ok {
			break
		}

		if !s.send(StateActive, func(conn transport.Conn) error {
			return conn.WriteBinary(chunk.Data)
		}) {
			return
		}

		s.mu.Lock()
		s.chunksSent++
		s.bytesSent += uint64(len(chunk.Data))
		s.bytesLeft = chunker.Remaining()
		s.mu.Unlock()
		s.metrics.RecordChunkSent(len(chunk.Data))

		timer.Reset(s.chunkDuration)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()

	if !s.send(StateClosing, func(conn transport.Conn) error {
		return conn.WriteText(protocol.StopRecordingFrame())
	}) {
		return
	}
	s.metrics.RecordControlFrame(protocol.TypeStopRecording)

	s.logger.Info("Audio sent, waiting for the server to close",
		slog.Uint64("chunks_sent", s.Stats().ChunksSent),
	)
}

// send runs write while the session is in the expected state. The state
// lock is held during the write so no frame follows Stop.
func (s *Session) send(expected State, write func(conn transport.Conn) error) bool {
	s.mu.Lock()
	if s.state != expected || s.conn == nil {
		s.mu.Unlock()
		return false
	}
	err := write(s.conn)
	s.mu.Unlock()

	if err != nil {
		s.fail(&ConnectionLostError{Code: transport.CloseAbnormal, Reason: err.Error()})
		return false
	}
	return true
}

func (s *Session) handleFrame(data []byte) {
	event, err := protocol.Decode(data, int(s.config.Audio.Channels))
	if err != nil {
		s.framesDropped.Add(1)
		s.metrics.RecordFrameDropped()
		s.logger.Debug("Ignoring inbound frame", slog.String("reason", err.Error()))
		return
	}

	s.eventsDelivered.Add(1)
	s.metrics.RecordEvent(event.Type())
	s.sink.Deliver(event)
}

func (s *Session) handleClose(code int, reason string) {
	refused := &transport.ConnectionError{
		Err: fmt.Errorf("server refuses the connection: [%d] %s", code, reason),
	}
	if s.finishIf(StateConnecting, StateFailed, refused) {
		return
	}

	if code == transport.CloseNormal {
		s.finish(StateClosed, nil)
		return
	}

	s.fail(&ConnectionLostError{Code: code, Reason: reason})
}

// Stop ends the session from any state. It is idempotent and safe to call
// concurrently with Run.
func (s *Session) Stop() {
	if s.finish(StateClosed, nil) {
		s.logger.Info("Session stopped")
	}
}

func (s *Session) fail(err error) {
	s.finish(StateFailed, err)
}

// abort ends a run whose handshake or dial returned err. A cancelled parent
// context is a stop request, not a failure.
func (s *Session) abort(ctx context.Context, err error) {
	if ctx.Err() != nil {
		s.Stop()
		return
	}
	s.fail(err)
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// finish moves the session to a terminal state exactly once, then detaches
// and closes the transport.
func (s *Session) finish(state State, err error) bool {
	return s.end(func(State) bool { return true }, state, err)
}

// finishIf is finish restricted to sessions currently in from
func (s *Session) finishIf(from, state State, err error) bool {
	return s.end(func(current State) bool { return current == from }, state, err)
}

func (s *Session) end(match func(current State) bool, state State, err error) bool {
	s.mu.Lock()
	if s.state.Terminal() || !match(s.state) {
		s.mu.Unlock()
		return false
	}
	started := s.state != StateIdle
	s.state = state
	s.err = err
	s.endedAt = time.Now()
	conn := s.conn
	s.conn = nil
	cancel := s.cancel
	duration := s.endedAt.Sub(s.startedAt)
	s.mu.Unlock()

	if conn != nil {
		conn.Detach()
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Debug("Error closing transport", slog.String("error", closeErr.Error()))
		}
	}
	if cancel != nil {
		cancel()
	}
	close(s.done)

	if started {
		s.metrics.RecordSessionEnded(state.String(), duration.Seconds())
	}

	if err != nil {
		s.logger.Error("Session failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
	} else {
		s.logger.Info("Session closed",
			slog.Duration("duration", duration),
			slog.Uint64("events_delivered", s.eventsDelivered.Load()),
		)
	}

	return true
}

func (s *Session) wait() error {
	<-s.done
	return s.Err()
}

// ID returns the local session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure of a Failed session, nil otherwise
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session reaches a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ChunkSize returns the number of audio bytes per frame
func (s *Session) ChunkSize() int {
	return s.chunkSize
}

// Stats returns a snapshot of the session
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ID:              s.id,
		LiveSessionID:   s.liveSessionID,
		State:           s.state.String(),
		ChunkSize:       s.chunkSize,
		ChunksTotal:     s.chunksTotal,
		ChunksSent:      s.chunksSent,
		BytesSent:       s.bytesSent,
		BytesRemaining:  s.bytesLeft,
		EventsDelivered: s.eventsDelivered.Load(),
		FramesDropped:   s.framesDropped.Load(),
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
	}
	if s.err != nil {
		stats.Error = s.err.Error()
	}
	return stats
}
