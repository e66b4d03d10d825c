package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sasportasjordan/gladia-use-case/internal/audio"
	"github.com/sasportasjordan/gladia-use-case/internal/metrics"
	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
	"github.com/sasportasjordan/gladia-use-case/internal/transcription"
	"github.com/sasportasjordan/gladia-use-case/internal/transport"
)

type fakeNegotiator struct {
	endpoint *transcription.Endpoint
	err      error
	block    bool
	calls    int32
}

func (f *fakeNegotiator) Negotiate(ctx context.Context, credential string, cfg protocol.SessionConfig) (*transcription.Endpoint, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.endpoint, nil
}

type sentFrame struct {
	binary bool
	data   []byte
}

// fakeConn emulates a transport. Hooks run on their own goroutine because
// the session holds its lock while writing.
type fakeConn struct {
	mu       sync.Mutex
	handlers transport.Handlers
	frames   []sentFrame
	detached bool
	closes   int

	onBinary func(c *fakeConn, n int)
	onStop   func(c *fakeConn)
}

func (c *fakeConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	if c.closes > 0 {
		c.mu.Unlock()
		return errors.New("write on closed connection")
	}
	c.frames = append(c.frames, sentFrame{binary: true, data: append([]byte(nil), data...)})
	n := len(c.frames)
	hook := c.onBinary
	c.mu.Unlock()

	if hook != nil {
		go hook(c, n)
	}
	return nil
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	if c.closes > 0 {
		c.mu.Unlock()
		return errors.New("write on closed connection")
	}
	c.frames = append(c.frames, sentFrame{data: append([]byte(nil), data...)})
	hook := c.onStop
	c.mu.Unlock()

	if hook != nil && bytes.Equal(data, protocol.StopRecordingFrame()) {
		go hook(c)
	}
	return nil
}

func (c *fakeConn) Detach() {
	c.mu.Lock()
	c.detached = true
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.detached = true
	c.mu.Unlock()
	return nil
}

// emit delivers an inbound frame unless detached
func (c *fakeConn) emit(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached || c.handlers.OnMessage == nil {
		return
	}
	c.handlers.OnMessage([]byte(frame))
}

// serverClose reports a close from the remote side
func (c *fakeConn) serverClose(code int, reason string) {
	c.mu.Lock()
	onClose := c.handlers.OnClose
	if c.detached {
		onClose = nil
	}
	c.detached = true
	c.mu.Unlock()

	if onClose != nil {
		onClose(code, reason)
	}
}

func (c *fakeConn) sent() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentFrame(nil), c.frames...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeDialer struct {
	conn  *fakeConn
	err   error
	block bool
	dials int32

	// onOpen runs after the handlers are installed, before Dial returns
	onOpen func(c *fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, url string, handlers transport.Handlers) (transport.Conn, error) {
	atomic.AddInt32(&d.dials, 1)
	if d.block {
		<-ctx.Done()
		return nil, &transport.ConnectionError{URL: url, Err: ctx.Err()}
	}
	if d.err != nil {
		return nil, d.err
	}
	d.conn.mu.Lock()
	d.conn.handlers = handlers
	d.conn.mu.Unlock()
	if d.onOpen != nil {
		d.onOpen(d.conn)
	}
	return d.conn, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (s *recordingSink) Deliver(event protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func stereoConfig() protocol.SessionConfig {
	return protocol.NewSessionConfig(audio.Descriptor{
		Encoding:   audio.EncodingPCM,
		SampleRate: 16000,
		Channels:   2,
		BitDepth:   16,
	}, protocol.Features{})
}

type testHarness struct {
	session    *Session
	negotiator *fakeNegotiator
	dialer     *fakeDialer
	conn       *fakeConn
	sink       *recordingSink
	metrics    *metrics.Metrics
}

func newHarness(t *testing.T, conn *fakeConn) *testHarness {
	t.Helper()

	h := &testHarness{
		negotiator: &fakeNegotiator{endpoint: &transcription.Endpoint{ID: "live-1", URL: "wss://example.test/live"}},
		conn:       conn,
		sink:       &recordingSink{},
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	h.dialer = &fakeDialer{conn: conn}

	session, err := NewSession(Options{
		Credential:    "key",
		Config:        stereoConfig(),
		ChunkDuration: 5 * time.Millisecond,
		Negotiator:    h.negotiator,
		Dialer:        h.dialer,
		Sink:          h.sink,
		Logger:        testLogger(),
		Metrics:       h.metrics,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	h.session = session
	return h
}

func closeOnStop(code int, reason string) func(c *fakeConn) {
	return func(c *fakeConn) { c.serverClose(code, reason) }
}

func runWithTimeout(t *testing.T, s *Session, samples audio.SampleData) error {
	t.Helper()

	result := make(chan error, 1)
	go func() { result <- s.Run(context.Background(), samples) }()

	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestNewSessionChunkSize(t *testing.T) {
	session, err := NewSession(Options{
		Config:     stereoConfig(),
		Negotiator: &fakeNegotiator{},
		Dialer:     &fakeDialer{},
		Sink:       &recordingSink{},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if session.ChunkSize() != 3200 {
		t.Errorf("Expected chunk size 3200, got %d", session.ChunkSize())
	}
	if session.State() != StateIdle {
		t.Errorf("Expected idle session, got %s", session.State())
	}
}

func TestNewSessionID(t *testing.T) {
	opts := Options{
		Config:     stereoConfig(),
		Negotiator: &fakeNegotiator{},
		Dialer:     &fakeDialer{},
		Sink:       &recordingSink{},
	}

	generated, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if generated.ID() == "" {
		t.Error("Expected a generated session id")
	}

	opts.ID = "session-42"
	named, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if named.ID() != "session-42" {
		t.Errorf("Expected session-42, got %s", named.ID())
	}
}

func TestNewSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing negotiator", opts: Options{Config: stereoConfig(), Dialer: &fakeDialer{}, Sink: &recordingSink{}}},
		{name: "missing dialer", opts: Options{Config: stereoConfig(), Negotiator: &fakeNegotiator{}, Sink: &recordingSink{}}},
		{name: "missing sink", opts: Options{Config: stereoConfig(), Negotiator: &fakeNegotiator{}, Dialer: &fakeDialer{}}},
		{name: "zero bit depth", opts: Options{
			Config:     protocol.NewSessionConfig(audio.Descriptor{SampleRate: 16000, Channels: 2}, protocol.Features{}),
			Negotiator: &fakeNegotiator{}, Dialer: &fakeDialer{}, Sink: &recordingSink{},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSession(tt.opts); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestSessionZeroLengthSamples(t *testing.T) {
	h := newHarness(t, &fakeConn{onStop: closeOnStop(transport.CloseNormal, "")})

	if err := runWithTimeout(t, h.session, nil); err != nil {
		t.Fatalf("Expected clean close, got %v", err)
	}

	frames := h.conn.sent()
	if len(frames) != 1 {
		t.Fatalf("Expected exactly one frame, got %d", len(frames))
	}
	if frames[0].binary || string(frames[0].data) != `{"type":"stop_recording"}` {
		t.Errorf("Expected stop_recording control frame, got %q", frames[0].data)
	}
	if h.session.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", h.session.State())
	}
	if h.conn.closeCount() != 1 {
		t.Errorf("Expected one transport close, got %d", h.conn.closeCount())
	}
}

func TestSessionSendsChunksInOrder(t *testing.T) {
	samples := make(audio.SampleData, 7000)
	for i := range samples {
		samples[i] = byte(i % 251)
	}

	h := newHarness(t, &fakeConn{onStop: closeOnStop(transport.CloseNormal, "")})

	if err := runWithTimeout(t, h.session, samples); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := h.conn.sent()
	if len(frames) != 4 {
		t.Fatalf("Expected 3 audio frames and 1 control frame, got %d", len(frames))
	}

	var sent []byte
	for i, expectedLen := range []int{3200, 3200, 600} {
		if !frames[i].binary {
			t.Fatalf("Frame %d: expected binary", i)
		}
		if len(frames[i].data) != expectedLen {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, expectedLen, len(frames[i].data))
		}
		sent = append(sent, frames[i].data...)
	}
	if !bytes.Equal(sent, samples) {
		t.Error("Audio frames do not reproduce the samples in order")
	}
	if frames[3].binary {
		t.Error("Expected the control frame last")
	}

	stats := h.session.Stats()
	if stats.ChunksSent != 3 || stats.BytesSent != 7000 || stats.ChunksTotal != 3 || stats.BytesRemaining != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.LiveSessionID != "live-1" {
		t.Errorf("Expected live session id live-1, got %s", stats.LiveSessionID)
	}
	if got := testutil.ToFloat64(h.metrics.ChunksSent); got != 3 {
		t.Errorf("Expected 3 chunks in metrics, got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.SessionsEnded.WithLabelValues("closed")); got != 1 {
		t.Errorf("Expected 1 closed session in metrics, got %v", got)
	}
}

func TestSessionPacesChunks(t *testing.T) {
	samples := make(audio.SampleData, 3200*4)
	h := newHarness(t, &fakeConn{onStop: closeOnStop(transport.CloseNormal, "")})

	start := time.Now()
	if err := runWithTimeout(t, h.session, samples); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 4 chunks, each followed by a 5ms pause
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected at least 20ms of pacing, took %v", elapsed)
	}
}

func TestSessionCloseCodes(t *testing.T) {
	tests := []struct {
		name          string
		code          int
		reason        string
		expectedState State
	}{
		{name: "normal closure during active", code: transport.CloseNormal, expectedState: StateClosed},
		{name: "abnormal closure", code: 4001, reason: "audio format mismatch", expectedState: StateFailed},
		{name: "server error", code: 1011, reason: "internal error", expectedState: StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{
				onBinary: func(c *fakeConn, n int) {
					if n == 1 {
						c.serverClose(tt.code, tt.reason)
					}
				},
			}
			h := newHarness(t, conn)

			err := runWithTimeout(t, h.session, make(audio.SampleData, 3200*50))

			if h.session.State() != tt.expectedState {
				t.Fatalf("Expected state %s, got %s", tt.expectedState, h.session.State())
			}

			if tt.expectedState == StateClosed {
				if err != nil {
					t.Errorf("Expected nil error, got %v", err)
				}
			} else {
				var lost *ConnectionLostError
				if !errors.As(err, &lost) {
					t.Fatalf("Expected ConnectionLostError, got %v", err)
				}
				if lost.Code != tt.code || lost.Reason != tt.reason {
					t.Errorf("Expected [%d] %s, got [%d] %s", tt.code, tt.reason, lost.Code, lost.Reason)
				}
			}

			if len(conn.sent()) >= 50 {
				t.Error("Expected streaming to stop early")
			}
			if conn.closeCount() != 1 {
				t.Errorf("Expected one transport close, got %d", conn.closeCount())
			}
		})
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	sentFirst := make(chan struct{})
	var once sync.Once
	conn := &fakeConn{
		onBinary: func(c *fakeConn, n int) {
			once.Do(func() { close(sentFirst) })
		},
	}
	h := newHarness(t, conn)

	result := make(chan error, 1)
	go func() { result <- h.session.Run(context.Background(), make(audio.SampleData, 3200*1000)) }()

	select {
	case <-sentFirst:
	case <-time.After(2 * time.Second):
		t.Fatal("No audio sent")
	}

	h.session.Stop()
	framesAtStop := len(conn.sent())
	h.session.Stop()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Expected nil error after Stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	time.Sleep(30 * time.Millisecond)
	if got := len(conn.sent()); got != framesAtStop {
		t.Errorf("Expected no frames after Stop, got %d more", got-framesAtStop)
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected one transport close, got %d", conn.closeCount())
	}
	if h.session.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", h.session.State())
	}

	stats := h.session.Stats()
	if stats.BytesRemaining == 0 {
		t.Error("Expected unsent audio after an early Stop")
	}
	if int(stats.BytesSent)+stats.BytesRemaining != 3200*1000 {
		t.Errorf("Expected sent and remaining bytes to cover the samples, got %d + %d", stats.BytesSent, stats.BytesRemaining)
	}
}

func TestSessionStopBeforeRun(t *testing.T) {
	h := newHarness(t, &fakeConn{})

	h.session.Stop()
	h.session.Stop()

	if err := runWithTimeout(t, h.session, make(audio.SampleData, 100)); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if atomic.LoadInt32(&h.negotiator.calls) != 0 {
		t.Error("Expected no negotiation after Stop")
	}
	if h.session.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", h.session.State())
	}
}

func TestSessionStopDuringNegotiation(t *testing.T) {
	h := newHarness(t, &fakeConn{})
	h.negotiator.block = true

	result := make(chan error, 1)
	go func() { result <- h.session.Run(context.Background(), make(audio.SampleData, 100)) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.session.State() != StateNegotiating && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.session.Stop()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if atomic.LoadInt32(&h.dialer.dials) != 0 {
		t.Error("Expected no transport after Stop during negotiation")
	}
	if h.session.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", h.session.State())
	}
}

func TestSessionContextCancel(t *testing.T) {
	conn := &fakeConn{}
	h := newHarness(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	conn.onBinary = func(c *fakeConn, n int) {
		if n == 2 {
			cancel()
		}
	}

	result := make(chan error, 1)
	go func() { result <- h.session.Run(ctx, make(audio.SampleData, 3200*1000)) }()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if h.session.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", h.session.State())
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected one transport close, got %d", conn.closeCount())
	}
}

func TestSessionContextCancelBeforeStreaming(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *testHarness)
		waitFor func(h *testHarness) bool
	}{
		{
			name:  "during negotiation",
			setup: func(h *testHarness) { h.negotiator.block = true },
			waitFor: func(h *testHarness) bool {
				return h.session.State() == StateNegotiating && atomic.LoadInt32(&h.negotiator.calls) == 1
			},
		},
		{
			name:  "during dial",
			setup: func(h *testHarness) { h.dialer.block = true },
			waitFor: func(h *testHarness) bool {
				return atomic.LoadInt32(&h.dialer.dials) == 1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Repeat so the cancel lands on both sides of the handshake error
			for i := 0; i < 50; i++ {
				h := newHarness(t, &fakeConn{})
				tt.setup(h)

				ctx, cancel := context.WithCancel(context.Background())
				result := make(chan error, 1)
				go func() { result <- h.session.Run(ctx, make(audio.SampleData, 100)) }()

				deadline := time.Now().Add(2 * time.Second)
				for !tt.waitFor(h) && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
				cancel()

				select {
				case err := <-result:
					if err != nil {
						t.Fatalf("Iteration %d: expected nil error, got %v", i, err)
					}
				case <-time.After(2 * time.Second):
					t.Fatal("Run did not return after cancel")
				}

				if h.session.State() != StateClosed {
					t.Fatalf("Iteration %d: expected closed state, got %s", i, h.session.State())
				}
				if got := testutil.ToFloat64(h.metrics.SessionsEnded.WithLabelValues("failed")); got != 0 {
					t.Fatalf("Iteration %d: expected no failed session in metrics, got %v", i, got)
				}
			}
		})
	}
}

func TestSessionCloseWhileConnecting(t *testing.T) {
	conn := &fakeConn{}
	h := newHarness(t, conn)
	h.dialer.onOpen = func(c *fakeConn) {
		c.serverClose(4001, "invalid session")
	}

	err := runWithTimeout(t, h.session, make(audio.SampleData, 3200*4))

	var connErr *transport.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected ConnectionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "[4001] invalid session") {
		t.Errorf("Expected close code and reason in error, got %v", err)
	}

	var lostErr *ConnectionLostError
	if errors.As(err, &lostErr) {
		t.Error("Expected a refused connection, not a lost one")
	}
	if h.session.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", h.session.State())
	}
	if len(conn.sent()) != 0 {
		t.Errorf("Expected no frames on a refused connection, got %d", len(conn.sent()))
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected one transport close, got %d", conn.closeCount())
	}
}

func TestSessionNegotiationFailure(t *testing.T) {
	h := newHarness(t, &fakeConn{})
	h.negotiator.err = &transcription.NetworkError{StatusCode: 401, Message: "invalid key"}

	err := runWithTimeout(t, h.session, make(audio.SampleData, 100))

	var netErr *transcription.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
	if netErr.StatusCode != 401 {
		t.Errorf("Expected status 401, got %d", netErr.StatusCode)
	}
	if h.session.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", h.session.State())
	}
	if atomic.LoadInt32(&h.dialer.dials) != 0 {
		t.Error("Expected no transport after failed negotiation")
	}
	if h.session.Err() != err {
		t.Error("Expected Err to return the Run outcome")
	}
}

func TestSessionDialFailure(t *testing.T) {
	h := newHarness(t, &fakeConn{})
	h.dialer.err = &transport.ConnectionError{URL: "wss://example.test/live", StatusCode: 403, Err: errors.New("bad handshake")}

	err := runWithTimeout(t, h.session, make(audio.SampleData, 100))

	var connErr *transport.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected ConnectionError, got %v", err)
	}
	if h.session.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", h.session.State())
	}
	if len(h.conn.sent()) != 0 {
		t.Error("Expected no frames without a transport")
	}
}

func TestSessionRoutesEvents(t *testing.T) {
	stateDuringFrames := make(chan State, 1)

	var h *testHarness
	conn := &fakeConn{
		onBinary: func(c *fakeConn, n int) {
			if n != 1 {
				return
			}
			c.emit(`{"type":"audio_chunk","data":{"acknowledged":true}}`)
			c.emit(`{"type":"transcript","data":{"is_final":false,"utterance":{"channel":1,"text":"hel"}}}`)
			c.emit(`{"type":"transcript","data":{"is_final":true,"utterance":{"channel":1,"text":"hello"}}}`)
			c.emit(`garbage`)
			stateDuringFrames <- h.session.State()
		},
		onStop: func(c *fakeConn) {
			c.emit(`{"type":"post_summarization","data":{"results":"greeting"}}`)
			c.serverClose(transport.CloseNormal, "")
		},
	}
	h = newHarness(t, conn)

	if err := runWithTimeout(t, h.session, make(audio.SampleData, 3200*20)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if state := <-stateDuringFrames; state != StateActive {
		t.Errorf("Expected active state while routing frames, got %s", state)
	}

	expected := []protocol.Event{
		protocol.PartialTranscript{Channel: 1, Text: "hel"},
		protocol.FinalTranscript{Channel: 1, Text: "hello"},
		protocol.SummarizationResult{Text: "greeting"},
	}
	events := h.sink.Events()
	if len(events) != len(expected) {
		t.Fatalf("Expected %d events, got %d: %#v", len(expected), len(events), events)
	}
	for i := range expected {
		if events[i] != expected[i] {
			t.Errorf("Event %d: expected %#v, got %#v", i, expected[i], events[i])
		}
	}

	stats := h.session.Stats()
	if stats.FramesDropped != 2 || stats.EventsDelivered != 3 {
		t.Errorf("Expected 2 dropped and 3 delivered, got %+v", stats)
	}
	if got := testutil.ToFloat64(h.metrics.FramesDropped); got != 2 {
		t.Errorf("Expected 2 dropped frames in metrics, got %v", got)
	}
}

func TestSessionNoEventsAfterStop(t *testing.T) {
	conn := &fakeConn{}
	h := newHarness(t, conn)

	stopped := make(chan struct{})
	conn.onBinary = func(c *fakeConn, n int) {
		if n == 1 {
			h.session.Stop()
			c.emit(`{"type":"transcript","data":{"is_final":true,"utterance":{"channel":0,"text":"late"}}}`)
			close(stopped)
		}
	}

	if err := runWithTimeout(t, h.session, make(audio.SampleData, 3200*10)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	<-stopped

	if events := h.sink.Events(); len(events) != 0 {
		t.Errorf("Expected no events after Stop, got %#v", events)
	}
}

func TestSessionRunTwice(t *testing.T) {
	conn := &fakeConn{}
	h := newHarness(t, conn)

	started := make(chan struct{})
	var once sync.Once
	conn.onBinary = func(c *fakeConn, n int) { once.Do(func() { close(started) }) }

	go h.session.Run(context.Background(), make(audio.SampleData, 3200*1000))
	<-started

	if err := h.session.Run(context.Background(), nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	h.session.Stop()
	<-h.session.Done()
}

func TestStateString(t *testing.T) {
	for state, expected := range map[State]string{
		StateIdle:        "idle",
		StateNegotiating: "negotiating",
		StateConnecting:  "connecting",
		StateActive:      "active",
		StateClosing:     "closing",
		StateClosed:      "closed",
		StateFailed:      "failed",
		State(42):        "unknown",
	} {
		if state.String() != expected {
			t.Errorf("Expected %s, got %s", expected, state.String())
		}
	}

	if !StateClosed.Terminal() || !StateFailed.Terminal() || StateClosing.Terminal() {
		t.Error("Unexpected Terminal result")
	}
}

func TestConnectionLostErrorMessage(t *testing.T) {
	err := &ConnectionLostError{Code: 4002, Reason: "timeout"}
	if got := err.Error(); got != fmt.Sprintf("lost connection to the server: [%d] %s", 4002, "timeout") {
		t.Errorf("Unexpected message %q", got)
	}
}
