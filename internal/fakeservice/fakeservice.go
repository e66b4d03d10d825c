package fakeservice

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
	"github.com/sasportasjordan/gladia-use-case/internal/transcription"
)

// Paths served by the fake
const (
	LivePath   = "/v2/live"
	StreamPath = "/v2/live/stream"
)

// Options script the behaviour of the fake service
type Options struct {
	// APIKey, when set, is required on the handshake
	APIKey string

	// HandshakeStatus forces the handshake to fail with this status
	HandshakeStatus int

	// OmitURL returns a handshake response without url
	OmitURL bool

	// RejectUpgrade refuses the websocket upgrade with 403
	RejectUpgrade bool

	// OnFirstAudio frames are sent after the first binary frame
	OnFirstAudio []string

	// OnStop frames are sent after stop_recording, before closing
	OnStop []string

	// TranscribeEvery emits a partial then a final transcript every N
	// audio frames when positive
	TranscribeEvery int

	// CloseAfterChunks closes with CloseCode after N audio frames when positive
	CloseAfterChunks int

	// CloseCode and CloseReason are used for every server-side close.
	// CloseCode defaults to 1000.
	CloseCode   int
	CloseReason string

	// HoldOnStop keeps the socket open after stop_recording
	HoldOnStop bool

	Logger *slog.Logger
}

// Frame is a message received from the client
type Frame struct {
	Binary bool
	Data   []byte
}

// Server is an http.Handler emulating the live transcription API
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu         sync.Mutex
	handshakes []json.RawMessage
	frames     []Frame
	sessions   map[string]bool

	streamDone     chan struct{}
	streamDoneOnce sync.Once
}

// New creates a fake service
func New(opts Options) *Server {
	if opts.CloseCode == 0 {
		opts.CloseCode = websocket.CloseNormalClosure
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		opts:       opts,
		logger:     logger,
		sessions:   make(map[string]bool),
		streamDone: make(chan struct{}),
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc(LivePath, s.handleHandshake)
	s.mux.HandleFunc(StreamPath, s.handleStream)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.opts.APIKey != "" && r.Header.Get(transcription.CredentialHeader) != s.opts.APIKey {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
		return
	}

	if s.opts.HandshakeStatus != 0 {
		http.Error(w, `{"message":"scripted failure"}`, s.opts.HandshakeStatus)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.handshakes = append(s.handshakes, body)
	s.sessions[id] = true
	s.mu.Unlock()

	resp := map[string]string{"id": id}
	if !s.opts.OmitURL {
		resp["url"] = fmt.Sprintf("ws://%s%s?session=%s", r.Host, StreamPath, id)
	}

	s.logger.Info("Live session created", slog.String("session_id", id))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")

	s.mu.Lock()
	known := s.sessions[id]
	s.mu.Unlock()

	if s.opts.RejectUpgrade || !known {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer s.streamDoneOnce.Do(func() { close(s.streamDone) })
	defer conn.Close()

	chunks := 0
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Stream ended", slog.String("session_id", id), slog.String("reason", err.Error()))
			return
		}

		s.mu.Lock()
		s.frames = append(s.frames, Frame{Binary: messageType == websocket.BinaryMessage, Data: data})
		s.mu.Unlock()

		if messageType == websocket.BinaryMessage {
			chunks++
			if chunks == 1 {
				s.sendAll(conn, s.opts.OnFirstAudio)
			}
			if s.opts.TranscribeEvery > 0 && chunks%s.opts.TranscribeEvery == 0 {
				s.sendTranscript(conn, chunks/s.opts.TranscribeEvery)
			}
			if s.opts.CloseAfterChunks > 0 && chunks >= s.opts.CloseAfterChunks {
				s.close(conn)
				return
			}
			continue
		}

		var control struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &control); err != nil || control.Type != protocol.TypeStopRecording {
			continue
		}

		s.sendAll(conn, s.opts.OnStop)
		if s.opts.HoldOnStop {
			continue
		}
		s.close(conn)
		return
	}
}

func (s *Server) sendAll(conn *websocket.Conn, frames []string) {
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}
}

func (s *Server) sendTranscript(conn *websocket.Conn, n int) {
	text := fmt.Sprintf("segment %d", n)
	for _, final := range []bool{false, true} {
		frame, _ := json.Marshal(map[string]any{
			"type": protocol.TypeTranscript,
			"data": map[string]any{
				"is_final": final,
				"utterance": map[string]any{
					"channel": n % 2,
					"text":    text,
				},
			},
		})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

func (s *Server) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(s.opts.CloseCode, s.opts.CloseReason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Handshakes returns the bodies of all handshake requests
func (s *Server) Handshakes() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.handshakes...)
}

// Frames returns every frame received on streams so far
func (s *Server) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// StreamDone is closed when the first stream connection ends
func (s *Server) StreamDone() <-chan struct{} {
	return s.streamDone
}
