// Package main runs a local stand-in for the live transcription API.
//
// It accepts the session handshake, upgrades the returned URL to a websocket,
// records the audio it receives and answers with scripted transcripts, so the
// client can be exercised without credentials:
//
//	fakeserver -addr :8081 -api-key local
//	gladia-stream stream call.wav --endpoint http://localhost:8081/v2/live --api-key local
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sasportasjordan/gladia-use-case/internal/fakeservice"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8081", "listen address")
	apiKey := flag.String("api-key", "", "required API key, empty accepts any")
	transcribeEvery := flag.Int("transcribe-every", 20, "emit a transcript every N audio frames")
	summary := flag.String("summary", "", "summarization text sent after stop_recording")
	closeCode := flag.Int("close-code", 1000, "close code sent when the stream ends")
	closeReason := flag.String("close-reason", "", "close reason sent when the stream ends")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var onStop []string
	if *summary != "" {
		frame := fmt.Sprintf(`{"type":"post_summarization","data":{"results":%q}}`, *summary)
		onStop = append(onStop, frame)
	}

	fake := fakeservice.New(fakeservice.Options{
		APIKey:          *apiKey,
		TranscribeEvery: *transcribeEvery,
		OnStop:          onStop,
		CloseCode:       *closeCode,
		CloseReason:     *closeReason,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           fake,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Fake live API listening",
		slog.String("address", *addr),
		slog.String("endpoint", "http://"+*addr+fakeservice.LivePath),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Fake live API stopped")
}
