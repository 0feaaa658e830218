// Command voiceloop streams a pre-recorded WAV file to a realtime voice
// endpoint at live playback cadence and writes a single WAV containing the
// input and the endpoint's spoken response on one timeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicelab/voiceloop/pkg/realtime"
	"github.com/voicelab/voiceloop/pkg/session"
	"github.com/voicelab/voiceloop/pkg/wavio"
)

func main() {
	var (
		inputPath       = flag.String("input", "", "input WAV file (16-bit PCM or 32-bit float)")
		outputPath      = flag.String("output", "conversation.wav", "output WAV file for the mixed timeline")
		apiKey          = flag.String("api-key", "", "realtime API key (defaults to OPENAI_API_KEY)")
		baseURL         = flag.String("base-url", realtime.DefaultBaseURL, "realtime endpoint base URL")
		model           = flag.String("model", realtime.DefaultModel, "realtime model")
		voice           = flag.String("voice", "alloy", "response voice")
		instructions    = flag.String("instructions", "", "optional session instructions")
		transportKind   = flag.String("transport", "webrtc", "transport to use (webrtc or websocket)")
		responseTimeout = flag.Duration("response-timeout", session.DefaultResponseTimeout, "max wait for the response to complete")
		logLevel        = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if *logLevel == "info" {
		if ll := os.Getenv("LOG_LEVEL"); ll != "" {
			*logLevel = ll
		}
	}

	logger := setupLogger(*logLevel)
	slog.SetDefault(logger)

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -input is required")
		flag.Usage()
		os.Exit(2)
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: no API key; pass -api-key or set OPENAI_API_KEY")
		os.Exit(2)
	}

	if err := run(logger, config{
		inputPath:       *inputPath,
		outputPath:      *outputPath,
		apiKey:          *apiKey,
		baseURL:         *baseURL,
		model:           *model,
		voice:           *voice,
		instructions:    *instructions,
		transportKind:   *transportKind,
		responseTimeout: *responseTimeout,
	}); err != nil {
		logger.Error("session failed", "error", err)
		os.Exit(1)
	}
}

type config struct {
	inputPath       string
	outputPath      string
	apiKey          string
	baseURL         string
	model           string
	voice           string
	instructions    string
	transportKind   string
	responseTimeout time.Duration
}

func run(logger *slog.Logger, cfg config) error {
	clip, err := wavio.DecodeFile(cfg.inputPath)
	if err != nil {
		return err
	}
	logger.Info("input decoded",
		"file", cfg.inputPath,
		"sampleRate", clip.SampleRate,
		"channels", clip.Channels,
		"bits", clip.SourceBits,
		"seconds", fmt.Sprintf("%.2f", clip.Duration()))

	client, err := realtime.NewClient(realtime.Config{
		APIKey:  cfg.apiKey,
		BaseURL: cfg.baseURL,
		Session: realtime.SessionOptions{
			Model:        cfg.model,
			Voice:        cfg.voice,
			Instructions: cfg.instructions,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var transport realtime.Transport
	switch cfg.transportKind {
	case "webrtc":
		transport, err = client.ConnectWebRTC(ctx)
	case "websocket":
		transport, err = client.ConnectWebSocket(ctx)
	default:
		return fmt.Errorf("unknown transport %q (want webrtc or websocket)", cfg.transportKind)
	}
	if err != nil {
		return err
	}
	defer transport.Close()

	recorder, err := session.NewRecorder(session.RecorderConfig{
		Transport:       transport,
		ResponseTimeout: cfg.responseTimeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	rec, err := recorder.Run(ctx, clip)
	if err != nil {
		if errors.Is(err, session.ErrCompletionTimeout) {
			return fmt.Errorf("endpoint never completed the response: %w", err)
		}
		return err
	}

	if err := wavio.EncodeFile(cfg.outputPath, rec.Samples, rec.SampleRate); err != nil {
		return err
	}

	logger.Info("conversation written",
		"file", cfg.outputPath,
		"sampleRate", rec.SampleRate,
		"seconds", fmt.Sprintf("%.2f", float64(len(rec.Samples))/float64(rec.SampleRate)))
	return nil
}

// setupLogger creates a structured logger.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
