// Package session runs one single-shot conversation: it paces a pre-recorded
// clip into a realtime transport, captures the asynchronously arriving
// response, and reconstructs the combined timeline once the endpoint reports
// the response complete.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicelab/voiceloop/pkg/audio"
	"github.com/voicelab/voiceloop/pkg/realtime"
	"github.com/voicelab/voiceloop/pkg/wavio"
)

// Recording is the mixed session timeline.
type Recording struct {
	Samples    []int16
	SampleRate int
}

// RecorderConfig holds configuration for a Recorder.
type RecorderConfig struct {
	Transport       realtime.Transport
	ResponseTimeout time.Duration // zero means DefaultResponseTimeout
	Logger          *slog.Logger
}

// Recorder owns the lifecycle of one conversation. It is single-shot: a
// Recorder must not be reused after Run returns.
type Recorder struct {
	transport       realtime.Transport
	responseTimeout time.Duration
	logger          *slog.Logger
}

// NewRecorder creates a recorder for the given transport.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("session: transport required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		transport:       cfg.Transport,
		responseTimeout: cfg.ResponseTimeout,
		logger:          cfg.Logger,
	}, nil
}

// Run streams the clip at live cadence, waits for the remote response to
// finish, and returns the mixed timeline. On any fatal error the partial
// session is discarded: a gap-containing recording must never be mistaken for
// a complete one.
func (r *Recorder) Run(ctx context.Context, clip *wavio.Clip) (*Recording, error) {
	rate := r.transport.SampleRate()

	mono := audio.Downmix(clip.Samples, clip.Channels)
	resampler, err := audio.NewResampler(clip.SampleRate, rate)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	paced := resampler.Resample(mono)

	r.logger.Info("input prepared",
		"sourceRate", clip.SampleRate,
		"sourceChannels", clip.Channels,
		"pacedRate", rate,
		"pacedSamples", len(paced))

	capture := audio.NewCaptureLog()
	watcher := NewCompletionWatcher(r.logger)

	// Callbacks must be in place before the first frame goes out; the
	// response can start arriving while we are still sending.
	r.transport.OnInboundAudio(capture.Append)
	r.transport.OnControlMessage(watcher.HandleEvent)

	pacer, err := audio.NewPacer(r.transport, rate, r.logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	if err := pacer.Run(ctx, paced); err != nil {
		return nil, fmt.Errorf("session: pacing aborted: %w", err)
	}

	r.logger.Info("input stream sent, waiting for response completion",
		"captured", capture.Len())

	if err := watcher.Wait(ctx, r.responseTimeout); err != nil {
		return nil, err
	}
	if err := watcher.RemoteErr(); err != nil {
		r.logger.Warn("session completed with remote error event", "error", err)
	}

	buffers := capture.Snapshot()
	mixed := audio.Mix(paced, pacer.StartInstant(), buffers, rate)

	r.logger.Info("session mixed",
		"inboundBuffers", len(buffers),
		"outputSamples", len(mixed),
		"outputSeconds", float64(len(mixed))/float64(rate))

	return &Recording{Samples: mixed, SampleRate: rate}, nil
}
