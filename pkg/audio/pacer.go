package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FrameDuration is the fixed duration of every outbound frame.
const FrameDuration = 10 * time.Millisecond

// Frame is a fixed-length slice of mono samples sent as one transport unit,
// tagged with the rate and channel count the transport needs to describe it.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the nominal playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// FrameSender is the outbound half of a realtime transport.
type FrameSender interface {
	// SendFrame transmits one frame. A send failure is fatal to the stream:
	// frame timing cannot be replayed without corrupting the cadence.
	SendFrame(Frame) error
	// SignalEndOfInput tells the remote end no more frames will follow.
	// Implementations must make this idempotent.
	SignalEndOfInput() error
}

// Pacer slices a mono sample sequence into FrameDuration frames and emits them
// to a FrameSender at real playback cadence, so the remote endpoint hears the
// equivalent of a live microphone rather than a burst transfer.
type Pacer struct {
	sender    FrameSender
	rate      int
	frameSize int
	logger    *slog.Logger

	start   time.Time
	started bool
}

// NewPacer creates a pacer emitting frames of rate/100 samples (10 ms).
func NewPacer(sender FrameSender, sampleRate int, logger *slog.Logger) (*Pacer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleRate <= 0 || sampleRate%100 != 0 {
		return nil, fmt.Errorf("audio: sample rate %d is not a positive multiple of 100", sampleRate)
	}
	return &Pacer{
		sender:    sender,
		rate:      sampleRate,
		frameSize: sampleRate / 100,
		logger:    logger,
	}, nil
}

// FrameSize returns the number of samples per emitted frame.
func (p *Pacer) FrameSize() int {
	return p.frameSize
}

// StartInstant returns the monotonic instant captured immediately before the
// first frame was sent. The zero time is returned if Run has not sent anything
// yet; callers compute inbound offsets relative to this instant.
func (p *Pacer) StartInstant() time.Time {
	return p.start
}

// Run emits ceil(len(samples)/frameSize) frames in order, padding the final
// frame with zero samples to full length, and signals end-of-input after the
// last frame. It waits FrameDuration between consecutive sends. A send
// rejection aborts immediately with the transport's error; cancellation aborts
// with ctx.Err().
func (p *Pacer) Run(ctx context.Context, samples []int16) error {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	frames := 0
	for off := 0; off < len(samples); off += p.frameSize {
		end := off + p.frameSize
		payload := make([]int16, p.frameSize)
		if end <= len(samples) {
			copy(payload, samples[off:end])
		} else {
			// Final short window: zero-pad, never truncate.
			copy(payload, samples[off:])
		}

		if !p.started {
			p.start = time.Now()
			p.started = true
		}

		frame := Frame{Samples: payload, SampleRate: p.rate, Channels: 1}
		if err := p.sender.SendFrame(frame); err != nil {
			return fmt.Errorf("audio: send frame %d: %w", frames, err)
		}
		frames++

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.logger.Debug("input stream paced out", "frames", frames, "samples", len(samples))

	if err := p.sender.SignalEndOfInput(); err != nil {
		return fmt.Errorf("audio: signal end of input: %w", err)
	}
	return nil
}
