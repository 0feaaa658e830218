package realtime

import (
	"github.com/voicelab/voiceloop/pkg/audio"
)

// Transport is an established bidirectional media session with the realtime
// endpoint. Outbound audio goes through SendFrame at the caller's cadence;
// inbound audio and control events arrive asynchronously on the registered
// callbacks, on transport-owned goroutines.
//
// Callbacks must be registered before the first frame is sent. Transports
// deliver inbound audio already downmixed to mono at SampleRate().
type Transport interface {
	audio.FrameSender

	// OnInboundAudio registers the callback invoked for each chunk of remote
	// audio. The slice passed to the callback is only valid for the duration
	// of the call.
	OnInboundAudio(fn func(samples []int16))

	// OnControlMessage registers the callback invoked for each control-channel
	// event.
	OnControlMessage(fn func(ev *ServerEvent))

	// SampleRate is the PCM rate this transport sends and receives at.
	SampleRate() int

	Close() error
}

// pcm16Bytes converts mono int16 samples to little-endian PCM16 bytes.
func pcm16Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// pcm16Samples converts little-endian PCM16 bytes to int16 samples. A
// trailing odd byte is ignored.
func pcm16Samples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return samples
}

// monoMix averages interleaved multi-channel int16 samples down to mono,
// rounding toward zero. Used by transports whose wire codec delivers stereo.
func monoMix(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(interleaved[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}
