package audio

import (
	"math"
	"time"
)

// Mix reconstructs a single mono timeline from the paced input sequence and
// the inbound buffers captured during the session. Each buffer is placed at
// the sample offset corresponding to its arrival instant relative to start,
// then added to the input with saturation.
//
// Buffers are applied sequentially, clamping after every individual addition.
// Additive mixing is commutative up to clamp order; clamping per add (rather
// than once after summing) pins the behavior at extreme values.
func Mix(input []int16, start time.Time, buffers []TimestampedBuffer, sampleRate int) []int16 {
	outLen := len(input)
	offsets := make([]int, len(buffers))
	for i, buf := range buffers {
		off := offsetSamples(start, buf.Arrival, sampleRate)
		offsets[i] = off
		if end := off + len(buf.Samples); end > outLen {
			outLen = end
		}
	}

	mix := make([]int16, outLen)
	copy(mix, input)

	for i, buf := range buffers {
		off := offsets[i]
		for k, s := range buf.Samples {
			mix[off+k] = clamp16(int(mix[off+k]) + int(s))
		}
	}
	return mix
}

// offsetSamples converts an arrival instant to a sample offset from the
// stream-start instant. Arrivals before start should not happen with a
// well-behaved transport and are clamped to zero.
func offsetSamples(start, arrival time.Time, sampleRate int) int {
	ms := float64(arrival.Sub(start)) / float64(time.Millisecond)
	off := int(math.Round(ms * float64(sampleRate) / 1000))
	if off < 0 {
		return 0
	}
	return off
}
