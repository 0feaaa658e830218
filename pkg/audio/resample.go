package audio

import (
	"fmt"
	"math"
)

// clamp16 saturates v to the signed 16-bit sample range.
func clamp16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Downmix collapses interleaved multi-channel samples (already at int16 scale)
// to mono by averaging each frame's channel values, rounding half away from
// zero. A trailing partial frame is dropped. channels < 1 yields an empty
// result; channels == 1 copies the input into an int16 slice unchanged.
func Downmix(samples []int, channels int) []int16 {
	if channels < 1 {
		return nil
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		avg := math.Round(float64(sum) / float64(channels))
		mono[i] = clamp16(int(avg))
	}
	return mono
}

// Resampler converts a mono int16 sample sequence from one sample rate to
// another using first-order (linear) interpolation. Adequate for voice
// bandwidth; it is not spectrally exact and will alias on wideband material.
// For archival-quality conversion use a windowed-sinc resampler instead.
type Resampler struct {
	sourceRate int
	targetRate int
	ratio      float64
}

// NewResampler creates a resampler for the given rate pair. Both rates must be
// positive.
func NewResampler(sourceRate, targetRate int) (*Resampler, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates: source=%d, target=%d", sourceRate, targetRate)
	}
	return &Resampler{
		sourceRate: sourceRate,
		targetRate: targetRate,
		ratio:      float64(targetRate) / float64(sourceRate),
	}, nil
}

// Resample converts input at the source rate to a new sequence at the target
// rate. When the rates are equal the input is returned unchanged, without
// allocation. Output length is floor(len(input) * targetRate / sourceRate).
// The conversion is deterministic: equal inputs always produce equal outputs.
func (r *Resampler) Resample(input []int16) []int16 {
	if r.sourceRate == r.targetRate {
		return input
	}
	if len(input) == 0 {
		return nil
	}

	outLen := int(float64(len(input)) * r.ratio)
	output := make([]int16, outLen)
	last := len(input) - 1

	for i := 0; i < outLen; i++ {
		idx := float64(i) / r.ratio
		i0 := int(idx)
		i1 := i0 + 1
		if i1 > last {
			i1 = last
		}
		frac := idx - float64(i0)
		v := float64(input[i0])*(1-frac) + float64(input[i1])*frac
		output[i] = clamp16(int(math.Round(v)))
	}
	return output
}
