// Package wavio reads and writes linear-PCM WAV files. It is the codec
// boundary of voiceloop: decoding turns a file into interleaved integer
// samples at int16 scale, encoding writes the mixed mono timeline back out.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags handled by Decode.
const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// ErrUnsupportedFormat is returned for WAV files that are neither 16-bit
// integer PCM nor 32-bit IEEE float.
var ErrUnsupportedFormat = errors.New("wavio: unsupported sample format")

// Clip is a decoded audio file: interleaved samples normalized to int16
// scale, plus the source format needed to interpret them.
type Clip struct {
	Samples    []int // interleaved, already at int16 scale
	SampleRate int
	Channels   int
	SourceBits int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.Channels) / float64(c.SampleRate)
}

// DecodeFile reads a WAV file and normalizes its samples to int16 scale.
// 16-bit integer samples are taken as-is; 32-bit float samples are clamped to
// [-1, 1] and scaled by 32767, rounding to nearest. Anything else fails with
// ErrUnsupportedFormat.
func DecodeFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		if dec.Err() != nil {
			return nil, fmt.Errorf("wavio: %s is not a decodable WAV file: %w", path, dec.Err())
		}
		return nil, fmt.Errorf("wavio: %s is not a decodable WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: read %s: %w", path, err)
	}

	clip := &Clip{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		SourceBits: int(dec.BitDepth),
	}

	switch {
	case dec.WavAudioFormat == formatPCM && dec.BitDepth == 16:
		clip.Samples = make([]int, len(buf.Data))
		copy(clip.Samples, buf.Data)
	case dec.WavAudioFormat == formatIEEEFloat && dec.BitDepth == 32:
		// The decoder reads 32-bit words as raw integers; reinterpret them as
		// IEEE float bits before scaling.
		clip.Samples = make([]int, len(buf.Data))
		for i, v := range buf.Data {
			clip.Samples[i] = float32ToInt16Scale(math.Float32frombits(uint32(int32(v))))
		}
	default:
		return nil, fmt.Errorf("%w: format tag %d at %d bits", ErrUnsupportedFormat, dec.WavAudioFormat, dec.BitDepth)
	}

	return clip, nil
}

// float32ToInt16Scale clamps s to [-1, 1] and scales to int16 range, rounding
// to nearest.
func float32ToInt16Scale(s float32) int {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int(math.Round(float64(s) * 32767))
}

// EncodeFile writes mono 16-bit PCM samples as a WAV file at the given rate.
// The file is written once, in full; callers must not persist partial output.
func EncodeFile(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, formatPCM)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("wavio: write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("wavio: finalize %s: %w", path, err)
	}
	return f.Close()
}
