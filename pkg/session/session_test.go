package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voicelab/voiceloop/pkg/audio"
	"github.com/voicelab/voiceloop/pkg/realtime"
	"github.com/voicelab/voiceloop/pkg/wavio"
)

// fakeTransport is an in-process Transport for orchestration tests.
type fakeTransport struct {
	mu        sync.Mutex
	rate      int
	frames    []audio.Frame
	endCalls  int
	sendErr   error
	onInbound func([]int16)
	onControl func(*realtime.ServerEvent)

	// onEnd runs on the first SignalEndOfInput, simulating the endpoint's
	// asynchronous response.
	onEnd func(ft *fakeTransport)
}

func newFakeTransport(rate int) *fakeTransport {
	return &fakeTransport{rate: rate}
}

func (f *fakeTransport) SendFrame(frame audio.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) SignalEndOfInput() error {
	f.mu.Lock()
	f.endCalls++
	first := f.endCalls == 1
	onEnd := f.onEnd
	f.mu.Unlock()
	if first && onEnd != nil {
		go onEnd(f)
	}
	return nil
}

func (f *fakeTransport) OnInboundAudio(fn func([]int16)) {
	f.mu.Lock()
	f.onInbound = fn
	f.mu.Unlock()
}

func (f *fakeTransport) OnControlMessage(fn func(*realtime.ServerEvent)) {
	f.mu.Lock()
	f.onControl = fn
	f.mu.Unlock()
}

func (f *fakeTransport) SampleRate() int { return f.rate }
func (f *fakeTransport) Close() error    { return nil }

func (f *fakeTransport) deliverAudio(samples []int16) {
	f.mu.Lock()
	fn := f.onInbound
	f.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func (f *fakeTransport) deliverControl(ev *realtime.ServerEvent) {
	f.mu.Lock()
	fn := f.onControl
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func monoClip(samples []int, rate int) *wavio.Clip {
	return &wavio.Clip{Samples: samples, SampleRate: rate, Channels: 1, SourceBits: 16}
}

func TestRecorderIdentityWithSilentEndpoint(t *testing.T) {
	ft := newFakeTransport(48000)
	ft.onEnd = func(ft *fakeTransport) {
		ft.deliverControl(&realtime.ServerEvent{Type: realtime.EventTypeResponseDone})
	}

	r, err := NewRecorder(RecorderConfig{Transport: ft})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	// 480 samples at 48kHz: exactly one frame, no resampling, no downmix.
	input := make([]int, 480)
	for i := range input {
		input[i] = i % 500
	}

	rec, err := r.Run(context.Background(), monoClip(input, 48000))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if rec.SampleRate != 48000 {
		t.Errorf("output rate: got %d, want 48000", rec.SampleRate)
	}
	if len(rec.Samples) != len(input) {
		t.Fatalf("output length: got %d, want %d", len(rec.Samples), len(input))
	}
	for i := range input {
		if int(rec.Samples[i]) != input[i] {
			t.Fatalf("sample %d: got %d, want %d", i, rec.Samples[i], input[i])
		}
	}

	if ft.endCalls != 1 {
		t.Errorf("end-of-input calls: got %d, want 1", ft.endCalls)
	}
}

func TestRecorderMixesResponseAudio(t *testing.T) {
	ft := newFakeTransport(48000)
	response := []int16{1000, 1000, 1000, 1000}
	ft.onEnd = func(ft *fakeTransport) {
		ft.deliverAudio(response)
		ft.deliverControl(&realtime.ServerEvent{Type: realtime.EventTypeResponseDone})
	}

	r, err := NewRecorder(RecorderConfig{Transport: ft})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	rec, err := r.Run(context.Background(), monoClip(make([]int, 480), 48000))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	found := 0
	for _, s := range rec.Samples {
		if s == 1000 {
			found++
		}
	}
	if found != len(response) {
		t.Errorf("response samples in mix: got %d, want %d", found, len(response))
	}
	if len(rec.Samples) < 480 {
		t.Errorf("output shorter than input: %d", len(rec.Samples))
	}
}

func TestRecorderResamplesInput(t *testing.T) {
	ft := newFakeTransport(24000)
	ft.onEnd = func(ft *fakeTransport) {
		ft.deliverControl(&realtime.ServerEvent{Type: realtime.EventTypeResponseDone})
	}

	r, err := NewRecorder(RecorderConfig{Transport: ft})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	// 960 samples at 48kHz resample to 480 at 24kHz: one full frame.
	rec, err := r.Run(context.Background(), monoClip(make([]int, 960), 48000))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(rec.Samples) != 480 {
		t.Errorf("output length: got %d, want 480", len(rec.Samples))
	}
	if len(ft.frames) != 1 {
		t.Fatalf("frames sent: got %d, want 1", len(ft.frames))
	}
	if ft.frames[0].SampleRate != 24000 {
		t.Errorf("frame rate: got %d, want 24000", ft.frames[0].SampleRate)
	}
}

func TestRecorderDownmixesStereoInput(t *testing.T) {
	ft := newFakeTransport(48000)
	ft.onEnd = func(ft *fakeTransport) {
		ft.deliverControl(&realtime.ServerEvent{Type: realtime.EventTypeResponseDone})
	}

	r, err := NewRecorder(RecorderConfig{Transport: ft})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	// 480 stereo frames of (100, 200) average to 480 mono samples of 150.
	stereo := make([]int, 960)
	for i := 0; i < len(stereo); i += 2 {
		stereo[i] = 100
		stereo[i+1] = 200
	}
	clip := &wavio.Clip{Samples: stereo, SampleRate: 48000, Channels: 2, SourceBits: 16}

	rec, err := r.Run(context.Background(), clip)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(rec.Samples) != 480 {
		t.Fatalf("output length: got %d, want 480", len(rec.Samples))
	}
	for i, s := range rec.Samples {
		if s != 150 {
			t.Fatalf("sample %d: got %d, want 150", i, s)
		}
	}
}

func TestRecorderSendErrorDiscardsSession(t *testing.T) {
	ft := newFakeTransport(48000)
	ft.sendErr = &realtime.SendError{Err: errors.New("transport gone")}

	r, err := NewRecorder(RecorderConfig{Transport: ft})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	rec, err := r.Run(context.Background(), monoClip(make([]int, 480), 48000))
	if err == nil {
		t.Fatal("expected error from rejected send")
	}
	var sendErr *realtime.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected *realtime.SendError in chain, got %v", err)
	}
	if rec != nil {
		t.Error("partial recording must be discarded on send failure")
	}
	if ft.endCalls != 0 {
		t.Errorf("end-of-input signaled after fatal send error: %d calls", ft.endCalls)
	}
}

func TestRecorderCompletionTimeout(t *testing.T) {
	ft := newFakeTransport(48000) // endpoint never completes

	r, err := NewRecorder(RecorderConfig{Transport: ft, ResponseTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	rec, err := r.Run(context.Background(), monoClip(make([]int, 480), 48000))
	if !errors.Is(err, ErrCompletionTimeout) {
		t.Fatalf("expected ErrCompletionTimeout, got %v", err)
	}
	if rec != nil {
		t.Error("recording must be discarded on timeout")
	}
}

func TestNewRecorderRequiresTransport(t *testing.T) {
	if _, err := NewRecorder(RecorderConfig{}); err == nil {
		t.Fatal("expected error for nil transport")
	}
}
