package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"layeh.com/gopus"

	"github.com/voicelab/voiceloop/pkg/audio"
)

// WebRTC media runs Opus at 48 kHz; outbound frames are encoded mono.
const (
	webrtcSampleRate = 48000
	// maxOpusFrame is the largest decoded Opus frame: 120 ms at 48 kHz.
	maxOpusFrame = 5760
)

// webrtcTransport is a Transport over a pion peer connection. Audio travels as
// Opus RTP in both directions; control events travel as JSON on the
// "oai-events" data channel.
type webrtcTransport struct {
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	localTrack *webrtc.TrackLocalStaticSample
	logger     *slog.Logger

	encMu sync.Mutex
	enc   *gopus.Encoder

	cbMu      sync.RWMutex
	onInbound func([]int16)
	onControl func(*ServerEvent)

	dcReady   chan struct{}
	readyOnce sync.Once
	closeCh   chan struct{}
	closeOnce sync.Once
	endOnce   sync.Once
	endErr    error
	wg        sync.WaitGroup
}

// ConnectWebRTC negotiates a WebRTC session: ephemeral token, peer connection
// with a local Opus track and the event data channel, SDP offer/answer over
// HTTP, then waits for the data channel to open.
func (c *Client) ConnectWebRTC(ctx context.Context) (Transport, error) {
	token, err := c.ephemeralToken(ctx)
	if err != nil {
		return nil, &NegotiationError{Op: "token exchange", Err: err}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, &NegotiationError{Op: "peer connection", Err: err}
	}

	localTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: webrtcSampleRate,
		Channels:  1,
	}, "audio", "voiceloop")
	if err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "local track", Err: err}
	}
	if _, err := pc.AddTrack(localTrack); err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "add track", Err: err}
	}

	enc, err := gopus.NewEncoder(webrtcSampleRate, 1, gopus.Audio)
	if err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "opus encoder", Err: err}
	}

	t := &webrtcTransport{
		pc:         pc,
		localTrack: localTrack,
		logger:     c.logger,
		enc:        enc,
		dcReady:    make(chan struct{}),
		closeCh:    make(chan struct{}),
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "data channel", Err: err}
	}
	t.dc = dc

	session := c.session
	dc.OnOpen(func() {
		t.logger.Debug("event data channel opened")
		if err := t.sendEvent(sessionUpdateEvent(&session)); err != nil {
			t.logger.Warn("failed to send session update", "error", err)
		}
		t.readyOnce.Do(func() { close(t.dcReady) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev, err := parseServerEvent(msg.Data)
		if err != nil {
			t.logger.Warn("unparseable control message", "error", err)
			return
		}
		t.dispatchControl(ev)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			t.logger.Debug("ignoring non-audio track", "codec", track.Codec().MimeType)
			return
		}
		t.logger.Debug("remote audio track received",
			"codec", track.Codec().MimeType,
			"clockRate", track.Codec().ClockRate,
			"channels", track.Codec().Channels)
		t.wg.Add(1)
		go t.readRemote(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Debug("peer connection state changed", "state", state.String())
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "create offer", Err: err}
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "set local description", Err: err}
	}

	// Gather ICE candidates before shipping the offer; the endpoint does a
	// single offer/answer round with no trickle.
	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		pc.Close()
		return nil, &NegotiationError{Op: "ICE gathering", Err: ctx.Err()}
	}

	answer, err := c.exchangeSDP(ctx, token, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "SDP exchange", Err: err}
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		return nil, &NegotiationError{Op: "set remote description", Err: err}
	}

	select {
	case <-t.dcReady:
	case <-time.After(30 * time.Second):
		pc.Close()
		return nil, &NegotiationError{Op: "data channel open", Err: fmt.Errorf("timed out")}
	case <-ctx.Done():
		pc.Close()
		return nil, &NegotiationError{Op: "data channel open", Err: ctx.Err()}
	}

	c.logger.Info("WebRTC session established", "model", session.Model, "rate", webrtcSampleRate)
	return t, nil
}

func (t *webrtcTransport) SampleRate() int { return webrtcSampleRate }

func (t *webrtcTransport) OnInboundAudio(fn func([]int16)) {
	t.cbMu.Lock()
	t.onInbound = fn
	t.cbMu.Unlock()
}

func (t *webrtcTransport) OnControlMessage(fn func(*ServerEvent)) {
	t.cbMu.Lock()
	t.onControl = fn
	t.cbMu.Unlock()
}

// SendFrame Opus-encodes one mono PCM frame and writes it to the local track.
func (t *webrtcTransport) SendFrame(f audio.Frame) error {
	if f.SampleRate != webrtcSampleRate || f.Channels != 1 {
		return &SendError{Err: fmt.Errorf("frame format %dHz/%dch, transport requires %dHz mono",
			f.SampleRate, f.Channels, webrtcSampleRate)}
	}

	t.encMu.Lock()
	payload, err := t.enc.Encode(f.Samples, len(f.Samples), len(f.Samples)*2)
	t.encMu.Unlock()
	if err != nil {
		return &SendError{Err: fmt.Errorf("opus encode: %w", err)}
	}

	if err := t.localTrack.WriteSample(media.Sample{
		Data:     payload,
		Duration: f.Duration(),
	}); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

// SignalEndOfInput commits the input buffer and requests the response.
// Idempotent: only the first call talks to the endpoint.
func (t *webrtcTransport) SignalEndOfInput() error {
	t.endOnce.Do(func() {
		if err := t.sendEvent(commitEvent()); err != nil {
			t.endErr = err
			return
		}
		t.endErr = t.sendEvent(responseCreateEvent())
	})
	return t.endErr
}

// readRemote decodes the remote Opus track to mono PCM and delivers it to the
// inbound callback.
func (t *webrtcTransport) readRemote(track *webrtc.TrackRemote) {
	defer t.wg.Done()

	channels := int(track.Codec().Channels)
	if channels < 1 {
		channels = 1
	}
	dec, err := gopus.NewDecoder(webrtcSampleRate, channels)
	if err != nil {
		t.logger.Error("failed to create opus decoder", "error", err, "channels", channels)
		return
	}

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !t.isClosed() {
				t.logger.Debug("remote track read ended", "error", err)
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := dec.Decode(pkt.Payload, maxOpusFrame, false)
		if err != nil {
			t.logger.Debug("opus decode error", "error", err, "payloadLen", len(pkt.Payload))
			continue
		}
		if len(pcm) == 0 {
			continue
		}

		t.cbMu.RLock()
		fn := t.onInbound
		t.cbMu.RUnlock()
		if fn != nil {
			fn(monoMix(pcm, channels))
		}
	}
}

func (t *webrtcTransport) dispatchControl(ev *ServerEvent) {
	t.cbMu.RLock()
	fn := t.onControl
	t.cbMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (t *webrtcTransport) sendEvent(event map[string]interface{}) error {
	if t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("realtime: event data channel not open")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return t.dc.Send(data)
}

func (t *webrtcTransport) isClosed() bool {
	select {
	case <-t.closeCh:
		return true
	default:
		return false
	}
}

func (t *webrtcTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)
		if t.dc != nil {
			t.dc.Close()
		}
		err = t.pc.Close()
		t.wg.Wait()
	})
	return err
}
