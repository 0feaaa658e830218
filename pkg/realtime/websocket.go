package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicelab/voiceloop/pkg/audio"
)

// The websocket wire format is base64 PCM16 at 24 kHz in both directions.
const websocketSampleRate = 24000

// wsTransport is a Transport over a single websocket connection. Outbound
// frames become input_audio_buffer.append events; inbound audio arrives as
// response.audio.delta events on the same stream.
type wsTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	cbMu      sync.RWMutex
	onInbound func([]int16)
	onControl func(*ServerEvent)

	closeCh   chan struct{}
	closeOnce sync.Once
	endOnce   sync.Once
	endErr    error
	wg        sync.WaitGroup
}

// ConnectWebSocket dials the realtime websocket endpoint, applies the session
// options, and starts the background read loop.
func (c *Client) ConnectWebSocket(ctx context.Context) (Transport, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.websocketURL(), headers)
	if err != nil {
		return nil, &NegotiationError{Op: "websocket dial", Err: err}
	}

	t := &wsTransport{
		conn:    conn,
		logger:  c.logger,
		closeCh: make(chan struct{}),
	}

	session := c.session
	if err := t.sendEvent(sessionUpdateEvent(&session)); err != nil {
		conn.Close()
		return nil, &NegotiationError{Op: "session update", Err: err}
	}

	t.wg.Add(1)
	go t.readLoop()

	c.logger.Info("websocket session established", "model", session.Model, "rate", websocketSampleRate)
	return t, nil
}

func (t *wsTransport) SampleRate() int { return websocketSampleRate }

func (t *wsTransport) OnInboundAudio(fn func([]int16)) {
	t.cbMu.Lock()
	t.onInbound = fn
	t.cbMu.Unlock()
}

func (t *wsTransport) OnControlMessage(fn func(*ServerEvent)) {
	t.cbMu.Lock()
	t.onControl = fn
	t.cbMu.Unlock()
}

// SendFrame ships one mono PCM frame as a base64 append event.
func (t *wsTransport) SendFrame(f audio.Frame) error {
	if f.SampleRate != websocketSampleRate || f.Channels != 1 {
		return &SendError{Err: fmt.Errorf("frame format %dHz/%dch, transport requires %dHz mono",
			f.SampleRate, f.Channels, websocketSampleRate)}
	}
	if err := t.sendEvent(appendAudioEvent(pcm16Bytes(f.Samples))); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

// SignalEndOfInput commits the input buffer and requests the response.
// Idempotent: only the first call talks to the endpoint.
func (t *wsTransport) SignalEndOfInput() error {
	t.endOnce.Do(func() {
		if err := t.sendEvent(commitEvent()); err != nil {
			t.endErr = err
			return
		}
		t.endErr = t.sendEvent(responseCreateEvent())
	})
	return t.endErr
}

// readLoop parses inbound messages, routing audio deltas to the inbound
// callback and every event to the control callback.
func (t *wsTransport) readLoop() {
	defer t.wg.Done()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !t.isClosed() {
				t.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		ev, err := parseServerEvent(data)
		if err != nil {
			t.logger.Warn("unparseable server event", "error", err)
			continue
		}

		if ev.Type == EventTypeResponseAudioDelta && len(ev.Audio) > 0 {
			t.cbMu.RLock()
			fn := t.onInbound
			t.cbMu.RUnlock()
			if fn != nil {
				fn(pcm16Samples(ev.Audio))
			}
		}

		t.cbMu.RLock()
		ctrl := t.onControl
		t.cbMu.RUnlock()
		if ctrl != nil {
			ctrl(ev)
		}
	}
}

func (t *wsTransport) sendEvent(event map[string]interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(event)
}

func (t *wsTransport) isClosed() bool {
	select {
	case <-t.closeCh:
		return true
	default:
		return false
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.writeMu.Lock()
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

var _ Transport = (*wsTransport)(nil)
var _ Transport = (*webrtcTransport)(nil)
