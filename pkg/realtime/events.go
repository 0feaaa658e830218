package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client event types sent to the endpoint.
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeResponseCreate         = "response.create"
)

// Server event types observed on the control channel. The completion watcher
// reacts to EventTypeResponseDone only; every other type is tolerated and
// ignored.
const (
	EventTypeError              = "error"
	EventTypeSessionCreated     = "session.created"
	EventTypeResponseCreated    = "response.created"
	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"
	EventTypeResponseDone       = "response.done"
)

// ServerEvent is one parsed control-channel message from the endpoint.
type ServerEvent struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Delta   string    `json:"delta,omitempty"`
	Error   *APIError `json:"error,omitempty"`

	// Audio holds the decoded payload of a response.audio.delta event.
	Audio []byte `json:"-"`
	// Raw is the original message for callers needing fields not modeled here.
	Raw json.RawMessage `json:"-"`
}

// parseServerEvent unmarshals a control message. For audio delta events the
// base64 delta payload is decoded into Audio.
func parseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("realtime: parse server event: %w", err)
	}
	ev.Raw = data

	if ev.Type == EventTypeResponseAudioDelta && ev.Delta != "" {
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return nil, fmt.Errorf("realtime: decode audio delta: %w", err)
		}
		ev.Audio = audio
	}
	return &ev, nil
}

// newEventID generates a unique client event ID.
func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// sessionUpdateEvent builds the session.update message applying the session
// options negotiated by the client.
func sessionUpdateEvent(cfg *SessionOptions) map[string]interface{} {
	session := map[string]interface{}{
		"modalities":          []string{"audio", "text"},
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
	}
	if cfg.Voice != "" {
		session["voice"] = cfg.Voice
	}
	if cfg.Instructions != "" {
		session["instructions"] = cfg.Instructions
	}
	return map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  session,
	}
}

// commitEvent builds the input_audio_buffer.commit message.
func commitEvent() map[string]interface{} {
	return map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferCommit,
	}
}

// responseCreateEvent builds the response.create message requesting a spoken
// reply to the committed input.
func responseCreateEvent() map[string]interface{} {
	return map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeResponseCreate,
	}
}

// appendAudioEvent builds the input_audio_buffer.append message carrying
// base64-encoded PCM16 bytes.
func appendAudioEvent(pcm []byte) map[string]interface{} {
	return map[string]interface{}{
		"event_id": newEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    base64.StdEncoding.EncodeToString(pcm),
	}
}
