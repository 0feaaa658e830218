package realtime

import "fmt"

// NegotiationError is a fatal failure while establishing a session: credential
// exchange, SDP offer/answer, or the websocket handshake. It propagates to the
// caller unchanged; nothing in the negotiation path is retried.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("realtime: negotiation failed during %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// SendError is a fatal frame-send rejection. The pacer treats it as
// unrecoverable because a retried frame would arrive off-cadence.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("realtime: frame send rejected: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// APIError is an error event reported by the remote endpoint on the control
// channel.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: remote error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: remote error: %s", e.Message)
}
