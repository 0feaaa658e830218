package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voicelab/voiceloop/pkg/realtime"
)

// ErrCompletionTimeout is returned when the endpoint never reports the
// response as finished within the configured wait.
var ErrCompletionTimeout = errors.New("session: timed out waiting for response completion")

// DefaultResponseTimeout bounds the wait for the remote response. The
// protocol itself defines no deadline; an endpoint that never sends the
// completion event would otherwise hang the session forever.
const DefaultResponseTimeout = 2 * time.Minute

// CompletionWatcher observes the control-channel event stream and resolves
// once the remote response is finished. Two states: awaiting response, done.
// It reacts to response.done only and ignores every other event type, so
// unknown control messages never fail a session.
type CompletionWatcher struct {
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	remoteErr error
}

// NewCompletionWatcher creates a watcher in the awaiting-response state.
func NewCompletionWatcher(logger *slog.Logger) *CompletionWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionWatcher{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// HandleEvent consumes one control-channel event. Safe to call from transport
// goroutines; the done barrier resolves exactly once.
func (w *CompletionWatcher) HandleEvent(ev *realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventTypeResponseDone:
		w.logger.Debug("response complete", "event_id", ev.EventID)
		w.once.Do(func() { close(w.done) })
	case realtime.EventTypeError:
		// Remember the remote error but keep waiting for response.done; some
		// error events are advisory and the response still completes.
		if ev.Error != nil {
			w.mu.Lock()
			w.remoteErr = ev.Error
			w.mu.Unlock()
			w.logger.Warn("remote error event", "code", ev.Error.Code, "message", ev.Error.Message)
		}
	default:
		w.logger.Debug("ignoring control event", "type", ev.Type)
	}
}

// Done reports whether the response has completed.
func (w *CompletionWatcher) Done() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// RemoteErr returns the last error event seen on the control channel, if any.
func (w *CompletionWatcher) RemoteErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remoteErr
}

// Wait blocks until the response completes, the timeout elapses, or ctx is
// cancelled. A non-positive timeout falls back to DefaultResponseTimeout.
func (w *CompletionWatcher) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return ErrCompletionTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
