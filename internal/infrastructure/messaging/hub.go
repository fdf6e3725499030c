// Package messaging implements the in-process progress stream hub: one
// ordered event stream per run, with replay for subscribers that attach
// after the run started.
package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

var (
	// ErrStreamNotFound is returned when subscribing to an unknown run.
	ErrStreamNotFound = errors.New("progress stream not found")

	// ErrHubClosed is returned after the hub has been shut down.
	ErrHubClosed = errors.New("stream hub is closed")
)

// ═══════════════════════════════════════════════════════════════════════════
// STREAM HUB
// ═══════════════════════════════════════════════════════════════════════════

// StreamHub fans progress events out to stream subscribers. Events arrive
// already sequenced by the run's reporter; the hub preserves arrival order
// per stream and never reorders. Every subscriber first receives the
// stream's full history, then live events.
type StreamHub struct {
	mu      sync.RWMutex
	streams map[string]*stream
	config  StreamHubConfig
	logger  *slog.Logger
	closed  bool
}

// StreamHubConfig contains configuration for StreamHub.
type StreamHubConfig struct {
	// SubscriberBuffer is the per-subscriber channel capacity beyond the
	// replayed history. A subscriber that falls this far behind is dropped.
	SubscriberBuffer int

	// Retention keeps a closed stream's history around so clients that
	// connect right after completion still get the full replay.
	Retention time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultStreamHubConfig returns sensible defaults.
func DefaultStreamHubConfig() StreamHubConfig {
	return StreamHubConfig{
		SubscriberBuffer: 64,
		Retention:        5 * time.Minute,
	}
}

// NewStreamHub creates a stream hub.
func NewStreamHub(config StreamHubConfig) *StreamHub {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 64
	}
	return &StreamHub{
		streams: make(map[string]*stream),
		config:  config,
		logger:  config.Logger.With(slog.String("component", "stream_hub")),
	}
}

// OpenStream creates the stream for a run and returns its publishing side.
// Reopening an existing run ID replaces the previous stream.
func (h *StreamHub) OpenStream(runID string) run.ProgressSink {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.streams[runID]; ok {
		prev.finish()
	}
	st := newStream(runID, h.config.SubscriberBuffer, h.logger)
	if !h.closed {
		h.streams[runID] = st
	}
	return st
}

// CloseStream finishes a run's stream. Live subscribers see their channels
// closed; the history stays subscribable for the retention window.
func (h *StreamHub) CloseStream(runID string) {
	h.mu.Lock()
	st, ok := h.streams[runID]
	h.mu.Unlock()
	if !ok {
		return
	}

	st.finish()

	if h.config.Retention <= 0 {
		h.remove(runID)
		return
	}
	time.AfterFunc(h.config.Retention, func() { h.remove(runID) })
}

// Subscribe attaches to a run's stream. The returned channel first replays
// the full history, then delivers live events in publish order; it is
// closed when the stream finishes or the cancel function is called.
func (h *StreamHub) Subscribe(runID string) (<-chan shared.ProgressEvent, func(), error) {
	h.mu.RLock()
	st, ok := h.streams[runID]
	closed := h.closed
	h.mu.RUnlock()

	if closed {
		return nil, nil, ErrHubClosed
	}
	if !ok {
		return nil, nil, ErrStreamNotFound
	}
	ch, cancel := st.subscribe()
	return ch, cancel, nil
}

// Close finishes every stream and rejects further subscriptions.
func (h *StreamHub) Close() {
	h.mu.Lock()
	streams := h.streams
	h.streams = make(map[string]*stream)
	h.closed = true
	h.mu.Unlock()

	for _, st := range streams {
		st.finish()
	}
}

func (h *StreamHub) remove(runID string) {
	h.mu.Lock()
	delete(h.streams, runID)
	h.mu.Unlock()
}

var _ run.StreamHub = (*StreamHub)(nil)

// ═══════════════════════════════════════════════════════════════════════════
// PER-RUN STREAM
// ═══════════════════════════════════════════════════════════════════════════

type stream struct {
	runID  string
	buffer int
	logger *slog.Logger

	mu       sync.Mutex
	history  []shared.ProgressEvent
	subs     map[int]chan shared.ProgressEvent
	nextSub  int
	finished bool
}

func newStream(runID string, buffer int, logger *slog.Logger) *stream {
	return &stream{
		runID:  runID,
		buffer: buffer,
		logger: logger,
		subs:   make(map[int]chan shared.ProgressEvent),
	}
}

// Publish appends the event to the history and fans it out. A subscriber
// whose buffer is full is dropped rather than allowed to stall the run.
func (s *stream) Publish(event shared.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.history = append(s.history, event)

	for id, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.logger.Warn("dropping slow stream subscriber",
				slog.String("run_id", s.runID),
				slog.Int("subscriber", id))
			delete(s.subs, id)
			close(ch)
		}
	}

	if event.IsTerminal() {
		s.finishLocked()
	}
}

func (s *stream) subscribe() (chan shared.ProgressEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan shared.ProgressEvent, len(s.history)+s.buffer)
	for _, event := range s.history {
		ch <- event
	}

	if s.finished {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *stream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

func (s *stream) finishLocked() {
	if s.finished {
		return
	}
	s.finished = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
