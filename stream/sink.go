package stream

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrTerminated is returned when an event is emitted after the
	// terminal event. Emitting past the terminal is a caller bug.
	ErrTerminated = errors.New("stream already terminated")
	// ErrCanceled is returned when the stream consumer is gone.
	ErrCanceled = errors.New("stream canceled")
)

// Sink is the ordered, single-producer event channel of one request.
// Events pass through in emission order; exactly one terminal event is
// allowed, after which the channel closes. Cancel detaches the consumer
// without requiring a terminal.
type Sink struct {
	ch        chan Event
	cancel    chan struct{}
	requestID string
	logger    *slog.Logger

	mu         sync.Mutex
	terminated bool
	canceled   bool
}

// NewSink creates a sink with the given buffer size. Every event passing
// through carries the request's correlation id on the wire.
func NewSink(buffer int, requestID string, logger *slog.Logger) *Sink {
	if buffer <= 0 {
		buffer = 1
	}
	return &Sink{
		ch:        make(chan Event, buffer),
		cancel:    make(chan struct{}),
		requestID: requestID,
		logger:    logger,
	}
}

// Events returns the consumer side. The channel closes after the
// terminal event is delivered.
func (s *Sink) Events() <-chan Event {
	return s.ch
}

// Emit sends one event in order. It blocks when the buffer is full,
// giving the producer backpressure, and fails once the sink is canceled
// or terminated. The terminal event closes the channel.
func (s *Sink) Emit(ev Event) error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		s.logger.Error("event emitted after terminal", "type", string(ev.Type))
		return ErrTerminated
	}
	if s.canceled {
		s.mu.Unlock()
		return ErrCanceled
	}
	terminal := ev.Terminal()
	if terminal {
		s.terminated = true
	}
	s.mu.Unlock()

	ev.setRequestID(s.requestID)

	select {
	case s.ch <- ev:
	case <-s.cancel:
		return ErrCanceled
	}

	if terminal {
		close(s.ch)
	}
	return nil
}

// Cancel detaches the consumer. In-flight and future emissions fail with
// ErrCanceled; no terminal event is forced. Safe to call more than once.
func (s *Sink) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return
	}
	s.canceled = true
	close(s.cancel)
}

// Terminated reports whether the terminal event has been emitted.
func (s *Sink) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}
