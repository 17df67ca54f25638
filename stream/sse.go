package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// heartbeatFrame is an SSE comment; clients ignore it and it carries no
// position in the logical event order.
const heartbeatFrame = ": keep-alive\n\n"

// Encode writes one event as an SSE frame.
func Encode(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Flusher pushes buffered frames to the client. http.ResponseWriter and
// gin's writer satisfy it.
type Flusher interface {
	Flush()
}

// Pump copies events to w as SSE frames until the channel closes, the
// context ends, or a write fails. Heartbeat comment frames go out when
// the stream is idle for the given interval; an interval of zero
// disables them.
func Pump(ctx context.Context, w io.Writer, flusher Flusher, events <-chan Event, heartbeat time.Duration) error {
	var idle *time.Timer
	var idleC <-chan time.Time
	if heartbeat > 0 {
		idle = time.NewTimer(heartbeat)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := Encode(w, ev); err != nil {
				return err
			}
			flusher.Flush()
			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(heartbeat)
			}

		case <-idleC:
			if _, err := io.WriteString(w, heartbeatFrame); err != nil {
				return fmt.Errorf("failed to write heartbeat: %w", err)
			}
			flusher.Flush()
			idle.Reset(heartbeat)
		}
	}
}
