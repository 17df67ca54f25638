package request

import (
	"log/slog"

	"github.com/google/uuid"
)

// Context carries a single request through the orchestration pipeline:
// its collision-resistant correlation id, the admitted request, and a
// logger pre-tagged with that id. The id is generated exactly once and
// never regenerated downstream.
type Context struct {
	ID      string
	Request Request
	Logger  *slog.Logger
}

// Tag assigns a correlation id to an admitted request. If clientID is
// non-empty the client-provided id is honored, otherwise a UUID is
// generated (time plus randomness, no external call).
func Tag(req Request, clientID string, logger *slog.Logger) Context {
	id := clientID
	if id == "" {
		id = uuid.NewString()
	}
	return Context{
		ID:      id,
		Request: req,
		Logger:  logger.With("request_id", id),
	}
}
