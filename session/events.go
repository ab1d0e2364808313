package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is one session lifecycle notification published for external
// observers (devtools, replay recorders).
type Event struct {
	Timestamp string         `json:"timestamp"` // RFC3339 format
	Session   string         `json:"session"`
	Kind      string         `json:"kind"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Event kinds published over the session event stream.
const (
	EventStreamStarted  = "stream.started"
	EventStreamFinished = "stream.finished"
	EventStreamAborted  = "stream.aborted"
	EventTreeReset      = "tree.reset"
	EventDispatch       = "dispatch"
)

// Events publishes session lifecycle events to NATS. Publishing is best
// effort: a failed publish is logged locally and never fails the session
// operation that produced it. A nil connection disables publishing entirely.
type Events struct {
	sessionID string
	nc        *nats.Conn
	logger    *slog.Logger
	enabled   bool
}

// NewEvents creates an event publisher for one session. nc may be nil.
func NewEvents(sessionID string, nc *nats.Conn, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		sessionID: sessionID,
		nc:        nc,
		logger:    logger,
		enabled:   nc != nil,
	}
}

// Publish emits one event on subject ui.session.{id}.{kind}.
func (e *Events) Publish(kind string, fields map[string]any) {
	if !e.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Session:   e.sessionID,
		Kind:      kind,
		Fields:    fields,
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("failed to marshal session event", "error", err, "kind", kind)
		return
	}

	nc := e.nc
	if nc == nil {
		return
	}

	subject := fmt.Sprintf("ui.session.%s.%s", e.sessionID, kind)
	if err := nc.Publish(subject, data); err != nil {
		e.logger.Error("failed to publish session event", "error", err, "subject", subject)
	}
}
