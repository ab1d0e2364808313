// Package session ties the runtime together: one Session owns a catalog, a
// data store, a validation engine, an action dispatcher and the stream
// assembly pipeline for the interface generations shown to one user.
//
// A session outlives individual streams. Feeding chunks grows the current
// generation's tree; ResetTree discards it and starts the next generation
// over the same store, so data entered by the user survives regeneration.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360/jsonrender/action"
	"github.com/c360/jsonrender/assemble"
	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/metric"
	"github.com/c360/jsonrender/store"
	"github.com/c360/jsonrender/types"
	"github.com/c360/jsonrender/validation"
)

// Options configures a new session. Catalog is required; everything else has
// a working zero value.
type Options struct {
	Catalog     *catalog.Catalog
	InitialData any
	Auth        types.AuthSnapshot
	Confirmer   action.Confirmer
	Logger      *slog.Logger
	Metrics     *metric.Metrics
	EventConn   *nats.Conn
}

// Session is the per-user runtime instance.
type Session struct {
	id      string
	catalog *catalog.Catalog
	store   *store.Store
	engine  *validation.Engine

	handlers   *action.Registry
	dispatcher *action.Dispatcher

	logger  *slog.Logger
	metrics *metric.Metrics
	events  *Events

	mu        sync.Mutex
	auth      types.AuthSnapshot
	assembler *assemble.Assembler
	decoder   *assemble.Decoder
	streaming bool
}

// New creates a session around a catalog.
func New(opts Options) (*Session, error) {
	if opts.Catalog == nil {
		return nil, errors.WrapFatal(errors.ErrSchemaDefinition,
			"session", "New", "catalog requirement check")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	st := store.New(opts.InitialData)
	handlers := action.NewRegistry()

	s := &Session{
		id:         id,
		catalog:    opts.Catalog,
		store:      st,
		engine:     validation.NewEngine(st),
		handlers:   handlers,
		dispatcher: action.NewDispatcher(opts.Catalog, handlers, opts.Confirmer, st, logger),
		logger:     logger.With("session", id),
		metrics:    opts.Metrics,
		events:     NewEvents(id, opts.EventConn, logger),
		auth:       opts.Auth,
		assembler:  assemble.New(opts.Catalog, "", logger),
		decoder:    assemble.NewDecoder(),
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Store returns the session's data store.
func (s *Session) Store() *store.Store { return s.store }

// Validation returns the session's validation engine.
func (s *Session) Validation() *validation.Engine { return s.engine }

// Handlers returns the action handler registry for host registrations.
func (s *Session) Handlers() *action.Registry { return s.handlers }

// SetAuth replaces the auth snapshot. Visibility reflects the new snapshot
// from the next Render on.
func (s *Session) SetAuth(auth types.AuthSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
}

// FeedChunk ingests one raw chunk of the current generation's stream. Every
// record that completed inside the chunk is merged into the tree before the
// call returns; a partial tail stays buffered for the next chunk. The first
// chunk of a generation marks the stream started.
func (s *Session) FeedChunk(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming {
		s.streaming = true
		s.events.Publish(EventStreamStarted, nil)
	}

	records, err := s.decoder.Feed(chunk)
	for _, rec := range records {
		if s.metrics != nil {
			s.metrics.RecordsDecoded.Inc()
		}
		if applyErr := s.assembler.Apply(rec); applyErr != nil {
			s.logger.Warn("record rejected", "key", rec.Key, "error", applyErr)
			if s.metrics != nil {
				s.metrics.RecordsRejected.Inc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordsMerged.Inc()
		}
	}
	if root := s.decoder.RootKey(); root != "" {
		s.assembler.SetRootKey(root)
	}
	if s.metrics != nil {
		s.metrics.TreeElements.Set(float64(s.assembler.Len()))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordsRejected.Inc()
		}
		return err
	}
	return nil
}

// FinishStream marks the current generation's stream as ended and returns
// the completion report. A non-clean report does not invalidate the tree; it
// stays readable with whatever completed.
func (s *Session) FinishStream() assemble.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.decoder.Finish(); err != nil {
		s.logger.Warn("stream ended with unterminated data", "error", err)
	}
	report := s.assembler.Finish()
	s.streaming = false

	s.events.Publish(EventStreamFinished, map[string]any{
		"clean":        report.Clean(),
		"incomplete":   len(report.IncompleteKeys),
		"placeholders": len(report.PlaceholderKeys),
		"invalid":      len(report.InvalidKeys),
		"orphans":      len(report.OrphanKeys),
	})
	return report
}

// AbortStream stops the current generation's stream. The last fully-merged
// tree stays intact and readable.
func (s *Session) AbortStream() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assembler.Abort()
	s.streaming = false
	s.events.Publish(EventStreamAborted, nil)
}

// ResetTree discards the current generation and prepares for the next
// stream. The data store is untouched: user-entered values survive.
func (s *Session) ResetTree() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assembler = assemble.New(s.catalog, "", s.logger)
	s.decoder = assemble.NewDecoder()
	s.streaming = false
	s.events.Publish(EventTreeReset, nil)
}

// Streaming reports whether a stream is currently feeding the tree.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Invoke dispatches one action against the current data snapshot and
// publishes the outcome.
func (s *Session) Invoke(ctx context.Context, act types.Action) action.Outcome {
	start := time.Now()
	out := s.dispatcher.Dispatch(ctx, act, s.store.Snapshot())

	if s.metrics != nil {
		s.metrics.Dispatches.WithLabelValues(act.Name, out.Status.String()).Inc()
	}
	fields := map[string]any{
		"dispatch_id": out.ID,
		"action":      out.Action,
		"status":      out.Status.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if out.Err != nil {
		fields["error"] = out.Err.Error()
	}
	s.events.Publish(EventDispatch, fields)
	return out
}

// InvokeNamed dispatches a bare action by name with literal parameters,
// for host-initiated invocations that carry no confirm block or effects.
func (s *Session) InvokeNamed(ctx context.Context, name string, params map[string]any) action.Outcome {
	return s.Invoke(ctx, types.Action{Name: name, Params: params})
}

// ValidateAll runs every bound validation field and records failures.
func (s *Session) ValidateAll(ctx context.Context) map[string][]string {
	failures := s.engine.ValidateAll(ctx)
	if s.metrics != nil {
		for path := range failures {
			s.metrics.ValidationFailures.WithLabelValues(path).Inc()
		}
	}
	return failures
}
