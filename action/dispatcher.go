// Package action dispatches declarative actions from generated UI: it
// resolves parameters against the data store, runs an optional confirmation
// step, invokes the host's handler, and applies declarative on-success /
// on-error effects.
//
// Dispatch outcomes are values, never panics: unknown actions, missing
// handlers and cancelled confirmations are all reported to the caller
// through the Outcome, and a failed dispatch applies no partial side
// effects.
package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/store"
	"github.com/c360/jsonrender/types"
)

// ErrorRef is the well-known error-reference token. An onError effect whose
// value is this literal receives the handler error's message string. Only
// the message crosses the boundary; the error object never reaches
// model-authored data paths.
const ErrorRef = "$error"

// Prompt is the content of a confirmation request, handed to the host's
// Confirmer. The dialog itself is a host concern.
type Prompt struct {
	Action  string
	Title   string
	Message string
	Variant string
}

// Confirmer supplies the external confirm/cancel decision for guarded
// actions. Returning false or a context error resolves the dispatch as
// Cancelled.
type Confirmer interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, prompt Prompt) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, prompt Prompt) (bool, error) {
	return f(ctx, prompt)
}

// Status is the dispatch result classification.
type Status int

const (
	// StatusSuccess means the handler completed and onSuccess effects ran.
	StatusSuccess Status = iota
	// StatusFailed means the dispatch was rejected (unknown action, missing
	// handler) or the handler returned an error; onError effects ran in the
	// latter case only.
	StatusFailed
	// StatusCancelled means the confirmation was declined or aborted; the
	// handler never ran and no effect was applied.
	StatusCancelled
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome reports one dispatch to the caller.
type Outcome struct {
	ID     string         // unique per dispatch, for logs and metrics
	Action string         // action name
	Status Status         //
	Params map[string]any // fully-resolved parameter map (nil if rejected at the gate)
	Err    error          // classified rejection or handler error
}

// Dispatcher executes actions against a catalog, a handler registry, a data
// store and an optional confirmer.
type Dispatcher struct {
	catalog   *catalog.Catalog
	handlers  *Registry
	confirmer Confirmer
	store     *store.Store
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. confirmer may be nil when no action in
// the catalog carries a confirm block; a guarded action dispatched without a
// confirmer resolves as Cancelled, since no decision can ever arrive.
func NewDispatcher(cat *catalog.Catalog, handlers *Registry, confirmer Confirmer,
	st *store.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		catalog:   cat,
		handlers:  handlers,
		confirmer: confirmer,
		store:     st,
		logger:    logger,
	}
}

// Dispatch runs one action against a point-in-time data snapshot.
//
// Gate order: catalog membership first (nothing is resolved for an unknown
// action), then handler lookup (so a user is never asked to confirm an
// action this host cannot execute), then parameter resolution, confirmation,
// handler invocation, and finally the effect list matching the handler's
// result, strictly in declared order.
func (d *Dispatcher) Dispatch(ctx context.Context, act types.Action, snap store.Snapshot) Outcome {
	out := Outcome{ID: uuid.NewString(), Action: act.Name}

	if !d.catalog.HasAction(act.Name) {
		out.Status = StatusFailed
		out.Err = errors.WrapInvalid(
			fmt.Errorf("action %q: %w", act.Name, errors.ErrUnknownAction),
			"action", "Dispatch", "catalog gate")
		d.logger.Warn("action rejected at catalog gate", "action", act.Name, "dispatch_id", out.ID)
		return out
	}

	handler, ok := d.handlers.Lookup(act.Name)
	if !ok {
		out.Status = StatusFailed
		out.Err = errors.WrapInvalid(
			fmt.Errorf("action %q: %w", act.Name, errors.ErrHandlerNotFound),
			"action", "Dispatch", "handler lookup")
		d.logger.Warn("no handler registered", "action", act.Name, "dispatch_id", out.ID)
		return out
	}

	out.Params = resolveParams(act.Params, snap)

	if act.Confirm != nil {
		confirmed, err := d.awaitConfirmation(ctx, act)
		if err != nil || !confirmed {
			out.Status = StatusCancelled
			out.Err = errors.Cancelled
			d.logger.Info("dispatch cancelled", "action", act.Name, "dispatch_id", out.ID)
			return out
		}
	}

	handlerErr := handler(ctx, out.Params)
	if handlerErr != nil {
		out.Status = StatusFailed
		out.Err = handlerErr
		d.applyEffects(act.OnError, snap, handlerErr)
		d.logger.Warn("handler failed", "action", act.Name, "dispatch_id", out.ID, "error", handlerErr)
		return out
	}

	out.Status = StatusSuccess
	d.applyEffects(act.OnSuccess, snap, nil)
	d.logger.Debug("dispatch succeeded", "action", act.Name, "dispatch_id", out.ID)
	return out
}

func (d *Dispatcher) awaitConfirmation(ctx context.Context, act types.Action) (bool, error) {
	if d.confirmer == nil {
		d.logger.Warn("guarded action dispatched with no confirmer", "action", act.Name)
		return false, nil
	}
	prompt := Prompt{
		Action:  act.Name,
		Title:   act.Confirm.Title,
		Message: act.Confirm.Message,
		Variant: act.Confirm.Variant,
	}
	// Suspension point: the decision may arrive much later. Context
	// cancellation here resolves the dispatch as Cancelled rather than
	// leaving it suspended.
	done := make(chan struct{})
	var confirmed bool
	var err error
	go func() {
		confirmed, err = d.confirmer.Confirm(ctx, prompt)
		close(done)
	}()
	select {
	case <-done:
		return confirmed, err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// applyEffects runs an effect list strictly in declared order after the
// handler settled. handlerErr is non-nil only for onError lists; its message
// substitutes the ErrorRef token. An effect that fails (invalid path) is
// logged and skipped; later effects still run.
func (d *Dispatcher) applyEffects(effects []types.Effect, snap store.Snapshot, handlerErr error) {
	for i, effect := range effects {
		if effect.Set == nil {
			continue
		}
		value := resolveValue(effect.Set.Value, snap)
		if handlerErr != nil {
			if s, ok := effect.Set.Value.(string); ok && s == ErrorRef {
				value = handlerErr.Error()
			}
		}
		if err := d.store.Set(effect.Set.Path, value); err != nil {
			d.logger.Warn("effect skipped", "index", i, "path", effect.Set.Path, "error", err)
		}
	}
}

// resolveParams materializes the parameter map: path references become value
// copies from the snapshot (missing paths resolve to nil, not an error),
// literals pass through unchanged.
func resolveParams(params map[string]any, snap store.Snapshot) map[string]any {
	resolved := make(map[string]any, len(params))
	for name, raw := range params {
		resolved[name] = resolveValue(raw, snap)
	}
	return resolved
}

func resolveValue(raw any, snap store.Snapshot) any {
	if path, ok := types.AsPathRef(raw); ok {
		value, _ := snap.Get(path)
		return value
	}
	return raw
}
