// Package validation runs per-field checks against named, possibly-async
// validator functions and tracks touched/error state.
//
// Field state machine: Untouched -> Touched -> {Valid, Invalid}. Touch moves
// a field to Touched without running checks; Validate runs every declared
// check in order, collects every failing message (not just the first), and
// settles the field as Valid or Invalid. Blur-triggered fields never run
// checks before they are touched; an explicit Validate call always runs.
//
// Validation failure is state, never a thrown error: it surfaces through
// State and Errors.
package validation

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/pkg/retry"
)

// CheckFunc is a named validator. It reports whether the value passes.
// Checks may be asynchronous (remote uniqueness lookups); they receive a
// context and are awaited before error state is finalized. A returned error
// means the check itself could not run, distinct from a false result.
type CheckFunc func(ctx context.Context, value any, args map[string]any) (bool, error)

// Check is one declared validation check attached to a field: the validator
// function name, optional arguments, and the message reported on failure.
type Check struct {
	Fn      string         `json:"fn"`
	Args    map[string]any `json:"args,omitempty"`
	Message string         `json:"message"`
}

// Trigger declares when a field's checks run.
type Trigger string

const (
	// TriggerManual runs checks only on explicit Validate calls.
	TriggerManual Trigger = "manual"
	// TriggerBlur runs checks when the host reports a blur, gated on the
	// field having been touched.
	TriggerBlur Trigger = "blur"
)

// State is the field validation state.
type State int

const (
	// Untouched means the user has not interacted with the field.
	Untouched State = iota
	// Touched means the field was interacted with but not yet validated.
	Touched
	// Valid means the last validation pass found no failures.
	Valid
	// Invalid means the last validation pass collected failures.
	Invalid
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Untouched:
		return "untouched"
	case Touched:
		return "touched"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ValueSource supplies the current value for a field's path. store.Store
// satisfies it.
type ValueSource interface {
	Get(path string) (any, bool)
}

// Field tracks validation state for one data path.
type Field struct {
	path    string
	trigger Trigger
	checks  []Check

	engine *Engine

	mu     sync.Mutex
	state  State
	errs   []string
}

// Path returns the data path this field validates.
func (f *Field) Path() string { return f.path }

// State returns the current validation state.
func (f *Field) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Errors returns the messages collected by the last validation pass. Empty
// unless the field is Invalid.
func (f *Field) Errors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.errs))
	copy(out, f.errs)
	return out
}

// Touch transitions Untouched -> Touched without running checks. Touching a
// field that already progressed further is a no-op.
func (f *Field) Touch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Untouched {
		f.state = Touched
	}
}

// Blur applies the field's declared trigger: for blur-gated fields it
// touches and validates; for manual fields it only touches.
func (f *Field) Blur(ctx context.Context) State {
	f.Touch()
	if f.trigger != TriggerBlur {
		return f.State()
	}
	return f.Validate(ctx)
}

// Validate runs all declared checks in order against the field's current
// value, collecting every failing message, then settles the field as Valid
// or Invalid. An explicit call validates even an untouched field (and
// touches it). Async checks are awaited; a check that cannot run marks the
// field Invalid with a diagnostic message rather than erroring out.
func (f *Field) Validate(ctx context.Context) State {
	value, _ := f.engine.source.Get(f.path)

	var failures []string
	for _, check := range f.checks {
		fn, ok := f.engine.registry.lookup(check.Fn)
		if !ok {
			failures = append(failures, fmt.Sprintf("unknown check %q", check.Fn))
			continue
		}

		passed, err := f.engine.runCheck(ctx, fn, value, check.Args)
		if err != nil {
			failures = append(failures, fmt.Sprintf("check %q could not run: %v", check.Fn, err))
			continue
		}
		if !passed {
			failures = append(failures, check.Message)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = failures
	if len(failures) > 0 {
		f.state = Invalid
	} else {
		f.state = Valid
	}
	return f.state
}

// Engine owns the validator registry and the fields of one session.
type Engine struct {
	registry *Registry
	source   ValueSource
	retryCfg retry.Config

	mu     sync.Mutex
	fields map[string]*Field
}

// NewEngine creates a validation engine reading values from source. The
// registry starts with the built-in validators registered.
func NewEngine(source ValueSource) *Engine {
	return &Engine{
		registry: NewRegistry(),
		source:   source,
		retryCfg: retry.DefaultConfig(),
		fields:   make(map[string]*Field),
	}
}

// Registry returns the engine's validator registry for host registrations.
func (e *Engine) Registry() *Registry { return e.registry }

// Bind declares (or redeclares) the checks for a data path and returns the
// field. Redeclaring resets the field to Untouched.
func (e *Engine) Bind(path string, trigger Trigger, checks ...Check) *Field {
	if trigger == "" {
		trigger = TriggerManual
	}
	f := &Field{path: path, trigger: trigger, checks: checks, engine: e}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[path] = f
	return f
}

// Field returns the bound field for a path.
func (e *Engine) Field(path string) (*Field, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fields[path]
	return f, ok
}

// ValidateAll validates every bound field and returns the failing messages
// by path. Fields that pass are absent from the result.
func (e *Engine) ValidateAll(ctx context.Context) map[string][]string {
	e.mu.Lock()
	fields := make([]*Field, 0, len(e.fields))
	for _, f := range e.fields {
		fields = append(fields, f)
	}
	e.mu.Unlock()

	failures := make(map[string][]string)
	for _, f := range fields {
		if f.Validate(ctx) == Invalid {
			failures[f.Path()] = f.Errors()
		}
	}
	return failures
}

// runCheck invokes a validator, retrying transient failures (remote checks
// that timed out) with backoff. Non-transient errors are not retried.
func (e *Engine) runCheck(ctx context.Context, fn CheckFunc, value any, args map[string]any) (bool, error) {
	var passed bool
	err := retry.Do(ctx, e.retryCfg, func() error {
		var err error
		passed, err = fn(ctx, value, args)
		if err != nil && !errors.IsTransient(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
	return passed, err
}
