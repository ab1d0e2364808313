package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/jsonrender/errors"
)

// HandlerFunc executes one action with its fully-resolved parameters. It may
// complete synchronously or run work under the context; the dispatcher
// awaits it before applying any effect.
type HandlerFunc func(ctx context.Context, params map[string]any) error

// Registry maps action names to host-supplied handlers. The catalog decides
// which action names exist at all; the registry decides which of them this
// host can execute.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for an action name. Duplicate registrations are
// rejected.
func (r *Registry) Register(name string, fn HandlerFunc) error {
	if name == "" || fn == nil {
		return errors.WrapInvalid(errors.ErrSchemaDefinition,
			"action", "Register", "handler registration check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("handler %q: %w", name, errors.ErrDuplicateName),
			"action", "Register", "duplicate handler check")
	}
	r.handlers[name] = fn
	return nil
}

// Lookup returns the handler for an action name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}
