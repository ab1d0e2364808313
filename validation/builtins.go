package validation

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/c360/jsonrender/errors"
)

// Registry maps validator names to functions. Hosts extend it with their own
// checks (remote uniqueness, business rules) before streaming starts.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]CheckFunc
}

// NewRegistry creates a registry pre-populated with the built-in validators:
// required, email, minLength, maxLength, pattern, min, max.
func NewRegistry() *Registry {
	r := &Registry{fns: make(map[string]CheckFunc)}
	for name, fn := range builtins {
		r.fns[name] = fn
	}
	return r
}

// Register adds a named validator. Re-registering an existing name is
// rejected so generated content cannot be revalidated under changed rules
// mid-session.
func (r *Registry) Register(name string, fn CheckFunc) error {
	if name == "" || fn == nil {
		return errors.WrapInvalid(errors.ErrSchemaDefinition,
			"validation", "Register", "validator registration check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("validator %q: %w", name, errors.ErrDuplicateName),
			"validation", "Register", "duplicate validator check")
	}
	r.fns[name] = fn
	return nil
}

func (r *Registry) lookup(name string) (CheckFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// emailPattern is deliberately loose: it rejects obvious garbage without
// trying to implement RFC 5322.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var builtins = map[string]CheckFunc{
	"required": func(_ context.Context, value any, _ map[string]any) (bool, error) {
		switch v := value.(type) {
		case nil:
			return false, nil
		case string:
			return v != "", nil
		default:
			return true, nil
		}
	},

	"email": func(_ context.Context, value any, _ map[string]any) (bool, error) {
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		return emailPattern.MatchString(s), nil
	},

	"minLength": func(_ context.Context, value any, args map[string]any) (bool, error) {
		n, err := intArg(args, "len")
		if err != nil {
			return false, err
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		return len([]rune(s)) >= n, nil
	},

	"maxLength": func(_ context.Context, value any, args map[string]any) (bool, error) {
		n, err := intArg(args, "len")
		if err != nil {
			return false, err
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		return len([]rune(s)) <= n, nil
	},

	"pattern": func(_ context.Context, value any, args map[string]any) (bool, error) {
		expr, _ := args["pattern"].(string)
		if expr == "" {
			return false, fmt.Errorf("pattern check requires a %q arg", "pattern")
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", expr, err)
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		return re.MatchString(s), nil
	},

	"min": func(_ context.Context, value any, args map[string]any) (bool, error) {
		bound, err := floatArg(args, "value")
		if err != nil {
			return false, err
		}
		n, ok := asNumber(value)
		if !ok {
			return false, nil
		}
		return n >= bound, nil
	},

	"max": func(_ context.Context, value any, args map[string]any) (bool, error) {
		bound, err := floatArg(args, "value")
		if err != nil {
			return false, err
		}
		n, ok := asNumber(value)
		if !ok {
			return false, nil
		}
		return n <= bound, nil
	},
}

func intArg(args map[string]any, key string) (int, error) {
	f, err := floatArg(args, key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func floatArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("check requires a %q arg", key)
	}
	f, ok := asNumber(v)
	if !ok {
		return 0, fmt.Errorf("arg %q must be numeric", key)
	}
	return f, nil
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
