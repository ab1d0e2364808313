// Package visibility evaluates visibility conditions against a data snapshot
// and an auth snapshot. Evaluation is pure and total over the condition
// grammar: it never mutates anything and never errors. Reads of
// not-yet-streamed paths resolve to an absent value, which is falsy, so a
// condition referencing data that has not arrived evaluates to not-visible
// rather than failing - visibility must be evaluable mid-stream.
package visibility

import (
	"math"
	"strings"

	"github.com/c360/jsonrender/types"
)

// Reader is the data view a condition reads through. store.Snapshot
// satisfies it.
type Reader interface {
	Get(path string) (any, bool)
}

// Auth condition values. A "role:<name>" value tests role membership.
const (
	AuthSignedIn  = "signedIn"
	AuthSignedOut = "signedOut"
	authRole      = "role:"
)

// Eval reports whether a condition holds. A nil condition means
// always-visible. Auth conditions read only the auth snapshot, never the
// data reader. Malformed conditions (no variant set, unknown auth value)
// fail safe to false.
func Eval(cond *types.Condition, data Reader, auth types.AuthSnapshot) bool {
	if cond == nil {
		return true
	}

	switch {
	case cond.And != nil:
		for _, sub := range cond.And {
			if !Eval(sub, data, auth) {
				return false
			}
		}
		return true

	case cond.Or != nil:
		for _, sub := range cond.Or {
			if Eval(sub, data, auth) {
				return true
			}
		}
		return false

	case cond.Not != nil:
		return !Eval(cond.Not, data, auth)

	case cond.Path != "":
		if data == nil {
			return false
		}
		value, ok := data.Get(cond.Path)
		if !ok {
			return false
		}
		return Truthy(value)

	case cond.Auth != "":
		return evalAuth(cond.Auth, auth)

	default:
		// A present-but-empty condition is malformed generated content.
		return false
	}
}

func evalAuth(test string, auth types.AuthSnapshot) bool {
	switch {
	case test == AuthSignedIn:
		return auth.SignedIn
	case test == AuthSignedOut:
		return !auth.SignedIn
	case strings.HasPrefix(test, authRole):
		role := strings.TrimPrefix(test, authRole)
		return role != "" && auth.HasRole(role)
	default:
		return false
	}
}

// Truthy reports JSON-style truthiness: nil, false, empty string, zero or
// NaN numbers, and empty containers are falsy; everything else is truthy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
