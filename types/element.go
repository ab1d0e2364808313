// Package types defines the shared data shapes of the jsonrender runtime:
// elements, actions, effects, visibility conditions and the auth snapshot.
// Everything here is plain data decoded from generated JSON. Behavior lives
// in the packages that consume these types (catalog, store, visibility,
// action, assemble).
package types

import "encoding/json"

// Element is one entry in a UI tree, identified by a stable key. Keys are
// identities, not positions: two records carrying the same key denote the
// same logical node, and later records patch earlier ones.
type Element struct {
	Key      string         `json:"key"`
	Type     string         `json:"type,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Children []string       `json:"children,omitempty"`
	Visible  *Condition     `json:"visible,omitempty"`
}

// Clone returns a deep copy of the element. Props values are copied through
// JSON-shaped deep copy so callers can never mutate stored state through a
// returned element.
func (e Element) Clone() Element {
	out := Element{
		Key:     e.Key,
		Type:    e.Type,
		Visible: e.Visible.clone(),
	}
	if e.Props != nil {
		out.Props = make(map[string]any, len(e.Props))
		for k, v := range e.Props {
			out.Props[k] = DeepCopyValue(v)
		}
	}
	if e.Children != nil {
		out.Children = make([]string, len(e.Children))
		copy(out.Children, e.Children)
	}
	return out
}

// Condition is the visibility condition grammar: a tagged variant where
// exactly one field is set. A nil *Condition means always-visible.
//
//   - And: all sub-conditions must hold
//   - Or: at least one sub-condition must hold
//   - Not: the sub-condition must not hold
//   - Path: the value at the data path must be truthy
//   - Auth: "signedIn", "signedOut" or "role:<name>" against the auth snapshot
type Condition struct {
	And  []*Condition `json:"and,omitempty"`
	Or   []*Condition `json:"or,omitempty"`
	Not  *Condition   `json:"not,omitempty"`
	Path string       `json:"path,omitempty"`
	Auth string       `json:"auth,omitempty"`
}

func (c *Condition) clone() *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{Path: c.Path, Auth: c.Auth, Not: c.Not.clone()}
	for _, sub := range c.And {
		out.And = append(out.And, sub.clone())
	}
	for _, sub := range c.Or {
		out.Or = append(out.Or, sub.clone())
	}
	return out
}

// AuthSnapshot is the read-only auth input to visibility evaluation. It is
// supplied by the host and never read from the data store.
type AuthSnapshot struct {
	SignedIn bool     `json:"signedIn"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the snapshot carries the given role.
func (a AuthSnapshot) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Action is a declarative action reference carried in element props. Params
// hold literals or path references; Confirm gates the dispatch behind an
// external decision; OnSuccess/OnError run after the handler settles.
type Action struct {
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
	Confirm   *Confirm       `json:"confirm,omitempty"`
	OnSuccess []Effect       `json:"onSuccess,omitempty"`
	OnError   []Effect       `json:"onError,omitempty"`
}

// Confirm describes the confirmation prompt shown before a guarded action
// runs. The dialog itself is a host concern; this is only its content.
type Confirm struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Variant string `json:"variant,omitempty"`
}

// Effect is one declarative post-action mutation. Only Set is defined today;
// the tagged-variant shape leaves room for more effect kinds.
type Effect struct {
	Set *SetEffect `json:"set,omitempty"`
}

// SetEffect writes a value to a data path. Value may be a literal, a path
// reference, or the error reference token (see action.ErrorRef).
type SetEffect struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// PathRefKey is the JSON key marking a value as a path reference:
// {"$path": "/form/email"} resolves to the store value at that path.
const PathRefKey = "$path"

// AsPathRef reports whether a decoded JSON value is a path reference and
// returns the referenced path. Only a single-key object form qualifies.
func AsPathRef(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	p, ok := m[PathRefKey].(string)
	return p, ok
}

// DeepCopyValue returns a deep copy of a JSON-shaped value (maps, slices,
// scalars). Unknown types are passed through unchanged.
func DeepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = DeepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopyValue(item)
		}
		return out
	case json.RawMessage:
		out := make(json.RawMessage, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
