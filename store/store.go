// Package store provides the path-addressed reactive document store backing
// data bindings. The document is an arbitrary JSON-like value tree addressed
// by slash-delimited pointer paths such as "/form/email". Writes materialize
// intermediate containers, serialize in invocation order, and notify
// subscribers whose computed value changed - the path itself, every
// ancestor/prefix, and any subscribed descendant - but never unrelated
// subtrees.
//
// The store is session-scoped and in-memory only. It is created with an
// initial snapshot and mutated in place for the session's lifetime.
package store

import (
	"sort"
	"sync"

	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/types"
)

// Callback receives the new computed value at the subscription path after a
// write that touched it. The value is a deep copy; mutating it never affects
// store state.
type Callback func(value any)

// Store is the path-addressed document store. All writes serialize through
// one mutex (single logical writer); subscribers observe each write fully
// applied, never half-merged.
type Store struct {
	mu     sync.Mutex
	doc    any
	subs   map[string]map[int]Callback
	nextID int
}

// New creates a store holding a deep copy of the initial snapshot. A nil
// initial snapshot starts the document as an empty object.
func New(initial any) *Store {
	if initial == nil {
		initial = map[string]any{}
	}
	return &Store{
		doc:  types.DeepCopyValue(initial),
		subs: make(map[string]map[int]Callback),
	}
}

// Get returns a deep copy of the value at path and whether it exists.
// Missing paths report ok=false with a nil value; they never error.
func (s *Store) Get(path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := getValue(s.doc, segments)
	if !ok {
		return nil, false
	}
	return types.DeepCopyValue(value), true
}

// Set writes a value at path, materializing intermediate containers inferred
// from segment spelling: object-like keys produce maps, numeric-looking keys
// produce sequences extended with nils as needed. After the mutation fully
// applies, subscribers on the path, its ancestors and its subscribed
// descendants are notified synchronously in a deterministic order.
func (s *Store) Set(path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	newDoc, err := setValue(s.doc, segments, types.DeepCopyValue(value))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = newDoc
	pending := s.collectNotifications(normalizePath(path))
	s.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may issue further Sets;
	// those writes queue behind this one in invocation order.
	for _, n := range pending {
		n.fn(n.value)
	}
	return nil
}

// Reset replaces the whole document, notifying every subscriber. Used when a
// session clears its data.
func (s *Store) Reset(initial any) {
	if initial == nil {
		initial = map[string]any{}
	}

	s.mu.Lock()
	s.doc = types.DeepCopyValue(initial)
	pending := s.collectNotifications("")
	s.mu.Unlock()

	for _, n := range pending {
		n.fn(n.value)
	}
}

// Subscribe registers a callback for changes to the computed value at path.
// The returned function unsubscribes; it is safe to call more than once.
func (s *Store) Subscribe(path string, fn Callback) func() {
	path = normalizePath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]Callback)
	}
	s.subs[path][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.subs[path]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.subs, path)
			}
		}
	}
}

// Snapshot returns a deep-copied read-only view of the document, used for
// dispatch-time parameter resolution and visibility evaluation.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{doc: types.DeepCopyValue(s.doc)}
}

// Snapshot is an immutable point-in-time view of the document.
type Snapshot struct {
	doc any
}

// Get returns the value at path and whether it exists.
func (sn Snapshot) Get(path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	return getValue(sn.doc, segments)
}

// notification is one pending subscriber callback with its computed value.
type notification struct {
	fn    Callback
	value any
}

// collectNotifications gathers the callbacks affected by a write at path:
// subscriptions at the path, at any prefix of it, and at any path below it.
// Must be called with the lock held; values are deep-copied so callbacks can
// run lock-free.
func (s *Store) collectNotifications(path string) []notification {
	affected := make([]string, 0, len(s.subs))
	for subPath := range s.subs {
		if isPathPrefix(subPath, path) || isPathPrefix(path, subPath) {
			affected = append(affected, subPath)
		}
	}
	// Ancestors first, then lexicographic: deterministic per write.
	sort.Slice(affected, func(i, j int) bool {
		if len(affected[i]) != len(affected[j]) {
			return len(affected[i]) < len(affected[j])
		}
		return affected[i] < affected[j]
	})

	var pending []notification
	for _, subPath := range affected {
		segments, err := splitPath(subPath)
		if err != nil {
			continue
		}
		value, _ := getValue(s.doc, segments)
		value = types.DeepCopyValue(value)

		ids := make([]int, 0, len(s.subs[subPath]))
		for id := range s.subs[subPath] {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			pending = append(pending, notification{fn: s.subs[subPath][id], value: value})
		}
	}
	return pending
}

// getValue walks the document along segments.
func getValue(node any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return node, true
	}
	seg := segments[0]

	switch container := node.(type) {
	case map[string]any:
		child, ok := container[seg]
		if !ok {
			return nil, false
		}
		return getValue(child, segments[1:])
	case []any:
		idx, ok := parseIndex(seg)
		if !ok || idx >= len(container) {
			return nil, false
		}
		return getValue(container[idx], segments[1:])
	default:
		return nil, false
	}
}

// setValue writes value at the segment path below node, materializing
// containers as needed, and returns the (possibly replaced) node.
func setValue(node any, segments []string, value any) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	seg := segments[0]

	// An existing map wins even for numeric-looking segments: the document
	// shape was already established by an earlier write.
	if m, ok := node.(map[string]any); ok {
		child, err := setValue(m[seg], segments[1:], value)
		if err != nil {
			return nil, err
		}
		m[seg] = child
		return m, nil
	}

	if idx, numeric := parseIndex(seg); numeric {
		slice, ok := node.([]any)
		if !ok {
			// Scalar or nil: materialize a sequence.
			slice = nil
		}
		for len(slice) <= idx {
			slice = append(slice, nil)
		}
		child, err := setValue(slice[idx], segments[1:], value)
		if err != nil {
			return nil, err
		}
		slice[idx] = child
		return slice, nil
	}

	if _, isSlice := node.([]any); isSlice {
		return nil, errors.WrapInvalid(errors.ErrInvalidPath,
			"store", "Set", "object key into sequence")
	}

	// Scalar or nil: materialize a map.
	m := map[string]any{}
	child, err := setValue(nil, segments[1:], value)
	if err != nil {
		return nil, err
	}
	m[seg] = child
	return m, nil
}
