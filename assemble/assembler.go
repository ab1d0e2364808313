// Package assemble converts an ordered, growing sequence of flat (possibly
// partial) element records into a coherent tree. Records merge by key, so a
// later record can progressively complete an element without discarding
// earlier partial state. Children referenced before they arrive become
// placeholder nodes rather than dangling references, and the rooted tree is
// recomputed deterministically after each merge: the assembler never fails
// on forward references and never exposes a half-merged element.
package assemble

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/types"
)

// DefaultRootKey is assumed when the producer never declares a root.
const DefaultRootKey = "root"

// Node is one resolved tree position handed to readers. Element is a deep
// copy; mutating it never affects assembler state.
type Node struct {
	Element     types.Element
	State       catalog.State
	Placeholder bool // referenced by a parent but not yet arrived
	Children    []*Node
}

// Key returns the node's stable identity.
func (n *Node) Key() string { return n.Element.Key }

// Tree is the rooted result of one assembly pass.
type Tree struct {
	Root *Node
}

// Walk visits every node depth-first, parents before children.
func (t *Tree) Walk(fn func(*Node)) {
	if t == nil || t.Root == nil {
		return
	}
	var visit func(*Node)
	visit = func(n *Node) {
		fn(n)
		for _, child := range n.Children {
			visit(child)
		}
	}
	visit(t.Root)
}

// Report summarizes stream completion: which nodes never completed, which
// children never arrived, and which elements are unreachable from the root.
// A non-empty report does not invalidate the rest of the tree.
type Report struct {
	IncompleteKeys  []string
	PlaceholderKeys []string
	InvalidKeys     []string
	OrphanKeys      []string
}

// Clean reports whether the stream finished with every element complete,
// valid and reachable.
func (r Report) Clean() bool {
	return len(r.IncompleteKeys) == 0 && len(r.PlaceholderKeys) == 0 &&
		len(r.InvalidKeys) == 0 && len(r.OrphanKeys) == 0
}

// Assembler maintains the flat element map for one generation and derives
// trees from it. Merges apply strictly in arrival order and are atomic with
// respect to Tree: a reader sees each record fully merged or not at all.
type Assembler struct {
	catalog *catalog.Catalog
	logger  *slog.Logger

	mu       sync.Mutex
	rootKey  string
	elements map[string]types.Element
	finished bool
	aborted  bool
}

// New creates an assembler for one generation rooted at rootKey (empty means
// DefaultRootKey, which a later envelope declaration may override).
func New(cat *catalog.Catalog, rootKey string, logger *slog.Logger) *Assembler {
	if rootKey == "" {
		rootKey = DefaultRootKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		catalog:  cat,
		logger:   logger,
		rootKey:  rootKey,
		elements: make(map[string]types.Element),
	}
}

// RootKey returns the declared root key.
func (a *Assembler) RootKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rootKey
}

// SetRootKey changes the declared root, typically when the stream envelope
// names one mid-stream.
func (a *Assembler) SetRootKey(key string) {
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rootKey = key
}

// Apply merges one record into the flat map. Fields present in the record
// overwrite or extend the stored element; absent fields are preserved from
// the previous version. Props merge per key; a non-nil children list
// replaces the stored ordering (order is meaningful); a nil children list
// leaves it untouched.
func (a *Assembler) Apply(rec types.Element) error {
	if rec.Key == "" {
		return errors.WrapInvalid(errors.ErrElementKeyMissing, "assemble", "Apply", "record key check")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.aborted {
		return errors.WrapInvalid(errors.ErrStreamAborted, "assemble", "Apply", "stream state check")
	}
	if a.finished {
		return errors.WrapInvalid(errors.ErrStreamFinished, "assemble", "Apply", "stream state check")
	}

	stored, exists := a.elements[rec.Key]
	if !exists {
		a.elements[rec.Key] = rec.Clone()
		return nil
	}

	if rec.Type != "" {
		stored.Type = rec.Type
	}
	if rec.Props != nil {
		if stored.Props == nil {
			stored.Props = make(map[string]any, len(rec.Props))
		}
		for k, v := range rec.Props {
			stored.Props[k] = types.DeepCopyValue(v)
		}
	}
	if rec.Children != nil {
		stored.Children = append([]string(nil), rec.Children...)
	}
	if rec.Visible != nil {
		clone := rec.Clone()
		stored.Visible = clone.Visible
	}
	a.elements[rec.Key] = stored
	return nil
}

// Tree derives the rooted tree reachable from the root key. It is
// idempotent: the same flat map always yields a structurally identical tree
// (keys, child ordering, field values). Every key appears at most once -
// repeated references and cycles keep the first-seen position and drop the
// later edge.
func (a *Assembler) Tree() *Tree {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &Tree{Root: a.buildNode(a.rootKey, map[string]bool{a.rootKey: true})}
}

// buildNode constructs the node for key. Must be called with the lock held;
// visited carries every key on or above the current path plus already-placed
// siblings' subtrees.
func (a *Assembler) buildNode(key string, visited map[string]bool) *Node {
	el, exists := a.elements[key]
	if !exists {
		// Forward reference: the child may still arrive later in the stream.
		return &Node{
			Element:     types.Element{Key: key},
			State:       catalog.StateIncomplete,
			Placeholder: true,
		}
	}

	node := &Node{
		Element: el.Clone(),
		State:   a.catalog.ValidateElement(el).State,
	}
	for _, childKey := range el.Children {
		if visited[childKey] {
			a.logger.Debug("dropping repeated child edge", "parent", key, "child", childKey)
			continue
		}
		visited[childKey] = true
		node.Children = append(node.Children, a.buildNode(childKey, visited))
	}
	return node
}

// Element returns a copy of the stored flat element for key.
func (a *Assembler) Element(key string) (types.Element, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	el, ok := a.elements[key]
	if !ok {
		return types.Element{}, false
	}
	return el.Clone(), true
}

// Len returns the number of stored flat elements.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.elements)
}

// Finish marks end-of-stream and reports every still-incomplete,
// placeholder, invalid or orphaned key. The tree remains usable afterwards;
// further Apply calls are rejected.
func (a *Assembler) Finish() Report {
	a.mu.Lock()
	a.finished = true
	a.mu.Unlock()

	var report Report
	reachable := make(map[string]bool)

	a.Tree().Walk(func(n *Node) {
		reachable[n.Key()] = true
		switch {
		case n.Placeholder:
			report.PlaceholderKeys = append(report.PlaceholderKeys, n.Key())
		case n.State == catalog.StateIncomplete:
			report.IncompleteKeys = append(report.IncompleteKeys, n.Key())
		case n.State == catalog.StateInvalid:
			report.InvalidKeys = append(report.InvalidKeys, n.Key())
		}
	})

	a.mu.Lock()
	for key := range a.elements {
		if !reachable[key] {
			report.OrphanKeys = append(report.OrphanKeys, key)
		}
	}
	a.mu.Unlock()

	sort.Strings(report.IncompleteKeys)
	sort.Strings(report.PlaceholderKeys)
	sort.Strings(report.InvalidKeys)
	sort.Strings(report.OrphanKeys)

	if !report.Clean() {
		a.logger.Info("stream finished with loose ends",
			"incomplete", len(report.IncompleteKeys),
			"placeholders", len(report.PlaceholderKeys),
			"invalid", len(report.InvalidKeys),
			"orphans", len(report.OrphanKeys))
	}
	return report
}

// Abort stops further merges. The last fully-merged tree stays intact and
// readable.
func (a *Assembler) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
}

// Aborted reports whether the stream was aborted.
func (a *Assembler) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aborted
}
