package assemble

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/types"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Define(
		[]catalog.ComponentDef{
			{Name: "Card", AllowsChildren: true},
			{Name: "Button", Props: catalog.PropSchema{
				Properties: map[string]catalog.PropertySchema{
					"label":  {Type: "string"},
					"action": {Type: "action"},
				},
				Required: []string{"label"},
			}},
			{Name: "Text", Props: catalog.PropSchema{
				Properties: map[string]catalog.PropertySchema{
					"content": {Type: "string"},
				},
				Required: []string{"content"},
			}},
		},
		[]catalog.ActionDef{{Name: "go"}},
	)
	require.NoError(t, err)
	return cat
}

func apply(t *testing.T, a *Assembler, recs ...types.Element) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, a.Apply(rec))
	}
}

func TestProgressiveCompletionByKey(t *testing.T) {
	a := New(testCatalog(t), "root", nil)

	// The producer re-emits the same key with more complete props.
	apply(t, a,
		types.Element{Key: "root", Type: "Card", Children: []string{"btn"}},
		types.Element{Key: "btn", Type: "Button"},
	)

	node := a.Tree().Root.Children[0]
	assert.Equal(t, catalog.StateIncomplete, node.State, "label has not arrived")

	apply(t, a, types.Element{Key: "btn", Props: map[string]any{"label": "Go"}})

	node = a.Tree().Root.Children[0]
	assert.Equal(t, catalog.StateValid, node.State)
	assert.Equal(t, "Button", node.Element.Type, "absent fields preserved across patches")
	assert.Equal(t, "Go", node.Element.Props["label"])
}

func TestMergePreservesAbsentFieldsAndExtendsProps(t *testing.T) {
	a := New(testCatalog(t), "root", nil)

	apply(t, a,
		types.Element{Key: "root", Type: "Card", Props: map[string]any{"a": "1"},
			Children: []string{"x"}, Visible: &types.Condition{Path: "/show"}},
		types.Element{Key: "root", Props: map[string]any{"b": "2"}},
	)

	el, ok := a.Element("root")
	require.True(t, ok)
	assert.Equal(t, "Card", el.Type)
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, el.Props)
	assert.Equal(t, []string{"x"}, el.Children)
	require.NotNil(t, el.Visible)
	assert.Equal(t, "/show", el.Visible.Path)

	// A non-nil children list replaces the ordering wholesale.
	apply(t, a, types.Element{Key: "root", Children: []string{"y", "x"}})
	el, _ = a.Element("root")
	assert.Equal(t, []string{"y", "x"}, el.Children)
}

func TestForwardReferencesBecomePlaceholders(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a, types.Element{Key: "root", Type: "Card", Children: []string{"later"}})

	tree := a.Tree()
	require.Len(t, tree.Root.Children, 1)
	child := tree.Root.Children[0]
	assert.True(t, child.Placeholder)
	assert.Equal(t, catalog.StateIncomplete, child.State)
	assert.Equal(t, "later", child.Key())

	// The promised child arrives; the placeholder resolves in place.
	apply(t, a, types.Element{Key: "later", Type: "Text", Props: map[string]any{"content": "hi"}})
	child = a.Tree().Root.Children[0]
	assert.False(t, child.Placeholder)
	assert.Equal(t, catalog.StateValid, child.State)
}

func TestMissingRootIsPlaceholder(t *testing.T) {
	a := New(testCatalog(t), "", nil)
	assert.Equal(t, DefaultRootKey, a.RootKey())

	tree := a.Tree()
	require.NotNil(t, tree.Root)
	assert.True(t, tree.Root.Placeholder)
}

func TestCycleAndDuplicateEdgesAreDropped(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a,
		types.Element{Key: "root", Type: "Card", Children: []string{"a", "a", "b"}},
		types.Element{Key: "a", Type: "Card", Children: []string{"root"}}, // cycle
		types.Element{Key: "b", Type: "Card", Children: []string{"a"}},    // duplicate reachability
	)

	tree := a.Tree()
	seen := map[string]int{}
	tree.Walk(func(n *Node) { seen[n.Key()]++ })

	for key, count := range seen {
		assert.Equal(t, 1, count, "key %q must appear exactly once", key)
	}
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, "a", tree.Root.Children[0].Key())
	assert.Equal(t, "b", tree.Root.Children[1].Key())
	assert.Empty(t, tree.Root.Children[0].Children, "cycle edge dropped")
}

func TestTreeIsIdempotent(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a,
		types.Element{Key: "root", Type: "Card", Children: []string{"btn", "txt"}},
		types.Element{Key: "btn", Type: "Button", Props: map[string]any{"label": "Go"}},
		types.Element{Key: "txt", Type: "Text", Props: map[string]any{"content": "hi"}},
	)

	first := a.Tree()
	second := a.Tree()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated assembly of the same flat map differs (-first +second):\n%s", diff)
	}
}

func TestFinalTreeIsMergeOrderIndependent(t *testing.T) {
	// The same record set applied incrementally or at once yields the same
	// final tree.
	records := []types.Element{
		{Key: "root", Type: "Card", Children: []string{"btn"}},
		{Key: "btn", Type: "Button"},
		{Key: "btn", Props: map[string]any{"label": "Go"}},
		{Key: "root", Props: map[string]any{"title": "Hello"}},
	}

	incremental := New(testCatalog(t), "root", nil)
	var trees []*Tree
	for _, rec := range records {
		require.NoError(t, incremental.Apply(rec))
		trees = append(trees, incremental.Tree())
	}

	atOnce := New(testCatalog(t), "root", nil)
	apply(t, atOnce, records...)

	if diff := cmp.Diff(atOnce.Tree(), trees[len(trees)-1]); diff != "" {
		t.Fatalf("incremental and at-once assembly differ:\n%s", diff)
	}
}

func TestInvalidElementDoesNotAffectSiblings(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a,
		types.Element{Key: "root", Type: "Card", Children: []string{"bad", "good"}},
		types.Element{Key: "bad", Type: "Chart"}, // not in catalog
		types.Element{Key: "good", Type: "Text", Props: map[string]any{"content": "hi"}},
	)

	tree := a.Tree()
	assert.Equal(t, catalog.StateInvalid, tree.Root.Children[0].State)
	assert.Equal(t, catalog.StateValid, tree.Root.Children[1].State)
}

func TestFinishReportsLooseEnds(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a,
		types.Element{Key: "root", Type: "Card", Children: []string{"ghost", "pending", "bad"}},
		types.Element{Key: "pending", Type: "Button"},  // missing required label
		types.Element{Key: "bad", Type: "Chart"},       // invalid type
		types.Element{Key: "orphan", Type: "Card"},     // unreachable
	)

	report := a.Finish()

	assert.Equal(t, []string{"ghost"}, report.PlaceholderKeys)
	assert.Equal(t, []string{"pending"}, report.IncompleteKeys)
	assert.Equal(t, []string{"bad"}, report.InvalidKeys)
	assert.Equal(t, []string{"orphan"}, report.OrphanKeys)
	assert.False(t, report.Clean())

	// The rest of the tree remains usable, but no further merges apply.
	assert.NotNil(t, a.Tree().Root)
	err := a.Apply(types.Element{Key: "late", Type: "Card"})
	assert.Error(t, err)
}

func TestFinishCleanStream(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a, types.Element{Key: "root", Type: "Card"})
	assert.True(t, a.Finish().Clean())
}

func TestAbortKeepsLastMergedTree(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a,
		types.Element{Key: "root", Type: "Card", Children: []string{"btn"}},
		types.Element{Key: "btn", Type: "Button", Props: map[string]any{"label": "Go"}},
	)

	a.Abort()
	assert.True(t, a.Aborted())

	err := a.Apply(types.Element{Key: "btn", Props: map[string]any{"label": "Changed"}})
	require.Error(t, err)

	node := a.Tree().Root.Children[0]
	assert.Equal(t, "Go", node.Element.Props["label"], "aborted stream keeps the last merged state")
	assert.Equal(t, catalog.StateValid, node.State)
}

func TestApplyRejectsEmptyKey(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	assert.Error(t, a.Apply(types.Element{Type: "Card"}))
}

func TestNodeElementsAreCopies(t *testing.T) {
	a := New(testCatalog(t), "root", nil)
	apply(t, a, types.Element{Key: "root", Type: "Card", Props: map[string]any{"title": "x"}})

	tree := a.Tree()
	tree.Root.Element.Props["title"] = "mutated"

	el, _ := a.Element("root")
	assert.Equal(t, "x", el.Props["title"])
}
