package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGetRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		value any
	}{
		{name: "shallow string", path: "/email", value: "a@b.c"},
		{name: "nested object path", path: "/form/address/city", value: "Oslo"},
		{name: "numeric segment creates sequence", path: "/items/2", value: "third"},
		{name: "mixed nesting", path: "/rows/0/cells/1", value: float64(42)},
		{name: "boolean", path: "/flags/ready", value: true},
		{name: "object value", path: "/user", value: map[string]any{"name": "Ada"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil)
			require.NoError(t, s.Set(tt.path, tt.value))

			got, ok := s.Get(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestNumericSegmentsMaterializeSequences(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("/items/2", "c"))

	items, ok := s.Get("/items")
	require.True(t, ok)
	assert.Equal(t, []any{nil, nil, "c"}, items)

	// Re-setting with the same structure is idempotent.
	require.NoError(t, s.Set("/items/2", "c"))
	items, _ = s.Get("/items")
	assert.Equal(t, []any{nil, nil, "c"}, items)
}

func TestObjectKeyIntoSequenceIsRejected(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("/items/0", "a"))

	err := s.Set("/items/name", "x")
	require.Error(t, err)

	// The failed write left the sequence untouched.
	items, ok := s.Get("/items")
	require.True(t, ok)
	assert.Equal(t, []any{"a"}, items)
}

func TestMissingPathsAndBadPaths(t *testing.T) {
	s := New(map[string]any{"a": float64(1)})

	_, ok := s.Get("/missing")
	assert.False(t, ok)
	_, ok = s.Get("/a/deeper")
	assert.False(t, ok)
	_, ok = s.Get("no-slash")
	assert.False(t, ok)

	assert.Error(t, s.Set("no-slash", 1))
	assert.Error(t, s.Set("/a//b", 1))
}

func TestGetReturnsCopies(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("/user", map[string]any{"name": "Ada"}))

	got, _ := s.Get("/user")
	got.(map[string]any)["name"] = "Eve"

	fresh, _ := s.Get("/user/name")
	assert.Equal(t, "Ada", fresh)
}

func TestSubscribeNotifiesPathAndAncestors(t *testing.T) {
	s := New(nil)

	var rootFires, formFires, emailFires, otherFires int
	s.Subscribe("/", func(any) { rootFires++ })
	s.Subscribe("/form", func(any) { formFires++ })
	s.Subscribe("/form/email", func(any) { emailFires++ })
	s.Subscribe("/unrelated", func(any) { otherFires++ })

	require.NoError(t, s.Set("/form/email", "a@b.c"))

	assert.Equal(t, 1, rootFires, "root prefix sees every write")
	assert.Equal(t, 1, formFires, "ancestor computed value changed")
	assert.Equal(t, 1, emailFires)
	assert.Equal(t, 0, otherFires, "unrelated subtree must stay quiet")
}

func TestSubscribeNotifiesDescendantsOnSubtreeReplace(t *testing.T) {
	s := New(map[string]any{"form": map[string]any{"email": "old"}})

	var got any
	s.Subscribe("/form/email", func(v any) { got = v })

	require.NoError(t, s.Set("/form", map[string]any{"email": "new"}))
	assert.Equal(t, "new", got)
}

func TestSubscribeCallbackValue(t *testing.T) {
	s := New(nil)

	var got any
	s.Subscribe("/form", func(v any) { got = v })

	require.NoError(t, s.Set("/form/email", "a@b.c"))
	assert.Equal(t, map[string]any{"email": "a@b.c"}, got)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := New(nil)

	fires := 0
	cancel := s.Subscribe("/x", func(any) { fires++ })

	require.NoError(t, s.Set("/x", 1))
	cancel()
	cancel() // safe to call twice
	require.NoError(t, s.Set("/x", 2))

	assert.Equal(t, 1, fires)
}

func TestSubscriberMaySetFromCallback(t *testing.T) {
	s := New(nil)

	s.Subscribe("/input", func(v any) {
		if str, ok := v.(string); ok && str != "" {
			_ = s.Set("/derived", str+"!")
		}
	})

	require.NoError(t, s.Set("/input", "hello"))

	derived, ok := s.Get("/derived")
	require.True(t, ok)
	assert.Equal(t, "hello!", derived)
}

func TestSnapshotIsImmutableView(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("/a", "before"))

	snap := s.Snapshot()
	require.NoError(t, s.Set("/a", "after"))

	v, ok := snap.Get("/a")
	require.True(t, ok)
	assert.Equal(t, "before", v)

	_, ok = snap.Get("/missing")
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	s := New(map[string]any{"a": float64(1)})

	fires := 0
	s.Subscribe("/a", func(any) { fires++ })

	s.Reset(map[string]any{"b": float64(2)})

	_, ok := s.Get("/a")
	assert.False(t, ok)
	b, _ := s.Get("/b")
	assert.Equal(t, float64(2), b)
	assert.Equal(t, 1, fires, "reset notifies existing subscribers")
}

func TestExistingMapWinsForNumericSegments(t *testing.T) {
	s := New(map[string]any{"rows": map[string]any{"0": "kept"}})

	require.NoError(t, s.Set("/rows/1", "added"))

	rows, ok := s.Get("/rows")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"0": "kept", "1": "added"}, rows)
}
