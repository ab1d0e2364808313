package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementCloneIsDeep(t *testing.T) {
	el := Element{
		Key:  "card-1",
		Type: "Card",
		Props: map[string]any{
			"title":  "Hello",
			"styles": map[string]any{"pad": float64(8)},
		},
		Children: []string{"btn-1"},
		Visible:  &Condition{Path: "/show"},
	}

	clone := el.Clone()
	clone.Props["styles"].(map[string]any)["pad"] = float64(99)
	clone.Children[0] = "other"
	clone.Visible.Path = "/hidden"

	assert.Equal(t, float64(8), el.Props["styles"].(map[string]any)["pad"])
	assert.Equal(t, "btn-1", el.Children[0])
	assert.Equal(t, "/show", el.Visible.Path)
}

func TestConditionDecodesFromJSON(t *testing.T) {
	raw := `{"and":[{"path":"/a"},{"not":{"auth":"signedOut"}}]}`

	var cond Condition
	require.NoError(t, json.Unmarshal([]byte(raw), &cond))

	require.Len(t, cond.And, 2)
	assert.Equal(t, "/a", cond.And[0].Path)
	require.NotNil(t, cond.And[1].Not)
	assert.Equal(t, "signedOut", cond.And[1].Not.Auth)
}

func TestAsPathRef(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantPath string
		wantOK   bool
	}{
		{
			name:     "path ref object",
			value:    map[string]any{"$path": "/form/email"},
			wantPath: "/form/email",
			wantOK:   true,
		},
		{
			name:   "plain string is a literal",
			value:  "/form/email",
			wantOK: false,
		},
		{
			name:   "object with extra keys is a literal",
			value:  map[string]any{"$path": "/x", "other": 1},
			wantOK: false,
		},
		{
			name:   "non-string path value",
			value:  map[string]any{"$path": 42},
			wantOK: false,
		},
		{
			name:   "nil",
			value:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := AsPathRef(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestAuthSnapshotHasRole(t *testing.T) {
	snap := AuthSnapshot{SignedIn: true, Roles: []string{"admin", "editor"}}
	assert.True(t, snap.HasRole("admin"))
	assert.False(t, snap.HasRole("viewer"))
	assert.False(t, AuthSnapshot{}.HasRole("admin"))
}

func TestActionDecodesFromJSON(t *testing.T) {
	raw := `{
		"name": "submit",
		"params": {"email": {"$path": "/form/email"}, "source": "form"},
		"confirm": {"title": "Send?", "message": "Really send?", "variant": "danger"},
		"onSuccess": [{"set": {"path": "/status", "value": "sent"}}],
		"onError": [{"set": {"path": "/status", "value": "$error"}}]
	}`

	var a Action
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	assert.Equal(t, "submit", a.Name)
	path, ok := AsPathRef(a.Params["email"])
	require.True(t, ok)
	assert.Equal(t, "/form/email", path)
	require.NotNil(t, a.Confirm)
	assert.Equal(t, "danger", a.Confirm.Variant)
	require.Len(t, a.OnSuccess, 1)
	require.NotNil(t, a.OnSuccess[0].Set)
	assert.Equal(t, "/status", a.OnSuccess[0].Set.Path)
}
