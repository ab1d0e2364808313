package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/types"
)

func intPtr(i int) *int { return &i }

// testCatalog returns a small catalog used across the package tests.
func testCatalog(t *testing.T) *Catalog {
	t.Helper()

	cat, err := Define(
		[]ComponentDef{
			{
				Name:        "Card",
				Description: "Container with a title",
				Props: PropSchema{
					Properties: map[string]PropertySchema{
						"title": {Type: "string"},
					},
				},
				AllowsChildren: true,
			},
			{
				Name: "Button",
				Props: PropSchema{
					Properties: map[string]PropertySchema{
						"label":   {Type: "string"},
						"action":  {Type: "action"},
						"variant": {Type: "string", Enum: []string{"primary", "danger"}},
					},
					Required: []string{"label"},
				},
			},
			{
				Name: "Slider",
				Props: PropSchema{
					Properties: map[string]PropertySchema{
						"value": {Type: "int", Minimum: intPtr(0), Maximum: intPtr(100)},
					},
					Required: []string{"value"},
				},
			},
		},
		[]ActionDef{
			{Name: "go", Description: "Navigate"},
			{
				Name:        "submit",
				Description: "Submit the form",
				Params: PropSchema{
					Properties: map[string]PropertySchema{
						"email": {Type: "string"},
					},
					Required: []string{"email"},
				},
			},
		},
	)
	require.NoError(t, err)
	return cat
}

func TestDefineRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		components []ComponentDef
		actions    []ActionDef
	}{
		{
			name: "duplicate component",
			components: []ComponentDef{
				{Name: "Card"},
				{Name: "Card"},
			},
		},
		{
			name:    "duplicate action",
			actions: []ActionDef{{Name: "go"}, {Name: "go"}},
		},
		{
			name:       "empty component name",
			components: []ComponentDef{{Name: ""}},
		},
		{
			name:    "empty action name",
			actions: []ActionDef{{Name: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Define(tt.components, tt.actions)
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err), "definition errors must be fatal")
		})
	}
}

func TestValidateElement(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name        string
		element     types.Element
		wantState   State
		wantMissing []string
		wantCodes   []string
	}{
		{
			name: "complete valid element",
			element: types.Element{
				Key: "btn", Type: "Button",
				Props: map[string]any{"label": "Go"},
			},
			wantState: StateValid,
		},
		{
			name:      "missing type is incomplete",
			element:   types.Element{Key: "pending"},
			wantState: StateIncomplete,
		},
		{
			name: "missing required prop is incomplete",
			element: types.Element{
				Key: "btn", Type: "Button",
				Props: map[string]any{"variant": "primary"},
			},
			wantState:   StateIncomplete,
			wantMissing: []string{"label"},
		},
		{
			name:      "unknown type is invalid",
			element:   types.Element{Key: "x", Type: "Chart"},
			wantState: StateInvalid,
		},
		{
			name: "mistyped prop is invalid",
			element: types.Element{
				Key: "btn", Type: "Button",
				Props: map[string]any{"label": float64(7)},
			},
			wantState: StateInvalid,
			wantCodes: []string{"type"},
		},
		{
			name: "enum violation is invalid",
			element: types.Element{
				Key: "btn", Type: "Button",
				Props: map[string]any{"label": "Go", "variant": "ghost"},
			},
			wantState: StateInvalid,
			wantCodes: []string{"enum"},
		},
		{
			name: "numeric bounds are enforced",
			element: types.Element{
				Key: "s", Type: "Slider",
				Props: map[string]any{"value": float64(250)},
			},
			wantState: StateInvalid,
			wantCodes: []string{"max"},
		},
		{
			name: "children on a leaf component is invalid",
			element: types.Element{
				Key: "btn", Type: "Button",
				Props:    map[string]any{"label": "Go"},
				Children: []string{"icon"},
			},
			wantState: StateInvalid,
		},
		{
			name: "children on a container is fine",
			element: types.Element{
				Key: "card", Type: "Card",
				Children: []string{"btn"},
			},
			wantState: StateValid,
		},
		{
			name:      "empty key is invalid",
			element:   types.Element{Type: "Card"},
			wantState: StateInvalid,
		},
		{
			name: "unknown props are tolerated",
			element: types.Element{
				Key: "btn", Type: "Button",
				Props: map[string]any{"label": "Go", "future": true},
			},
			wantState: StateValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := cat.ValidateElement(tt.element)
			assert.Equal(t, tt.wantState, verdict.State)
			assert.Equal(t, tt.wantMissing, verdict.MissingProps)

			if tt.wantState == StateInvalid {
				assert.True(t, errors.IsInvalid(verdict.Err) || verdict.Err != nil)
			} else {
				assert.NoError(t, verdict.Err)
			}

			var codes []string
			for _, fe := range verdict.Errors {
				codes = append(codes, fe.Code)
			}
			if tt.wantCodes != nil {
				assert.Equal(t, tt.wantCodes, codes)
			}
		})
	}
}

func TestValidateElementReportsEveryBadField(t *testing.T) {
	cat := testCatalog(t)

	verdict := cat.ValidateElement(types.Element{
		Key: "btn", Type: "Button",
		Props: map[string]any{"label": float64(1), "variant": "ghost"},
	})

	require.Equal(t, StateInvalid, verdict.State)
	require.Len(t, verdict.Errors, 2)
	assert.Equal(t, "label", verdict.Errors[0].Field)
	assert.Equal(t, "variant", verdict.Errors[1].Field)
}

func TestLookupsAndNames(t *testing.T) {
	cat := testCatalog(t)

	_, ok := cat.Component("Card")
	assert.True(t, ok)
	_, ok = cat.Component("Chart")
	assert.False(t, ok)

	assert.True(t, cat.HasAction("go"))
	assert.False(t, cat.HasAction("teleport"))

	assert.Equal(t, []string{"Button", "Card", "Slider"}, cat.ComponentNames())
	assert.Equal(t, []string{"go", "submit"}, cat.ActionNames())
}

func TestDescribeAndExport(t *testing.T) {
	cat := testCatalog(t)

	text := cat.Describe()
	assert.Contains(t, text, "Card (container)")
	assert.Contains(t, text, "label: string (required)")
	assert.Contains(t, text, "submit - Submit the form")
	assert.Contains(t, text, `one of [primary danger]`)

	desc := cat.Export()
	require.Len(t, desc.Components, 3)
	require.Len(t, desc.Actions, 2)
	assert.Equal(t, "Button", desc.Components[0].Name)

	data, err := cat.ExportJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"allowsChildren": true`)
}
