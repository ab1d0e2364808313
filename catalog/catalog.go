// Package catalog holds the closed vocabulary an AI-generated tree may use:
// component types with their prop schemas, and actions with their parameter
// schemas. The catalog is constructed once per session and immutable after;
// every element type and action name seen at runtime must exist here, and
// unknown names are rejected rather than silently rendered.
package catalog

import (
	"fmt"

	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/types"
)

// ComponentDef describes one allowed component type.
type ComponentDef struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Props          PropSchema `json:"props"`
	AllowsChildren bool       `json:"allowsChildren"`
}

// ActionDef describes one allowed action.
type ActionDef struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Params      PropSchema `json:"params"`
}

// PropSchema describes the field set of a component's props or an action's
// params.
type PropSchema struct {
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema describes a single prop or param field.
type PropertySchema struct {
	Type        string   `json:"type"` // "string", "int", "float", "bool", "object", "array", "action"
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`    // Valid string values
	Minimum     *int     `json:"minimum,omitempty"` // For numeric types
	Maximum     *int     `json:"maximum,omitempty"` // For numeric types
}

// Catalog is the immutable component/action registry. Construct with Define
// or Load; lookups are safe for concurrent use because nothing mutates after
// construction.
type Catalog struct {
	components map[string]ComponentDef
	actions    map[string]ActionDef
}

// Define builds a catalog from component and action definitions. A duplicate
// or empty name fails with a fatal definition error: a malformed catalog is a
// host programming mistake, never generated content.
func Define(components []ComponentDef, actions []ActionDef) (*Catalog, error) {
	c := &Catalog{
		components: make(map[string]ComponentDef, len(components)),
		actions:    make(map[string]ActionDef, len(actions)),
	}

	for _, comp := range components {
		if comp.Name == "" {
			return nil, errors.WrapFatal(errors.ErrSchemaDefinition,
				"catalog", "Define", "component name check")
		}
		if _, exists := c.components[comp.Name]; exists {
			return nil, errors.WrapFatal(
				fmt.Errorf("component %q: %w", comp.Name, errors.ErrDuplicateName),
				"catalog", "Define", "duplicate component check")
		}
		c.components[comp.Name] = comp
	}

	for _, act := range actions {
		if act.Name == "" {
			return nil, errors.WrapFatal(errors.ErrSchemaDefinition,
				"catalog", "Define", "action name check")
		}
		if _, exists := c.actions[act.Name]; exists {
			return nil, errors.WrapFatal(
				fmt.Errorf("action %q: %w", act.Name, errors.ErrDuplicateName),
				"catalog", "Define", "duplicate action check")
		}
		c.actions[act.Name] = act
	}

	return c, nil
}

// Component returns the definition for a component type.
func (c *Catalog) Component(name string) (ComponentDef, bool) {
	def, ok := c.components[name]
	return def, ok
}

// Action returns the definition for an action name.
func (c *Catalog) Action(name string) (ActionDef, bool) {
	def, ok := c.actions[name]
	return def, ok
}

// HasAction reports whether an action name is in the catalog. This is the
// dispatcher's first gate.
func (c *Catalog) HasAction(name string) bool {
	_, ok := c.actions[name]
	return ok
}

// ComponentNames returns all component type names, sorted.
func (c *Catalog) ComponentNames() []string {
	return sortedKeys(c.components)
}

// ActionNames returns all action names, sorted.
func (c *Catalog) ActionNames() []string {
	return sortedKeys(c.actions)
}

// State classifies an element's standing against the catalog.
type State int

const (
	// StateValid means the element is complete and schema-conformant. Only
	// valid elements participate in a render pass.
	StateValid State = iota
	// StateIncomplete means fields have not yet arrived while streaming
	// (missing type, or missing required props). Incomplete is structural,
	// not a validation failure: the element is retained and excluded from
	// the render set until it completes.
	StateIncomplete
	// StateInvalid means the element contradicts the catalog (unknown type,
	// mistyped props, forbidden children). Invalid elements are excluded
	// from render; siblings are unaffected.
	StateInvalid
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateIncomplete:
		return "incomplete"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of validating one element.
type Verdict struct {
	State        State
	Errors       []FieldError // populated when StateInvalid
	MissingProps []string     // populated when StateIncomplete for a typed element
	Err          error        // classified error when StateInvalid
}

// ValidateElement checks one element against the catalog. Pure: no state is
// touched. Invalid findings win over incompleteness, since present-but-wrong
// data can never complete into a valid element.
func (c *Catalog) ValidateElement(el types.Element) Verdict {
	if el.Key == "" {
		return Verdict{
			State: StateInvalid,
			Err:   errors.WrapInvalid(errors.ErrElementKeyMissing, "catalog", "ValidateElement", "key check"),
		}
	}

	// No type yet: a placeholder or a patch that arrived before the type
	// field. Structural incompleteness, not an error.
	if el.Type == "" {
		return Verdict{State: StateIncomplete}
	}

	def, ok := c.components[el.Type]
	if !ok {
		return Verdict{
			State: StateInvalid,
			Err: errors.WrapInvalid(
				fmt.Errorf("type %q: %w", el.Type, errors.ErrUnknownComponent),
				"catalog", "ValidateElement", "type lookup"),
		}
	}

	if len(el.Children) > 0 && !def.AllowsChildren {
		return Verdict{
			State: StateInvalid,
			Err: errors.WrapInvalid(
				fmt.Errorf("type %q: %w", el.Type, errors.ErrChildrenNotAllowed),
				"catalog", "ValidateElement", "children check"),
		}
	}

	if fieldErrs := checkProps(el.Props, def.Props); len(fieldErrs) > 0 {
		fields := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			fields[i] = fe.Field
		}
		return Verdict{
			State:  StateInvalid,
			Errors: fieldErrs,
			Err: errors.WrapInvalid(
				fmt.Errorf("fields %v: %w", fields, errors.ErrPropSchema),
				"catalog", "ValidateElement", "prop schema check"),
		}
	}

	if missing := missingRequired(el.Props, def.Props); len(missing) > 0 {
		return Verdict{State: StateIncomplete, MissingProps: missing}
	}

	return Verdict{State: StateValid}
}
