package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Description is the model-readable projection of a catalog: what the
// upstream generator is allowed to produce. It carries no runtime state; the
// export is pure.
type Description struct {
	Components []ComponentDef `json:"components"`
	Actions    []ActionDef    `json:"actions"`
}

// Export returns the catalog as a Description with deterministic ordering.
func (c *Catalog) Export() Description {
	desc := Description{
		Components: make([]ComponentDef, 0, len(c.components)),
		Actions:    make([]ActionDef, 0, len(c.actions)),
	}
	for _, name := range c.ComponentNames() {
		desc.Components = append(desc.Components, c.components[name])
	}
	for _, name := range c.ActionNames() {
		desc.Actions = append(desc.Actions, c.actions[name])
	}
	return desc
}

// ExportJSON returns the Description as indented JSON, suitable for embedding
// in a system prompt.
func (c *Catalog) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(c.Export(), "", "  ")
}

// Describe renders a plain-text summary of the vocabulary: component names
// with their prop shapes, and action names with their descriptions.
func (c *Catalog) Describe() string {
	var b strings.Builder

	b.WriteString("Components:\n")
	for _, name := range c.ComponentNames() {
		def := c.components[name]
		fmt.Fprintf(&b, "  %s", def.Name)
		if def.AllowsChildren {
			b.WriteString(" (container)")
		}
		if def.Description != "" {
			fmt.Fprintf(&b, " - %s", def.Description)
		}
		b.WriteString("\n")
		writeSchema(&b, def.Props, "    ")
	}

	b.WriteString("Actions:\n")
	for _, name := range c.ActionNames() {
		def := c.actions[name]
		fmt.Fprintf(&b, "  %s", def.Name)
		if def.Description != "" {
			fmt.Fprintf(&b, " - %s", def.Description)
		}
		b.WriteString("\n")
		writeSchema(&b, def.Params, "    ")
	}

	return b.String()
}

func writeSchema(b *strings.Builder, schema PropSchema, indent string) {
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	for _, field := range sortedKeys(schema.Properties) {
		prop := schema.Properties[field]
		fmt.Fprintf(b, "%s%s: %s", indent, field, prop.Type)
		if required[field] {
			b.WriteString(" (required)")
		}
		if len(prop.Enum) > 0 {
			fmt.Fprintf(b, " one of %v", prop.Enum)
		}
		if prop.Description != "" {
			fmt.Fprintf(b, " - %s", prop.Description)
		}
		b.WriteString("\n")
	}
}
