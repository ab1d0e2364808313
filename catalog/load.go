package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/jsonrender/errors"
)

//go:embed meta_schema.json
var metaSchema []byte

// catalogFile is the on-disk catalog shape.
type catalogFile struct {
	Components []ComponentDef `json:"components"`
	Actions    []ActionDef    `json:"actions"`
}

// Load reads a catalog definition from a JSON or YAML file, validates it
// against the embedded meta-schema, and builds the catalog. Meta-schema
// violations are definition errors and therefore fatal: the file ships with
// the host application, not with generated content.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "catalog", "Load", "read catalog file")
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, errors.WrapFatal(err, "catalog", "Load", "convert YAML catalog")
		}
	}

	return LoadBytes(data)
}

// LoadBytes builds a catalog from raw JSON catalog bytes after meta-schema
// validation.
func LoadBytes(data []byte) (*Catalog, error) {
	schemaLoader := gojsonschema.NewBytesLoader(metaSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, errors.WrapFatal(err, "catalog", "LoadBytes", "meta-schema validation")
	}
	if !result.Valid() {
		var b strings.Builder
		b.WriteString("catalog file does not match meta-schema:\n")
		for _, desc := range result.Errors() {
			fmt.Fprintf(&b, "  - %s: %s\n", desc.Field(), desc.Description())
		}
		return nil, errors.WrapFatal(
			fmt.Errorf("%s: %w", b.String(), errors.ErrSchemaDefinition),
			"catalog", "LoadBytes", "meta-schema validation")
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapFatal(err, "catalog", "LoadBytes", "unmarshal catalog")
	}

	return Define(file.Components, file.Actions)
}

// yamlToJSON re-encodes a YAML document as JSON so one validation and decode
// path serves both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode as JSON: %w", err)
	}
	return out, nil
}
