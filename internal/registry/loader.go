package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

//go:embed catalog.schema.json
var catalogSchema string

// catalog is the top-level shape of a catalog YAML document.
type catalog struct {
	Capabilities []Descriptor `yaml:"capabilities"`
}

// compiledSchema is built once at package init. The schema is embedded and
// under our control, so a compile failure is a packaging error.
var compiledSchema = jsonschema.MustCompileString("catalog.schema.json", catalogSchema)

// Parse decodes a catalog YAML document, validates it against the catalog
// schema, and builds a Registry from it. It is the canonical entry point for
// loading capability catalogs.
func Parse(data []byte) (*Registry, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cat catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("registry: parse catalog: %w", err)
	}
	return New(cat.Capabilities)
}

// LoadBuiltin builds the Registry from the embedded builtin catalog.
func LoadBuiltin() (*Registry, error) {
	return Parse(builtinCatalog)
}

// LoadFile builds the Registry from a catalog file on disk. When path is
// empty the builtin catalog is used.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return LoadBuiltin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// validateSchema checks the raw YAML document against the embedded JSON
// Schema. YAML is decoded to a generic value and round-tripped through JSON
// so the validator sees the same value model it was written for.
func validateSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("registry: parse catalog: %w", err)
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("registry: normalise catalog: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return fmt.Errorf("registry: normalise catalog: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("registry: catalog failed schema validation: %w", err)
	}
	return nil
}
