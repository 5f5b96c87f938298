package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// TypesDir is the directory inside a plugin package holding unit definitions
const TypesDir = "types"

const typeDefinitionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["extends"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"extends": {"type": "string", "minLength": 1},
		"properties": {"type": "object"}
	},
	"additionalProperties": false
}`

var typeDefinitionValidator = mustCompileSchema("typedef.json", typeDefinitionSchema)

// typeDefinition is the on-disk shape of one unit definition
type typeDefinition struct {
	Name       string         `yaml:"name"`
	Extends    string         `yaml:"extends"`
	Properties map[string]any `yaml:"properties"`
}

func mustCompileSchema(location, schema string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid schema %s: %v", location, err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(location, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s: %v", location, err))
	}
	return c.MustCompile(location)
}

// parseTypeDefinition decodes and validates raw definition bytes
func parseTypeDefinition(raw []byte) (*typeDefinition, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty definition")
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}

	// the validator works on JSON values, so round-trip the YAML document through JSON
	content, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("definition is not representable as JSON: %w", err)
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}
	if err := typeDefinitionValidator.Validate(value); err != nil {
		return nil, fmt.Errorf("definition does not match schema: %w", err)
	}

	var def typeDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return &def, nil
}

// typeNameFromPath maps types/<name>.yaml to <name>
func typeNameFromPath(p string) (string, bool) {
	if path.Dir(p) != TypesDir {
		return "", false
	}
	base := path.Base(p)
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(base, ext) {
			name := strings.TrimSuffix(base, ext)
			return name, name != ""
		}
	}
	return "", false
}
