// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package lockfile

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated lock file schema.
const SchemaID = "https://nfive.net/schemas/nfive.lock.schema.json"

var compiled = sync.OnceValues(compileSchema)

// GenerateSchema generates the JSON Schema for nfive.lock from File.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&File{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "NFive Lock File"
	schema.Description = "Dependency-ordered plugin list read at server boot"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML data against the lock file schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Errorf("lock file is empty")
	}

	root, err := decode(data)
	if err != nil {
		return err
	}
	var doc any
	if root.Kind != 0 {
		if err := root.Decode(&doc); err != nil {
			return oops.Wrapf(err, "invalid YAML")
		}
	}

	sch, err := compiled()
	if err != nil {
		return oops.Wrapf(err, "compile schema")
	}
	if err := sch.Validate(jsonTypes(doc)); err != nil {
		return oops.Wrapf(err, "schema validation failed")
	}
	return nil
}

// decode parses data and retags bare numeric versions as strings, so
// `version: 2` reads the same as `version: "2"`. The scalar keeps its
// source text, so 1.10 stays 1.10.
func decode(data []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, oops.Wrapf(err, "invalid YAML")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return &root, nil
	}
	plugins := mappingValue(root.Content[0], "plugins")
	if plugins == nil || plugins.Kind != yaml.SequenceNode {
		return &root, nil
	}
	for _, entry := range plugins.Content {
		v := mappingValue(entry, "version")
		if v != nil && v.Kind == yaml.ScalarNode && (v.Tag == "!!int" || v.Tag == "!!float") {
			v.Tag = "!!str"
		}
	}
	return &root, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("nfive.lock.schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("nfive.lock.schema.json")
}

// jsonTypes converts yaml.v3 output into the types the validator accepts.
func jsonTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = jsonTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = jsonTypes(v)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}
