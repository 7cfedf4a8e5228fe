// Package topology defines the reflector topology document, loads it from
// YAML and validates it.
package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Common errors for topology loading.
var (
	ErrFileNotFound = errors.New("topology file not found")
	ErrEmptyFile    = errors.New("topology file is empty")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
)

// Load reads and validates the topology document at path.
func Load(path string) (*TopologySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read topology: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return Parse(data)
}

// Parse decodes and validates a topology document. Structural problems are
// reported against the embedded JSON Schema, semantic problems afterwards;
// both come back as a *ValidationError.
func Parse(data []byte) (*TopologySpec, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if raw == nil {
		return nil, ErrEmptyFile
	}

	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	result := &ValidationError{}
	if err := validateSchema(doc, result); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if !result.IsValid() {
		return nil, result
	}

	var spec TopologySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := Validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// toJSONValue normalizes a decoded YAML value to the types encoding/json
// produces, which is what the schema validator expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
