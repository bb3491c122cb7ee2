package backend

import (
	"encoding/json"
	"maps"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/iksnae/mcp-station/internal"
)

// validateArgs checks tool arguments against the tool's input schema. A schema
// that cannot be compiled is skipped so an odd server never blocks its tools.
func validateArgs(schema map[string]any, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	schema = maps.Clone(schema)
	// draft identifiers vary between servers; validation uses one dialect
	delete(schema, "$schema")

	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		internal.LogDebug("Skipping validation, schema does not parse: %v", err)
		return nil
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		internal.LogDebug("Skipping validation, schema does not resolve: %v", err)
		return nil
	}
	return resolved.Validate(args)
}
