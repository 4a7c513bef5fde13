package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildTransactionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is sent to vendors that accept a response schema and used locally to validate.
// Category is deliberately not an enum: unknown labels are flagged by the normalizer, not rejected here.
func BuildTransactionJSONSchema(categories []string) map[string]any {
	catProp := map[string]any{"type": "string"}
	if len(categories) > 0 {
		catProp["description"] = "one of the allowed category labels"
	}
	props := map[string]any{
		"date":        map[string]any{"type": "string"},
		"vendor":      map[string]any{"type": "string"},
		"amount":      map[string]any{"type": "string", "minLength": 1},
		"tax_amount":  map[string]any{"type": "string"},
		"category":    catProp,
		"description": map[string]any{"type": "string"},
		"type":        map[string]any{"type": "string"},
		"notes":       map[string]any{"type": "string"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"amount"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
