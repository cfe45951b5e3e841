package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToJSONSchema renders the definition as a JSON-Schema (draft 2020-12 subset)
// generic map. The rendering doubles as the LLM structured-output constraint
// and as a whole-document check on assembled records.
func ToJSONSchema(def *Definition) map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, f := range def.Fields {
		props[f.Name] = specToJSONSchema(&f.Spec)
		if f.Spec.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func specToJSONSchema(spec *FieldSpec) map[string]any {
	switch spec.Type {
	case TypeObject:
		return ToJSONSchema(spec.Fields)
	case TypeArray:
		return map[string]any{
			"type":  "array",
			"items": specToJSONSchema(spec.Items),
		}
	default:
		return map[string]any{"type": string(spec.Type)}
	}
}

// ValidateValue validates a decoded JSON value against the definition using
// the compiled JSON-Schema rendering. This is a whole-document check; the
// engine's per-field validation produces the itemized report.
func ValidateValue(def *Definition, v any) error {
	b, err := json.Marshal(ToJSONSchema(def))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("value does not match schema: %w", err)
	}
	return nil
}
