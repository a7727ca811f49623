package structuring

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// receiptSchema describes the documents we accept from the model. Fields may
// be null and numbers may arrive as strings; missing structure is filled in
// during normalization.
func receiptSchema() map[string]any {
	str := map[string]any{"type": []string{"string", "null"}}
	num := map[string]any{"type": []string{"number", "string", "null"}}

	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"itemName":       str,
			"itemTotalPrice": num,
			"itemQuantity":   num,
			"itemUnitSize":   str,
		},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":  []string{"array", "null"},
				"items": item,
			},
			"receipt": map[string]any{
				"type": []string{"object", "null"},
				"properties": map[string]any{
					"totalCost":     num,
					"vendorName":    str,
					"mode":          str,
					"receiptDate":   str,
					"category":      str,
					"receiptExpiry": str,
					"additionalAttributes": map[string]any{
						"type": []string{"object", "null"},
					},
				},
			},
		},
	}
}

// compileSchema compiles a schema map for repeated validation
func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("receipt.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
