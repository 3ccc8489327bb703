package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// AuditRequestSchema constrains the JSON body of a job submission.
// minimum_values maps language -> minimum resource count per cell.
func AuditRequestSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"username", "password"},
		"properties": map[string]any{
			"username": map[string]any{"type": "string", "minLength": 1, "maxLength": 256},
			"password": map[string]any{"type": "string", "minLength": 1, "maxLength": 256},
			"minimum_values": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "integer", "minimum": 0},
			},
			"selected_languages": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "minLength": 1},
			},
		},
	}
}

var (
	auditSchemaOnce sync.Once
	auditSchema     *jsonschema.Schema
	auditSchemaErr  error
)

// ValidateAuditRequest validates a raw submission body against AuditRequestSchema.
func ValidateAuditRequest(data []byte) error {
	auditSchemaOnce.Do(func() {
		auditSchema, auditSchemaErr = CompileSchema(AuditRequestSchema())
	})
	if auditSchemaErr != nil {
		return auditSchemaErr
	}
	return ValidateJSON(auditSchema, data)
}

// CompileSchema compiles a schema given as a generic map.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSON validates data against a compiled schema.
func ValidateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return JobError(ErrInvalidInput, "request body is not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return JobError(ErrInvalidInput, "request does not match schema", err)
	}
	return nil
}
