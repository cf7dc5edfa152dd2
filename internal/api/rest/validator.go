package rest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/machine-state-v1.json
var machineStateSchemaJSON string

const machineStateSchemaName = "machine-state-v1.json"

// Validator checks request bodies of the state switch endpoint.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource(machineStateSchemaName,
		strings.NewReader(machineStateSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(machineStateSchemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

func (v *Validator) ValidateStateRequest(data []byte) error {
	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(body); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
