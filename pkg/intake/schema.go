package intake

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// defaultMetadataSchema is the canonical submission metadata contract. Every
// deployment uses this one schema; per-tenant variants are intentionally not
// supported.
const defaultMetadataSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"description": {"type": "string", "maxLength": 2000},
		"collected_by": {"type": "string"},
		"collected_at": {"type": "string", "format": "date-time"},
		"jurisdiction": {"type": "string"},
		"exhibit_number": {"type": "string"}
	},
	"additionalProperties": false
}`

// MetadataValidator checks submission metadata against the canonical schema.
type MetadataValidator struct {
	schema *jsonschema.Schema
}

// NewMetadataValidator compiles the canonical schema.
func NewMetadataValidator() (*MetadataValidator, error) {
	return newMetadataValidator(defaultMetadataSchema)
}

func newMetadataValidator(raw string) (*MetadataValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://chittyos.schemas.local/intake/submission.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("submission schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("submission schema compile failed: %w", err)
	}
	return &MetadataValidator{schema: compiled}, nil
}

// Validate checks the metadata document. nil metadata is valid.
func (v *MetadataValidator) Validate(metadata map[string]interface{}) error {
	if metadata == nil {
		return nil
	}
	if err := v.schema.Validate(map[string]interface{}(metadata)); err != nil {
		return fmt.Errorf("submission metadata invalid: %w", err)
	}
	return nil
}
