package expect

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const segmentSchema = `
segmentItems: [...{
	serviceName: string
	segmentSize: int
	...
}]
`

func TestValidateSchema_NoSchemaIsNoop(t *testing.T) {
	doc := &Document{Root: map[string]any{"anything": "goes"}, Source: "expected.yaml"}
	assert.NoError(t, ValidateSchema(doc, ""))
}

func TestValidateSchema_Satisfied(t *testing.T) {
	schemaPath := writeFile(t, "schema.cue", segmentSchema)
	doc := &Document{
		Root: map[string]any{
			"segmentItems": []any{
				map[string]any{"serviceName": "producer", "segmentSize": 1},
			},
		},
		Source: "expected.yaml",
	}

	assert.NoError(t, ValidateSchema(doc, schemaPath))
}

func TestValidateSchema_Violation(t *testing.T) {
	schemaPath := writeFile(t, "schema.cue", segmentSchema)
	doc := &Document{
		Root: map[string]any{
			"segmentItems": []any{
				map[string]any{"serviceName": 42, "segmentSize": 1},
			},
		},
		Source: "expected.yaml",
	}

	err := ValidateSchema(doc, schemaPath)
	require.Error(t, err)

	loadErr, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Contains(t, loadErr.Reason, "schema validation failed")
}

func TestValidateSchema_MissingSchemaFile(t *testing.T) {
	doc := &Document{Root: map[string]any{}, Source: "expected.yaml"}
	err := ValidateSchema(doc, filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)

	loadErr, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Contains(t, loadErr.Reason, "failed to read schema")
}

func TestValidateSchema_BadSchema(t *testing.T) {
	schemaPath := writeFile(t, "broken.cue", "segmentItems: [...{")
	doc := &Document{Root: map[string]any{}, Source: "expected.yaml"}

	err := ValidateSchema(doc, schemaPath)
	require.Error(t, err)

	loadErr, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Contains(t, loadErr.Reason, "failed to compile schema")
}
