package expect

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadError is returned when an expectation document cannot be loaded.
// It covers missing files, unreadable files, and malformed YAML.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("expectation file %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("expectation file %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads and parses an expectation document from a YAML file.
// The document is loaded once and must not be mutated by callers.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "failed to read", Err: err}
	}

	root, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "failed to parse", Err: err}
	}
	if root == nil {
		return nil, &LoadError{Path: path, Reason: "document is empty"}
	}

	return &Document{Root: root, Source: path}, nil
}

// Parse decodes structured data into a generic document tree.
// JSON is a subset of YAML, so response bodies in either encoding decode
// through the same path. Mappings become map[string]any, sequences []any.
func Parse(data []byte) (any, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return normalizeKeys(root), nil
}

// normalizeKeys converts any map[any]any nodes to map[string]any.
// yaml.v3 produces string-keyed maps for untyped decoding, but nested
// documents with non-string keys (e.g. integer tag keys) still surface
// as map[any]any.
func normalizeKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, elem := range node {
			node[k] = normalizeKeys(elem)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, elem := range node {
			out[fmt.Sprintf("%v", k)] = normalizeKeys(elem)
		}
		return out
	case []any:
		for i, elem := range node {
			node[i] = normalizeKeys(elem)
		}
		return node
	default:
		return v
	}
}
