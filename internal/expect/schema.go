package expect

import (
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ValidateSchema checks a loaded document against a CUE schema file.
//
// The schema's top-level value is unified with the document tree; any
// constraint violation is reported as a LoadError with CUE's diagnostic
// detail. Schemas must account for wildcard markers (e.g. allow
// `string | int` where a field may be "not null").
//
// An empty schemaPath is a no-op, keeping schema validation opt-in.
func ValidateSchema(doc *Document, schemaPath string) error {
	if schemaPath == "" {
		return nil
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return &LoadError{Path: schemaPath, Reason: "failed to read schema", Err: err}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(data, cue.Filename(schemaPath))
	if err := schema.Err(); err != nil {
		return &LoadError{
			Path:   schemaPath,
			Reason: "failed to compile schema: " + cueerrors.Details(err, nil),
		}
	}

	value := ctx.Encode(doc.Root)
	if err := value.Err(); err != nil {
		return &LoadError{Path: doc.Source, Reason: "failed to encode document", Err: err}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return &LoadError{
			Path:   doc.Source,
			Reason: "schema validation failed: " + cueerrors.Details(err, nil),
		}
	}

	return nil
}
