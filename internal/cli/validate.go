package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"traceverify/internal/expect"
)

// ValidationResult holds validation results for an expectation document.
type ValidationResult struct {
	File   string `json:"file"`
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <expected-file>",
		Short: "Check an expectation document without probing",
		Long: `Parse an expectation document and optionally check it against a CUE
schema, without contacting the system under test.

Useful as a fast pre-flight in the pipeline: a broken expectation file
fails here in milliseconds instead of after the full retry budget.

Exit codes:
  0 - Document is well-formed (and satisfies the schema, if given)
  2 - Document is missing, malformed, or violates the schema`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema the document must satisfy")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	doc, err := expect.Load(path)
	if err == nil {
		err = expect.ValidateSchema(doc, opts.Schema)
	}
	if err != nil {
		var payload interface{} = ValidationResult{File: path, Valid: false, Detail: err.Error()}
		if opts.Format != "json" {
			payload = fmt.Sprintf("✗ %s", path)
		}
		_ = formatter.Failure("E_CONFIG", err.Error(), payload)
		return WrapExitError(ExitCommandError, "invalid expectation document", err)
	}

	formatter.VerboseLog("parsed %s", path)
	if opts.Format != "json" {
		return formatter.Success(fmt.Sprintf("✓ %s", path))
	}
	return formatter.Success(ValidationResult{File: path, Valid: true})
}
