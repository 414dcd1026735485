package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/thingdir/internal/schema"
)

// FileResult is the validation outcome of one file.
type FileResult struct {
	Path   string              `json:"path"`
	Valid  bool                `json:"valid"`
	Errors []schema.FieldError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileResult `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>",
		Short: "Validate Thing Description files",
		Long: `Validate Thing Description JSON files against the directory's schema.

A directory is searched recursively for .json files. The command exits
with status 1 when any document is invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	docs, loadErrs := LoadDocuments(path)
	if len(docs) == 0 && len(loadErrs) > 0 {
		var le *LoadError
		if errors.As(loadErrs[0], &le) {
			_ = out.Error(le.Code, le.Message, le.Path)
			return NewExitError(ExitCommandError, le.Error())
		}
		return WrapExitError(ExitCommandError, "load documents", loadErrs[0])
	}

	v, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "compile schema", err)
	}

	result := ValidationResult{Valid: len(loadErrs) == 0}
	for _, e := range loadErrs {
		var le *LoadError
		if errors.As(e, &le) {
			result.Files = append(result.Files, FileResult{
				Path:   le.Path,
				Errors: []schema.FieldError{{Message: le.Message}},
			})
		}
	}
	for _, d := range docs {
		out.VerboseLog("validating %s", d.Path)
		fr := FileResult{Path: d.Path, Valid: true}
		if err := v.Validate(d.Doc); err != nil {
			var verr *schema.ValidationError
			if !errors.As(err, &verr) {
				return WrapExitError(ExitCommandError, "validate "+d.Path, err)
			}
			fr.Valid = false
			fr.Errors = verr.Fields
			result.Valid = false
		}
		result.Files = append(result.Files, fr)
	}

	if err := out.Success(result, validationText(result)); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validationText(r ValidationResult) string {
	var b strings.Builder
	invalid := 0
	for _, f := range r.Files {
		if f.Valid {
			fmt.Fprintf(&b, "✓ %s\n", f.Path)
			continue
		}
		invalid++
		fmt.Fprintf(&b, "✗ %s\n", f.Path)
		for _, e := range f.Errors {
			if e.Path != "" {
				fmt.Fprintf(&b, "    %s: %s\n", e.Path, e.Message)
			} else {
				fmt.Fprintf(&b, "    %s\n", e.Message)
			}
		}
	}
	if invalid == 0 {
		fmt.Fprintf(&b, "All %d document(s) valid", len(r.Files))
	} else {
		fmt.Fprintf(&b, "%d of %d document(s) invalid", invalid, len(r.Files))
	}
	return b.String()
}
