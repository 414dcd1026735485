package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/thingdir/internal/directory"
	"github.com/roach88/thingdir/internal/schema"
	"github.com/roach88/thingdir/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database   string
	NoValidate bool
}

// ImportFailure is a document that was not stored.
type ImportFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Created  []string        `json:"created"`
	Updated  []string        `json:"updated"`
	Failures []ImportFailure `json:"failures,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file-or-dir>",
		Short: "Load Thing Description files into a database",
		Long: `Store every .json Thing Description under a path.

A document's id (or @id) is used as its identifier; documents without one
are stored under their file name. Existing things are replaced.

Example:
  thingdir import --db ./data/thingdir.db ./things`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.NoValidate, "no-validate", false, "skip schema validation")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	docs, loadErrs := LoadDocuments(path)
	if len(docs) == 0 && len(loadErrs) > 0 {
		var le *LoadError
		if errors.As(loadErrs[0], &le) {
			_ = out.Error(le.Code, le.Message, le.Path)
		}
		return WrapExitError(ExitCommandError, "load documents", loadErrs[0])
	}

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	st, err := store.Open(ctx, opts.Database, store.WithLogger(logger))
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	svcOpts := []directory.Option{directory.WithLogger(logger)}
	if !opts.NoValidate {
		v, err := schema.New()
		if err != nil {
			return WrapExitError(ExitCommandError, "compile schema", err)
		}
		svcOpts = append(svcOpts, directory.WithValidator(v))
	}
	svc := directory.New(st, svcOpts...)
	defer svc.Close()

	result := ImportResult{Created: []string{}, Updated: []string{}}
	for _, e := range loadErrs {
		var le *LoadError
		if errors.As(e, &le) {
			result.Failures = append(result.Failures, ImportFailure{Path: le.Path, Error: le.Message})
		}
	}
	for _, d := range docs {
		id, existed, err := svc.Put(ctx, d.ID, d.Doc)
		if err != nil {
			out.VerboseLog("skipping %s: %v", d.Path, err)
			result.Failures = append(result.Failures, ImportFailure{Path: d.Path, Error: err.Error()})
			continue
		}
		if existed {
			result.Updated = append(result.Updated, id)
		} else {
			result.Created = append(result.Created, id)
		}
	}

	if err := out.Success(result, importText(result)); err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d document(s) not imported", len(result.Failures)))
	}
	return nil
}

func importText(r ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "created %d, updated %d", len(r.Created), len(r.Updated))
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n✗ %s: %s", f.Path, f.Error)
	}
	return b.String()
}
