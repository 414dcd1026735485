package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/querysql"
	"github.com/roach88/thingdir/internal/sparql"
)

// QueryPlan describes how a SPARQL query is executed.
type QueryPlan struct {
	Form               queryir.Form    `json:"form"`
	ReadOnly           bool            `json:"read_only"`
	Columns            []string        `json:"columns,omitempty"`
	ReportsIdentifiers bool            `json:"reports_identifiers"`
	Formats            []sparql.Format `json:"formats,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
	SQL                string          `json:"sql,omitempty"`
	Args               []any           `json:"args,omitempty"`
}

// NewQueryCommand creates the query command group.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Inspect SPARQL queries",
	}
	cmd.AddCommand(newQueryCompileCommand(rootOpts))
	return cmd
}

func newQueryCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <sparql|->",
		Short: "Print the analysis and generated SQL of a query",
		Long: `Parse a SPARQL query, analyze it and print the SQL it compiles to.

Pass "-" to read the query from standard input.

Example:
  thingdir query compile 'SELECT ?s WHERE { ?s td:title "Lamp" }'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return WrapExitError(ExitCommandError, "read query", err)
				}
				text = string(data)
			}
			return runQueryCompile(rootOpts, text, cmd)
		},
	}
}

func runQueryCompile(opts *RootOptions, text string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	q, err := sparql.Compile(text)
	if err != nil {
		var pe *sparql.ParseError
		if errors.As(err, &pe) {
			_ = out.Error(ErrCodeQuerySyntax, pe.Error(), map[string]int{"line": pe.Line, "column": pe.Column})
			return WrapExitError(ExitFailure, "invalid query", err)
		}
		_ = out.Error(ErrCodeQueryCompile, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid query", err)
	}

	plan := QueryPlan{
		Form:               q.Form(),
		ReadOnly:           q.Analysis.ReadOnly,
		ReportsIdentifiers: q.Analysis.ReportsIdentifiers(),
		Formats:            sparql.Formats(q.Form()),
		Warnings:           q.Analysis.Warnings,
	}
	for _, c := range q.Analysis.Columns {
		plan.Columns = append(plan.Columns, string(c))
	}

	if q.Analysis.ReadOnly {
		compiled, err := querysql.NewSQLCompiler().Compile(q.IR)
		switch {
		case errors.Is(err, querysql.ErrUnsupportedForm):
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("%s queries are parsed but not evaluated", q.Form()))
		case err != nil:
			_ = out.Error(ErrCodeQueryCompile, err.Error(), nil)
			return WrapExitError(ExitFailure, "compile query", err)
		default:
			plan.SQL = compiled.SQL
			plan.Args = compiled.Args
		}
	}

	return out.Success(plan, planText(plan))
}

func planText(p QueryPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "form:      %s\n", p.Form)
	fmt.Fprintf(&b, "read-only: %t\n", p.ReadOnly)
	if len(p.Columns) > 0 {
		fmt.Fprintf(&b, "columns:   %s\n", strings.Join(p.Columns, ", "))
	}
	fmt.Fprintf(&b, "continuous query: %t\n", p.ReportsIdentifiers)
	for _, w := range p.Warnings {
		fmt.Fprintf(&b, "warning:   %s\n", w)
	}
	if p.SQL != "" {
		fmt.Fprintf(&b, "\n%s\n", p.SQL)
		for i, a := range p.Args {
			fmt.Fprintf(&b, "  $%d = %v\n", i+1, a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
