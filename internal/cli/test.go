package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/thingdir/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Trace bool
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Path   string          `json:"path"`
	Name   string          `json:"name"`
	Pass   bool            `json:"pass"`
	Errors []string        `json:"errors,omitempty"`
	Trace  json.RawMessage `json:"trace,omitempty"`
}

// TestResult holds the outcome of a test run.
type TestResult struct {
	Pass      bool             `json:"pass"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>",
		Short: "Run directory scenarios",
		Long: `Run YAML scenarios against a fresh in-memory directory.

Each scenario lists mutations and continuous-query registrations and then
asserts on the events they produced. A directory is searched recursively
for .yaml and .yml files. The command exits with status 1 when any
scenario fails.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "include the canonical event trace of each scenario")

	return cmd
}

func runTest(opts *TestOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	files, err := findScenarioFiles(path)
	if err != nil {
		_ = out.Error(ErrCodeScanError, err.Error(), path)
		return WrapExitError(ExitCommandError, "find scenarios", err)
	}
	if len(files) == 0 {
		_ = out.Error(ErrCodeNoFiles, "no scenario files found", path)
		return NewExitError(ExitCommandError, "no scenario files found in "+path)
	}

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	h, err := harness.New(harness.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "create harness", err)
	}

	result := TestResult{Pass: true}
	for _, file := range files {
		out.VerboseLog("running %s", file)
		sr := ScenarioResult{Path: file}

		s, err := harness.LoadScenario(file)
		if err != nil {
			sr.Errors = []string{err.Error()}
			result.Pass = false
			result.Scenarios = append(result.Scenarios, sr)
			continue
		}
		sr.Name = s.Name

		res, err := h.Run(cmd.Context(), s)
		if err != nil {
			return WrapExitError(ExitCommandError, "run "+file, err)
		}
		sr.Pass = res.Pass
		sr.Errors = res.Errors
		if opts.Trace {
			trace, err := harness.MarshalTrace(res)
			if err != nil {
				return WrapExitError(ExitCommandError, "encode trace", err)
			}
			sr.Trace = trace
		}
		if !sr.Pass {
			result.Pass = false
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if err := out.Success(result, testText(result)); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, "scenarios failed")
	}
	return nil
}

func findScenarioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func testText(r TestResult) string {
	var b strings.Builder
	failed := 0
	for _, s := range r.Scenarios {
		name := s.Name
		if name == "" {
			name = s.Path
		}
		if s.Pass {
			fmt.Fprintf(&b, "✓ %s\n", name)
		} else {
			failed++
			fmt.Fprintf(&b, "✗ %s\n", name)
			for _, e := range s.Errors {
				fmt.Fprintf(&b, "    %s\n", e)
			}
		}
		if len(s.Trace) > 0 {
			fmt.Fprintf(&b, "    %s\n", s.Trace)
		}
	}
	if failed == 0 {
		fmt.Fprintf(&b, "All %d scenario(s) passed", len(r.Scenarios))
	} else {
		fmt.Fprintf(&b, "%d of %d scenario(s) failed", failed, len(r.Scenarios))
	}
	return b.String()
}
