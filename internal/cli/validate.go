package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpoole/graphwitness/internal/harness"
	"github.com/cpoole/graphwitness/internal/schema"
)

// ValidationResult holds validation results for one scenario file.
type ValidationResult struct {
	Path   string   `json:"path"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Validate scenarios without running them",
		Long: `Validate scenario YAML files without running them.

Each file is checked twice: structurally against the scenario schema
(unknown fields, wrong types, enum violations) and semantically by the
harness parser (dependency ordering, flag index ranges).`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenarios(rootOpts, args, cmd)
		},
	}

	return cmd
}

func validateScenarios(opts *RootOptions, args []string, cmd *cobra.Command) error {
	paths, err := expandScenarioPaths(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve scenario paths", err)
	}
	if len(paths) == 0 {
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var results []ValidationResult
	invalid := 0
	for _, path := range paths {
		result := validateOne(path)
		if !result.Valid {
			invalid++
		}
		results = append(results, result)
	}

	if opts.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode results", err)
		}
	} else {
		for _, r := range results {
			status := "VALID"
			if !r.Valid {
				status = "INVALID"
			}
			fmt.Fprintf(formatter.Writer, "%s  %s\n", status, r.Path)
			for _, msg := range r.Errors {
				fmt.Fprintf(formatter.Writer, "        %s\n", msg)
			}
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) invalid", invalid, len(results)))
	}
	return nil
}

func validateOne(path string) ValidationResult {
	result := ValidationResult{Path: path, Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if err := schema.Validate(path, data); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	if _, err := harness.ParseScenario(data); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}
