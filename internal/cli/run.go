package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cpoole/graphwitness/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// ScenarioReport is the per-scenario payload of a run.
type ScenarioReport struct {
	Name    string          `json:"name"`
	Pass    bool            `json:"pass"`
	Errors  []string        `json:"errors,omitempty"`
	Summary harness.Summary `json:"summary"`
}

// RunReport aggregates all scenario reports of one invocation.
type RunReport struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioReport `json:"scenarios"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>...",
		Short: "Run verification scenarios",
		Long: `Run one or more scenario YAML files against the completion signaling core.

Each scenario gets a fresh in-memory trace store, flag set, and
tracer-owned execution graph. Directories are expanded to every
.yaml file they contain (non-recursive).

Example:
  graphwitness run scenarios/chain_value.yaml
  graphwitness run scenarios/ --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RunOptions, args []string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

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

	report := RunReport{}
	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", path), err)
		}

		slog.Info("running scenario", "name", scenario.Name, "path", path)
		result, err := harness.Run(scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s failed to run", scenario.Name), err)
		}

		report.Total++
		if result.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, ScenarioReport{
			Name:    scenario.Name,
			Pass:    result.Pass,
			Errors:  result.Errors,
			Summary: result.Summary,
		})
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode report", err)
		}
	} else {
		writeTextReport(formatter, &report)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total))
	}
	return nil
}

func writeTextReport(f *OutputFormatter, report *RunReport) {
	for _, s := range report.Scenarios {
		status := "PASS"
		if !s.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(f.Writer, "%s  %s\n", status, s.Name)
		for _, msg := range s.Errors {
			fmt.Fprintf(f.Writer, "      %s\n", msg)
		}
		f.VerboseLog("      flags=%v all_set_once=%t completions(value=%d stopped=%d error=%d) topology(nodes=%d edges=%d)",
			s.Summary.FlagCounts, s.Summary.AllSetOnce,
			s.Summary.ValueCompletions, s.Summary.StoppedCompletions, s.Summary.ErrorCompletions,
			s.Summary.NodeCount, s.Summary.EdgeCount)
	}
	fmt.Fprintf(f.Writer, "\n%d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
}

// expandScenarioPaths resolves each argument to scenario files. Directories
// contribute their immediate .yaml children, sorted for stable ordering.
func expandScenarioPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if strings.HasSuffix(entry.Name(), ".yaml") || strings.HasSuffix(entry.Name(), ".yml") {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// configureLogging sets the process-wide logger. Verbose lowers the level to
// debug; all diagnostics go to stderr so stdout stays machine-readable.
func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
