package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cpoole/graphwitness/internal/harness"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <scenario-file>",
		Short: "Run a scenario and print its canonical trace",
		Long: `Run a single scenario and print its event trace as canonical JSON.

The output uses the same canonical encoding as golden trace fixtures:
sorted keys, NFC-normalized strings, no HTML escaping. Traces of
scenarios with parallel nodes vary between runs; pin the run token and
use linear chains for byte-stable output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return traceScenario(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func traceScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", path), err)
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s failed to run", scenario.Name), err)
	}

	data, err := harness.MarshalSnapshot(harness.TraceSnapshot{
		ScenarioName: scenario.Name,
		RunToken:     result.Summary.RunToken,
		Trace:        result.Trace,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode trace", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d assertion(s) failed", len(result.Errors)))
	}
	return nil
}
