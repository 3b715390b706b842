package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceCommand_CanonicalOutput(t *testing.T) {
	stdout, _, err := execute(t, "trace", "testdata/passing.yaml")
	require.NoError(t, err)

	// Pinned token and a single node make the trace byte-deterministic.
	assert.Equal(t,
		`{"run_token":"cli-test-token","scenario_name":"passing","trace":[{"flag":0,"node":"a","seq":1,"type":"signal"},{"channel":"value","seq":2,"type":"completion"}]}`,
		strings.TrimSuffix(stdout, "\n"))
}

func TestTraceCommand_FailingScenarioStillPrintsTrace(t *testing.T) {
	stdout, _, err := execute(t, "trace", "testdata/failing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, `"scenario_name":"failing"`)
	assert.Contains(t, err.Error(), "assertion(s) failed")
}

func TestTraceCommand_LoadError(t *testing.T) {
	_, _, err := execute(t, "trace", "testdata/malformed.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
