package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderExecSummaryAllPassed(t *testing.T) {
	assert.Equal(t, "", RenderExecSummary(nil))
	assert.Equal(t, "", RenderExecSummary(&ExecSummary{Passed: 3}))
}

func TestRenderExecSummaryTransportFailure(t *testing.T) {
	out := RenderExecSummary(&ExecSummary{
		Passed: 2,
		Failed: 1,
		Failures: []DeviceFailure{
			{Device: "den-pi", Address: "192.168.4.61", Err: "connect timeout"},
		},
	})

	assert.Contains(t, out, SymbolFail+" 1 device failed")
	assert.Contains(t, out, "den-pi (192.168.4.61)")
	assert.Contains(t, out, "connect timeout")
}

func TestRenderExecSummaryExitCode(t *testing.T) {
	out := RenderExecSummary(&ExecSummary{
		Failed: 1,
		Failures: []DeviceFailure{
			{Device: "attic-pi", ExitCode: 127, Stderr: "bash: restart-cam: command not found\n"},
		},
	})

	assert.Contains(t, out, "attic-pi")
	assert.Contains(t, out, "exit 127")
	assert.Contains(t, out, "bash: restart-cam: command not found")
}

func TestRenderExecSummaryMultipleFailures(t *testing.T) {
	out := RenderExecSummary(&ExecSummary{
		Failed: 2,
		Failures: []DeviceFailure{
			{Device: "den-pi", Err: "connect timeout"},
			{Device: "attic-pi", ExitCode: 1},
		},
	})

	assert.Contains(t, out, "2 devices failed")
	assert.Contains(t, out, "den-pi")
	assert.Contains(t, out, "attic-pi")
}

func TestRenderExecSummaryMultilineStderr(t *testing.T) {
	out := RenderExecSummary(&ExecSummary{
		Failed: 1,
		Failures: []DeviceFailure{
			{Device: "den-pi", ExitCode: 2, Stderr: "line one\nline two\n"},
		},
	})

	assert.Contains(t, out, "    line one")
	assert.Contains(t, out, "    line two")
}

func TestRenderSuccessSummary(t *testing.T) {
	assert.Equal(t, "", RenderSuccessSummary(0))
	assert.Contains(t, RenderSuccessSummary(1), "1 device succeeded")
	assert.Contains(t, RenderSuccessSummary(4), "4 devices succeeded")
	assert.Contains(t, RenderSuccessSummary(4), SymbolSuccess)
}
