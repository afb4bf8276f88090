package cli

import (
	stderrors "errors"
	"testing"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/stretchr/testify/assert"
)

func TestSplitDeviceCommand(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name        string
		args        []string
		wantDevice  string
		wantCommand string
	}{
		{
			name:        "known device splits off",
			args:        []string{"den-pi", "uptime"},
			wantDevice:  "den-pi",
			wantCommand: "uptime",
		},
		{
			name:        "known device with multi-word command",
			args:        []string{"attic-pi", "sudo", "systemctl", "restart", "picam"},
			wantDevice:  "attic-pi",
			wantCommand: "sudo systemctl restart picam",
		},
		{
			name:        "unknown first arg is all command",
			args:        []string{"uptime", "-p"},
			wantDevice:  "",
			wantCommand: "uptime -p",
		},
		{
			name:        "device only leaves empty command",
			args:        []string{"den-pi"},
			wantDevice:  "den-pi",
			wantCommand: "",
		},
		{
			name:        "no args",
			args:        nil,
			wantDevice:  "",
			wantCommand: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDevice, gotCommand := splitDeviceCommand(reg, tt.args)
			assert.Equal(t, tt.wantDevice, gotDevice)
			assert.Equal(t, tt.wantCommand, gotCommand)
		})
	}
}

func TestFleetOutcomeOK(t *testing.T) {
	tests := []struct {
		name    string
		outcome fleetOutcome
		want    bool
	}{
		{
			name:    "clean run",
			outcome: fleetOutcome{code: 0},
			want:    true,
		},
		{
			name:    "non-zero exit",
			outcome: fleetOutcome{code: 3},
			want:    false,
		},
		{
			name:    "transport error",
			outcome: fleetOutcome{err: stderrors.New("dial tcp: timeout")},
			want:    false,
		},
		{
			name:    "error with zero code still fails",
			outcome: fleetOutcome{code: 0, err: stderrors.New("connection lost")},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.ok())
		})
	}
}

func TestErrorMessage(t *testing.T) {
	structured := errors.New(errors.ErrUnreachable, "Can't reach den-pi", "Check the power cable.")
	assert.Equal(t, "Can't reach den-pi", errorMessage(structured))

	wrapped := errors.WrapWithCode(stderrors.New("dial tcp: refused"), errors.ErrSSH, "SSH connection failed", "")
	assert.Equal(t, "SSH connection failed", errorMessage(wrapped))

	plain := stderrors.New("dial tcp: refused")
	assert.Equal(t, "dial tcp: refused", errorMessage(plain))
}

func TestWriteFleetJSONExitCodes(t *testing.T) {
	dev := registry.Device{ID: "den-pi", Name: "den-pi"}

	err := writeFleetJSON([]fleetOutcome{{dev: dev, address: "192.168.4.61:22", code: 0}})
	assert.NoError(t, err)

	err = writeFleetJSON([]fleetOutcome{
		{dev: dev, address: "192.168.4.61:22", code: 0},
		{dev: registry.Device{ID: "attic-pi", Name: "attic-pi"}, code: 2, stderr: "no such unit"},
	})
	code, ok := errors.GetExitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 1, code)
}
