package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerVerbs(t *testing.T) {
	for _, action := range []string{"reboot", "poweroff"} {
		verbs, ok := powerVerbs[action]
		require.True(t, ok, action)
		assert.NotEmpty(t, verbs.prompt)
		assert.NotEmpty(t, verbs.active)
		assert.NotEmpty(t, verbs.status)
	}

	// Status strings are what the serve API reports for the same action.
	assert.Equal(t, "rebooting", powerVerbs["reboot"].status)
	assert.Equal(t, "powering-off", powerVerbs["poweroff"].status)
}

func TestPowerCommand_RefusesWithoutConfirmation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "pifleet.yaml")
	content := "version: 1\ndevices:\n  - name: den-pi\n    address: 192.168.4.61\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	origFlag := configFlag
	origMode := machineMode
	defer func() {
		configFlag = origFlag
		machineMode = origMode
	}()
	configFlag = configPath
	machineMode = true

	err := powerCommand("den-pi", "reboot", false, CommonFlags{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "without confirmation")
}
