package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/ui"
	"github.com/spf13/cobra"
)

// CommonFlags holds the connection flags shared by exec/attach/logs.
type CommonFlags struct {
	ProbeTimeout string
	Insecure     bool
}

// AddCommonFlags registers --probe-timeout and --insecure on a command.
func AddCommonFlags(cmd *cobra.Command, flags *CommonFlags) {
	cmd.Flags().StringVar(&flags.ProbeTimeout, "probe-timeout", "", "per-address probe timeout (e.g. 3s, 500ms)")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip host key verification (lab networks only)")
}

// ParseTimeout parses a duration flag. Empty returns zero, meaning use the
// config default.
func ParseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	return duration, nil
}

// loadFleetConfig loads and validates the config file. Commands that need
// registered devices use this; scan uses config.LoadOrDefault instead so it
// works on a bare machine.
func loadFleetConfig() (*config.Config, error) {
	path, err := config.Find(Config())
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New(errors.ErrConfig,
			"No config file found",
			"Run 'pifleet init' to set up your fleet.")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deviceChoices converts registry devices into picker entries.
func deviceChoices(devices []registry.Device) []ui.DeviceChoice {
	choices := make([]ui.DeviceChoice, len(devices))
	for i, d := range devices {
		choices[i] = ui.DeviceChoice{
			ID:      d.ID,
			Name:    d.Name,
			Address: d.Address,
			User:    d.User,
			Tags:    d.Tags,
		}
	}
	return choices
}

// resolveDevice turns an optional positional device argument into a registry
// entry. An empty id opens the interactive picker, which needs a terminal.
func resolveDevice(reg registry.Registry, id string) (registry.Device, error) {
	if id != "" {
		return reg.Lookup(id)
	}

	if MachineMode() || !ui.IsTerminal(os.Stdin) {
		return registry.Device{}, errors.New(errors.ErrConfig,
			"No device specified",
			"Name a device, e.g. 'pifleet exec den-pi uptime'. 'pifleet devices' lists them.")
	}

	choice, err := ui.PickDevice(deviceChoices(reg.List()))
	if err != nil {
		return registry.Device{}, err
	}
	if choice == nil {
		return registry.Device{}, errors.New(errors.ErrConfig,
			"No device selected", "")
	}
	return reg.Lookup(choice.ID)
}
