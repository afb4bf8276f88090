package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
	"github.com/rileyhilliard/pifleet/internal/ui"
)

// powerVerbs maps an action to the phrasing used in prompts and output.
// status matches what the serve API reports for the same action.
var powerVerbs = map[string]struct {
	prompt string // "Reboot"
	active string // "rebooting"
	status string // "rebooting"
}{
	"reboot":   {prompt: "Reboot", active: "rebooting", status: "rebooting"},
	"poweroff": {prompt: "Power off", active: "powering off", status: "powering-off"},
}

// powerCommand reboots or powers off a device. Destructive, so it wants
// either --yes or an interactive confirmation before issuing anything.
func powerCommand(device, action string, yes bool, flags CommonFlags) error {
	verbs := powerVerbs[action]

	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}
	reg := registry.FromConfig(cfg)

	dev, err := resolveDevice(reg, device)
	if err != nil {
		return err
	}

	if !yes {
		if MachineMode() || !ui.IsTerminal(os.Stdin) {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Refusing to %s %s without confirmation", action, dev.Name),
				"Pass --yes to skip the prompt.")
		}
		var confirmed bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s %s (%s)?", verbs.prompt, dev.Name, dev.Address)).
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	probeTimeout, err := ParseTimeout(flags.ProbeTimeout)
	if err != nil {
		return err
	}

	conn := newConnector(cfg, flags.Insecure, probeTimeout)
	defer conn.close()

	sess, err := conn.acquire(context.Background(), dev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.ExecTimeout)
	defer cancel()

	if action == "reboot" {
		err = telemetry.Reboot(ctx, sess)
	} else {
		err = telemetry.Poweroff(ctx, sess)
	}
	if err != nil {
		return err
	}

	if MachineMode() {
		return WriteJSONSuccess(os.Stdout, map[string]string{
			"device": dev.ID,
			"status": verbs.status,
		})
	}

	symbol := lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess)
	fmt.Printf("%s %s is %s\n", symbol, dev.Name, verbs.active)
	return nil
}
