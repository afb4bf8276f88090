package telemetry

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/pifleet/internal/errors"
)

const (
	rebootBin   = "/sbin/reboot"
	poweroffBin = "/sbin/poweroff"
)

// Reboot restarts the runner's host. The caller is responsible for
// confirming intent first; this just issues the command.
func Reboot(ctx context.Context, runner Runner) error {
	return powerAction(ctx, runner, rebootBin, "reboot")
}

// Poweroff shuts the runner's host down.
func Poweroff(ctx context.Context, runner Runner) error {
	return powerAction(ctx, runner, poweroffBin, "power off")
}

func powerAction(ctx context.Context, runner Runner, bin, verb string) error {
	result, err := runner.Execute(ctx, "sudo -n "+bin)
	if err != nil {
		// The host can drop the connection before the exit status makes it
		// back. That is the action taking effect, not a failure.
		if errors.IsCode(err, errors.ErrConnLost) {
			return nil
		}
		return err
	}
	if result.ExitCode != 0 {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("Couldn't %s %s", verb, runner.Address()),
			fmt.Sprintf("The remote user needs passwordless sudo for %s.", bin))
	}
	return nil
}
