package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/util"
)

// Actions accepted by ManageService, mirroring what systemctl is allowed to
// do on a fleet host through this tool.
var serviceActions = map[string]bool{
	"start":   true,
	"stop":    true,
	"restart": true,
	"enable":  true,
	"disable": true,
}

// QueryService reads the state of one systemd unit on the runner's host.
func QueryService(ctx context.Context, runner Runner, unit string) (ServiceStatus, error) {
	if !util.ValidUnitName(unit) {
		return ServiceStatus{}, badUnitErr(unit)
	}

	command := "systemctl show " + util.ShellQuote(unit) + " --property=ActiveState,SubState,Result,Description"
	result, err := runner.Execute(ctx, command)
	if err != nil {
		return ServiceStatus{}, err
	}
	if result.ExitCode != 0 {
		return ServiceStatus{}, errors.New(errors.ErrExec,
			fmt.Sprintf("Couldn't read the status of %s on %s", unit, runner.Address()),
			firstLine(result.Stderr))
	}

	props := parseProperties(result.Stdout)
	status := ServiceStatus{
		Name:        unit,
		ActiveState: props["ActiveState"],
		SubState:    props["SubState"],
		Result:      props["Result"],
		Description: props["Description"],
	}
	if status.ActiveState == "" {
		status.ActiveState = "unknown"
	}
	return status, nil
}

// ManageService runs a systemctl action against one unit. State-changing
// actions go through sudo; the remote user needs passwordless sudo for
// systemctl, which is the stock setup on Raspberry Pi OS.
func ManageService(ctx context.Context, runner Runner, unit, action string) error {
	if !util.ValidUnitName(unit) {
		return badUnitErr(unit)
	}
	if !serviceActions[action] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a supported service action", action),
			"Use one of: start, stop, restart, enable, disable.")
	}

	command := "sudo -n systemctl " + action + " " + util.ShellQuote(unit)
	result, err := runner.Execute(ctx, command)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("Couldn't %s %s on %s", action, unit, runner.Address()),
			firstLine(result.Stderr))
	}
	return nil
}

// ListServices returns the service units loaded on the runner's host.
func ListServices(ctx context.Context, runner Runner) ([]string, error) {
	result, err := runner.Execute(ctx, "systemctl list-unit-files --type=service --no-legend --no-pager")
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("Couldn't list services on %s", runner.Address()),
			firstLine(result.Stderr))
	}

	var units []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			units = append(units, fields[0])
		}
	}
	return units, nil
}

// parseProperties reads systemctl show key=value lines.
func parseProperties(output string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

func badUnitErr(unit string) error {
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("'%s' doesn't look like a systemd unit name", unit),
		"Unit names use letters, digits, and . _ - @ only.")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
