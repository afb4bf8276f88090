package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/ui"
)

// execResultJSON is one device's outcome in --json output.
type execResultJSON struct {
	Device  string `json:"device"`
	Address string `json:"address,omitempty"`
	Code    int    `json:"code"`
	Stdout  string `json:"stdout,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
	Error   string `json:"error,omitempty"`
}

// execCommand runs a one-shot command on one device or a tagged set.
func execCommand(args []string, tag, timeoutFlag string, flags CommonFlags) error {
	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}
	reg := registry.FromConfig(cfg)

	timeout, err := ParseTimeout(timeoutFlag)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = cfg.Session.ExecTimeout
	}
	probeTimeout, err := ParseTimeout(flags.ProbeTimeout)
	if err != nil {
		return err
	}

	if tag != "" {
		command := strings.Join(args, " ")
		if strings.TrimSpace(command) == "" {
			return errors.New(errors.ErrExec,
				"What should I run?",
				"Usage: pifleet exec --tag camera -- <command>")
		}
		return execFleet(cfg, reg, tag, command, timeout, probeTimeout, flags.Insecure)
	}

	deviceID, command := splitDeviceCommand(reg, args)
	if strings.TrimSpace(command) == "" {
		return errors.New(errors.ErrExec,
			"What should I run?",
			fmt.Sprintf("Usage: pifleet exec %s <command>", args[0]))
	}

	dev, err := resolveDevice(reg, deviceID)
	if err != nil {
		return err
	}
	return execSingle(cfg, dev, command, timeout, probeTimeout, flags.Insecure)
}

// splitDeviceCommand decides whether the first argument names a device.
// A recognized id splits off; otherwise every argument is the command and
// the device comes from elsewhere (picker or error).
func splitDeviceCommand(reg registry.Registry, args []string) (string, string) {
	if len(args) == 0 {
		return "", ""
	}
	if _, err := reg.Lookup(args[0]); err == nil {
		return args[0], strings.Join(args[1:], " ")
	}
	return "", strings.Join(args, " ")
}

// execSingle streams a command's output from one device.
func execSingle(cfg *config.Config, dev registry.Device, command string, timeout, probeTimeout time.Duration, insecure bool) error {
	conn := newConnector(cfg, insecure, probeTimeout)
	defer conn.close()

	sess, err := conn.acquire(context.Background(), dev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if MachineMode() {
		result, err := sess.Execute(ctx, command)
		if err != nil {
			return err
		}
		out := execResultJSON{
			Device:  dev.ID,
			Address: sess.Address(),
			Code:    result.ExitCode,
			Stdout:  result.Stdout,
			Stderr:  result.Stderr,
		}
		if writeErr := WriteJSONSuccess(os.Stdout, out); writeErr != nil {
			return writeErr
		}
		if result.ExitCode != 0 {
			return errors.NewExitError(result.ExitCode)
		}
		return nil
	}

	start := time.Now()
	code, err := sess.ExecuteStream(ctx, command, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}

	renderExecStatus(dev.Name, code, time.Since(start))
	if code != 0 {
		return errors.NewExitError(code)
	}
	return nil
}

// renderExecStatus prints the one-line outcome under the command's output.
func renderExecStatus(device string, code int, elapsed time.Duration) {
	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	if code == 0 {
		symbol := lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess)
		fmt.Printf("%s %s %s\n", symbol, device, muted.Render(fmt.Sprintf("(%.1fs)", elapsed.Seconds())))
		return
	}
	symbol := lipgloss.NewStyle().Foreground(ui.ColorError).Render(ui.SymbolFail)
	fmt.Printf("%s %s exited %d %s\n", symbol, device, code, muted.Render(fmt.Sprintf("(%.1fs)", elapsed.Seconds())))
}

// fleetOutcome is one device's result from a fan-out run.
type fleetOutcome struct {
	dev     registry.Device
	address string
	code    int
	stdout  string
	stderr  string
	err     error
}

func (o fleetOutcome) ok() bool {
	return o.err == nil && o.code == 0
}

// execFleet runs the command on every tagged device in parallel and
// summarizes per-device outcomes.
func execFleet(cfg *config.Config, reg registry.Registry, tag, command string, timeout, probeTimeout time.Duration, insecure bool) error {
	devices := registry.FilterTagged(reg.List(), tag)
	if len(devices) == 0 {
		return errors.New(errors.ErrNotFound,
			fmt.Sprintf("No device carries the tag '%s'", tag),
			"Check 'pifleet devices' for the tags your fleet uses.")
	}

	conn := newConnector(cfg, insecure, probeTimeout)
	conn.setQuiet(true)
	defer conn.close()

	progress := ui.NewFleetProgress(!MachineMode() && ui.IsTerminal(os.Stdout))
	tasks := make([]ui.FleetTask, len(devices))
	for i, d := range devices {
		tasks[i] = ui.FleetTask{ID: d.ID, Name: d.Name}
	}
	progress.InitDevices(tasks)
	progress.Start()

	outcomes := make([]fleetOutcome, len(devices))
	var wg sync.WaitGroup
	for i, dev := range devices {
		wg.Add(1)
		go func(i int, dev registry.Device) {
			defer wg.Done()
			outcomes[i] = execOnDevice(conn, progress, dev, command, timeout)
		}(i, dev)
	}
	wg.Wait()
	progress.Stop()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].dev.ID < outcomes[j].dev.ID })

	if MachineMode() {
		return writeFleetJSON(outcomes)
	}
	return renderFleetSummary(outcomes)
}

// execOnDevice locates, connects, and runs the command on one device,
// driving its progress row through the states.
func execOnDevice(conn *connector, progress *ui.FleetProgress, dev registry.Device, command string, timeout time.Duration) fleetOutcome {
	outcome := fleetOutcome{dev: dev}

	addr, err := conn.locate(context.Background(), dev)
	if err != nil {
		outcome.err = err
		progress.DeviceCompleted(dev.ID, false)
		return outcome
	}
	outcome.address = addr
	progress.DeviceConnecting(dev.ID, addr)

	sess, err := conn.mgr.Acquire(context.Background(), addr, dev.Credentials())
	if err != nil {
		outcome.err = err
		progress.DeviceCompleted(dev.ID, false)
		return outcome
	}
	progress.DeviceExecuting(dev.ID)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result, err := sess.Execute(ctx, command)
	outcome.code = result.ExitCode
	outcome.stdout = result.Stdout
	outcome.stderr = result.Stderr
	outcome.err = err

	progress.DeviceCompleted(dev.ID, outcome.ok())
	return outcome
}

// renderFleetSummary prints pass/fail totals and per-device failure detail.
func renderFleetSummary(outcomes []fleetOutcome) error {
	summary := ui.ExecSummary{}
	for _, o := range outcomes {
		if o.ok() {
			summary.Passed++
			continue
		}
		summary.Failed++
		failure := ui.DeviceFailure{
			Device:   o.dev.Name,
			Address:  o.address,
			ExitCode: o.code,
			Stderr:   o.stderr,
		}
		if o.err != nil {
			failure.Err = errorMessage(o.err)
		}
		summary.Failures = append(summary.Failures, failure)
	}

	fmt.Println()
	if summary.Failed > 0 {
		fmt.Print(ui.RenderExecSummary(&summary))
		if summary.Passed > 0 {
			fmt.Println()
			fmt.Println(ui.RenderSuccessSummary(summary.Passed))
		}
		return errors.NewExitError(1)
	}
	fmt.Println(ui.RenderSuccessSummary(summary.Passed))
	return nil
}

// writeFleetJSON emits per-device outcomes for automation.
func writeFleetJSON(outcomes []fleetOutcome) error {
	results := make([]execResultJSON, len(outcomes))
	failed := false
	for i, o := range outcomes {
		results[i] = execResultJSON{
			Device:  o.dev.ID,
			Address: o.address,
			Code:    o.code,
			Stdout:  o.stdout,
			Stderr:  o.stderr,
		}
		if o.err != nil {
			results[i].Error = errorMessage(o.err)
		}
		if !o.ok() {
			failed = true
		}
	}
	if err := WriteJSONSuccess(os.Stdout, results); err != nil {
		return err
	}
	if failed {
		return errors.NewExitError(1)
	}
	return nil
}
