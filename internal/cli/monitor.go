package cli

import (
	"context"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/monitor"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
	"github.com/rileyhilliard/pifleet/internal/ui"
)

// monitorCommand launches the live fleet dashboard.
func monitorCommand(devicesFlag, intervalFlag string, insecure bool) error {
	if MachineMode() {
		return errors.New(errors.ErrExec,
			"monitor is interactive and doesn't mix with --json",
			"Use 'pifleet serve' and the HTTP API for machine-readable metrics.")
	}
	if !ui.IsTerminal(os.Stdout) {
		return errors.New(errors.ErrExec,
			"monitor needs an interactive terminal",
			"Run it from a real shell.")
	}

	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}

	reg := registry.FromConfig(cfg)
	devices, err := filterDevices(reg, devicesFlag)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errors.New(errors.ErrConfig,
			"No devices to monitor",
			"Run 'pifleet init' to register some first.")
	}

	interval, err := ParseTimeout(intervalFlag)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = cfg.Telemetry.Interval
	}

	conn := newConnector(cfg, insecure, 0)
	conn.setQuiet(true)
	defer conn.close()

	sampler := telemetry.NewSampler(telemetry.Config{
		Interval: interval,
		TopN:     cfg.Telemetry.TopN,
		Log:      logger.NewEnvLogger("[telemetry]"),
	})

	h := hub.New(hub.Config{
		Acquire: func(ctx context.Context, source string) (hub.Source, error) {
			dev, err := reg.Lookup(source)
			if err != nil {
				return nil, err
			}
			return conn.acquire(ctx, dev)
		},
		Sampler:  sampler,
		Log:      logger.NewEnvLogger("[hub]"),
		Interval: interval,
	})
	defer h.Close()

	model := monitor.NewModel(monitor.Config{
		Devices:  devices,
		Hub:      h,
		Interval: interval,
		Log:      logger.NewEnvLogger("[monitor]"),
	})

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// filterDevices narrows the fleet to a comma-separated id list, keeping
// config order. An unknown id is an error rather than a silent skip.
func filterDevices(reg registry.Registry, devicesFlag string) ([]registry.Device, error) {
	all := reg.List()
	if devicesFlag == "" {
		return all, nil
	}

	wanted := make(map[string]bool)
	for _, id := range strings.Split(devicesFlag, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := reg.Lookup(id); err != nil {
			return nil, err
		}
		wanted[id] = true
	}

	filtered := make([]registry.Device, 0, len(wanted))
	for _, d := range all {
		if wanted[d.ID] {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}
