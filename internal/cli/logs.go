package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
	"github.com/rileyhilliard/pifleet/internal/ui"
	"github.com/rileyhilliard/pifleet/internal/util"
)

// logsCommand follows a systemd unit's journal on one device until Ctrl-C.
func logsCommand(device, unit string, tail int, flags CommonFlags) error {
	if unit == "" {
		return errors.New(errors.ErrConfig,
			"Which unit should I follow?",
			"Name a systemd unit, e.g. 'pifleet logs den-pi --unit nginx'.")
	}
	if !util.ValidUnitName(unit) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a systemd unit name", unit),
			"Unit names use letters, digits, and .-_@: only.")
	}

	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}
	probeTimeout, err := ParseTimeout(flags.ProbeTimeout)
	if err != nil {
		return err
	}

	reg := registry.FromConfig(cfg)
	dev, err := resolveDevice(reg, device)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn := newConnector(cfg, flags.Insecure, probeTimeout)
	defer conn.close()

	sess, err := conn.acquire(ctx, dev)
	if err != nil {
		return err
	}

	h := hub.New(hub.Config{
		Acquire: func(ctx context.Context, source string) (hub.Source, error) {
			return sess, nil
		},
		Sampler:   telemetry.NewSampler(telemetry.Config{}),
		Log:       logger.NewEnvLogger("[logs]"),
		TailLines: tail,
	})
	defer h.Close()

	sub, err := h.SubscribeLogs(ctx, dev.ID, unit)
	if err != nil {
		return err
	}
	defer sub.Close()

	if !MachineMode() && ui.IsTerminal(os.Stdout) {
		muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
		fmt.Println(muted.Render(fmt.Sprintf("Following %s on %s. Ctrl-C stops.", unit, dev.Name)))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case hub.EventLogLine:
				fmt.Println(ev.Line)
			case hub.EventError:
				fmt.Fprintf(os.Stderr, "stream error: %s\n", errorMessage(ev.Err))
			case hub.EventClosed:
				return nil
			}
		}
	}
}
