package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/discover"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/ui"
	"github.com/rileyhilliard/pifleet/pkg/sshx"
)

// connector bundles the plumbing a one-shot command needs to reach a device:
// a locator that re-finds boards whose address drifted, and a session manager
// that dials and keeps the transport alive. Close it when done.
type connector struct {
	cfg     *config.Config
	mgr     *session.Manager
	locator *discover.Locator
	quiet   bool
}

// newConnector wires a connector from config. probeTimeout overrides the
// config's probe timeout when positive. insecure skips host key checks.
func newConnector(cfg *config.Config, insecure bool, probeTimeout time.Duration) *connector {
	dialer := sshx.DefaultDialer
	if insecure {
		dialer = func(ctx context.Context, host string, opts sshx.Options) (sshx.SSHClient, error) {
			opts.InsecureHostKey = true
			return sshx.Dial(ctx, host, opts)
		}
	}

	mgr := session.NewManager(session.Config{
		Dialer:        dialer,
		Log:           logger.NewEnvLogger("[session]"),
		Keepalive:     cfg.Session.Keepalive,
		RetryAttempts: cfg.Session.MaxAttempts,
		RetryDelay:    cfg.Session.BackoffBase,
		RetryMaxDelay: cfg.Session.BackoffCap,
	})

	resolver := discover.NewResolver()
	if cfg.Discovery.SubnetCap > 0 {
		resolver.SetSubnetCap(cfg.Discovery.SubnetCap)
	}
	locator := discover.NewLocator(resolver)
	locator.SetCache(discover.NewLastGood(discover.DefaultLastGoodTTL, clock.WallClock))
	if probeTimeout <= 0 {
		probeTimeout = cfg.Discovery.ProbeTimeout
	}
	locator.SetProbeTimeout(probeTimeout)
	if cfg.Discovery.Port > 0 {
		locator.SetPort(cfg.Discovery.Port)
	}

	return &connector{cfg: cfg, mgr: mgr, locator: locator, quiet: MachineMode()}
}

// setQuiet suppresses the locate progress display. Fleet fan-out sets this
// because the per-device progress rows carry the same information.
func (c *connector) setQuiet(quiet bool) {
	c.quiet = quiet
}

// locate finds the device's current address. The configured address is tried
// first, then the discovery hints, then the configured subnet. The winner is
// cached so a fleet run only hunts once per device.
func (c *connector) locate(ctx context.Context, dev registry.Device) (string, error) {
	if c.quiet {
		return c.locateQuiet(ctx, dev)
	}

	display := ui.NewLocateDisplay(os.Stdout)
	c.locator.SetEventHandler(display.HandleEvent)
	defer c.locator.SetEventHandler(nil)

	display.Start(dev.Name)
	addr, err := c.locateQuiet(ctx, dev)
	if err != nil {
		display.Fail(fmt.Sprintf("tried %d candidate(s)", len(display.Events())))
		return "", err
	}
	display.Success(dev.Name, addr)
	return addr, nil
}

func (c *connector) locateQuiet(ctx context.Context, dev registry.Device) (string, error) {
	hints := append([]string{dev.Address}, c.cfg.Discovery.Hints...)
	addr, err := c.locator.Locate(ctx, discover.TargetSpec{Key: dev.ID, Hints: hints})
	if err == nil {
		return addr, nil
	}
	if ctx.Err() != nil || c.cfg.Discovery.Subnet == "" {
		return "", err
	}

	// The named candidates all missed; sweep the configured subnet in case
	// the board picked up a new DHCP lease.
	addr, subnetErr := c.locator.Locate(ctx, discover.TargetSpec{
		Key:    dev.ID,
		Subnet: c.cfg.Discovery.Subnet,
	})
	if subnetErr != nil {
		return "", err
	}
	return addr, nil
}

// acquire locates the device and hands back a live session for it.
func (c *connector) acquire(ctx context.Context, dev registry.Device) (*session.Session, error) {
	addr, err := c.locate(ctx, dev)
	if err != nil {
		return nil, err
	}
	return c.mgr.Acquire(ctx, addr, dev.Credentials())
}

// close tears down every session the connector opened.
func (c *connector) close() {
	c.mgr.CloseAll()
}

// errorMessage extracts the short human message from an error for inline
// display, falling back to the raw text.
func errorMessage(err error) string {
	var fleetErr *errors.Error
	if stderrors.As(err, &fleetErr) {
		return fleetErr.Message
	}
	return err.Error()
}
