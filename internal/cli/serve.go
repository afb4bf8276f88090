package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/notify"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/server"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

// serveCommand runs the fleet daemon: REST and WebSocket API over the
// whole registry, until SIGINT or SIGTERM.
func serveCommand(listen string) error {
	cfg, err := loadFleetConfig()
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Serve.Listen
	}

	log := logger.NewEnvLogger("[serve]")
	bus := events.NewBus()
	reg := registry.FromConfig(cfg)

	mgr := session.NewManager(session.Config{
		Bus:           bus,
		Log:           logger.NewEnvLogger("[session]"),
		Keepalive:     cfg.Session.Keepalive,
		RetryAttempts: cfg.Session.MaxAttempts,
		RetryDelay:    cfg.Session.BackoffBase,
		RetryMaxDelay: cfg.Session.BackoffCap,
	})
	defer mgr.CloseAll()

	sampler := telemetry.NewSampler(telemetry.Config{
		Interval: cfg.Telemetry.Interval,
		TopN:     cfg.Telemetry.TopN,
		Log:      logger.NewEnvLogger("[telemetry]"),
	})

	h := hub.New(hub.Config{
		Acquire:   server.Acquirer(reg, mgr),
		Sampler:   sampler,
		Log:       logger.NewEnvLogger("[hub]"),
		Interval:  cfg.Telemetry.Interval,
		QueueSize: cfg.Telemetry.QueueSize,
		TailLines: cfg.Serve.LogTail,
		LineRate:  cfg.Serve.LineRate,
	})
	defer h.Close()

	if len(cfg.Notify.URLs) > 0 {
		notifier := notify.New(notify.Config{
			Bus:      bus,
			URLs:     cfg.Notify.URLs,
			Events:   notifyEvents(cfg.Notify.Events, log),
			Cooldown: cfg.Notify.Cooldown,
			Log:      logger.NewEnvLogger("[notify]"),
		})
		notifier.Start()
		defer notifier.Stop()
	}

	srv := server.New(server.Config{
		Registry:        reg,
		Sessions:        mgr,
		Hub:             h,
		Sampler:         sampler,
		Bus:             bus,
		Log:             log,
		Origins:         cfg.Serve.Origins,
		Discovery:       cfg.Discovery,
		ExecTimeout:     cfg.Session.ExecTimeout,
		DefaultInterval: cfg.Telemetry.Interval,
		MinInterval:     cfg.Telemetry.MinInterval,
		MaxInterval:     cfg.Telemetry.MaxInterval,
		Version:         GetVersion(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx, listen)
}

// notifyEvents maps config strings onto bus topics. Unknown names are
// logged and skipped so a typo doesn't take the daemon down.
func notifyEvents(names []string, log logger.Logger) []events.Type {
	known := make(map[events.Type]bool)
	for _, t := range events.SessionTypes() {
		known[t] = true
	}

	out := make([]events.Type, 0, len(names))
	for _, name := range names {
		t := events.Type(name)
		if !known[t] {
			log.Warn("notify: ignoring unknown event type %q", name)
			continue
		}
		out = append(out, t)
	}
	return out
}
