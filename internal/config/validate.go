package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/events"
)

// deviceIDPattern matches identifiers safe for URLs and the CLI.
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// knownNotifyEvents are the bus topics the notifier can forward: the
// session lifecycle, nothing else.
var knownNotifyEvents = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range events.SessionTypes() {
		m[string(t)] = true
	}
	return m
}()

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but pifleet only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest pifleet: https://github.com/rileyhilliard/pifleet/releases")
	}

	if err := validateDefaults(cfg.Defaults); err != nil {
		return err
	}

	seen := make(map[string]string, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if err := validateDevice(i, d); err != nil {
			return err
		}
		id := d.EffectiveID()
		if prev, ok := seen[id]; ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Devices '%s' and '%s' both answer to the id '%s'", prev, d.Name, id),
				"Give one of them a distinct name or an explicit id.")
		}
		seen[id] = d.Name
	}

	if err := validateDiscovery(cfg.Discovery); err != nil {
		return err
	}
	if err := validateSession(cfg.Session); err != nil {
		return err
	}
	if err := validateTelemetry(cfg.Telemetry); err != nil {
		return err
	}
	if err := validateServe(cfg.Serve); err != nil {
		return err
	}
	return validateNotify(cfg.Notify)
}

func validateDefaults(def Defaults) error {
	if def.Port != 0 && (def.Port < 1 || def.Port > 65535) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("defaults.port %d is not a valid port", def.Port),
			"Ports run from 1 to 65535.")
	}
	return nil
}

func validateDevice(index int, d Device) error {
	label := d.Name
	if label == "" {
		label = fmt.Sprintf("devices[%d]", index)
	}

	if d.Name == "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device entry %d has no name", index),
			"Every device needs a name, e.g. 'living-room-pi'.")
	}
	if strings.Contains(d.Name, "@") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device name '%s' looks like an SSH string, not a name", d.Name),
			"Use just a name here; put the login under 'user' and the host under 'address'.")
	}
	if !deviceIDPattern.MatchString(d.Name) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device name '%s' has characters that won't survive URLs", d.Name),
			"Stick to letters, digits, and . _ - for device names.")
	}
	if d.ID != "" && !deviceIDPattern.MatchString(d.ID) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device id '%s' has characters that won't survive URLs", d.ID),
			"Stick to letters, digits, and . _ - for device ids.")
	}
	if d.Address == "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device '%s' has no address", label),
			"Set 'address' to the hostname or IP pifleet should dial.")
	}
	if d.Port != 0 && (d.Port < 1 || d.Port > 65535) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device '%s' port %d is not a valid port", label, d.Port),
			"Ports run from 1 to 65535.")
	}
	if d.ControlURL != "" {
		u, err := url.Parse(d.ControlURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Device '%s' control_url '%s' is not an http(s) URL", label, d.ControlURL),
				"control_url should look like http://pi4.local:8443.")
		}
	}
	return nil
}

func validateDiscovery(disc DiscoveryConfig) error {
	if disc.Subnet != "" {
		if _, _, err := net.ParseCIDR(disc.Subnet); err != nil {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("discovery.subnet '%s' is not CIDR notation", disc.Subnet),
				"Write it like 192.168.1.0/24.")
		}
	}
	if disc.SubnetCap < 1 || disc.SubnetCap > 1024 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("discovery.subnet_cap %d is out of range", disc.SubnetCap),
			"Pick a cap between 1 and 1024; sweeping more than that is a different tool's job.")
	}
	if disc.Concurrency < 1 || disc.Concurrency > 512 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("discovery.concurrency %d is out of range", disc.Concurrency),
			"Pick a value between 1 and 512.")
	}
	if disc.ProbeTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"discovery.probe_timeout must be positive",
			"Something like 3s works for a LAN.")
	}
	if disc.HintTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"discovery.hint_timeout must be positive",
			"Something like 2s works for mDNS names.")
	}
	if disc.Port < 1 || disc.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("discovery.port %d is not a valid port", disc.Port),
			"Ports run from 1 to 65535.")
	}
	return nil
}

func validateSession(s SessionConfig) error {
	if s.ExecTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"session.exec_timeout must be positive",
			"30s is a sane ceiling for one-shot commands.")
	}
	if s.Keepalive <= 0 {
		return errors.New(errors.ErrConfig,
			"session.keepalive must be positive",
			"15s detects a dead link without waking the radio constantly.")
	}
	if s.BackoffBase <= 0 {
		return errors.New(errors.ErrConfig,
			"session.backoff_base must be positive",
			"500ms is the usual starting delay.")
	}
	if s.BackoffCap < s.BackoffBase {
		return errors.New(errors.ErrConfig,
			"session.backoff_cap is smaller than session.backoff_base",
			"The cap bounds the doubling delay; it can't sit below the base.")
	}
	if s.MaxAttempts < 1 {
		return errors.New(errors.ErrConfig,
			"session.max_attempts must be at least 1",
			"This is how many reconnects are tried before a session closes.")
	}
	return nil
}

func validateTelemetry(tel TelemetryConfig) error {
	if tel.MinInterval <= 0 {
		return errors.New(errors.ErrConfig,
			"telemetry.min_interval must be positive",
			"1s is as fast as a Pi Zero can comfortably answer.")
	}
	if tel.MaxInterval < tel.MinInterval {
		return errors.New(errors.ErrConfig,
			"telemetry.max_interval is smaller than telemetry.min_interval",
			"Swap the bounds so min <= max.")
	}
	if tel.Interval < tel.MinInterval || tel.Interval > tel.MaxInterval {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("telemetry.interval %s is outside [%s, %s]", tel.Interval, tel.MinInterval, tel.MaxInterval),
			"The default cadence has to respect its own bounds.")
	}
	if tel.TopN < 1 || tel.TopN > 50 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("telemetry.top_n %d is out of range", tel.TopN),
			"Pick between 1 and 50 processes.")
	}
	if tel.QueueSize < 1 || tel.QueueSize > 1024 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("telemetry.queue_size %d is out of range", tel.QueueSize),
			"Pick a queue size between 1 and 1024.")
	}
	return nil
}

func validateServe(srv ServeConfig) error {
	if srv.Listen == "" {
		return errors.New(errors.ErrConfig,
			"serve.listen is empty",
			"Set it to host:port, e.g. :8443.")
	}
	if _, _, err := net.SplitHostPort(srv.Listen); err != nil {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("serve.listen '%s' is not host:port", srv.Listen),
			"Set it to host:port, e.g. :8443 or 0.0.0.0:8443.")
	}
	if srv.LogTail < 0 {
		return errors.New(errors.ErrConfig,
			"serve.log_tail can't be negative",
			"0 means no history; 200 is the default.")
	}
	if srv.LineRate < 1 {
		return errors.New(errors.ErrConfig,
			"serve.line_rate must be at least 1",
			"This caps how many log lines per second reach subscribers.")
	}
	return nil
}

func validateNotify(n NotifyConfig) error {
	for _, raw := range n.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("notify url '%s' is not a service URL", raw),
				"shoutrrr URLs look like telegram://token@telegram?chats=id.")
		}
	}
	for _, ev := range n.Events {
		if !knownNotifyEvents[ev] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("notify event '%s' is not one pifleet publishes", ev),
				"Pick from the session lifecycle: "+joinSessionTypes()+".")
		}
	}
	if n.Cooldown < 0 {
		return errors.New(errors.ErrConfig,
			"notify.cooldown can't be negative",
			"0 disables the cooldown; 5m is the default.")
	}
	return nil
}

func joinSessionTypes() string {
	types := events.SessionTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
