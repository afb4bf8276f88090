package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete pifleet configuration file.
type Config struct {
	Version   int             `yaml:"version" mapstructure:"version"`
	Defaults  Defaults        `yaml:"defaults" mapstructure:"defaults"`
	Devices   []Device        `yaml:"devices" mapstructure:"devices"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Serve     ServeConfig     `yaml:"serve" mapstructure:"serve"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
}

// Defaults are the connection settings a device entry inherits when it
// doesn't set its own.
type Defaults struct {
	// User is the SSH login for devices that don't name one.
	User string `yaml:"user" mapstructure:"user"`

	// Port is the SSH port for devices that don't name one.
	Port int `yaml:"port" mapstructure:"port"`

	// KeyPath is the private key tried before the agent and ~/.ssh
	// defaults. Supports ~ expansion.
	KeyPath string `yaml:"key_path,omitempty" mapstructure:"key_path"`
}

// Device is one registry entry: a board the fleet knows by name.
type Device struct {
	// ID is the stable identifier used in URLs and the CLI. Defaults to
	// Name when empty.
	ID string `yaml:"id,omitempty" mapstructure:"id"`

	// Name is the human label shown in tables and the dashboard.
	Name string `yaml:"name" mapstructure:"name"`

	// Address is the hostname or IP the session layer dials.
	Address string `yaml:"address" mapstructure:"address"`

	// Port overrides defaults.port for this device.
	Port int `yaml:"port,omitempty" mapstructure:"port"`

	// User overrides defaults.user for this device.
	User string `yaml:"user,omitempty" mapstructure:"user"`

	// KeyPath overrides defaults.key_path for this device.
	KeyPath string `yaml:"key_path,omitempty" mapstructure:"key_path"`

	// Tags for filtering devices with --tag flags.
	Tags []string `yaml:"tags,omitempty" mapstructure:"tags"`

	// ControlURL, when set, marks the device as running its own control
	// daemon; API calls for it are forwarded there instead of executed
	// over SSH from this host.
	ControlURL string `yaml:"control_url,omitempty" mapstructure:"control_url"`
}

// DiscoveryConfig controls how scan finds boards that aren't registered.
type DiscoveryConfig struct {
	// Hints are names tried first, in order.
	Hints []string `yaml:"hints,omitempty" mapstructure:"hints"`

	// Subnet is the CIDR swept when hints come up empty.
	Subnet string `yaml:"subnet,omitempty" mapstructure:"subnet"`

	// SubnetCap bounds how many subnet addresses a sweep may touch.
	SubnetCap int `yaml:"subnet_cap" mapstructure:"subnet_cap"`

	// Concurrency bounds in-flight probes.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`

	// ProbeTimeout is the per-address connect budget.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`

	// HintTimeout is the per-hint name resolution budget.
	HintTimeout time.Duration `yaml:"hint_timeout" mapstructure:"hint_timeout"`

	// Port probed on each candidate.
	Port int `yaml:"port" mapstructure:"port"`
}

// SessionConfig controls SSH session lifetime and reconnect behavior.
type SessionConfig struct {
	// ExecTimeout caps a one-shot remote command.
	ExecTimeout time.Duration `yaml:"exec_timeout" mapstructure:"exec_timeout"`

	// Keepalive is how often an idle session is probed.
	Keepalive time.Duration `yaml:"keepalive" mapstructure:"keepalive"`

	// BackoffBase is the first reconnect delay; it doubles each attempt.
	BackoffBase time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`

	// BackoffCap is the largest reconnect delay.
	BackoffCap time.Duration `yaml:"backoff_cap" mapstructure:"backoff_cap"`

	// MaxAttempts is how many reconnects are tried before the session
	// closes for good.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// TelemetryConfig controls metrics sampling.
type TelemetryConfig struct {
	// Interval is the sampling cadence when a consumer doesn't ask.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// MinInterval and MaxInterval clamp what consumers may request.
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval" mapstructure:"max_interval"`

	// TopN is how many processes the cpu and memory tables carry.
	TopN int `yaml:"top_n" mapstructure:"top_n"`

	// QueueSize bounds each subscriber's event queue.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// ServeConfig controls the HTTP/WebSocket daemon.
type ServeConfig struct {
	// Listen is the bind address, host:port.
	Listen string `yaml:"listen" mapstructure:"listen"`

	// Origins allowed to open WebSocket connections. Empty means
	// same-origin only.
	Origins []string `yaml:"origins,omitempty" mapstructure:"origins"`

	// LogTail is how many historical lines a new log stream starts with.
	LogTail int `yaml:"log_tail" mapstructure:"log_tail"`

	// LineRate caps log fan-out in lines per second.
	LineRate int `yaml:"line_rate" mapstructure:"line_rate"`
}

// NotifyConfig controls push notifications.
type NotifyConfig struct {
	// URLs are shoutrrr service URLs, e.g. telegram://token@telegram?chats=id.
	URLs []string `yaml:"urls,omitempty" mapstructure:"urls"`

	// Events selects which session lifecycle events notify, e.g.
	// session.closed, session.recovered.
	Events []string `yaml:"events,omitempty" mapstructure:"events"`

	// Cooldown is the minimum gap between notifications for the same
	// device and event.
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// DeviceByID finds a device by ID, falling back to Name.
func (c *Config) DeviceByID(id string) (Device, bool) {
	for _, d := range c.Devices {
		if d.EffectiveID() == id {
			return d, true
		}
	}
	return Device{}, false
}

// EffectiveID returns the identifier this device answers to.
func (d Device) EffectiveID() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Name
}

// Resolved returns the device with defaults merged in.
func (d Device) Resolved(def Defaults) Device {
	if d.User == "" {
		d.User = def.User
	}
	if d.Port == 0 {
		d.Port = def.Port
	}
	if d.KeyPath == "" {
		d.KeyPath = def.KeyPath
	}
	return d
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Defaults: Defaults{
			User: "pi",
			Port: 22,
		},
		Devices: []Device{},
		Discovery: DiscoveryConfig{
			SubnetCap:    64,
			Concurrency:  100,
			ProbeTimeout: 3 * time.Second,
			HintTimeout:  2 * time.Second,
			Port:         22,
		},
		Session: SessionConfig{
			ExecTimeout: 30 * time.Second,
			Keepalive:   15 * time.Second,
			BackoffBase: 500 * time.Millisecond,
			BackoffCap:  8 * time.Second,
			MaxAttempts: 5,
		},
		Telemetry: TelemetryConfig{
			Interval:    2 * time.Second,
			MinInterval: time.Second,
			MaxInterval: time.Minute,
			TopN:        5,
			QueueSize:   8,
		},
		Serve: ServeConfig{
			Listen:   ":8443",
			LogTail:  200,
			LineRate: 100,
		},
		Notify: NotifyConfig{
			Events:   []string{"session.closed", "session.recovered"},
			Cooldown: 5 * time.Minute,
		},
	}
}
