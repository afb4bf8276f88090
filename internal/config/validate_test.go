package config

import (
	"testing"
	"time"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{
			name:   "defaults alone are valid",
			mutate: func(c *Config) {},
		},
		{
			name: "registered devices are valid",
			mutate: func(c *Config) {
				c.Devices = []Device{
					{Name: "pi4", Address: "pi4.local"},
					{ID: "zero2", Name: "zero-2w", Address: "192.168.1.30", Port: 2222},
				}
			},
		},
		{
			name: "version from the future",
			mutate: func(c *Config) {
				c.Version = CurrentConfigVersion + 1
			},
			errContains: "from the future",
		},
		{
			name: "defaults port out of range",
			mutate: func(c *Config) {
				c.Defaults.Port = 70000
			},
			errContains: "defaults.port",
		},
		{
			name: "device without name",
			mutate: func(c *Config) {
				c.Devices = []Device{{Address: "pi4.local"}}
			},
			errContains: "has no name",
		},
		{
			name: "device name with login baked in",
			mutate: func(c *Config) {
				c.Devices = []Device{{Name: "pi@pi4.local", Address: "pi4.local"}}
			},
			errContains: "looks like an SSH string",
		},
		{
			name: "device name with spaces",
			mutate: func(c *Config) {
				c.Devices = []Device{{Name: "living room pi", Address: "pi4.local"}}
			},
			errContains: "won't survive URLs",
		},
		{
			name: "device id with slash",
			mutate: func(c *Config) {
				c.Devices = []Device{{ID: "lab/pi4", Name: "pi4", Address: "pi4.local"}}
			},
			errContains: "won't survive URLs",
		},
		{
			name: "device without address",
			mutate: func(c *Config) {
				c.Devices = []Device{{Name: "pi4"}}
			},
			errContains: "has no address",
		},
		{
			name: "device port out of range",
			mutate: func(c *Config) {
				c.Devices = []Device{{Name: "pi4", Address: "pi4.local", Port: -1}}
			},
			errContains: "not a valid port",
		},
		{
			name: "control_url without scheme",
			mutate: func(c *Config) {
				c.Devices = []Device{{Name: "pi4", Address: "pi4.local", ControlURL: "pi4.local:8443"}}
			},
			errContains: "not an http(s) URL",
		},
		{
			name: "control_url with wrong scheme",
			mutate: func(c *Config) {
				c.Devices = []Device{{Name: "pi4", Address: "pi4.local", ControlURL: "ssh://pi4.local"}}
			},
			errContains: "not an http(s) URL",
		},
		{
			name: "two devices answering to one id",
			mutate: func(c *Config) {
				c.Devices = []Device{
					{Name: "pi4", Address: "pi4.local"},
					{ID: "pi4", Name: "spare", Address: "192.168.1.31"},
				}
			},
			errContains: "both answer to",
		},
		{
			name: "discovery subnet not CIDR",
			mutate: func(c *Config) {
				c.Discovery.Subnet = "192.168.1.5"
			},
			errContains: "not CIDR",
		},
		{
			name: "discovery subnet cap zero",
			mutate: func(c *Config) {
				c.Discovery.SubnetCap = 0
			},
			errContains: "subnet_cap",
		},
		{
			name: "discovery concurrency absurd",
			mutate: func(c *Config) {
				c.Discovery.Concurrency = 4096
			},
			errContains: "concurrency",
		},
		{
			name: "discovery probe timeout zero",
			mutate: func(c *Config) {
				c.Discovery.ProbeTimeout = 0
			},
			errContains: "probe_timeout",
		},
		{
			name: "session exec timeout zero",
			mutate: func(c *Config) {
				c.Session.ExecTimeout = 0
			},
			errContains: "exec_timeout",
		},
		{
			name: "session keepalive negative",
			mutate: func(c *Config) {
				c.Session.Keepalive = -time.Second
			},
			errContains: "keepalive",
		},
		{
			name: "session backoff cap below base",
			mutate: func(c *Config) {
				c.Session.BackoffBase = 2 * time.Second
				c.Session.BackoffCap = time.Second
			},
			errContains: "backoff_cap",
		},
		{
			name: "session max attempts zero",
			mutate: func(c *Config) {
				c.Session.MaxAttempts = 0
			},
			errContains: "max_attempts",
		},
		{
			name: "telemetry min interval zero",
			mutate: func(c *Config) {
				c.Telemetry.MinInterval = 0
			},
			errContains: "min_interval",
		},
		{
			name: "telemetry bounds inverted",
			mutate: func(c *Config) {
				c.Telemetry.MinInterval = time.Minute
				c.Telemetry.MaxInterval = time.Second
				c.Telemetry.Interval = time.Minute
			},
			errContains: "max_interval",
		},
		{
			name: "telemetry interval outside bounds",
			mutate: func(c *Config) {
				c.Telemetry.Interval = 2 * time.Minute
			},
			errContains: "outside",
		},
		{
			name: "telemetry top_n zero",
			mutate: func(c *Config) {
				c.Telemetry.TopN = 0
			},
			errContains: "top_n",
		},
		{
			name: "telemetry queue size out of range",
			mutate: func(c *Config) {
				c.Telemetry.QueueSize = 10000
			},
			errContains: "queue_size",
		},
		{
			name: "serve listen empty",
			mutate: func(c *Config) {
				c.Serve.Listen = ""
			},
			errContains: "serve.listen is empty",
		},
		{
			name: "serve listen missing port",
			mutate: func(c *Config) {
				c.Serve.Listen = "localhost"
			},
			errContains: "not host:port",
		},
		{
			name: "serve line rate zero",
			mutate: func(c *Config) {
				c.Serve.LineRate = 0
			},
			errContains: "line_rate",
		},
		{
			name: "serve log tail negative",
			mutate: func(c *Config) {
				c.Serve.LogTail = -1
			},
			errContains: "log_tail",
		},
		{
			name: "notify url without scheme",
			mutate: func(c *Config) {
				c.Notify.URLs = []string{"not-a-url"}
			},
			errContains: "not a service URL",
		},
		{
			name: "notify unknown event",
			mutate: func(c *Config) {
				c.Notify.Events = []string{"device.exploded"}
			},
			errContains: "not one pifleet publishes",
		},
		{
			name: "notify cooldown negative",
			mutate: func(c *Config) {
				c.Notify.Cooldown = -time.Minute
			},
			errContains: "cooldown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
		})
	}
}

func TestValidateDeviceNames(t *testing.T) {
	ok := []string{"pi4", "zero-2w", "lab.pi.01", "node_3", "Pi4"}
	for _, name := range ok {
		assert.NoError(t, validateDevice(0, Device{Name: name, Address: "x.local"}), name)
	}

	bad := []string{"-pi4", ".hidden", "pi/4", "pi:4", "pi 4", "über-pi"}
	for _, name := range bad {
		assert.Error(t, validateDevice(0, Device{Name: name, Address: "x.local"}), name)
	}
}
