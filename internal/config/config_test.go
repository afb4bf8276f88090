package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, "pi", cfg.Defaults.User)
	assert.Equal(t, 22, cfg.Defaults.Port)
	assert.NotNil(t, cfg.Devices)
	assert.Empty(t, cfg.Devices)

	// Discovery defaults
	assert.Equal(t, 64, cfg.Discovery.SubnetCap)
	assert.Equal(t, 100, cfg.Discovery.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Discovery.ProbeTimeout)
	assert.Equal(t, 2*time.Second, cfg.Discovery.HintTimeout)
	assert.Equal(t, 22, cfg.Discovery.Port)

	// Session defaults
	assert.Equal(t, 30*time.Second, cfg.Session.ExecTimeout)
	assert.Equal(t, 15*time.Second, cfg.Session.Keepalive)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.BackoffBase)
	assert.Equal(t, 8*time.Second, cfg.Session.BackoffCap)
	assert.Equal(t, 5, cfg.Session.MaxAttempts)

	// Telemetry defaults
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, time.Second, cfg.Telemetry.MinInterval)
	assert.Equal(t, time.Minute, cfg.Telemetry.MaxInterval)
	assert.Equal(t, 5, cfg.Telemetry.TopN)
	assert.Equal(t, 8, cfg.Telemetry.QueueSize)

	// Serve defaults
	assert.Equal(t, ":8443", cfg.Serve.Listen)
	assert.Equal(t, 200, cfg.Serve.LogTail)
	assert.Equal(t, 100, cfg.Serve.LineRate)

	// Notify defaults
	assert.Equal(t, []string{"session.closed", "session.recovered"}, cfg.Notify.Events)
	assert.Equal(t, 5*time.Minute, cfg.Notify.Cooldown)

	assert.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pifleet.yaml")

	content := `
version: 1
defaults:
  user: admin
  port: 2222
devices:
  - name: pi4
    address: pi4.local
    tags: [lab, arm64]
  - id: zero2
    name: zero-2w
    address: 192.168.1.30
    user: pi
    key_path: ~/.ssh/zero_key
discovery:
  hints:
    - raspberrypi.local
  subnet: 192.168.1.0/24
  probe_timeout: 5s
session:
  keepalive: 20s
  max_attempts: 3
telemetry:
  interval: 4s
  top_n: 10
serve:
  listen: ":9090"
  origins:
    - https://fleet.example.com
notify:
  urls:
    - telegram://token@telegram?chats=42
  cooldown: 10m
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "admin", cfg.Defaults.User)
	assert.Equal(t, 2222, cfg.Defaults.Port)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "pi4", cfg.Devices[0].Name)
	assert.Equal(t, "pi4.local", cfg.Devices[0].Address)
	assert.Equal(t, []string{"lab", "arm64"}, cfg.Devices[0].Tags)
	assert.Equal(t, "pi4", cfg.Devices[0].EffectiveID())
	assert.Equal(t, "zero2", cfg.Devices[1].EffectiveID())
	assert.Equal(t, "pi", cfg.Devices[1].User)

	// Tilde in key_path expands on load
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh/zero_key"), cfg.Devices[1].KeyPath)

	assert.Equal(t, []string{"raspberrypi.local"}, cfg.Discovery.Hints)
	assert.Equal(t, "192.168.1.0/24", cfg.Discovery.Subnet)
	assert.Equal(t, 5*time.Second, cfg.Discovery.ProbeTimeout)

	assert.Equal(t, 20*time.Second, cfg.Session.Keepalive)
	assert.Equal(t, 3, cfg.Session.MaxAttempts)

	assert.Equal(t, 4*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, 10, cfg.Telemetry.TopN)

	assert.Equal(t, ":9090", cfg.Serve.Listen)
	assert.Equal(t, []string{"https://fleet.example.com"}, cfg.Serve.Origins)

	assert.Equal(t, []string{"telegram://token@telegram?chats=42"}, cfg.Notify.URLs)
	assert.Equal(t, 10*time.Minute, cfg.Notify.Cooldown)
}

// A file that only sets a couple of keys keeps defaults for everything
// else, including siblings inside a partially specified section.
func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pifleet.yaml")

	content := `
devices:
  - name: pi4
    address: pi4.local
session:
  keepalive: 25s
notify:
  cooldown: 1m
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, "pi", cfg.Defaults.User)
	assert.Equal(t, 22, cfg.Defaults.Port)

	// The overridden key took, its siblings didn't reset
	assert.Equal(t, 25*time.Second, cfg.Session.Keepalive)
	assert.Equal(t, 30*time.Second, cfg.Session.ExecTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.BackoffBase)
	assert.Equal(t, 5, cfg.Session.MaxAttempts)

	assert.Equal(t, time.Minute, cfg.Notify.Cooldown)
	assert.Equal(t, []string{"session.closed", "session.recovered"}, cfg.Notify.Events)

	assert.Equal(t, 2*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, ":8443", cfg.Serve.Listen)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/pifleet.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Config file not found")
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pifleet.yaml")

	err := os.WriteFile(configPath, []byte("devices:\n  - name: [unclosed"), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) (explicit string, wantPath string)
		wantErr bool
	}{
		{
			name: "explicit path exists",
			setup: func(t *testing.T) (string, string) {
				dir := t.TempDir()
				path := filepath.Join(dir, "custom.yaml")
				err := os.WriteFile(path, []byte("version: 1"), 0644)
				require.NoError(t, err)
				return path, path
			},
		},
		{
			name: "explicit path not found",
			setup: func(t *testing.T) (string, string) {
				return "/nonexistent/config.yaml", ""
			},
			wantErr: true,
		},
		{
			name: "env var points at config",
			setup: func(t *testing.T) (string, string) {
				dir := t.TempDir()
				path := filepath.Join(dir, "fleet.yaml")
				err := os.WriteFile(path, []byte("version: 1"), 0644)
				require.NoError(t, err)
				t.Setenv(EnvConfigPath, path)
				return "", path
			},
		},
		{
			name: "env var points at nothing",
			setup: func(t *testing.T) (string, string) {
				t.Setenv(EnvConfigPath, "/nonexistent/fleet.yaml")
				return "", ""
			},
			wantErr: true,
		},
		{
			name: "current directory has config",
			setup: func(t *testing.T) (string, string) {
				dir := t.TempDir()
				err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 1"), 0644)
				require.NoError(t, err)
				t.Chdir(dir)

				// TempDir may sit behind a symlink; Find joins from Getwd
				cwd, err := os.Getwd()
				require.NoError(t, err)
				return "", filepath.Join(cwd, ConfigFileName)
			},
		},
		{
			name: "global config under home",
			setup: func(t *testing.T) (string, string) {
				home := t.TempDir()
				t.Setenv("HOME", home)
				t.Chdir(t.TempDir())

				globalDir := filepath.Join(home, GlobalConfigDir)
				require.NoError(t, os.MkdirAll(globalDir, 0755))
				path := filepath.Join(globalDir, GlobalConfigFile)
				err := os.WriteFile(path, []byte("version: 1"), 0644)
				require.NoError(t, err)
				return "", path
			},
		},
		{
			name: "nothing anywhere",
			setup: func(t *testing.T) (string, string) {
				t.Setenv("HOME", t.TempDir())
				t.Chdir(t.TempDir())
				return "", ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Keep the real environment out of the search path
			t.Setenv(EnvConfigPath, "")

			explicit, wantPath := tt.setup(t)

			path, err := Find(explicit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, wantPath, path)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("no config anywhere returns defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("HOME", t.TempDir())
		t.Chdir(t.TempDir())

		cfg, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("explicit config wins", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fleet.yaml")
		err := os.WriteFile(path, []byte("defaults:\n  user: admin\n"), 0644)
		require.NoError(t, err)

		cfg, err := LoadOrDefault(path)
		require.NoError(t, err)
		assert.Equal(t, "admin", cfg.Defaults.User)
	})
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, GlobalConfigDir, GlobalConfigFile), DefaultPath())
}

func TestDeviceByID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices = []Device{
		{Name: "pi4", Address: "pi4.local"},
		{ID: "zero2", Name: "zero-2w", Address: "192.168.1.30"},
	}

	d, ok := cfg.DeviceByID("pi4")
	require.True(t, ok)
	assert.Equal(t, "pi4.local", d.Address)

	// Explicit id shadows the name
	d, ok = cfg.DeviceByID("zero2")
	require.True(t, ok)
	assert.Equal(t, "zero-2w", d.Name)

	_, ok = cfg.DeviceByID("zero-2w")
	assert.False(t, ok)

	_, ok = cfg.DeviceByID("ghost")
	assert.False(t, ok)
}

func TestDeviceResolved(t *testing.T) {
	def := Defaults{User: "pi", Port: 22, KeyPath: "/keys/fleet"}

	t.Run("inherits what it doesn't set", func(t *testing.T) {
		d := Device{Name: "pi4", Address: "pi4.local"}.Resolved(def)
		assert.Equal(t, "pi", d.User)
		assert.Equal(t, 22, d.Port)
		assert.Equal(t, "/keys/fleet", d.KeyPath)
	})

	t.Run("keeps its own overrides", func(t *testing.T) {
		d := Device{Name: "pi4", Address: "pi4.local", User: "admin", Port: 2222, KeyPath: "/keys/pi4"}.Resolved(def)
		assert.Equal(t, "admin", d.User)
		assert.Equal(t, 2222, d.Port)
		assert.Equal(t, "/keys/pi4", d.KeyPath)
	})
}
