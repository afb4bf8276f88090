package config

import (
	"os"
	"path/filepath"

	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the per-directory config file name.
	ConfigFileName = "pifleet.yaml"
	// GlobalConfigDir is the directory for the user's config, under home.
	GlobalConfigDir = ".config/pifleet"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvConfigPath names a config file directly, between --config and
	// the search path in precedence.
	EnvConfigPath = "PIFLEET_CONFIG"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'pifleet init' to create one, or point --config at it")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. $PIFLEET_CONFIG
// 3. pifleet.yaml in the current directory
// 4. ~/.config/pifleet/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	if fromEnv := os.Getenv(EnvConfigPath); fromEnv != "" {
		if _, err := os.Stat(fromEnv); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Config file named by $"+EnvConfigPath+" not found: "+fromEnv,
				"Fix or unset the environment variable")
		}
		return fromEnv, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}
	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// DefaultPath is where 'pifleet init' writes when no config exists yet.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigFileName
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// LoadOrDefault loads config from the found path, or returns defaults if
// none exists. Commands like 'pifleet scan' work without a config file.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// parseConfig converts viper config to our Config struct with defaults
// merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}

	for i, d := range cfg.Devices {
		cfg.Devices[i] = ExpandDevice(d)
	}
	cfg.Defaults.KeyPath = ExpandPath(cfg.Defaults.KeyPath)

	return cfg, nil
}

// setDefaults mirrors DefaultConfig for keys viper resolves before
// unmarshalling, so a partial file doesn't zero whole sections.
func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.user", "pi")
	v.SetDefault("defaults.port", 22)
	v.SetDefault("discovery.subnet_cap", 64)
	v.SetDefault("discovery.concurrency", 100)
	v.SetDefault("discovery.probe_timeout", "3s")
	v.SetDefault("discovery.hint_timeout", "2s")
	v.SetDefault("discovery.port", 22)
	v.SetDefault("session.exec_timeout", "30s")
	v.SetDefault("session.keepalive", "15s")
	v.SetDefault("session.backoff_base", "500ms")
	v.SetDefault("session.backoff_cap", "8s")
	v.SetDefault("session.max_attempts", 5)
	v.SetDefault("telemetry.interval", "2s")
	v.SetDefault("telemetry.min_interval", "1s")
	v.SetDefault("telemetry.max_interval", "1m")
	v.SetDefault("telemetry.top_n", 5)
	v.SetDefault("telemetry.queue_size", 8)
	v.SetDefault("serve.listen", ":8443")
	v.SetDefault("serve.log_tail", 200)
	v.SetDefault("serve.line_rate", 100)
	v.SetDefault("notify.cooldown", "5m")
}
