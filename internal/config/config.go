package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CheckSlots is the fixed length of the checks array sent to the LVS runner
const CheckSlots = 8

var (
	activeMu sync.Mutex
	active   *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/lvs-console/")
	v.AddConfigPath("$HOME/.lvs-console/")

	// Environment variable overrides, e.g. LVSCONSOLE_BACKEND_URL
	v.SetEnvPrefix("LVSCONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	activeMu.Lock()
	active = v
	activeMu.Unlock()

	return config, nil
}

// bindEnv registers the keys AutomaticEnv should resolve during Unmarshal;
// viper only consults the environment for keys it already knows about.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.port",
		"backend.url",
		"backend.timeout",
		"backend.forward_auth",
		"logging.level",
		"logging.format",
		"cache.enabled",
		"cache.redis_url",
		"store.enabled",
		"store.database_url",
		"rate_limit.enabled",
		"rate_limit.requests_per_min",
		"web.static_dir",
	} {
		_ = v.BindEnv(key)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	u, err := url.Parse(config.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", config.Backend.URL)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerMin <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: requests_per_min=%d burst=%d", config.RateLimit.RequestsPerMin, config.RateLimit.Burst)
	}

	if len(config.Rules) == 0 || len(config.Rules) > CheckSlots {
		return fmt.Errorf("rules catalogue must hold 1 to %d checks, got %d", CheckSlots, len(config.Rules))
	}
	seen := make(map[string]bool, len(config.Rules))
	for _, r := range config.Rules {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("rules catalogue contains an empty name")
		}
		if seen[r] {
			return fmt.Errorf("duplicate rule in catalogue: %s", r)
		}
		seen[r] = true
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache enabled but redis_url is empty")
	}
	if config.Store.Enabled && config.Store.DatabaseURL == "" {
		return fmt.Errorf("store enabled but database_url is empty")
	}

	return nil
}

// Watch starts watching the configuration file for changes. Reloads that
// fail to unmarshal or validate are reported to onError and otherwise ignored.
func Watch(callback func(*Config), onError func(error)) error {
	activeMu.Lock()
	v := active
	activeMu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
