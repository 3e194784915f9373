package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envKeys are bound explicitly so env overrides work even when the config
// file does not mention the key.
var envKeys = []string{
	"server.port",
	"privacy.min_score",
	"privacy.recognizers_file",
	"validation.max_length",
	"audit.enabled",
	"audit.backend",
	"audit.file_path",
	"audit.postgres.database_url",
	"audit.redis.redis_url",
	"generator.base_url",
	"generator.model",
	"logging.level",
	"logging.format",
	"websocket.username",
	"websocket.password",
}

// Loader reads configuration from file and environment and can watch the
// file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load reads the config file (optional) and environment overrides on top of
// GetDefaults.
func (l *Loader) Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := l.v
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pii-gateway/")
	v.AddConfigPath("$HOME/.pii-gateway/")

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	if err := v.BindEnv("generator.api_key", "GATEWAY_GENERATOR_API_KEY", "GROQ_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env for generator.api_key: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch re-reads the configuration whenever the file changes. Invalid
// revisions are reported through onError and otherwise ignored; the running
// configuration stays in effect.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := l.v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}
		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Privacy.MinScore < 0 || config.Privacy.MinScore > 1 {
		return fmt.Errorf("invalid min score: %v (must be within [0,1])", config.Privacy.MinScore)
	}

	if config.Validation.MaxLength <= 0 {
		return fmt.Errorf("invalid max length: %d", config.Validation.MaxLength)
	}

	switch config.Audit.Backend {
	case "file":
		if config.Audit.FilePath == "" {
			return fmt.Errorf("audit backend file requires audit.file_path")
		}
	case "postgres":
		if config.Audit.Enabled && config.Audit.Postgres.DatabaseURL == "" {
			return fmt.Errorf("audit backend postgres requires audit.postgres.database_url")
		}
	case "redis":
		if config.Audit.Enabled && config.Audit.Redis.RedisURL == "" {
			return fmt.Errorf("audit backend redis requires audit.redis.redis_url")
		}
	default:
		return fmt.Errorf("invalid audit backend: %s (must be file, postgres, or redis)", config.Audit.Backend)
	}

	if config.Audit.QueueSize <= 0 {
		return fmt.Errorf("invalid audit queue size: %d", config.Audit.QueueSize)
	}

	if config.Generator.Timeout <= 0 {
		return fmt.Errorf("invalid generator timeout: %s", config.Generator.Timeout)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}
