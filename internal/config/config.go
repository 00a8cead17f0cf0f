package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Test     TestConfig     `mapstructure:"test"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	State    StateConfig    `mapstructure:"state"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig holds relay server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// RateLimit is the number of room creations and websocket upgrades
	// allowed per client IP per second.
	RateLimit       uint          `mapstructure:"rate_limit"`
	RoomIdleTimeout time.Duration `mapstructure:"room_idle_timeout"`
	AllowedHosts    []string      `mapstructure:"allowed_hosts"`
	Production      bool          `mapstructure:"production"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	SSLMode       string        `mapstructure:"sslmode"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// RelayConfig tells a device where to find its peer.
type RelayConfig struct {
	URL  string `mapstructure:"url"`
	Room string `mapstructure:"room"`
}

// ChannelConfig holds the connection retry and breaker policy.
type ChannelConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	OfflineThreshold int           `mapstructure:"offline_threshold"`
	AutoReconnect    bool          `mapstructure:"auto_reconnect"`
}

// TestConfig bounds the local random delay.
type TestConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

type TriggerConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// StateConfig locates the file holding persisted device flags.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.room_idle_timeout", "10m")
	v.SetDefault("server.allowed_hosts", []string{})
	v.SetDefault("server.production", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "greenflash-db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.retention", "720h")
	v.SetDefault("database.sweep_interval", "1h")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "debug")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Device defaults
	v.SetDefault("relay.url", "ws://localhost:5050/ws")
	v.SetDefault("relay.room", "")
	v.SetDefault("channel.max_attempts", 3)
	v.SetDefault("channel.retry_delay", "1s")
	v.SetDefault("channel.attempt_timeout", "5s")
	v.SetDefault("channel.offline_threshold", 3)
	v.SetDefault("channel.auto_reconnect", true)
	v.SetDefault("test.min_delay", "3s")
	v.SetDefault("test.max_delay", "5s")
	v.SetDefault("trigger.cooldown", "500ms")
	v.SetDefault("state.path", filepath.Join(".greenflash", "state.yaml"))

	// Tracing is off unless an endpoint is given.
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "greenflash-relay")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load reads the configuration from defaults, configDir/config.yaml and
// GREENFLASH_* environment variables, in increasing order of precedence.
func Load(configDir string) (*Config, *viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("GREENFLASH") // e.g., GREENFLASH_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &c, v, nil
}

// Init loads the configuration into Conf and watches the file for changes.
func Init(configDir string, log *zap.Logger) error {
	c, v, err := Load(configDir)
	if err != nil {
		return err
	}
	Conf = c
	for _, w := range Conf.Validate() {
		log.Warn("Configuration warning", zap.String("warning", w))
	}

	// Set up a watch for configuration changes for hot-reloading
	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				log.Error("Error reloading configuration", zap.Error(err))
				return
			}
			Conf = &next
		})
	}

	log.Info("Configuration loaded successfully", zap.String("file", v.ConfigFileUsed()))
	return nil
}

// Validate checks the configuration for values that will not behave as
// intended and returns a warning for each.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Test.MinDelay > c.Test.MaxDelay {
		warnings = append(warnings, fmt.Sprintf("test.min_delay %s is greater than test.max_delay %s, the bounds will be swapped", c.Test.MinDelay, c.Test.MaxDelay))
	}
	if c.Test.MinDelay <= 0 {
		warnings = append(warnings, "test.min_delay is not positive, the stimulus may appear immediately")
	}
	if c.Channel.MaxAttempts < 1 {
		warnings = append(warnings, fmt.Sprintf("channel.max_attempts %d is less than 1, one attempt will be made", c.Channel.MaxAttempts))
	}
	if c.Channel.OfflineThreshold < 0 {
		warnings = append(warnings, "channel.offline_threshold is negative, automatic offline mode is disabled")
	}
	if c.Channel.OfflineThreshold > c.Channel.MaxAttempts && c.Channel.MaxAttempts > 0 {
		warnings = append(warnings, fmt.Sprintf("channel.offline_threshold %d exceeds channel.max_attempts %d, one connection cycle can never switch to offline mode", c.Channel.OfflineThreshold, c.Channel.MaxAttempts))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing.sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	if c.Database.Enabled && c.Database.Retention <= 0 {
		warnings = append(warnings, "database.retention is not positive, stored telemetry is never deleted")
	}
	return warnings
}
