// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/servicedesk-io/slacore/internal/database"
)

var (
	mu     sync.RWMutex
	loaded *Config
)

// Config represents the full engine configuration.
type Config struct {
	Database database.Config `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Engine   EngineConfig    `mapstructure:"engine"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// RedisConfig configures the optional dedup cache. Empty Addr disables it.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// EngineConfig carries the SLA engine tunables.
type EngineConfig struct {
	// WarningWindow is the lead time before a deadline in which a ticket is
	// classified as Warning.
	WarningWindow time.Duration `mapstructure:"warning_window"`
	// ScanInterval is the monitor scan cadence.
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	// TimeScanInterval is the time-based automation scan cadence.
	TimeScanInterval time.Duration `mapstructure:"time_scan_interval"`
	// DedupWindow is the trailing window in which an equivalent escalation
	// event is suppressed.
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	// EscalationPriority is the priority breached tickets are raised to.
	EscalationPriority string `mapstructure:"escalation_priority"`
	// PauseMode controls how "pauses SLA" statuses are treated by the
	// monitor. The only supported mode is "exclude": paused tickets are
	// skipped during scans and their due dates are left untouched.
	PauseMode string `mapstructure:"pause_mode"`
	// BusinessHoursOnly restricts warning/breach alerting to the ticket
	// calendar's working hours.
	BusinessHoursOnly bool `mapstructure:"business_hours_only"`
	// DefaultTimezone applies to calendars stored without a timezone.
	DefaultTimezone string `mapstructure:"default_timezone"`
	// DefaultCalendarID is used for contracts without an own calendar.
	// Empty means contracts without a calendar have no SLA.
	DefaultCalendarID string `mapstructure:"default_calendar_id"`
	// PublicHolidaysYAML optionally names a YAML file of recurring public
	// holidays merged into every resolved calendar.
	PublicHolidaysYAML string `mapstructure:"public_holidays_yaml"`
}

type LoggingConfig struct {
	Prefix  string `mapstructure:"prefix"`
	Verbose bool   `mapstructure:"verbose"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:slacore.db?_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.key_prefix", "slacore")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("engine.warning_window", 2*time.Hour)
	v.SetDefault("engine.scan_interval", 5*time.Minute)
	v.SetDefault("engine.time_scan_interval", 5*time.Minute)
	v.SetDefault("engine.dedup_window", 30*time.Minute)
	v.SetDefault("engine.escalation_priority", "critical")
	v.SetDefault("engine.pause_mode", "exclude")
	v.SetDefault("engine.business_hours_only", false)
	v.SetDefault("engine.default_timezone", "UTC")

	v.SetDefault("logging.prefix", "slacore")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9402")
}

// Load reads configuration from the given file (optional) plus SLACORE_*
// environment overrides and caches the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SLACORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	loaded = &cfg
	mu.Unlock()
	return &cfg, nil
}

// Get returns the last loaded configuration, or defaults when Load was
// never called.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if loaded != nil {
		return loaded
	}
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.WarningWindow <= 0 {
		return fmt.Errorf("config: engine.warning_window must be positive")
	}
	if c.Engine.ScanInterval <= 0 {
		return fmt.Errorf("config: engine.scan_interval must be positive")
	}
	if c.Engine.DedupWindow <= 0 {
		return fmt.Errorf("config: engine.dedup_window must be positive")
	}
	if c.Engine.PauseMode != "exclude" {
		return fmt.Errorf("config: engine.pause_mode %q not supported", c.Engine.PauseMode)
	}
	if _, err := time.LoadLocation(c.Engine.DefaultTimezone); err != nil {
		return fmt.Errorf("config: engine.default_timezone: %w", err)
	}
	return nil
}

// Watch re-reads the config file on change and invokes onChange with the
// fresh configuration. Invalid updates are dropped and reported through
// onError.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("config: watch requires a config file path")
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: watch read %s: %w", path, err)
	}

	v.OnConfigChange(func(fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if err := cfg.Validate(); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		mu.Lock()
		loaded = &cfg
		mu.Unlock()
		if onChange != nil {
			onChange(&cfg)
		}
	})
	v.WatchConfig()
	return nil
}
