// Package config loads shadowshot settings from defaults, an optional YAML
// file and SHADOWSHOT_* environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SHADOWSHOT_HTTP_ADDR.
const EnvPrefix = "SHADOWSHOT"

// Config is the complete configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	Storage StorageConfig `mapstructure:"storage"`
	Capture CaptureConfig `mapstructure:"capture"`
	Logging LoggingConfig `mapstructure:"logging"`
	Journal JournalConfig `mapstructure:"journal"`
	Window  WindowConfig  `mapstructure:"window"`
}

// HTTPConfig controls the REST and WebSocket listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// GRPCConfig controls the health service listener.
type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig places captures and logs under Root/Namespace.
type StorageConfig struct {
	Root      string `mapstructure:"root"`
	Namespace string `mapstructure:"namespace"`
}

// CaptureConfig holds session defaults. Requests may override format,
// quality and interval.
type CaptureConfig struct {
	// Backend is "native" (in-process) or "command" (platform screenshot tool)
	Backend         string  `mapstructure:"backend"`
	IntervalSeconds float64 `mapstructure:"interval_seconds"`
	ExcludeSelf     bool    `mapstructure:"exclude_self"`
	Format          string  `mapstructure:"format"`
	Quality         float64 `mapstructure:"quality"`
	// MaxHashDistance flags captures this close to the previous one as duplicates; -1 disables
	MaxHashDistance int `mapstructure:"max_hash_distance"`
}

// LoggingConfig controls the rotating log store.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	RetentionDays int    `mapstructure:"retention_days"`
	Console       bool   `mapstructure:"console"`
}

// JournalConfig controls the capture history database.
type JournalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"` // empty means <base>/journal.db
	BatchSize     int    `mapstructure:"batch_size"`
	FlushDelayMs  int    `mapstructure:"flush_delay_ms"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// WindowConfig controls window tracking.
type WindowConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8000"},
		GRPC: GRPCConfig{Addr: "localhost:50061"},
		Storage: StorageConfig{
			Root:      defaultRoot(),
			Namespace: "com.taperlabs.shadow",
		},
		Capture: CaptureConfig{
			Backend:         "native",
			IntervalSeconds: 3,
			ExcludeSelf:     true,
			Format:          "jpeg",
			Quality:         0.9,
			MaxHashDistance: 5,
		},
		Logging: LoggingConfig{
			Level:         "info",
			RetentionDays: 7,
			Console:       true,
		},
		Journal: JournalConfig{
			Enabled:       true,
			BatchSize:     20,
			FlushDelayMs:  2000,
			RetentionDays: 30,
		},
		Window: WindowConfig{PollIntervalMs: 100},
	}
}

// SetDefaults registers every default on v so unset keys resolve and env
// overrides of nested keys are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("grpc.addr", d.GRPC.Addr)

	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("storage.namespace", d.Storage.Namespace)

	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.interval_seconds", d.Capture.IntervalSeconds)
	v.SetDefault("capture.exclude_self", d.Capture.ExcludeSelf)
	v.SetDefault("capture.format", d.Capture.Format)
	v.SetDefault("capture.quality", d.Capture.Quality)
	v.SetDefault("capture.max_hash_distance", d.Capture.MaxHashDistance)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.retention_days", d.Logging.RetentionDays)
	v.SetDefault("logging.console", d.Logging.Console)

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("journal.batch_size", d.Journal.BatchSize)
	v.SetDefault("journal.flush_delay_ms", d.Journal.FlushDelayMs)
	v.SetDefault("journal.retention_days", d.Journal.RetentionDays)

	v.SetDefault("window.poll_interval_ms", d.Window.PollIntervalMs)
}

// NewViper returns a viper instance with defaults and env binding. When
// file is empty the standard config locations are searched.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if there is one, unmarshals and validates.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/shadow-screenshot or its fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shadow-screenshot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shadow-screenshot"
	}
	return filepath.Join(home, ".config", "shadow-screenshot")
}

func defaultRoot() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

// BaseDir is <root>/<namespace>.
func (c *Config) BaseDir() string {
	return filepath.Join(c.Storage.Root, c.Storage.Namespace)
}

// LogDir is where the log store writes.
func (c *Config) LogDir() string {
	return filepath.Join(c.BaseDir(), "logs")
}

// JournalPath resolves the journal database location.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.BaseDir(), "journal.db")
}

// Interval is the default capture interval.
func (c *CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// FlushDelay is the journal batch delay.
func (c *JournalConfig) FlushDelay() time.Duration {
	return time.Duration(c.FlushDelayMs) * time.Millisecond
}

// PollInterval is the window tracker poll rate.
func (c *WindowConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
