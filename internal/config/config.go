package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/archive"
	"github.com/xkilldash9x/mrmurphy/internal/browser"
	"github.com/xkilldash9x/mrmurphy/internal/engine"
	"github.com/xkilldash9x/mrmurphy/internal/equivalence"
	"github.com/xkilldash9x/mrmurphy/internal/journal"
	"github.com/xkilldash9x/mrmurphy/internal/scraper"
)

const redacted = "<redacted>"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Explore   ExploreConfig   `mapstructure:"explore" yaml:"explore"`
	Tolerance ToleranceConfig `mapstructure:"tolerance" yaml:"tolerance"`
	Scoring   ScoringConfig   `mapstructure:"scoring" yaml:"scoring"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Scraper   ScraperConfig   `mapstructure:"scraper" yaml:"scraper"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ExploreConfig tunes the exploration session. Zero durations and depths
// fall back to the defaults of the selected policy.
type ExploreConfig struct {
	Policy       string        `mapstructure:"policy" yaml:"policy"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Frequency    time.Duration `mapstructure:"frequency" yaml:"frequency"`
	MaxDepth     int           `mapstructure:"max_depth" yaml:"max_depth"`
	FocusTimeout time.Duration `mapstructure:"focus_timeout" yaml:"focus_timeout"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	RenderFormat string        `mapstructure:"render_format" yaml:"render_format"`
	EdgePolicy   string        `mapstructure:"edge_policy" yaml:"edge_policy"`
	Seed         int64         `mapstructure:"seed" yaml:"seed"`
}

// ToleranceConfig holds the equivalence and busy thresholds.
type ToleranceConfig struct {
	Image       float64 `mapstructure:"image" yaml:"image"`
	CPU         float64 `mapstructure:"cpu" yaml:"cpu"`
	Disk        float64 `mapstructure:"disk" yaml:"disk"`
	Network     float64 `mapstructure:"network" yaml:"network"`
	Coordinates int     `mapstructure:"coordinates" yaml:"coordinates"`
}

type ScoringConfig struct {
	DefaultScore int `mapstructure:"default_score" yaml:"default_score"`
	// LabelsFile is a TOML file overriding the installer label lists.
	LabelsFile string `mapstructure:"labels_file" yaml:"labels_file"`
}

type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DeviceConfig configures the browser device.
type DeviceConfig struct {
	URI               string        `mapstructure:"uri" yaml:"uri"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Width             int           `mapstructure:"width" yaml:"width"`
	Height            int           `mapstructure:"height" yaml:"height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
}

// ScraperConfig points at a remote scraping agent. An empty host scrapes the
// browser page instead.
type ScraperConfig struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	Port        int           `mapstructure:"port" yaml:"port"`
	Recursive   bool          `mapstructure:"recursive" yaml:"recursive"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// DatabaseConfig holds the database connection details. An empty URL
// disables the Postgres mirror.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// EventsConfig enables the Redis stream and NATS event sinks.
type EventsConfig struct {
	RedisAddr  string `mapstructure:"redis_addr" yaml:"redis_addr"`
	Stream     string `mapstructure:"stream" yaml:"stream"`
	NATSURL    string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSPrefix string `mapstructure:"nats_prefix" yaml:"nats_prefix"`
}

// ArchiveConfig enables uploading the journal when Bucket is set.
type ArchiveConfig struct {
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "murphy")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "magenta")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "red")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Explore --
	v.SetDefault("explore.policy", engine.PolicyExplorer)
	v.SetDefault("explore.timeout", "10m")
	v.SetDefault("explore.frequency", "0s")
	v.SetDefault("explore.max_depth", 0)
	v.SetDefault("explore.focus_timeout", "0s")
	v.SetDefault("explore.busy_timeout", "0s")
	v.SetDefault("explore.render_format", "")
	v.SetDefault("explore.edge_policy", string(journal.EdgeKeep))
	v.SetDefault("explore.seed", 0)

	// -- Tolerance --
	v.SetDefault("tolerance.image", 1.6)
	v.SetDefault("tolerance.cpu", 0.20)
	v.SetDefault("tolerance.disk", 0.10)
	v.SetDefault("tolerance.network", 0.18)
	v.SetDefault("tolerance.coordinates", 10)

	// -- Scoring --
	v.SetDefault("scoring.default_score", 2)
	v.SetDefault("scoring.labels_file", "")

	v.SetDefault("journal.path", "journal")

	// -- Device --
	v.SetDefault("device.uri", "")
	v.SetDefault("device.headless", true)
	v.SetDefault("device.width", 1280)
	v.SetDefault("device.height", 800)
	v.SetDefault("device.navigation_timeout", "60s")
	v.SetDefault("device.exec_path", "")

	// -- Scraper --
	v.SetDefault("scraper.host", "")
	v.SetDefault("scraper.port", 8000)
	v.SetDefault("scraper.recursive", false)
	v.SetDefault("scraper.timeout", "30s")
	v.SetDefault("scraper.min_interval", "0s")

	// -- Sinks --
	v.SetDefault("database.url", "")
	v.SetDefault("events.redis_addr", "")
	v.SetDefault("events.stream", "murphy:events")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.nats_prefix", "murphy")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("server.listen", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials are kept out of config files.
	_ = v.BindEnv("database.url", "MURPHY_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Journal.Path, &c.Logger.LogFile, &c.Scoring.LabelsFile, &c.Device.ExecPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Explore.Policy {
	case engine.PolicyExplorer, engine.PolicyInstaller:
	case engine.PolicyLinkFollower:
		if c.Device.URI == "" {
			return invalid("device.uri is required by the %s policy", c.Explore.Policy)
		}
	default:
		return invalid("explore.policy must be one of %s, %s or %s",
			engine.PolicyExplorer, engine.PolicyInstaller, engine.PolicyLinkFollower)
	}
	if c.Explore.Timeout < 0 || c.Explore.Frequency < 0 || c.Explore.FocusTimeout < 0 || c.Explore.BusyTimeout < 0 {
		return invalid("explore durations cannot be negative")
	}
	if c.Explore.MaxDepth < 0 {
		return invalid("explore.max_depth cannot be negative")
	}
	switch c.Explore.RenderFormat {
	case "", journal.FormatDOT, journal.FormatMermaid:
	default:
		return invalid("unknown explore.render_format %q", c.Explore.RenderFormat)
	}
	switch journal.EdgePolicy(c.Explore.EdgePolicy) {
	case journal.EdgeKeep, journal.EdgeReplace:
	default:
		return invalid("explore.edge_policy must be %s or %s", journal.EdgeKeep, journal.EdgeReplace)
	}

	t := c.Tolerance
	if t.Image < 0 || t.Coordinates < 0 {
		return invalid("tolerance.image and tolerance.coordinates cannot be negative")
	}
	for name, load := range map[string]float64{"cpu": t.CPU, "disk": t.Disk, "network": t.Network} {
		if load < 0 || load > 1 {
			return invalid("tolerance.%s must be between 0.0 and 1.0", name)
		}
	}
	if c.Scoring.DefaultScore <= 0 {
		return invalid("scoring.default_score must be a positive integer")
	}
	if c.Journal.Path == "" {
		return invalid("journal.path is required")
	}
	if c.Device.Width <= 0 || c.Device.Height <= 0 {
		return invalid("device.width and device.height must be positive")
	}
	if c.Scraper.Host != "" && (c.Scraper.Port <= 0 || c.Scraper.Port > 65535) {
		return invalid("scraper.port must be between 1 and 65535")
	}
	if c.Scraper.MinInterval < 0 {
		return invalid("scraper.min_interval must not be negative")
	}
	return nil
}

// EngineConfig converts the explore section.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Timeout:      c.Explore.Timeout,
		Frequency:    c.Explore.Frequency,
		MaxDepth:     c.Explore.MaxDepth,
		FocusTimeout: c.Explore.FocusTimeout,
		BusyTimeout:  c.Explore.BusyTimeout,
		RenderFormat: c.Explore.RenderFormat,
		Seed:         c.Explore.Seed,
	}
}

// EquivalenceTolerance converts the tolerance section.
func (c *Config) EquivalenceTolerance() equivalence.Tolerance {
	return equivalence.Tolerance{
		Image:       c.Tolerance.Image,
		Load:        schemas.Load{CPU: c.Tolerance.CPU, Disk: c.Tolerance.Disk, Network: c.Tolerance.Network},
		Coordinates: c.Tolerance.Coordinates,
	}
}

// BrowserConfig converts the device section.
func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		StartURL:          c.Device.URI,
		Headless:          c.Device.Headless,
		Width:             c.Device.Width,
		Height:            c.Device.Height,
		NavigationTimeout: c.Device.NavigationTimeout,
		ExecPath:          c.Device.ExecPath,
	}
}

// ScraperConfig converts the scraper section.
func (c *Config) ScraperConfig() scraper.Config {
	return scraper.Config{
		Host:        c.Scraper.Host,
		Port:        c.Scraper.Port,
		Recursive:   c.Scraper.Recursive,
		Timeout:     c.Scraper.Timeout,
		MinInterval: c.Scraper.MinInterval,
	}
}

// ArchiveConfig converts the archive section.
func (c *Config) ArchiveConfig() archive.Config {
	return archive.Config{
		Bucket:   c.Archive.Bucket,
		Prefix:   c.Archive.Prefix,
		Region:   c.Archive.Region,
		Endpoint: c.Archive.Endpoint,
	}
}

// YAML renders the effective configuration with credentials masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Database.URL != "" {
		out.Database.URL = redacted
	}
	return yaml.Marshal(&out)
}
