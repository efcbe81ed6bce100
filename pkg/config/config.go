package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultRegressionThreshold is the relative change above which a
	// metric counts as regressed.
	DefaultRegressionThreshold = 0.10

	// DefaultRollingWindow is the number of historical reports kept per
	// implementation.
	DefaultRollingWindow = 5

	// DefaultResultsFile is the default benchmark results input path.
	DefaultResultsFile = "benchmark_results.json"

	// DefaultHistoryDir is the default local history storage directory.
	DefaultHistoryDir = "benchmark_data"

	// DefaultCPULoadThreshold is the normalized 1-minute load average
	// above which the pre-flight check warns.
	DefaultCPULoadThreshold = 0.80

	// DefaultMemoryThreshold is the memory usage ratio above which the
	// pre-flight check warns.
	DefaultMemoryThreshold = 0.80

	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. PERFGATE_DETECTION_REGRESSION_THRESHOLD.
	EnvPrefix = "PERFGATE"
)

// ConfigurationError indicates an invalid or missing configuration
// value. It is raised before any benchmark data is read.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Config is the root configuration for perfgate.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Storage   StorageConfig   `yaml:"storage,omitempty" mapstructure:"storage"`
	SysLoad   SysLoadConfig   `yaml:"sysload,omitempty" mapstructure:"sysload"`
	Alert     AlertConfig     `yaml:"alert,omitempty" mapstructure:"alert"`
	Analysis  AnalysisConfig  `yaml:"analysis,omitempty" mapstructure:"analysis"`
	Dashboard DashboardConfig `yaml:"dashboard,omitempty" mapstructure:"dashboard"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DetectionConfig contains the regression detection settings.
type DetectionConfig struct {
	Implementation      string  `yaml:"implementation" mapstructure:"implementation"`
	RegressionThreshold float64 `yaml:"regression_threshold" mapstructure:"regression_threshold"`
	RollingWindow       int     `yaml:"rolling_window" mapstructure:"rolling_window"`
	ResultsFile         string  `yaml:"results_file" mapstructure:"results_file"`
	VerdictFile         string  `yaml:"verdict_file,omitempty" mapstructure:"verdict_file"`
	StoreResults        bool    `yaml:"store_results" mapstructure:"store_results"`

	// MetricDirections declares directionality for metrics beyond the
	// built-in latency/throughput/memory set. Values are
	// "lower_is_better" or "higher_is_better". Unknown metrics without a
	// declared direction fail detection rather than guessing a polarity.
	MetricDirections map[string]string `yaml:"metric_directions,omitempty" mapstructure:"metric_directions"`
}

// StorageConfig selects the history storage backend. Local is the
// default; only one backend is used at a time.
type StorageConfig struct {
	HistoryDir string           `yaml:"history_dir,omitempty" mapstructure:"history_dir"`
	S3         *S3StorageConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3StorageConfig contains S3-compatible storage settings for history
// documents.
type S3StorageConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// SysLoadConfig contains pre-flight system load check settings.
type SysLoadConfig struct {
	CPULoadThreshold float64 `yaml:"cpu_load_threshold" mapstructure:"cpu_load_threshold"`
	MemoryThreshold  float64 `yaml:"memory_threshold" mapstructure:"memory_threshold"`
	OutputFile       string  `yaml:"output_file,omitempty" mapstructure:"output_file"`
}

// AlertConfig contains Slack alerting settings.
type AlertConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty" mapstructure:"slack_webhook_url"`
}

// AnalysisConfig contains AI analysis settings. The API key is usually
// supplied via PERFGATE_ANALYSIS_API_KEY rather than the config file.
type AnalysisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	APIKey   string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model    string `yaml:"model,omitempty" mapstructure:"model"`
	DiffFile string `yaml:"diff_file,omitempty" mapstructure:"diff_file"`
}

// DashboardConfig contains the dashboard store and API server settings.
type DashboardConfig struct {
	Enabled  bool                    `yaml:"enabled" mapstructure:"enabled"`
	Server   DashboardServerConfig   `yaml:"server,omitempty" mapstructure:"server"`
	Database DashboardDatabaseConfig `yaml:"database,omitempty" mapstructure:"database"`
}

// DashboardServerConfig contains HTTP server settings.
type DashboardServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DashboardDatabaseConfig contains database connection settings.
type DashboardDatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Load reads a configuration file and applies PERFGATE_* environment
// variable overrides. Nested keys map to env vars with underscores,
// e.g. detection.rolling_window -> PERFGATE_DETECTION_ROLLING_WINDOW.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration
// options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Detection.RegressionThreshold == 0 {
		c.Detection.RegressionThreshold = DefaultRegressionThreshold
	}

	if c.Detection.RollingWindow == 0 {
		c.Detection.RollingWindow = DefaultRollingWindow
	}

	if c.Detection.ResultsFile == "" {
		c.Detection.ResultsFile = DefaultResultsFile
	}

	if c.Storage.HistoryDir == "" {
		c.Storage.HistoryDir = DefaultHistoryDir
	}

	if c.SysLoad.CPULoadThreshold == 0 {
		c.SysLoad.CPULoadThreshold = DefaultCPULoadThreshold
	}

	if c.SysLoad.MemoryThreshold == 0 {
		c.SysLoad.MemoryThreshold = DefaultMemoryThreshold
	}
}

// Validate checks the configuration for errors. Threshold and window
// bounds deliberately reject edge values rather than guessing: a
// negative or >= 1 threshold and a zero or negative window have no
// sensible interpretation.
func (c *Config) Validate() error {
	if c.Detection.Implementation == "" {
		return &ConfigurationError{
			Field:  "detection.implementation",
			Reason: "required",
		}
	}

	if c.Detection.RegressionThreshold <= 0 || c.Detection.RegressionThreshold >= 1 {
		return &ConfigurationError{
			Field:  "detection.regression_threshold",
			Reason: fmt.Sprintf("must be in (0, 1), got %v", c.Detection.RegressionThreshold),
		}
	}

	if c.Detection.RollingWindow < 1 {
		return &ConfigurationError{
			Field:  "detection.rolling_window",
			Reason: fmt.Sprintf("must be >= 1, got %d", c.Detection.RollingWindow),
		}
	}

	for metric, direction := range c.Detection.MetricDirections {
		if direction != "lower_is_better" && direction != "higher_is_better" {
			return &ConfigurationError{
				Field:  fmt.Sprintf("detection.metric_directions.%s", metric),
				Reason: fmt.Sprintf("must be lower_is_better or higher_is_better, got %q", direction),
			}
		}
	}

	if c.Storage.S3 != nil && c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return &ConfigurationError{
			Field:  "storage.s3.bucket",
			Reason: "required when s3 storage is enabled",
		}
	}

	if c.Dashboard.Enabled {
		switch c.Dashboard.Database.Driver {
		case "sqlite":
			if c.Dashboard.Database.SQLite.Path == "" {
				return &ConfigurationError{
					Field:  "dashboard.database.sqlite.path",
					Reason: "required for the sqlite driver",
				}
			}
		case "postgres":
		default:
			return &ConfigurationError{
				Field:  "dashboard.database.driver",
				Reason: fmt.Sprintf("unknown driver %q", c.Dashboard.Database.Driver),
			}
		}
	}

	return nil
}
