// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                    string   `mapstructure:"appname"`
	AppPort                    string   `mapstructure:"appport"`
	Environment                string   `mapstructure:"environment"`
	LogLevel                   LogLevel `mapstructure:"loglevel"`
	PrivateKey                 string   `mapstructure:"privatekey"`
	LoginSessionTimeoutSeconds int      `mapstructure:"loginsessiontimeoutseconds"`
	// Domain is the host of the tracked site. Referrers from this host are
	// internal navigation and never recorded as external referrers.
	Domain string `mapstructure:"domain"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Ingestion and query protection
	TrackRateLimitPerMinute int    `mapstructure:"trackratelimit"`
	QueryRateLimitPerMinute int    `mapstructure:"queryratelimit"`
	AllowedOrigins          string `mapstructure:"allowedorigins"`

	// Background jobs
	ReconcileIntervalSeconds int `mapstructure:"reconcileintervalseconds"`
	EventRetentionDays       int `mapstructure:"eventretentiondays"`

	// Caching and observability
	SettingsCacheTTLSeconds int  `mapstructure:"settingscachettlseconds"`
	MetricsEnabled          bool `mapstructure:"metricsenabled"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the process-wide configuration, loading it on first use.
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads configuration from defaults and SITEPULSE_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "sitepulse")
	v.SetDefault("appport", "3000")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelDebug))
	v.SetDefault("privatekey", defaultPrivateKey)
	v.SetDefault("loginsessiontimeoutseconds", 604800) // 1 week
	v.SetDefault("domain", "")
	v.SetDefault("storagepath", "storage")
	v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
	v.SetDefault("publicdir", "public")
	v.SetDefault("publicassetsurlprefix", "/")
	v.SetDefault("logsdir", "logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("dbmaxopenconns", 0)
	v.SetDefault("dbmaxidleconns", 0)
	v.SetDefault("trackratelimit", 60)
	v.SetDefault("queryratelimit", 120)
	v.SetDefault("allowedorigins", "*")
	v.SetDefault("reconcileintervalseconds", 3600)
	v.SetDefault("eventretentiondays", 400)
	v.SetDefault("settingscachettlseconds", 60)
	v.SetDefault("metricsenabled", true)

	v.BindEnv("appname", "SITEPULSE_APP_NAME")
	v.BindEnv("appport", "SITEPULSE_APP_PORT")
	v.BindEnv("environment", "SITEPULSE_ENV")
	v.BindEnv("loglevel", "SITEPULSE_LOG_LEVEL")
	v.BindEnv("privatekey", "SITEPULSE_PRIVATE_KEY")
	v.BindEnv("loginsessiontimeoutseconds", "SITEPULSE_LOGIN_SESSION_TIMEOUT_SECONDS")
	v.BindEnv("domain", "SITEPULSE_DOMAIN")
	v.BindEnv("storagepath", "SITEPULSE_STORAGE_PATH")
	v.BindEnv("geodbpath", "SITEPULSE_GEO_DB_PATH")
	v.BindEnv("publicdir", "SITEPULSE_PUBLIC_DIR")
	v.BindEnv("publicassetsurlprefix", "SITEPULSE_PUBLIC_ASSETS_URL_PREFIX")
	v.BindEnv("logsdir", "SITEPULSE_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "SITEPULSE_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "SITEPULSE_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "SITEPULSE_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("dbmaxopenconns", "SITEPULSE_DB_MAX_OPEN_CONNS")
	v.BindEnv("dbmaxidleconns", "SITEPULSE_DB_MAX_IDLE_CONNS")
	v.BindEnv("trackratelimit", "SITEPULSE_TRACK_RATE_LIMIT")
	v.BindEnv("queryratelimit", "SITEPULSE_QUERY_RATE_LIMIT")
	v.BindEnv("allowedorigins", "SITEPULSE_ALLOWED_ORIGINS")
	v.BindEnv("reconcileintervalseconds", "SITEPULSE_RECONCILE_INTERVAL_SECONDS")
	v.BindEnv("eventretentiondays", "SITEPULSE_EVENT_RETENTION_DAYS")
	v.BindEnv("settingscachettlseconds", "SITEPULSE_SETTINGS_CACHE_TTL_SECONDS")
	v.BindEnv("metricsenabled", "SITEPULSE_METRICS_ENABLED")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
	c.DatabaseName = c.GetDatabasePath()

	return c, nil
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.Environment == Production && c.PrivateKey == defaultPrivateKey {
		return fmt.Errorf("production requires a unique SITEPULSE_PRIVATE_KEY (cannot use default)")
	}

	if c.TrackRateLimitPerMinute <= 0 || c.QueryRateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.EventRetentionDays < 0 {
		return fmt.Errorf("invalid event retention: %d days", c.EventRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetLoginSessionTimeout returns the admin login cookie lifetime in seconds.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetMaxOpenConns returns MaxOpenConns, defaulting to 1 in tests and 10 elsewhere.
// The summary endpoint runs its queries in parallel, so production needs more than one reader.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns MaxIdleConns, defaulting to 1 in tests and 5 elsewhere.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetAllowedOrigins returns the CORS origin list for the public ingestion endpoint.
func (c *Config) GetAllowedOrigins() string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return "*"
	}
	return c.AllowedOrigins
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
