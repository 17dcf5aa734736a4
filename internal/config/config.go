// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Overpass  OverpassConfig  `mapstructure:"overpass"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Engine    EngineConfig    `mapstructure:"engine"`
	CellSite  CellSiteConfig  `mapstructure:"cellsite"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Events    EventsConfig    `mapstructure:"events"`
	Retention RetentionConfig `mapstructure:"retention"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld", "*"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// PathsConfig holds local working directories.
type PathsConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
	OutputDir string `mapstructure:"output_dir"`
}

// StorageConfig holds artifact storage configuration.
type StorageConfig struct {
	Type      string        `mapstructure:"type"` // local, s3, azure
	URLExpiry time.Duration `mapstructure:"url_expiry"`
	KeepLocal bool          `mapstructure:"keep_local"`
	S3        S3Config      `mapstructure:"s3"`
	Azure     AzureConfig   `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// OverpassConfig holds feature source configuration.
type OverpassConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// FetchConfig holds feature fetch caching configuration.
type FetchConfig struct {
	UseCache bool          `mapstructure:"use_cache"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	RedisURL string        `mapstructure:"redis_url"`
}

// EngineConfig holds processing engine configuration.
type EngineConfig struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 = no limit
}

// CellSiteConfig holds upload parameter defaults.
type CellSiteConfig struct {
	DefaultMinSamples int `mapstructure:"default_min_samples"`
	DefaultBinSize    int `mapstructure:"default_bin_size"`
}

// LedgerConfig holds job ledger configuration.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EventsConfig holds NATS event configuration. Empty URL disables events.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// RetentionConfig holds local workspace retention configuration.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
	Watch    bool          `mapstructure:"watch"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Domains  []string  `mapstructure:"domains"`
	Email    string    `mapstructure:"email"`
	CacheDir string    `mapstructure:"cache_dir"`
	Staging  bool      `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      DNSConfig `mapstructure:"dns"`
}

// DNSConfig holds Azure DNS settings for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 60*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_upload_bytes", int64(100*1024*1024))
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})

	// Paths defaults
	viper.SetDefault("paths.upload_dir", "./uploads")
	viper.SetDefault("paths.output_dir", "./outputs")

	// Storage defaults
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.url_expiry", time.Hour)
	viper.SetDefault("storage.keep_local", false)
	viper.SetDefault("storage.s3.region", "us-east-1")

	// Feature source defaults
	viper.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	viper.SetDefault("overpass.timeout", 180*time.Second)
	viper.SetDefault("overpass.max_parallel", 2)
	viper.SetDefault("fetch.use_cache", true)
	viper.SetDefault("fetch.cache_ttl", 24*time.Hour)

	// Engine defaults
	viper.SetDefault("engine.timeout", time.Duration(0))

	// Cell-site defaults
	viper.SetDefault("cellsite.default_min_samples", 30)
	viper.SetDefault("cellsite.default_bin_size", 5)

	// Ledger defaults
	viper.SetDefault("ledger.enabled", false)
	viper.SetDefault("ledger.path", "./data/jobs.db")

	// Events defaults
	viper.SetDefault("events.subject", "geotools.jobs.finished")

	// Retention defaults
	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.max_age", 24*time.Hour)
	viper.SetDefault("retention.interval", time.Hour)
	viper.SetDefault("retention.watch", true)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("GEOTOOLS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/geotools")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := cfg.Paths.Resolve(); err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}

	return &cfg, nil
}

// Resolve makes the upload and output directories absolute. The engine runs
// with the job workspace as its working directory.
func (p *PathsConfig) Resolve() error {
	for _, dir := range []*string{&p.UploadDir, &p.OutputDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return err
		}
		*dir = abs
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload size: %d", c.Server.MaxUploadBytes)
	}

	if c.Paths.UploadDir == "" || c.Paths.OutputDir == "" {
		return fmt.Errorf("upload and output directories are required")
	}

	if c.CellSite.DefaultMinSamples < 1 || c.CellSite.DefaultBinSize < 1 {
		return fmt.Errorf("cell-site defaults must be positive")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger enabled but no path specified")
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return fmt.Errorf("TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return fmt.Errorf("TLS enabled but no email specified")
		}
	}

	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
