// Package config loads cloudbox application settings with viper: built-in
// defaults, an optional YAML file and CLOUDBOX_* environment overrides, in
// increasing order of precedence.
//
// Environment keys replace dots with underscores:
//
//	CLOUDBOX_LOGGING_LEVEL=debug
//	CLOUDBOX_HTTP_TIMEOUT=2m
//	CLOUDBOX_BOXES_SOURCE=postgres
//	CLOUDBOX_BOXES_DSN=postgres://...
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLOUDBOX"

// Box store sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceMySQL    = "mysql"
)

// Config is the full application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Server  ServerConfig  `mapstructure:"server"`
	Boxes   BoxesConfig   `mapstructure:"boxes"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// HTTPConfig tunes the provider transport.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// BoxesConfig says where data box records are read from.
type BoxesConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// SetDefaults registers every key with its default so environment
// overrides resolve through Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "rfc3339")

	v.SetDefault("http.timeout", transport.DefaultTimeout.String())
	v.SetDefault("http.user_agent", "cloudbox/1.0")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_upload_bytes", 256<<20)

	v.SetDefault("boxes.source", SourceFile)
	v.SetDefault("boxes.path", "boxes.yaml")
	v.SetDefault("boxes.dsn", "")
	v.SetDefault("boxes.table", "data_boxes")
}

// New returns a viper instance with defaults and environment binding in
// place but no file read yet.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings. An explicit path must exist; without one,
// cloudbox.yaml is looked up in the working directory and
// $HOME/.config/cloudbox and skipped when absent.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else {
		v.SetConfigName("cloudbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cloudbox")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("config: http.timeout must be positive")
	}
	switch c.Boxes.Source {
	case SourceFile:
		if c.Boxes.Path == "" {
			return fmt.Errorf("config: boxes.path is required for the file source")
		}
	case SourcePostgres, SourceMySQL:
		if c.Boxes.DSN == "" {
			return fmt.Errorf("config: boxes.dsn is required for the %s source", c.Boxes.Source)
		}
	default:
		return fmt.Errorf("config: unknown boxes.source %q", c.Boxes.Source)
	}
	return nil
}

// LoggerConfig converts the logging section for logger.New.
func (c LoggingConfig) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Level
	lc.Format = c.Format
	return lc
}

// TransportOptions converts the http section for transport.NewHTTPExecutor.
func (c HTTPConfig) TransportOptions(log *logger.Logger) transport.Options {
	return transport.Options{Timeout: c.Timeout, UserAgent: c.UserAgent, Logger: log}
}
