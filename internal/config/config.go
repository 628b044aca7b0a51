// Package config loads application configuration from environment variables
// merged over an optional YAML file. Environment variables win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	Session SessionConfig `yaml:"session" envconfig:"SESSION"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
}

// StorageConfig selects and parameterizes the object storage backend.
type StorageConfig struct {
	// Backend is "s3" or "local".
	Backend   string  `yaml:"backend" envconfig:"BACKEND" default:"s3"`
	Bucket    string  `yaml:"bucket" envconfig:"BUCKET"`
	Region    string  `yaml:"region" envconfig:"REGION" default:"us-east-1"`
	Endpoint  string  `yaml:"endpoint" envconfig:"ENDPOINT"`
	LocalPath string  `yaml:"local_path" envconfig:"LOCAL_PATH" default:"data"`
	RateRPS   float64 `yaml:"rate_rps" envconfig:"RATE_RPS" default:"50"`
	RateBurst int     `yaml:"rate_burst" envconfig:"RATE_BURST" default:"25"`
}

// CacheConfig controls the disk cache.
type CacheConfig struct {
	Dir          string        `yaml:"dir" envconfig:"DIR" default:".quantdl-cache"`
	TTL          time.Duration `yaml:"ttl" envconfig:"TTL" default:"24h"`
	MaxSizeBytes int64         `yaml:"max_size_bytes" envconfig:"MAX_SIZE_BYTES" default:"10737418240"`
}

// SessionConfig controls session fetch behavior.
type SessionConfig struct {
	ChunkSize      int `yaml:"chunk_size" envconfig:"CHUNK_SIZE" default:"50"`
	MaxConcurrency int `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY" default:"4"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/quantdl.log"`
}

// ServerConfig controls the HTTP data service.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateRPS         float64       `yaml:"rate_rps" envconfig:"RATE_RPS" default:"100"`
	RateBurst       int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"50"`
}

// envPrefix namespaces all environment variables, e.g. QDL_CACHE_TTL.
const envPrefix = "QDL"

// DefaultConfigFile is consulted when no explicit path is given.
const DefaultConfigFile = "quantdl.yml"

// Load reads configuration from the environment merged over the YAML file at
// path (or DefaultConfigFile when path is empty). A missing file is not an
// error.
func Load(path string) (*Config, error) {
	var envCfg Config
	if err := envconfig.Process(envPrefix, &envCfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		envCfg = mergeConfigs(*fileCfg, envCfg)
	}

	if err := envCfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &envCfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays env values on file values; env wins where set, which
// for envconfig-processed structs means any field still at its zero value
// falls back to the file.
func mergeConfigs(fileCfg, envCfg Config) Config {
	if envCfg.Storage.Bucket == "" {
		envCfg.Storage.Bucket = fileCfg.Storage.Bucket
	}
	if envCfg.Storage.Endpoint == "" {
		envCfg.Storage.Endpoint = fileCfg.Storage.Endpoint
	}
	if fileCfg.Storage.Backend != "" {
		envCfg.Storage.Backend = fileCfg.Storage.Backend
	}
	if fileCfg.Storage.Region != "" {
		envCfg.Storage.Region = fileCfg.Storage.Region
	}
	if fileCfg.Storage.LocalPath != "" {
		envCfg.Storage.LocalPath = fileCfg.Storage.LocalPath
	}
	if fileCfg.Cache.Dir != "" {
		envCfg.Cache.Dir = fileCfg.Cache.Dir
	}
	if fileCfg.Cache.TTL != 0 {
		envCfg.Cache.TTL = fileCfg.Cache.TTL
	}
	if fileCfg.Cache.MaxSizeBytes != 0 {
		envCfg.Cache.MaxSizeBytes = fileCfg.Cache.MaxSizeBytes
	}
	if fileCfg.Session.ChunkSize != 0 {
		envCfg.Session.ChunkSize = fileCfg.Session.ChunkSize
	}
	if fileCfg.Session.MaxConcurrency != 0 {
		envCfg.Session.MaxConcurrency = fileCfg.Session.MaxConcurrency
	}
	if fileCfg.Logging.Level != "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	if fileCfg.Logging.Format != "" {
		envCfg.Logging.Format = fileCfg.Logging.Format
	}
	if fileCfg.Logging.Output != "" {
		envCfg.Logging.Output = fileCfg.Logging.Output
	}
	if fileCfg.Logging.FilePath != "" {
		envCfg.Logging.FilePath = fileCfg.Logging.FilePath
	}
	if fileCfg.Server.Port != 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Server.ReadTimeout != 0 {
		envCfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if fileCfg.Server.WriteTimeout != 0 {
		envCfg.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if fileCfg.Server.IdleTimeout != 0 {
		envCfg.Server.IdleTimeout = fileCfg.Server.IdleTimeout
	}
	if fileCfg.Server.ShutdownTimeout != 0 {
		envCfg.Server.ShutdownTimeout = fileCfg.Server.ShutdownTimeout
	}
	if fileCfg.Server.RateRPS != 0 {
		envCfg.Server.RateRPS = fileCfg.Server.RateRPS
	}
	if fileCfg.Server.RateBurst != 0 {
		envCfg.Server.RateBurst = fileCfg.Server.RateBurst
	}
	return envCfg
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage.local_path is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache.max_size_bytes must be positive, got %d", c.Cache.MaxSizeBytes)
	}
	if c.Session.ChunkSize < 1 {
		return fmt.Errorf("session.chunk_size must be >= 1, got %d", c.Session.ChunkSize)
	}
	if c.Session.MaxConcurrency < 1 {
		return fmt.Errorf("session.max_concurrency must be >= 1, got %d", c.Session.MaxConcurrency)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}
