package config

import (
	"fmt"
	"os"
	"time"

	"habittracker/pkg/config"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type ProgressConfig struct {
	DefaultWindowDays int `yaml:"default_window_days"`
}

type WorkerConfig struct {
	Port       string        `yaml:"port"`
	MaxRetries int64         `yaml:"max_retries"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
}

type Config struct {
	Server   config.ServerConfig `yaml:"server"`
	Log      config.LogConfig    `yaml:"log"`
	Storage  StorageConfig       `yaml:"storage"`
	DB       config.DBConfig     `yaml:"db"`
	Mongo    config.MongoConfig  `yaml:"mongo"`
	Redis    config.RedisConfig  `yaml:"redis"`
	MQ       config.MQConfig     `yaml:"mq"`
	Auth     config.AuthConfig   `yaml:"auth"`
	Progress ProgressConfig      `yaml:"progress"`
	Worker   WorkerConfig        `yaml:"worker"`
}

// Default values used when a key is absent from every config layer.
func Default() Config {
	return Config{
		Server: config.ServerConfig{
			Port:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Log:     config.LogConfig{Level: "info"},
		Storage: StorageConfig{Driver: DriverMemory},
		Mongo: config.MongoConfig{
			Database:   "habits",
			Collection: "habits",
		},
		Redis:    config.RedisConfig{CacheTTL: 5 * time.Minute},
		Auth:     config.AuthConfig{TokenTTL: 30 * 24 * time.Hour},
		Progress: ProgressConfig{DefaultWindowDays: 30},
		Worker: WorkerConfig{
			Port:       ":8081",
			MaxRetries: 5,
			DedupTTL:   24 * time.Hour,
		},
	}
}

// Load reads config/<CONFIG_ENV>.yaml over config/base.yaml and applies
// environment overrides.
func Load(configDir string) (*Config, error) {
	cfg := Default()
	if err := config.Decode(config.GetConfigEnv(), configDir, &cfg); err != nil {
		return nil, err
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMongoFromEnv(&cfg.Mongo)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideAuthFromEnv(&cfg.Auth)
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("storage driver %q requires mongo.uri", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Progress.DefaultWindowDays <= 0 {
		return fmt.Errorf("progress.default_window_days must be positive")
	}
	return nil
}
