package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port            string `yaml:"port"`
	DatabaseURL     string `yaml:"databaseURL"`
	JWTSecret       string `yaml:"jwtSecret"`
	JWTIssuer       string `yaml:"jwtIssuer"`
	LogLevel        string `yaml:"logLevel"`
	MaxConns        int    `yaml:"maxConns"`
	AMQPURL         string `yaml:"amqpURL"`
	OutboxInterval  string `yaml:"outboxInterval"`
	OutboxBatchSize int    `yaml:"outboxBatchSize"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("ORDER_OUTBOX_INTERVAL"); v != "" {
		cfg.OutboxInterval = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET)")
	}
	if cfg.AMQPURL == "" {
		return errors.New("config: amqpURL is required for the outbox relay (set AMQP_URL)")
	}
	if cfg.OutboxBatchSize < 0 {
		return errors.New("config: outboxBatchSize must be >= 0")
	}
	return nil
}

// ParseOutboxInterval parses the optional relay interval duration string.
func ParseOutboxInterval(intervalStr string) (time.Duration, error) {
	if intervalStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(intervalStr)
	if err != nil {
		return 0, fmt.Errorf("invalid outboxInterval duration: %w", err)
	}
	return dur, nil
}
