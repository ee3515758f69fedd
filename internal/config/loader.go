package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values. A missing
// file is not an error: the server runs fine on defaults alone.
func LoadWithDefaults(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = &Config{}
		} else {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(3 * time.Second)
	}
	if c.Match.GraceDelay == 0 {
		c.Match.GraceDelay = Duration(time.Second)
	}
	if c.Match.Retention == 0 {
		c.Match.Retention = Duration(60 * time.Second)
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Queue == "" {
		c.Redis.Queue = "quizparty:events"
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "ws://localhost:8080/ws"
	}
	if c.Client.ReconnectDelay == 0 {
		c.Client.ReconnectDelay = Duration(3 * time.Second)
	}
	if c.Client.MaxReconnectTries == 0 {
		c.Client.MaxReconnectTries = 5
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Match.GraceDelay < 0 {
		return fmt.Errorf("match.grace_delay must not be negative")
	}
	if c.Match.Retention < 0 {
		return fmt.Errorf("match.retention must not be negative")
	}
	if c.Client.MaxReconnectTries < 0 {
		return fmt.Errorf("client.max_reconnect_tries must not be negative")
	}
	return nil
}

// DSN assembles a pgx connection string from the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode, d.MaxConns)
}
