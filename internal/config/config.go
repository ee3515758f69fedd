package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for a quizparty server instance.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Match    MatchConfig    `yaml:"match"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Client   ClientConfig   `yaml:"client"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// MatchConfig holds match lifecycle tuning.
type MatchConfig struct {
	GraceDelay   Duration `yaml:"grace_delay"`   // pause between last answer and next question
	Retention    Duration `yaml:"retention"`     // how long finished matches stay queryable
	QuestionFile string   `yaml:"question_file"` // optional YAML question pack; built-in set if empty
}

// DatabaseConfig holds the Postgres connection for the participant log.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

// RedisConfig holds the event journal queue settings. A disabled journal
// leaves the server fully functional; match events are simply not archived.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Queue   string `yaml:"queue"`
}

// ClientConfig holds reconnection settings for the bundled client.
type ClientConfig struct {
	ServerURL         string   `yaml:"server_url"`
	ReconnectDelay    Duration `yaml:"reconnect_delay"`
	MaxReconnectTries int      `yaml:"max_reconnect_tries"`
}
