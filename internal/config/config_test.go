package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Match.GraceDelay.Std())
	assert.Equal(t, 60*time.Second, cfg.Match.Retention.Std())
	assert.Equal(t, 3*time.Second, cfg.Client.ReconnectDelay.Std())
	assert.Equal(t, 5, cfg.Client.MaxReconnectTries)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("QP_DB_PASSWORD", "hunter2")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
match:
  grace_delay: 250ms
  retention: 10s
database:
  host: db.internal
  user: quiz
  password: ${QP_DB_PASSWORD}
  name: quizparty
redis:
  enabled: true
  addr: redis.internal:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Match.GraceDelay.Std())
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.True(t, cfg.Redis.Enabled)

	// Unset sections still pick up defaults.
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "quizparty:events", cfg.Redis.Queue)
}

func TestValidateRejectsNegativeDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match:\n  grace_delay: -1s\n"), 0o644))
	_, err := LoadAndValidate(path)
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Name: "db", User: "u", Password: "p", SSLMode: "disable", MaxConns: 4}
	assert.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable&pool_max_conns=4", d.DSN())
}
