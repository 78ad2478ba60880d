package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, policy.Default(), cfg.Policy)
	assert.Equal(t, health.DefaultConfig(), cfg.Health.Monitor())
	assert.Equal(t, []string{"gmail", "chat"}, cfg.EnabledCollectors())
}

func TestParse_LayersOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  path: /var/lib/aiemployee/state.db
policy:
  risk_ceiling: 20
health:
  base_backoff: 1m
  max_restarts: 5
orchestrator:
  retry_base_delay: 100ms
spool:
  dir: /srv/spool
collectors:
  - name: gmail
  - name: teams
    disabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/aiemployee/state.db", cfg.Database.Path)
	assert.Equal(t, 20, cfg.Policy.RiskCeiling)
	assert.Equal(t, policy.DefaultMaxPriority, cfg.Policy.MaxPriority, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Health.Monitor().BaseBackoff)
	assert.Equal(t, 5, cfg.Health.MaxRestarts)
	assert.Equal(t, health.DefaultMaxBackoff, cfg.Health.MaxBackoff.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.Orchestrator.Retry().BaseDelay)
	assert.Equal(t, "/srv/spool", cfg.Spool.Dir)
	assert.Equal(t, []string{"gmail"}, cfg.EnabledCollectors())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "databse:\n  path: x\n", "databse"},
		{"bad duration", "health:\n  base_backoff: soon\n", "invalid duration"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"policy", "policy:\n  risk_ceiling: 120\n", "risk_ceiling"},
		{"health", "health:\n  base_backoff: 20m\n", "max backoff"},
		{"queue", "orchestrator:\n  queue_size: 0\n", "queue_size"},
		{"collector name", "collectors:\n  - name: ''\n", "collectors[0].name is required"},
		{"reserved name", "collectors:\n  - name: decisions\n", "not allowed"},
		{"duplicate", "collectors:\n  - name: a\n  - name: a\n", "duplicated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aiemployee.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: json\n  level: warn\n"), 0o644))

	t.Setenv(EnvConfig, path)
	t.Setenv(EnvDB, "/tmp/override.db")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvSpoolDir, "/tmp/spool")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level, "env wins over file")
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "/tmp/spool", cfg.Spool.Dir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDB, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvSpoolDir, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
