package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
audit:
  concurrency: 3
levels:
  default: [A1, B2]
  per_language:
    Almanca: [A1]
report:
  naming: timestamp
`))
	t.Setenv("AUDIT_WORKERS", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Audit.Concurrency)
	assert.Equal(t, 4, cfg.Audit.Workers)
	assert.Equal(t, 42, cfg.Audit.DefaultMinimum)
	assert.True(t, cfg.Audit.IncludeVideo)
	assert.Equal(t, []string{"A1", "B2"}, cfg.Levels.Default)
	assert.Equal(t, map[string][]string{"Almanca": {"A1"}}, cfg.Levels.PerLanguage)
	assert.Equal(t, "timestamp", cfg.Report.Naming)
	assert.Equal(t, DefaultBlockedURLs(), cfg.Browser.BlockedURLs)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "log:\n  level: debug\n"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B1"}, cfg.Levels.Default)
	assert.Equal(t, []string{"A1", "A2", "B1", "B2", "C1"}, cfg.Levels.PerLanguage["İngilizce"])
	assert.Equal(t, "job_id", cfg.Report.Naming)
	assert.Equal(t, 6, cfg.Audit.Concurrency)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "{}\n"))
	base, err := LoadConfig()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"naming", func(c *Config) { c.Report.Naming = "random" }, "report.naming"},
		{"default levels", func(c *Config) { c.Levels.Default = []string{"A1", "Z9"} }, "levels.default"},
		{"per language", func(c *Config) { c.Levels.PerLanguage = map[string][]string{"Almanca": {"D1"}} }, "levels.per_language[Almanca]"},
		{"negative minimum", func(c *Config) { c.Audit.DefaultMinimum = -1 }, "audit.default_minimum"},
		{"workers", func(c *Config) { c.Audit.Workers = 0 }, "audit.workers"},
		{"login url", func(c *Config) { c.Browser.LoginURL = " " }, "browser.login_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
