package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netonboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load("", "")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.ListenAddress, cfg.ListenAddress)
	assert.Equal(t, def.Connector.ProbeOrder, cfg.Connector.ProbeOrder)
	assert.Equal(t, 30*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Reconcile.CreateDeviceTypeIfMissing)
	assert.False(t, cfg.Reconcile.CreateSiteIfMissing)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
concurrency: 8
database:
  path: /var/lib/netonboard/inventory.db
connector:
  timeout: 45s
  probe_order: [arista_eos, cisco_ios]
  reachability: none
retry:
  max_retries: 0
reconcile:
  default_site: HQ
  create_site_if_missing: true
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "/var/lib/netonboard/inventory.db", cfg.Database.Path)
	assert.Equal(t, 45*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, []string{"arista_eos", "cisco_ios"}, cfg.Connector.ProbeOrder)
	assert.Equal(t, "none", cfg.Connector.Reachability)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Equal(t, "HQ", cfg.Reconcile.DefaultSite)
	assert.True(t, cfg.Reconcile.CreateSiteIfMissing)

	// untouched keys keep their defaults
	assert.Equal(t, 22, cfg.Connector.SSHPort)
	assert.Equal(t, "network", cfg.Reconcile.DefaultRole)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "concurrency: 8\n")
	t.Setenv("NETONBOARD_CONCURRENCY", "3")
	t.Setenv("NETONBOARD_RECONCILE_DEFAULT_SITE", "Lab")
	t.Setenv("NETONBOARD_CONNECTOR_TIMEOUT", "5s")

	cfg, err := Load(path, "warn")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "Lab", cfg.Reconcile.DefaultSite)
	assert.Equal(t, 5*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel, "flag wins")
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"log level":    "log_level: loud\n",
		"reachability": "connector:\n  reachability: icmp\n",
		"probe order":  "connector:\n  probe_order: [cisco_ios, fortinet]\n",
		"retries":      "retry:\n  max_retries: -1\n",
		"yaml":         "connector: [\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), "")
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Reconcile.DefaultSite = "HQ"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "HQ", loaded.Reconcile.DefaultSite)
	assert.Equal(t, cfg.Connector.ProbeOrder, loaded.Connector.ProbeOrder)
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(EnvConfigPath, "")

	assert.Empty(t, FindConfigPath())

	require.NoError(t, os.WriteFile(ConfigFileName, []byte("{}"), 0o600))
	assert.Equal(t, filepath.Join(dir, ConfigFileName), FindConfigPath())

	explicit := writeConfig(t, "{}")
	t.Setenv(EnvConfigPath, explicit)
	assert.Equal(t, explicit, FindConfigPath())
}
