package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DB_PATH", "JWT_SECRET", "LOG_LEVEL", "STATIC_DIR", "SAVE_DELAY", "ALLOWED_ORIGINS", "LOGIN_RATE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Error(t, cfg.Validate(), "a secret is required")
}

func TestLoadConfigLayers(t *testing.T) {
	clearEnv(t)
	yamlPath := writeFile(t, "config.yaml", `
addr: ":8080"
db_path: /var/lib/solarboard.db
log_level: debug
save_delay: 2s
allowed_origins: [https://crm.example.com]
login_rate: 5
`)
	envPath := writeFile(t, ".env", `
# local overrides
JWT_SECRET="from-dotenv"
export SAVE_DELAY=250ms
malformed line
`)
	t.Setenv("DB_PATH", "/tmp/override.db")

	cfg, err := LoadConfig(yamlPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/tmp/override.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.SaveDelay)
	assert.Equal(t, []string{"https://crm.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.LoginRate)
	assert.Equal(t, "from-dotenv", cfg.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvKeepsExistingVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "from-environment")
	envPath := writeFile(t, ".env", "JWT_SECRET=from-dotenv\nPORT=4000\n")

	cfg, err := LoadConfig("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-environment", cfg.JWTSecret)
	assert.Equal(t, ":4000", cfg.Addr)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "addr: [unterminated")
	_, err = LoadConfig(bad, "")
	assert.Error(t, err)

	t.Setenv("SAVE_DELAY", "soon")
	_, err = LoadConfig("", "")
	assert.ErrorContains(t, err, "SAVE_DELAY")
}

func TestConfigValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.LogLevel = "chatty"
	assert.Error(t, cfg.Validate())

	cfg.LogLevel = "warn"
	cfg.LoginRate = 0
	assert.Error(t, cfg.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "solarboard version "+Version)
}

func TestMigrateCommand(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "solarboard.db")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--db", dbPath, "--env-file", "", "--log-level", "error"})
	require.NoError(t, cmd.Execute())
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
