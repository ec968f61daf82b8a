package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Bool("json", false, "")
	registerConfigFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", newFlagSet(t))
	require.NoError(t, err)

	assert.Equal(t, envLocal, cfg.Env)
	assert.Equal(t, "http://localhost:8080", cfg.Auth.URL)
	assert.Equal(t, 10*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, backendFile, cfg.Session.Backend)
	assert.NotEmpty(t, cfg.Session.File)
	assert.Equal(t, time.Minute, cfg.Refresh.Lead)
	assert.Equal(t, "ed25519", cfg.Token.SigningMethod)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
env: prod
auth:
  url: https://auth.example.com
  timeout: 3s
session:
  backend: redis
  redis:
    addr: redis:6379
    prefix: app
    name: alice
token:
  signing_method: hs256
  secret: s3cret
  leeway: 30s
refresh:
  lead: 2m
  keep_on_transient_failure: true
`)

	cfg, err := loadConfig(path, newFlagSet(t))
	require.NoError(t, err)

	assert.Equal(t, envProd, cfg.Env)
	assert.Equal(t, "https://auth.example.com", cfg.Auth.URL)
	assert.Equal(t, 3*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, backendRedis, cfg.Session.Backend)
	assert.Equal(t, "redis:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, "app", cfg.Session.Redis.Prefix)
	assert.Equal(t, "alice", cfg.Session.Redis.Name)
	assert.Equal(t, "hs256", cfg.Token.SigningMethod)
	assert.Equal(t, 30*time.Second, cfg.Token.Leeway)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.Lead)
	assert.True(t, cfg.Refresh.KeepOnTransientFailure)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  url: https://from-file.example.com
session:
  backend: memory
`)

	cfg, err := loadConfig(path, newFlagSet(t, "--auth-url", "https://from-flag.example.com", "--auth-timeout", "1s"))
	require.NoError(t, err)

	assert.Equal(t, "https://from-flag.example.com", cfg.Auth.URL)
	assert.Equal(t, time.Second, cfg.Auth.Timeout)
	assert.Equal(t, backendMemory, cfg.Session.Backend)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "bad env", args: []string{"--env", "staging"}},
		{name: "bad backend", args: []string{"--session-backend", "sqlite"}},
		{name: "empty session file", args: []string{"--session-file", ""}},
		{name: "empty redis addr", args: []string{"--session-backend", "redis", "--redis-addr", ""}},
		{name: "negative timeout", args: []string{"--auth-timeout", "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig("", newFlagSet(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), newFlagSet(t))
	assert.Error(t, err)
}

func TestStoreConfig(t *testing.T) {
	cfg, err := loadConfig("", newFlagSet(t, "--token-method", "hs256", "--token-secret", "abc", "--refresh-lead", "30s"))
	require.NoError(t, err)

	storeCfg, err := cfg.storeConfig()
	require.NoError(t, err)
	assert.False(t, storeCfg.Refresh.Auto)
	assert.Equal(t, 30*time.Second, storeCfg.Refresh.Lead)
	assert.Equal(t, []byte("abc"), storeCfg.Token.Secret)
	assert.Equal(t, 10*time.Second, storeCfg.Login.Timeout)
}

func TestStoreConfig_PublicKeyFile(t *testing.T) {
	cfg, err := loadConfig("", newFlagSet(t, "--token-key", filepath.Join(t.TempDir(), "missing.pem")))
	require.NoError(t, err)

	_, err = cfg.storeConfig()
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	for _, env := range []string{envLocal, envDev, envProd} {
		logger, err := setupLogger(env, os.Stderr)
		require.NoError(t, err, env)
		assert.NotNil(t, logger)
	}

	_, err := setupLogger("staging", os.Stderr)
	assert.Error(t, err)
}
