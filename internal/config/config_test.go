package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("EVENTS_AUTH_TOKEN_SECRET", "0123456789abcdef")
	t.Setenv("EVENTS_SERVER_PORT", "9090")
	t.Setenv("EVENTS_AUTH_ADMIN_EMAILS", "a@x.com,b@x.com")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, "default", cfg.App.Namespace)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, []string{"a@x.com", "b@x.com"}, cfg.Auth.AdminEmails)
	require.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  namespace: tastings
store:
  driver: postgres
postgres:
  host: db
auth:
  token_secret: from-file-secret-value
  token_ttl: 1h
`), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "tastings", cfg.App.Namespace)
	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.Equal(t, "db", cfg.Postgres.Host)
	require.Equal(t, "5432", cfg.Postgres.Port)
	require.Equal(t, time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.TokenSecret = "short"
	cfg.Store.Driver = "redis"
	cfg.App.Namespace = "a/b"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.driver")
	require.Contains(t, err.Error(), "token_secret")
	require.Contains(t, err.Error(), "namespace")

	cfg = Defaults()
	cfg.Auth.TokenSecret = "0123456789abcdef"
	require.NoError(t, cfg.Validate())
}
