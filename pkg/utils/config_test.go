package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncostats/pkg/database"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ONCOSTATS_CONFIG", "")
	t.Setenv("ONCOSTATS_DB_PATH", "/tmp/x.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, SourceCSV, cfg.Source)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.LoadTimeout)
	assert.True(t, cfg.Watch)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oncostats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source: sqlite
db_path: /var/lib/oncostats.db
http_addr: ":9000"
load_timeout: 2s
cors_origins: ["https://charts.example"]
log_format: console
`), 0o644))
	t.Setenv("ONCOSTATS_HTTP_ADDR", ":9100")
	t.Setenv("ONCOSTATS_WATCH", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceSQLite, cfg.Source)
	assert.Equal(t, "/var/lib/oncostats.db", cfg.DBPath)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.LoadTimeout)
	assert.Equal(t, []string{"https://charts.example"}, cfg.CORSOrigins)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.Watch)
	assert.Equal(t, database.Config{Driver: database.DriverSQLite, Path: "/var/lib/oncostats.db"}, cfg.Database())
}

func TestLoadConfig_EnvList(t *testing.T) {
	t.Setenv("ONCOSTATS_CONFIG", "")
	t.Setenv("ONCOSTATS_CORS_ORIGINS", "http://a, http://b,")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORSOrigins)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("ONCOSTATS_CONFIG", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	t.Setenv("ONCOSTATS_LOAD_TIMEOUT", "soon")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "ONCOSTATS_LOAD_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Source = "ftp"
	assert.ErrorContains(t, bad.Validate(), "unknown source")

	bad = cfg
	bad.Source = SourcePostgres
	assert.ErrorContains(t, bad.Validate(), "db_dsn required")

	bad = cfg
	bad.LoadTimeout = 0
	assert.ErrorContains(t, bad.Validate(), "load_timeout")

	bad = cfg
	bad.LogLevel = "trace"
	assert.ErrorContains(t, bad.Validate(), "log_level")

	pg := cfg
	pg.Source = SourcePostgres
	pg.DBDSN = "postgres://localhost/onco"
	require.NoError(t, pg.Validate())
	assert.Equal(t, database.DriverPostgres, pg.Database().Driver)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	t.Setenv("ONCOSTATS_CONFIG", "")
	t.Setenv("ONCOSTATS_LOG_LEVEL", "")
	t.Setenv("ONCOSTATS_HTTP_ADDR", ":9200")
	require.NoError(t, os.Unsetenv("ONCOSTATS_LOG_LEVEL"))

	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("ONCOSTATS_LOG_LEVEL=debug\nONCOSTATS_HTTP_ADDR=:9300\n"), 0o644))
	prev := DotEnvFile
	DotEnvFile = env
	t.Cleanup(func() { DotEnvFile = prev })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9200", cfg.HTTPAddr, "variables already set win over the file")
}
