package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
[server]
port = ":8000"
base_domain = "gradeinsight.com"

[database]
dsn = ":memory:"
`

func TestParseConfigDefaults(t *testing.T) {
	config, err := ParseConfig([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8000", config.Server.Port)
	assert.Equal(t, "static", config.Server.StaticDir)
	assert.Equal(t, "./migrations", config.Database.MigrationsDir)
	assert.Equal(t, 5000, config.Upload.MaxRows)
	assert.Equal(t, int64(10<<20), config.Upload.MaxBytes)
	assert.Equal(t, 60, config.Upload.TimeoutSeconds)
	assert.Equal(t, 100.0, config.Upload.DefaultMaxPoints)
	assert.Equal(t, 1.5, config.Upload.ExtraCreditFactor)
	assert.False(t, config.Cache.Enabled)
	assert.Nil(t, config.Tenants.Reserved)
	assert.Equal(t, "0 3 * * *", config.Export.Schedule)
}

func TestParseConfigOverrides(t *testing.T) {
	config, err := ParseConfig([]byte(minimalConfig + `
[cache]
enabled = true
redis_url = "redis://localhost:6379/0"
ttl_seconds = 5

[upload]
max_rows = 10
extra_credit_factor = 2.0

[tenants]
reserved = ["admin", "www"]

[export]
enabled = true
tenants = ["acme"]
`))
	require.NoError(t, err)
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, 5, config.Cache.TTLSeconds)
	assert.Equal(t, 10, config.Upload.MaxRows)
	assert.Equal(t, 2.0, config.Upload.ExtraCreditFactor)
	assert.Equal(t, []string{"admin", "www"}, config.Tenants.Reserved)
	assert.Equal(t, []string{"acme"}, config.Export.Tenants)
}

func TestParseConfigErrors(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "not toml", data: "port = "},
		{name: "no port", data: "[server]\nbase_domain = \"x.com\"\n[database]\ndsn = \"db\"\n"},
		{name: "no base domain", data: "[server]\nport = \":1\"\n[database]\ndsn = \"db\"\n"},
		{name: "no dsn", data: "[server]\nport = \":1\"\nbase_domain = \"x.com\"\n"},
		{name: "cache without url", data: minimalConfig + "[cache]\nenabled = true\n"},
		{name: "factor below one", data: minimalConfig + "[upload]\nextra_credit_factor = 0.5\n"},
		{name: "negative rows", data: minimalConfig + "[upload]\nmax_rows = -1\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gradeinsight.com", config.Server.BaseDomain)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
