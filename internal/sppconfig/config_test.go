package sppconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "influxDB": {"username": "admin", "password": "x", "srvAddress": "tsdb.example.com", "srvPort": 8086, "dbName": "sppmon"},
  "sppServer": {"username": "svc", "password": "y", "srvAddress": "spp.example.com", "srvPort": 443}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sppmon.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DecodesKnownFields(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sppmon", cfg.InfluxDB.Database)
	assert.Equal(t, 8086, cfg.InfluxDB.SrvPort)
	assert.Equal(t, "spp.example.com", cfg.SppServer.SrvAddress)
}

func TestValidate_ReportsMissingKeys(t *testing.T) {
	path := writeConfig(t, `{"influxDB": {"srvPort": 8086}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = Validate(cfg)
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestValidate_PassesCompleteConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
}
