package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "imagelink.yaml")
	require.Nil(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.Nil(t, Validate(cfg))
	assert.Equal(t, 4207, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Cache.Capacity)
	assert.Equal(t, uint64(1<<30), cfg.Server.MaxPayloadSize)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Nil(t, err)
	assert.Equal(t, Defaults(), cfg)

	cfg, err = Load("")
	require.Nil(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Client.Host)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 5000
  max_connections: 3
  proxy: haproxy-v2
  deadline: 2s
  autoload: true
client:
  host: viewer.local
  viewer: left
logger:
  level: debug
  format: json
cache:
  capacity: 12
ftp:
  strategy: delete
  poll_interval: 1m
`)
	cfg, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.MaxConnections)
	assert.Equal(t, "haproxy-v2", cfg.Server.Proxy)
	assert.Equal(t, 2*time.Second, cfg.Server.Deadline)
	assert.True(t, cfg.Server.Autoload)
	assert.Equal(t, "viewer.local", cfg.Client.Host)
	assert.Equal(t, 4207, cfg.Client.Port, "untouched values keep their default")
	assert.Equal(t, "left", cfg.Client.Viewer)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 12, cfg.Cache.Capacity)
	assert.Equal(t, "delete", cfg.FTP.Strategy)
	assert.Equal(t, time.Minute, cfg.FTP.PollInterval)
}

func TestLoadBrokenYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.NotNil(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IMAGELINK_SERVER_PORT", "6000")
	t.Setenv("IMAGELINK_LOGGER_LEVEL", "warn")
	t.Setenv("IMAGELINK_METRICS_ENABLED", "true")
	t.Setenv("IMAGELINK_FTP_PASSWORD", "secret")

	cfg, err := Load(writeConfig(t, "server:\n  port: 5000\n"))
	require.Nil(t, err)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "secret", cfg.FTP.Password)
}

func TestEnvOverrideNotANumber(t *testing.T) {
	t.Setenv("IMAGELINK_CACHE_CAPACITY", "many")
	_, err := Load("")
	assert.NotNil(t, err)
}

func TestValidateCollectsEverything(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	cfg.Server.Proxy = "nginx"
	cfg.Logger.Level = "loud"
	cfg.Cache.Capacity = 0
	cfg.FTP.Strategy = "shred"
	cfg.Watch.Pattern = "[a-"

	err := Validate(cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 6, len(ve.Errors))
	assert.Contains(t, err.Error(), "server.proxy")
}
