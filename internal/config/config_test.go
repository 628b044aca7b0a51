package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// missingFile returns a path that does not exist, so Load falls back to env
// values and defaults only.
func missingFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "quantdl.yml")
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantdl.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QDL_STORAGE_BUCKET", "research-lake")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "research-lake", cfg.Storage.Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.Equal(t, ".quantdl-cache", cfg.Cache.Dir)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, int64(10737418240), cfg.Cache.MaxSizeBytes)
	assert.Equal(t, 50, cfg.Session.ChunkSize)
	assert.Equal(t, 4, cfg.Session.MaxConcurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRequiresBucketForS3(t *testing.T) {
	_, err := Load(missingFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket")
}

func TestLoadLocalBackendNeedsNoBucket(t *testing.T) {
	t.Setenv("QDL_STORAGE_BACKEND", "local")

	cfg, err := Load(missingFile(t))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "data", cfg.Storage.LocalPath)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: local
  local_path: /srv/lake
cache:
  ttl: 1h
  max_size_bytes: 1048576
session:
  chunk_size: 10
logging:
  level: debug
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "/srv/lake", cfg.Storage.LocalPath)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, int64(1048576), cfg.Cache.MaxSizeBytes)
	assert.Equal(t, 10, cfg.Session.ChunkSize)
	assert.Equal(t, 4, cfg.Session.MaxConcurrency, "unset file fields keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestEnvFillsFieldsFileLeavesEmpty(t *testing.T) {
	t.Setenv("QDL_STORAGE_BUCKET", "env-bucket")

	path := writeConfigFile(t, `
storage:
  backend: s3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: ftp
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: local
logging:
  level: loud
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "storage: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: local
server:
  port: 99999
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}
