package source

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio-core/internal/config/schema"
)

func TestDefaultSource_LoadInto(t *testing.T) {
	cfg := &schema.Root{}
	require.NoError(t, NewDefaultSource().LoadInto(cfg))

	assert.True(t, cfg.Redis.URL.IsEmpty(), "store should stay unconfigured by default")
	assert.Equal(t, "folio", cfg.Cache.Prefix)
	assert.Equal(t, "1h", cfg.Signing.Expiry)
	assert.False(t, cfg.Signing.Enabled)
	assert.Equal(t, schema.RateLimitPreset{Window: 15 * time.Minute, MaxRequests: 5}, cfg.RateLimit.Presets[PresetAuth])
	assert.Len(t, cfg.RateLimit.Presets, 6)
	assert.Equal(t, 3, cfg.Queue.Views.Attempts)
	assert.Equal(t, schema.LogLevelInfo, cfg.Log.Level)
}

func TestYAMLSource_NonExistentFileIsSkipped(t *testing.T) {
	cfg := &schema.Root{}
	assert.NoError(t, NewYAMLSource("/nonexistent/folio.yaml").LoadInto(cfg))
}

func TestYAMLSource_MergesPresets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "folio.yaml")
	content := `
redis:
  url: "redis://localhost:6379/1"
cache:
  prefix: shelf
rate_limit:
  presets:
    search:
      window: 30s
      max_requests: 50
    reader:
      window: 1m
      max_requests: 120
signing:
  enabled: true
  secret: "abcdefabcdef"
  expiry: 30m
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := &schema.Root{}
	require.NoError(t, NewDefaultSource().LoadInto(cfg))
	require.NoError(t, NewYAMLSource(path).LoadInto(cfg))

	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL.Value())
	assert.Equal(t, "shelf", cfg.Cache.Prefix)
	assert.Equal(t, 50, cfg.RateLimit.Presets[PresetSearch].MaxRequests)
	assert.Equal(t, 120, cfg.RateLimit.Presets["reader"].MaxRequests)
	assert.Equal(t, 10, cfg.RateLimit.Presets[PresetStrict].MaxRequests, "untouched presets keep defaults")
	assert.True(t, cfg.Signing.Enabled)
	assert.Equal(t, "30m", cfg.Signing.Expiry)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Hour, cfg.Views.RecentTTL)
}

func TestYAMLSource_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis: [unclosed"), 0o644))

	err := NewYAMLSource(path).LoadInto(&schema.Root{})
	assert.Error(t, err)
}

func TestEnvSource_LoadInto(t *testing.T) {
	t.Setenv("FOLIO_REDIS_URL", "redis://cache:6379")
	t.Setenv("FOLIO_SIGNING_ENABLED", "true")
	t.Setenv("FOLIO_SIGNING_SECRET", "envsecret")
	t.Setenv("FOLIO_RATE_LIMIT_STRICT_MAX", "3")
	t.Setenv("FOLIO_QUEUE_IMAGES_ATTEMPTS", "7")
	t.Setenv("FOLIO_VIEWS_FLUSH_INTERVAL", "15s")
	t.Setenv("FOLIO_LOG_FORMAT", "json")
	t.Setenv("FOLIO_REDIS_POOL_SIZE", "not-a-number")

	cfg := &schema.Root{}
	require.NoError(t, NewDefaultSource().LoadInto(cfg))
	require.NoError(t, NewEnvSource("FOLIO").LoadInto(cfg))

	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL.Value())
	assert.True(t, cfg.Signing.Enabled)
	assert.Equal(t, "envsecret", cfg.Signing.Secret.Value())
	assert.Equal(t, 3, cfg.RateLimit.Presets[PresetStrict].MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Presets[PresetStrict].Window)
	assert.Equal(t, 7, cfg.Queue.Images.Attempts)
	assert.Equal(t, 15*time.Second, cfg.Views.FlushInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Redis.PoolSize, "unparsable values are ignored")
}

func TestByPriority(t *testing.T) {
	sources := []Source{NewEnvSource("FOLIO"), NewDefaultSource(), NewYAMLSource()}
	sort.Sort(ByPriority(sources))

	assert.Equal(t, "defaults", sources[0].Name())
	assert.Equal(t, "yaml", sources[1].Name())
	assert.Equal(t, "env", sources[2].Name())
}
