package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio-core/internal/config/source"
	coreerrors "folio-core/internal/core/errors"
)

func TestLoader_NoSources(t *testing.T) {
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidParam))
}

func TestLoader_PriorityOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\ncache:\n  prefix: yamlprefix\n"), 0o644))
	t.Setenv("TESTFOLIO_LOG_LEVEL", "error")

	cfg, err := NewLoaderBuilder().
		WithPrefix("TESTFOLIO").
		WithConfigFile(path).
		WithOverrides(source.CLIOverrides{LogLevel: "debug"}).
		Build().
		Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level, "cli beats env and yaml")
	assert.Equal(t, "yamlprefix", cfg.Cache.Prefix, "yaml beats defaults")
	assert.Equal(t, 6, len(cfg.RateLimit.Presets))
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signing:\n  expiry: forever\n"), 0o644))

	_, err := Load(path, source.CLIOverrides{})
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConfigError))
	assert.Contains(t, err.Error(), "signing.expiry")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), source.CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "folio", cfg.Cache.Prefix)
}
