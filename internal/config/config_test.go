package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./parley.db", cfg.Database.Path)
	assert.Equal(t, "gemini-1.5-flash", cfg.Backends.Gemini.Model)
	assert.Equal(t, 0.6, cfg.Learning.RatingWeight)
	assert.Equal(t, 3, cfg.Learning.MinFeedbackForSelection)
	assert.Equal(t, 300, cfg.Learning.CacheTTLSeconds)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
backends:
  gemini:
    api_key: file-key
    daily_limit: 500
learning:
  rating_weight: 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep their defaults")
	assert.Equal(t, "file-key", cfg.Backends.Gemini.APIKey)
	assert.Equal(t, 500, cfg.Backends.Gemini.DailyLimit)
	assert.Equal(t, 0.5, cfg.Learning.RatingWeight)
	assert.Equal(t, 0.3, cfg.Learning.PositiveWeight)
}

func TestLoadResolvesKeysFromEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("HUGGINGFACE_API_TOKEN", "env-hf")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-gemini", cfg.Backends.Gemini.APIKey)
	assert.Equal(t, "env-hf", cfg.Backends.HuggingFace.APIToken)
}

func TestConfigFileKeyBeatsEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-gemini")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backends:\n  gemini:\n    api_key: file-key\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Backends.Gemini.APIKey)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
