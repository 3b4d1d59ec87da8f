package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 0, cfg.RenderConcurrency)
}

func TestLoad_DefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "cache", cfg.CacheDir)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, Default().VADInferenceTimeout, cfg.VADInferenceTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CLIPSMITH_FFMPEG_PATH", "/opt/bin/ffmpeg")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/ffmpeg", cfg.FFmpegPath)
}

func TestLoad_DataDirRebasesPaths(t *testing.T) {
	t.Setenv("CLIPSMITH_DATA_DIR", "/srv/clipsmith")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/srv/clipsmith/cache", cfg.CacheDir)
	assert.Equal(t, "/srv/clipsmith/output", cfg.OutputDir)
}
