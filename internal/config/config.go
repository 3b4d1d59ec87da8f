// Package config loads ambient pipeline configuration: directories, the
// ffmpeg/ffprobe binary locations, and tunables that are not part of a
// ClipRequest (timeouts, concurrency caps). It layers environment variables
// and an optional config file (via viper) under CLI flag overrides, the way
// the teacher's main.go layered --ffmpeg/--data-dir over defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob the pipeline needs outside of a single request.
type Config struct {
	// DataDir is the root for CacheDir/OutputDir/ScratchDir/VADCacheDir.
	// When it is anything other than ".", Load places all four under it and
	// any separately configured values for them are not used.
	DataDir string

	CacheDir   string
	OutputDir  string
	ScratchDir string

	FFmpegPath  string
	FFprobePath string

	// VADCacheDir holds the VAD cache's JSON files; the cache is kept on
	// disk only.
	VADCacheDir string

	VADInferenceTimeout time.Duration
	VisionOracleTimeout time.Duration
	// VisionOracleURL is the subject-localization collaborator's HTTP
	// endpoint (spec §1: "consumed only through narrow contracts"). Empty
	// disables the oracle entirely, degrading every request straight to
	// centre-crop with confidence 0.
	VisionOracleURL string

	// RenderConcurrency bounds concurrent external renderer invocations.
	// Zero means "caller decides" (see SPEC_FULL.md admission semaphore note).
	RenderConcurrency int

	HTTPAddr string
}

// Default returns the factory defaults, mirroring the teacher's implicit
// "cache"/"output"/"bin" layout rooted at ".".
func Default() Config {
	return Config{
		DataDir:             ".",
		CacheDir:             "cache",
		OutputDir:            "output",
		ScratchDir:           "cache/scratch",
		VADCacheDir:          "cache/vad",
		FFmpegPath:           "ffmpeg",
		FFprobePath:          "ffprobe",
		VADInferenceTimeout:  60 * time.Second,
		VisionOracleTimeout:  10 * time.Second,
		VisionOracleURL:      "",
		RenderConcurrency:    0,
		HTTPAddr:             ":0",
	}
}

// Load reads configuration from environment variables prefixed CLIPSMITH_ and
// an optional clipsmith.{yaml,json,toml} config file on the search path,
// falling back to Default() for anything unset. CLI flags should be applied
// on top of the returned Config by the caller (cmd/server), the same
// ordering the teacher used for --ffmpeg/--data-dir.
func Load(configPaths ...string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("CLIPSMITH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("cache_dir", cfg.CacheDir)
	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("scratch_dir", cfg.ScratchDir)
	v.SetDefault("vad_cache_dir", cfg.VADCacheDir)
	v.SetDefault("ffmpeg_path", cfg.FFmpegPath)
	v.SetDefault("ffprobe_path", cfg.FFprobePath)
	v.SetDefault("vad_inference_timeout", cfg.VADInferenceTimeout.String())
	v.SetDefault("vision_oracle_timeout", cfg.VisionOracleTimeout.String())
	v.SetDefault("vision_oracle_url", cfg.VisionOracleURL)
	v.SetDefault("render_concurrency", cfg.RenderConcurrency)
	v.SetDefault("http_addr", cfg.HTTPAddr)

	v.SetConfigName("clipsmith")
	v.AddConfigPath(".")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg.DataDir = v.GetString("data_dir")
	cfg.FFmpegPath = v.GetString("ffmpeg_path")
	cfg.FFprobePath = v.GetString("ffprobe_path")
	cfg.RenderConcurrency = v.GetInt("render_concurrency")
	cfg.HTTPAddr = v.GetString("http_addr")
	cfg.VisionOracleURL = v.GetString("vision_oracle_url")

	var err error
	if cfg.VADInferenceTimeout, err = time.ParseDuration(v.GetString("vad_inference_timeout")); err != nil {
		return cfg, fmt.Errorf("config: vad_inference_timeout: %w", err)
	}
	if cfg.VisionOracleTimeout, err = time.ParseDuration(v.GetString("vision_oracle_timeout")); err != nil {
		return cfg, fmt.Errorf("config: vision_oracle_timeout: %w", err)
	}

	cfg.applyDataDir(v.GetString("cache_dir"), v.GetString("output_dir"), v.GetString("scratch_dir"), v.GetString("vad_cache_dir"))
	return cfg, nil
}

// applyDataDir rebases the cache/output/scratch/VAD-cache directories under
// DataDir when DataDir was overridden, matching main.go's *dataDirFlag
// handling in the teacher.
func (c *Config) applyDataDir(cacheDir, outputDir, scratchDir, vadCacheDir string) {
	if c.DataDir == "." {
		c.CacheDir, c.OutputDir, c.ScratchDir, c.VADCacheDir = cacheDir, outputDir, scratchDir, vadCacheDir
		return
	}
	abs, err := filepath.Abs(c.DataDir)
	if err != nil {
		abs = c.DataDir
	}
	c.CacheDir = filepath.Join(abs, "cache")
	c.OutputDir = filepath.Join(abs, "output")
	c.ScratchDir = filepath.Join(abs, "cache", "scratch")
	c.VADCacheDir = filepath.Join(abs, "cache", "vad")
}
