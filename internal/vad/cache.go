package vad

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clipsmith/pipeline/internal/errs"
	"github.com/clipsmith/pipeline/internal/preset"
)

// Hash fingerprints a file the way the teacher's analyzer.go fileHash does:
// size plus the first and last 1MiB, so a re-run on an unchanged source hits
// the disk cache without rereading the whole file.
func Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	size := info.Size()
	const chunk = 1024 * 1024

	h := md5.New() //nolint:gosec
	fmt.Fprintf(h, "%d", size)

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, chunk)
	n, _ := f.Read(head)
	h.Write(head[:n])

	if size > chunk {
		if _, err := f.Seek(-chunk, io.SeekEnd); err == nil {
			tail := make([]byte, chunk)
			n, _ = f.Read(tail)
			h.Write(tail[:n])
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Analyzer owns the process-wide VAD cache (spec §5): readers don't block
// each other, and a compute-and-insert for a given (source_id, preset) runs
// at most once concurrently via singleflight, the same "only one goroutine
// computes, the rest wait" shape the spec requires instead of holding a lock
// across the blocking VAD inference call.
type Analyzer struct {
	Detector Detector
	CacheDir string

	group singleflight.Group
}

// New returns an Analyzer backed by detector, persisting results under cacheDir.
func New(detector Detector, cacheDir string) *Analyzer {
	return &Analyzer{Detector: detector, CacheDir: cacheDir}
}

// Analyze returns the VadAnalysis for (sourceID, cfg.Name), computing it at
// most once across concurrent callers. samples/sampleRate/duration describe
// the full-source PCM the orchestrator decoded upstream.
func (a *Analyzer) Analyze(ctx context.Context, sourceID string, samples []float32, sampleRate int, duration float64, cfg preset.Config) (*Analysis, error) {
	key := sourceID + "|" + cfg.Name

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		if cached, ok := a.loadCached(sourceID, cfg.Name); ok {
			slog.Debug("vad cache hit", "source_id", sourceID, "preset", cfg.Name)
			return cached, nil
		}

		slog.Debug("vad cache miss, analyzing", "source_id", sourceID, "preset", cfg.Name)
		raw, err := a.Detector.Detect(ctx, samples, sampleRate, cfg.VADThreshold)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrAnalyzerUnavailable, err)
		}

		speech, silence, err := BuildPartition(raw, duration)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrAnalyzerUnavailable, err)
		}

		analysis := &Analysis{
			SourceID:        sourceID,
			Duration:        duration,
			SpeechSegments:  speech,
			SilenceSegments: silence,
			Preset:          cfg.Name,
			Config:          cfg,
			GeneratedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		}

		if err := a.saveCached(sourceID, cfg.Name, analysis); err != nil {
			slog.Warn("vad cache write failed", "source_id", sourceID, "preset", cfg.Name, "error", err)
		}
		return analysis, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Analysis), nil
}

// Clear invalidates the cached analysis for a single source across all
// presets (manual invalidation, spec §4.3's cache ownership note).
func (a *Analyzer) Clear(sourceID string) error {
	matches, err := filepath.Glob(filepath.Join(a.CacheDir, sourceID+"_*.json"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (a *Analyzer) cachePath(sourceID, presetName string) string {
	return filepath.Join(a.CacheDir, fmt.Sprintf("%s_%s.json", sourceID, presetName))
}

func (a *Analyzer) loadCached(sourceID, presetName string) (*Analysis, bool) {
	data, err := os.ReadFile(a.cachePath(sourceID, presetName))
	if err != nil {
		return nil, false
	}
	var analysis Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, false
	}
	return &analysis, true
}

func (a *Analyzer) saveCached(sourceID, presetName string, analysis *Analysis) error {
	path := a.cachePath(sourceID, presetName)
	// sourceID may itself be a path, so create the entry's own directory.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
