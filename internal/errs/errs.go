// Package errs defines the sentinel error kinds shared by every pipeline
// component (spec §7). Components wrap these with fmt.Errorf("...: %w", ...)
// the way the teacher wraps ffmpeg failures in renderer.go/analyzer.go;
// callers recover the kind with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidRange: caller error, clip range outside source. Rejected
	// before any work starts.
	ErrInvalidRange = errors.New("invalid clip range")

	// ErrSourceUnreadable: C1 probe could not read the source (fatal).
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrDecodeFailed: C2 extractor could not decode the requested range (fatal).
	ErrDecodeFailed = errors.New("decode failed")

	// ErrAnalyzerUnavailable: C3 VAD detector failed; never silently
	// degrades to "no VAD" (fatal).
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

	// ErrEmptyPlan: C4 planner found no speech surviving the clip window
	// (soft failure — surfaced on ExportResult, not returned as an error
	// from export_clip).
	ErrEmptyPlan = errors.New("empty plan: no speech in clip window")

	// ErrVisionUnavailable: C7 oracle degraded; non-fatal, falls back to
	// centre crop with confidence 0.
	ErrVisionUnavailable = errors.New("vision oracle unavailable")

	// ErrRenderFailed: C9 external renderer invocation failed (fatal).
	ErrRenderFailed = errors.New("render failed")

	// ErrSyncError: invariant violation between planned and assembled/rendered
	// durations (fatal, indicates a bug upstream — never swallowed).
	ErrSyncError = errors.New("sync error: audio/video/caption desync")
)
