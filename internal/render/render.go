package render

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"

	"github.com/clipsmith/pipeline/internal/errs"
	"github.com/clipsmith/pipeline/internal/planner"
)

// defaultFrameRate sets CheckSync's one-frame tolerance (spec §4.9: "+/- 1
// frame") when the caller passes a non-positive frame rate.
const defaultFrameRate = 30.0

// Runner invokes the external media tool with a built filter graph. Grounded
// on the teacher's renderer.go exec.Command + hideWindow + stderr-capture
// pattern.
type Runner struct {
	BinPath string
}

// New returns a Runner using binPath (empty defaults to "ffmpeg" on PATH).
func New(binPath string) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &Runner{BinPath: binPath}
}

// CheckSync verifies spec §4.9's invariant: the plan's estimated output
// duration (kept-segment durations minus crossfade overlap, §4.4) must equal
// the assembled audio duration within one frame at frameRate. Returns
// errs.ErrSyncError (fatal) otherwise — never swallowed.
func CheckSync(plan *planner.EditPlan, assembledDurationS, frameRate float64) error {
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	tolerance := 1.0 / frameRate
	// A 1e-9 s slack keeps a difference of exactly one frame from failing
	// on floating-point rounding.
	if math.Abs(plan.EstimatedOutputDuration-assembledDurationS) > tolerance+1e-9 {
		return fmt.Errorf("%w: plan output duration %.6fs vs assembled audio %.6fs (tolerance %.6fs)",
			errs.ErrSyncError, plan.EstimatedOutputDuration, assembledDurationS, tolerance)
	}
	return nil
}

// Run invokes the external tool against videoInput/audioInput with the
// built filter graph, writing to outputPath. Errors are wrapped with
// errs.ErrRenderFailed (fatal, spec §4.9/§7).
func (r *Runner) Run(ctx context.Context, videoInput, audioInput string, fg FilterGraph, outputPath string) error {
	args := []string{
		"-v", "error",
		"-i", videoInput,
		"-i", audioInput,
		"-filter_complex", fg.Graph,
		"-map", "0:v",
		"-map", "1:a",
		"-shortest",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, r.BinPath, args...)
	hideWindow(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: ffmpeg render: %v: %s", errs.ErrRenderFailed, err, stderr.String())
	}
	return nil
}
