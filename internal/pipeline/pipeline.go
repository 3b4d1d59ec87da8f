// Package pipeline implements C10: sequencing the probe/extract/analyze/
// plan/assemble/render chain for one export request. Grounded on the
// teacher's main.go handler shape (decode request, call the matching
// component, encode response) generalized from one HTTP handler per
// operation into a single sequenced operation spanning all of them, with
// the step-5 fan-out run through golang.org/x/sync/errgroup the way the
// rest of the corpus (e.g. the goworker package) uses errgroup-style
// fan-out/join for independent concurrent work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clipsmith/pipeline/internal/assembler"
	"github.com/clipsmith/pipeline/internal/audioextract"
	"github.com/clipsmith/pipeline/internal/captions"
	"github.com/clipsmith/pipeline/internal/config"
	"github.com/clipsmith/pipeline/internal/crop"
	"github.com/clipsmith/pipeline/internal/errs"
	"github.com/clipsmith/pipeline/internal/mediaprobe"
	"github.com/clipsmith/pipeline/internal/planner"
	"github.com/clipsmith/pipeline/internal/preset"
	"github.com/clipsmith/pipeline/internal/render"
	"github.com/clipsmith/pipeline/internal/vad"
	"github.com/clipsmith/pipeline/internal/vision"
)

// extractRateHz is the single decode rate C3 (analyze) and C5 (assemble)
// share, per spec §4.2's "both receive the same byte sequence" requirement.
const extractRateHz = 48000

// ClipRequest is the pipeline's entry point argument (spec §3).
type ClipRequest struct {
	SourceID        string
	ClipStart       float64
	ClipEnd         float64
	TargetFormat    string
	Preset          string
	IncludeCaptions bool
	Transcript      []captions.Word
	Adjustments     *planner.Adjustments
}

// ExportResult is the pipeline's typed outcome (spec §3). FailureKind is
// populated only when Success is false, naming the §7 error kind that
// produced the soft failure (currently only EmptyPlan reaches this path;
// every other kind is a fatal Go error returned alongside a nil result).
type ExportResult struct {
	Success bool

	FailureKind string
	Message     string

	OutputPath string

	OriginalDuration float64
	EditedDuration   float64
	TimeSaved        float64

	SubjectPosition *vision.SubjectPosition
	Crop            *crop.Region
	NeedsReview     bool

	PlanSummary string
	Captions    []captions.CaptionChunk
}

// Renderer is the C9 collaborator the orchestrator drives; render.Runner
// satisfies it against real ffmpeg, tests substitute a fake so export_clip
// is exercisable without an external process.
type Renderer interface {
	Run(ctx context.Context, videoInput, audioInput string, fg render.FilterGraph, outputPath string) error
}

// Pipeline wires the per-request components (C1, C2, C7, C9) and the
// process-wide VAD cache (C3) into one sequenced export_clip operation.
// Ownership matches spec §3/§5: the VAD analyzer is the only field shared
// across requests; everything else is stateless or per-call.
type Pipeline struct {
	Config config.Config

	Prober    mediaprobe.Prober
	Extractor audioextract.Extractor
	VAD       *vad.Analyzer
	Localizer *vision.Localizer
	Renderer  Renderer
}

// New wires a Pipeline from its collaborators.
func New(cfg config.Config, prober mediaprobe.Prober, extractor audioextract.Extractor, analyzer *vad.Analyzer, localizer *vision.Localizer, renderer Renderer) *Pipeline {
	return &Pipeline{
		Config:    cfg,
		Prober:    prober,
		Extractor: extractor,
		VAD:       analyzer,
		Localizer: localizer,
		Renderer:  renderer,
	}
}

// ExportClip implements spec §4.10's 7-step sequence. A non-nil error means
// a fatal §7 kind (InvalidRange, SourceUnreadable, DecodeFailed,
// AnalyzerUnavailable, RenderFailed, SyncError) or cancellation; callers
// should check errors.Is against internal/errs. EmptyPlan is the one kind
// that instead comes back as a non-error ExportResult with Success=false,
// so a caller never has to special-case it against the fatal kinds.
func (p *Pipeline) ExportClip(ctx context.Context, req ClipRequest) (*ExportResult, error) {
	if req.ClipEnd <= req.ClipStart {
		return nil, fmt.Errorf("%w: clip_end <= clip_start", errs.ErrInvalidRange)
	}

	format, ok := crop.LookupFormat(req.TargetFormat)
	if !ok {
		return nil, fmt.Errorf("%w: unknown target format %q", errs.ErrInvalidRange, req.TargetFormat)
	}

	cfg, err := preset.Lookup(req.Preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidRange, err)
	}

	meta, err := p.Prober.Probe(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}
	if req.ClipEnd > meta.DurationS {
		return nil, fmt.Errorf("%w: clip_end %.3f exceeds source duration %.3f", errs.ErrInvalidRange, req.ClipEnd, meta.DurationS)
	}

	scratchDir := filepath.Join(p.Config.ScratchDir, uuid.NewString())
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", errs.ErrDecodeFailed, err)
	}
	defer os.RemoveAll(scratchDir)

	pcmPath, err := p.Extractor.ExtractRange(ctx, req.SourceID, 0, meta.DurationS, extractRateHz, true)
	if err != nil {
		return nil, err
	}
	samples, err := audioextract.ReadMonoFloat32(pcmPath)
	if err != nil {
		return nil, err
	}

	analysis, err := p.VAD.Analyze(ctx, req.SourceID, samples, extractRateHz, meta.DurationS, cfg)
	if err != nil {
		return nil, err
	}

	plan, err := planner.Plan(analysis, req.ClipStart, req.ClipEnd, cfg, req.Adjustments)
	if errors.Is(err, errs.ErrEmptyPlan) {
		return &ExportResult{
			Success:          false,
			FailureKind:      "EmptyPlan",
			Message:          err.Error(),
			OriginalDuration: req.ClipEnd - req.ClipStart,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var assembled []float32
	var subjectPos vision.SubjectPosition
	var region crop.Region
	var visionNeedsReview bool
	var chunks []captions.CaptionChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var assembleErr error
		assembled, assembleErr = assembler.Assemble(samples, extractRateHz, plan)
		return assembleErr
	})
	g.Go(func() error {
		subjectPos = p.Localizer.Localize(gctx, req.SourceID, req.ClipStart, req.ClipEnd)
		var clamped bool
		region, clamped = crop.Compute(meta.Width, meta.Height, format, crop.SubjectPosition{
			NX: subjectPos.NX, NY: subjectPos.NY, Confidence: subjectPos.Confidence,
		})
		visionNeedsReview = clamped || subjectPos.Confidence == 0
		return nil
	})
	if req.IncludeCaptions && len(req.Transcript) > 0 {
		g.Go(func() error {
			chunks = captions.RebaseCaptions(req.Transcript, req.ClipStart, req.ClipEnd, plan, captions.Style{})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	assembledDurationS := float64(len(assembled)) / float64(extractRateHz)
	if err := render.CheckSync(plan, assembledDurationS, meta.FrameRate); err != nil {
		return nil, err
	}

	audioPath := filepath.Join(scratchDir, "assembled.wav")
	if err := audioextract.WriteWAVFloat32(audioPath, assembled, extractRateHz); err != nil {
		return nil, fmt.Errorf("%w: write assembled audio: %v", errs.ErrRenderFailed, err)
	}

	var assPath string
	if len(chunks) > 0 {
		assPath = filepath.Join(scratchDir, "captions.ass")
		if err := captions.WriteASS(chunks, assPath); err != nil {
			return nil, fmt.Errorf("%w: write captions: %v", errs.ErrRenderFailed, err)
		}
	}

	fg := render.BuildFilterGraph(plan, region, format, assPath)

	if err := os.MkdirAll(p.Config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: output dir: %v", errs.ErrRenderFailed, err)
	}
	outputPath := filepath.Join(p.Config.OutputDir, fmt.Sprintf("%s.mp4", uuid.NewString()))
	if err := p.Renderer.Run(ctx, req.SourceID, audioPath, fg, outputPath); err != nil {
		return nil, err
	}

	editedDuration := plan.EstimatedOutputDuration
	return &ExportResult{
		Success:          true,
		OutputPath:       outputPath,
		OriginalDuration: req.ClipEnd - req.ClipStart,
		EditedDuration:   editedDuration,
		TimeSaved:        (req.ClipEnd - req.ClipStart) - editedDuration,
		SubjectPosition:  &subjectPos,
		Crop:             &region,
		NeedsReview:      visionNeedsReview,
		PlanSummary:      fmt.Sprintf("%d kept segments, %d crossfades", len(plan.KeptSegments), countCrossfades(plan)),
		Captions:         chunks,
	}, nil
}

func countCrossfades(plan *planner.EditPlan) int {
	n := 0
	for _, seg := range plan.KeptSegments {
		if seg.TrailFadeS > 0 {
			n++
		}
	}
	return n
}
