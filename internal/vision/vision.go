// Package vision implements C7: sampling frames across a clip range and
// asking a vision oracle where the subject is, aggregating into a single
// confidence-weighted SubjectPosition. Retry/backoff is grounded on
// GriffinCanCode-good-listener's platform/internal/resilience/retry.go
// exponential-backoff-with-jitter loop; the oracle itself is an external
// collaborator reached over HTTP, same shape as that repo's other
// network-calling internals.
package vision

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/clipsmith/pipeline/internal/errs"
)

// SubjectPosition is the oracle's answer for one frame, or the aggregate
// across all sampled frames (spec §4.7).
type SubjectPosition struct {
	NX         float64
	NY         float64
	Confidence float64
}

// Oracle is the pluggable vision collaborator: given a JPEG frame, reports
// the subject's normalized position and confidence.
type Oracle interface {
	Locate(ctx context.Context, jpeg []byte) (SubjectPosition, error)
}

// FrameSource extracts a single JPEG frame at a source-time offset.
type FrameSource interface {
	FrameAt(ctx context.Context, source string, t float64) ([]byte, error)
}

// sampleFractions are the 5 fixed offsets within the clip range (spec §4.7).
var sampleFractions = []float64{0, 0.25, 0.5, 0.75, 1.0}

// minSuccessfulFrames is the floor below which localization falls back to
// dead centre with zero confidence (spec §4.7).
const minSuccessfulFrames = 3

// RetryConfig controls the oracle call's backoff, grounded on the teacher
// pack's resilience.Retry shape (spec §7: "100ms, 400ms").
type RetryConfig struct {
	Delays []time.Duration
}

// DefaultRetryConfig matches spec §7's two documented retry delays.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Delays: []time.Duration{100 * time.Millisecond, 400 * time.Millisecond}}
}

// Localizer samples frames across a clip range and aggregates the oracle's
// responses into one SubjectPosition.
type Localizer struct {
	Oracle Oracle
	Frames FrameSource
	Retry  RetryConfig
}

// New returns a Localizer with the default retry schedule.
func New(oracle Oracle, frames FrameSource) *Localizer {
	return &Localizer{Oracle: oracle, Frames: frames, Retry: DefaultRetryConfig()}
}

// Localize implements spec §4.7: sample 5 frames across [clipStart,
// clipEnd], call the oracle per frame with retry, and return the
// confidence-weighted mean position. Non-fatal on oracle failure: falls
// back to centre with zero confidence rather than propagating an error,
// since crop framing is a quality concern, not a correctness one.
func (l *Localizer) Localize(ctx context.Context, source string, clipStart, clipEnd float64) SubjectPosition {
	var results []SubjectPosition

	for _, frac := range sampleFractions {
		t := clipStart + frac*(clipEnd-clipStart)
		pos, err := l.locateOneFrame(ctx, source, t)
		if err != nil {
			slog.Warn("vision oracle frame failed", "source", source, "t", t, "error", err)
			continue
		}
		results = append(results, pos)
	}

	if len(results) < minSuccessfulFrames {
		slog.Warn("vision oracle degraded, falling back to centre crop",
			"source", source, "successful_frames", len(results))
		return SubjectPosition{NX: 0.5, NY: 0.5, Confidence: 0}
	}

	return aggregate(results)
}

func (l *Localizer) locateOneFrame(ctx context.Context, source string, t float64) (SubjectPosition, error) {
	jpeg, err := l.Frames.FrameAt(ctx, source, t)
	if err != nil {
		return SubjectPosition{}, err
	}

	var lastErr error
	attempts := append([]time.Duration{0}, l.Retry.Delays...)
	for i, delay := range attempts {
		if delay > 0 {
			jitter := time.Duration(rand.Int63n(int64(delay) / 4))
			select {
			case <-ctx.Done():
				return SubjectPosition{}, ctx.Err()
			case <-time.After(delay + jitter):
			}
		}
		pos, err := l.Oracle.Locate(ctx, jpeg)
		if err == nil {
			return pos, nil
		}
		lastErr = err
		if errors.Is(err, errs.ErrVisionUnavailable) {
			// The oracle reports itself unavailable (e.g. DisabledOracle):
			// waiting out the backoff cannot change the answer.
			break
		}
		slog.Debug("vision oracle retrying", "attempt", i+1, "error", err)
	}
	return SubjectPosition{}, fmtWrap(lastErr)
}

func fmtWrap(err error) error {
	if err == nil {
		return errs.ErrVisionUnavailable
	}
	return &wrappedErr{inner: err}
}

type wrappedErr struct{ inner error }

func (w *wrappedErr) Error() string { return errs.ErrVisionUnavailable.Error() + ": " + w.inner.Error() }
func (w *wrappedErr) Unwrap() error { return errs.ErrVisionUnavailable }

// aggregate returns the confidence-weighted mean position across results;
// overall confidence is the plain mean (spec §4.7).
func aggregate(results []SubjectPosition) SubjectPosition {
	var sumNX, sumNY, sumWeight, sumConf float64
	for _, r := range results {
		w := r.Confidence
		if w <= 0 {
			w = 1e-6 // avoid an all-zero-confidence set collapsing to NaN
		}
		sumNX += r.NX * w
		sumNY += r.NY * w
		sumWeight += w
		sumConf += r.Confidence
	}
	return SubjectPosition{
		NX:         sumNX / sumWeight,
		NY:         sumNY / sumWeight,
		Confidence: sumConf / float64(len(results)),
	}
}
