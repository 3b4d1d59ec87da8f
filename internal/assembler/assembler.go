// Package assembler implements C5: concatenating a plan's KeptSegments from
// a decoded PCM stream into the output audio, applying equal-power
// crossfades at each join. Grounded on the teacher's RenderFinalMix PCM
// canvas-overlay approach (renderer.go): segments are written into a
// pre-sized output buffer and crossfade regions are summed rather than
// naively concatenated, with xfade duration clamped to the available
// segment length the same way RenderFinalMix clamps xfadeMs against the
// previous chunk's actual length.
package assembler

import (
	"fmt"
	"math"

	"github.com/clipsmith/pipeline/internal/errs"
	"github.com/clipsmith/pipeline/internal/planner"
)

// Assemble concatenates plan.KeptSegments from pcm (samples at sampleRate,
// mono) into output audio, applying equal-power crossfades at each join
// (spec §4.5). Output sample count equals
// round(plan.EstimatedOutputDuration * sampleRate) +/- 1.
func Assemble(pcm []float32, sampleRate int, plan *planner.EditPlan) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: non-positive sample rate", errs.ErrDecodeFailed)
	}
	if len(plan.KeptSegments) == 0 {
		return nil, fmt.Errorf("%w: plan has no kept segments", errs.ErrEmptyPlan)
	}

	outLen := int(math.Round(plan.EstimatedOutputDuration * float64(sampleRate)))
	if outLen < 0 {
		outLen = 0
	}
	out := make([]float32, outLen)

	writeCursor := 0
	for i, seg := range plan.KeptSegments {
		srcStart := sampleIndex(seg.SrcStart, sampleRate)
		srcEnd := sampleIndex(seg.SrcEnd, sampleRate)
		srcStart, srcEnd = clampRange(srcStart, srcEnd, len(pcm))
		if srcEnd <= srcStart {
			continue
		}
		segment := pcm[srcStart:srcEnd]

		leadFadeSamples := 0
		if i > 0 {
			leadFadeSamples = fadeSamples(seg.LeadFadeS, sampleRate, len(segment))
		}

		if i > 0 && leadFadeSamples > 0 {
			// Overlap region: the join point of the previous write with
			// this segment's head. writeCursor already stepped back by
			// the previous segment's trail fade (see below), so the first
			// leadFadeSamples samples of `segment` land on top of the
			// tail this wrote for the previous segment.
			writeEqualPowerOverlap(out, writeCursor, segment[:leadFadeSamples])
			copyClamped(out, writeCursor+leadFadeSamples, segment[leadFadeSamples:])
			writeCursor += len(segment)
		} else {
			copyClamped(out, writeCursor, segment)
			writeCursor += len(segment)
		}

		trailFadeSamples := fadeSamples(seg.TrailFadeS, sampleRate, len(segment))
		if trailFadeSamples > 0 && i+1 < len(plan.KeptSegments) {
			// Pre-apply this segment's tail-fade window now so the next
			// segment's overlap-write sums into already-windowed samples.
			applyTrailWindow(out, writeCursor-trailFadeSamples, trailFadeSamples)
			writeCursor -= trailFadeSamples
		}
	}

	if writeCursor < outLen {
		for i := writeCursor; i < outLen; i++ {
			out[i] = 0
		}
	}
	return out, nil
}

func sampleIndex(t float64, sampleRate int) int {
	return int(math.Round(t * float64(sampleRate)))
}

func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	return start, end
}

// fadeSamples bounds the nominal fade, in samples, to at most half the
// segment's own length: "when a segment is shorter than the nominal
// crossfade, the fade is shortened to the segment length" (spec §4.5). Half
// the length is used (rather than the full length) because both a lead and
// a trail fade may need room within the same short segment simultaneously.
func fadeSamples(fadeS float64, sampleRate, segmentLen int) int {
	n := int(math.Round(fadeS * float64(sampleRate)))
	if n <= 0 {
		return 0
	}
	maxAllowed := segmentLen / 2
	if n > maxAllowed {
		n = maxAllowed
	}
	return n
}

func copyClamped(dst []float32, at int, src []float32) {
	for i, v := range src {
		idx := at + i
		if idx < 0 || idx >= len(dst) {
			continue
		}
		dst[idx] = v
	}
}

// applyTrailWindow multiplies the last fadeLen samples already written at
// [at, at+fadeLen) by the equal-power fade-out window cos(pi/2 * t/L).
func applyTrailWindow(out []float32, at, fadeLen int) {
	if fadeLen <= 0 {
		return
	}
	l := float64(fadeLen)
	for t := 0; t < fadeLen; t++ {
		idx := at + t
		if idx < 0 || idx >= len(out) {
			continue
		}
		w := math.Cos((math.Pi / 2) * (float64(t) / l))
		out[idx] = float32(float64(out[idx]) * w)
	}
}

// writeEqualPowerOverlap sums `head` (the incoming segment's fade-in
// portion) into out starting at `at`, windowed by sin(pi/2 * t/L), onto
// whatever fade-out tail was already written there by the previous segment.
func writeEqualPowerOverlap(out []float32, at int, head []float32) {
	l := float64(len(head))
	if l == 0 {
		return
	}
	for t, v := range head {
		idx := at + t
		if idx < 0 || idx >= len(out) {
			continue
		}
		w := math.Sin((math.Pi / 2) * (float64(t) / l))
		out[idx] += float32(float64(v) * w)
	}
}
