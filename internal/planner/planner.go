// Package planner implements C4, the hardest single component: turning a
// VadAnalysis plus a clip range into an ordered list of kept segments and an
// output TimelineMap that every downstream consumer (assembler, captions,
// renderer) shares so edits never drift out of sync. Grounded in shape on
// the teacher's planner.go (GenerateMixPlan's candidate-generation-then-
// selection structure, sortPlaylist's ordered walk), generalized from
// song-transition selection to silence-trim segment computation.
package planner

import (
	"fmt"
	"sort"

	"github.com/clipsmith/pipeline/internal/errs"
	"github.com/clipsmith/pipeline/internal/preset"
	"github.com/clipsmith/pipeline/internal/vad"
)

// Override pins a single silence interval's kept duration, matched within
// 100ms against the start of that silence interval as it stands after
// speech padding (spec §4.4 step 3).
type Override struct {
	SrcStart float64
	KeepMS   float64
}

// Adjustments carries the optional per-request overrides (spec §4.4).
type Adjustments struct {
	MaxKeptSilenceS *float64
	Overrides       []Override
}

// KeptSegment is a contiguous range of source audio/video that survives
// silence trimming and appears in the output, with its crossfade durations
// into its neighbors (spec Glossary).
type KeptSegment struct {
	SrcStart   float64
	SrcEnd     float64
	LeadFadeS  float64
	TrailFadeS float64
}

func (k KeptSegment) SrcDuration() float64 { return k.SrcEnd - k.SrcStart }

// TimelineEntry maps one kept segment's source range onto its output range.
type TimelineEntry struct {
	SrcStart float64
	SrcEnd   float64
	OutStart float64
	OutEnd   float64
}

// TimelineMap is the ordered, immutable mapping every downstream component
// shares (spec §4.4 step 6). Entries are sorted by SrcStart; each entry
// starts in output-time where the previous one ends, less the crossfade
// between them, so crossfaded neighbours overlap by that fade.
type TimelineMap struct {
	Entries []TimelineEntry
}

// ToOutput maps a source-time instant to output-time. It returns
// (outTime, true) if srcT falls inside some kept segment, else
// (0, false) — callers (captions) must drop words with no containing
// segment, per spec §4.6 step 2.
func (t TimelineMap) ToOutput(srcT float64) (float64, bool) {
	for _, e := range t.Entries {
		if srcT >= e.SrcStart && srcT < e.SrcEnd {
			return e.OutStart + (srcT - e.SrcStart), true
		}
	}
	// Exact end-of-timeline edge case: srcT == last entry's SrcEnd.
	if n := len(t.Entries); n > 0 && srcT == t.Entries[n-1].SrcEnd {
		return t.Entries[n-1].OutEnd, true
	}
	return 0, false
}

// EditPlan is the immutable output of Plan: the kept segments in source
// order plus their shared TimelineMap (spec §3/§4.4).
type EditPlan struct {
	KeptSegments            []KeptSegment
	Timeline                TimelineMap
	EstimatedOutputDuration float64
}

type interval struct {
	start, end float64
	speech     bool
	// cut marks a silence interval that was actually trimmed (material
	// removed from its head and tail): its boundaries against neighboring
	// speech are real edits, not contiguous source, so it can never merge
	// into an adjacent KeptSegment (spec §4.4 step 4).
	cut bool
}

// Plan implements spec §4.4's seven-step algorithm: intersect with the clip
// window, pad speech, trim silence, concatenate surviving boundaries into
// kept segments, assign crossfades, and build the shared TimelineMap.
// Frame snapping is never performed here (spec §4.4): all arithmetic stays
// in floating-point source-time.
func Plan(analysis *vad.Analysis, clipStart, clipEnd float64, cfg preset.Config, adj *Adjustments) (*EditPlan, error) {
	if clipEnd <= clipStart {
		return nil, fmt.Errorf("%w: clip end <= clip start", errs.ErrInvalidRange)
	}

	maxKept := cfg.MaxKeptSilenceS
	var overrides []Override
	if adj != nil {
		if adj.MaxKeptSilenceS != nil {
			maxKept = *adj.MaxKeptSilenceS
		}
		overrides = adj.Overrides
	}

	clipped := intersectWithClip(analysis.SpeechSegments, analysis.SilenceSegments, clipStart, clipEnd)
	if len(clipped) == 0 {
		return nil, errs.ErrEmptyPlan
	}

	padded := padSpeech(clipped, cfg.SpeechPaddingS, clipStart, clipEnd)
	if !hasSpeech(padded) {
		// Nothing to anchor a KeptSegment to: a trimmed silence residue on
		// its own (e.g. the whole clip window is silence) is not a plan,
		// it is a scrap of quiet with no speech to preserve.
		return nil, errs.ErrEmptyPlan
	}
	trimmed := trimSilence(padded, cfg.MinSilenceS, maxKept, overrides)

	kept := concatenateKept(trimmed)
	if len(kept) == 0 {
		return nil, errs.ErrEmptyPlan
	}

	assignCrossfades(kept, cfg.CrossfadeS)
	timeline, outDuration := buildTimeline(kept)

	return &EditPlan{
		KeptSegments:            kept,
		Timeline:                timeline,
		EstimatedOutputDuration: outDuration,
	}, nil
}

// intersectWithClip clips every speech/silence interval to [clipStart,
// clipEnd), drops empties, and returns the alternating list in source order
// (spec §4.4 step 1).
func intersectWithClip(speech, silence []vad.Segment, clipStart, clipEnd float64) []interval {
	var all []interval
	for _, s := range speech {
		if iv, ok := clipInterval(s, clipStart, clipEnd, true); ok {
			all = append(all, iv)
		}
	}
	for _, s := range silence {
		if iv, ok := clipInterval(s, clipStart, clipEnd, false); ok {
			all = append(all, iv)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].start < all[j].start })
	return all
}

func clipInterval(s vad.Segment, clipStart, clipEnd float64, speech bool) (interval, bool) {
	start, end := s.Start, s.End
	if start < clipStart {
		start = clipStart
	}
	if end > clipEnd {
		end = clipEnd
	}
	if end <= start {
		return interval{}, false
	}
	return interval{start: start, end: end, speech: speech}, true
}

// padSpeech pads each speech interval by paddingS on both sides, clamped to
// the clip window, resolving overlaps between adjacent padded speech
// intervals with a midpoint split (spec §4.4 step 2). Silence intervals are
// shrunk to the gaps that remain between padded speech.
func padSpeech(clipped []interval, paddingS, clipStart, clipEnd float64) []interval {
	speechIdx := make([]int, 0)
	for i, iv := range clipped {
		if iv.speech {
			speechIdx = append(speechIdx, i)
		}
	}
	if len(speechIdx) == 0 {
		return clipped
	}

	padded := make([]interval, len(clipped))
	copy(padded, clipped)

	for _, i := range speechIdx {
		padded[i].start -= paddingS
		padded[i].end += paddingS
		if padded[i].start < clipStart {
			padded[i].start = clipStart
		}
		if padded[i].end > clipEnd {
			padded[i].end = clipEnd
		}
	}

	// Resolve overlaps between consecutive padded speech intervals via
	// midpoint split; silence intervals between them shrink or vanish.
	for n := 0; n+1 < len(speechIdx); n++ {
		a, b := speechIdx[n], speechIdx[n+1]
		if padded[a].end > padded[b].start {
			mid := (padded[a].end + padded[b].start) / 2
			// mid might be less than original unpadded boundary; that's
			// fine, it's still within both original intervals' span.
			padded[a].end = mid
			padded[b].start = mid
		}
	}

	// Re-derive non-speech intervals as the gaps between (possibly now
	// overlapping-resolved) padded speech, preserving original boundaries
	// where padding didn't reach.
	out := make([]interval, 0, len(clipped))
	cursor := clipStart
	for _, i := range speechIdx {
		if padded[i].start > cursor {
			out = append(out, interval{start: cursor, end: padded[i].start, speech: false})
		}
		if padded[i].end > padded[i].start {
			out = append(out, interval{start: padded[i].start, end: padded[i].end, speech: true})
		}
		cursor = padded[i].end
	}
	if cursor < clipEnd {
		out = append(out, interval{start: cursor, end: clipEnd, speech: false})
	}
	return out
}

// cutEpsilonS is the tolerance below which a computed trim is treated as
// "no trim at all", avoiding float jitter from flagging an untrimmed
// silence as cut.
const cutEpsilonS = 1e-9

// trimSilence shortens each silence interval to keep_i per spec §4.4 step 3,
// trimming equally from both ends to preserve the interval's centre. A
// silence interval that ends up trimmed (trim > 0) is marked cut: per step 4
// its boundaries no longer survive trimming, so it cannot merge into an
// adjacent KeptSegment even if its kept residue has positive duration.
func trimSilence(ivs []interval, minSilenceS, maxKeptSilenceS float64, overrides []Override) []interval {
	out := make([]interval, len(ivs))
	copy(out, ivs)

	for i := range out {
		if out[i].speech {
			continue
		}
		d := out[i].end - out[i].start
		keep := d

		if ov, ok := matchOverride(out[i].start, overrides); ok {
			keep = ov.KeepMS / 1000.0
		} else if d >= minSilenceS {
			keep = d
			if keep > maxKeptSilenceS {
				keep = maxKeptSilenceS
			}
		}
		if keep > d {
			keep = d
		}
		if keep < 0 {
			keep = 0
		}

		trim := (d - keep) / 2
		out[i].start += trim
		out[i].end -= trim
		out[i].cut = trim > cutEpsilonS
	}
	return out
}

func matchOverride(silenceStart float64, overrides []Override) (Override, bool) {
	const matchToleranceS = 0.100
	for _, ov := range overrides {
		if abs(ov.SrcStart-silenceStart) < matchToleranceS {
			return ov, true
		}
	}
	return Override{}, false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// hasSpeech reports whether any interval carries actual speech duration.
func hasSpeech(ivs []interval) bool {
	for _, iv := range ivs {
		if iv.speech && iv.end > iv.start {
			return true
		}
	}
	return false
}

// concatenateKept walks the post-trim intervals and decides, at each
// boundary, whether it "survives trimming" (spec §4.4 step 4):
//
//   - An untrimmed interval (speech, or a silence short enough to need no
//     trim at all) is contiguous with its source neighbors and merges into
//     the current KeptSegment.
//   - A trimmed silence with a positive kept residue was cut on both sides
//     (material removed from its head and tail): it can never merge with a
//     neighbor, so it closes out the current run and stands alone as its
//     own KeptSegment.
//   - A trimmed silence reduced all the way to zero width (an override
//     pinning keep_ms=0) leaves no residue to emit at all; per the spec's
//     resolution of this case, the run on either side is simply closed and
//     reopened, producing one crossfade directly between the two
//     neighboring speech segments instead of two crossfades around an
//     empty middle segment.
func concatenateKept(ivs []interval) []KeptSegment {
	var kept []KeptSegment
	var current *KeptSegment

	closeCurrent := func() {
		if current != nil {
			kept = append(kept, *current)
			current = nil
		}
	}

	for _, iv := range ivs {
		d := iv.end - iv.start
		switch {
		case iv.cut && d <= cutEpsilonS:
			// Fully-removed silence: break, emit nothing for it.
			closeCurrent()
		case iv.cut:
			// Trimmed silence with a surviving residue: stands alone.
			closeCurrent()
			kept = append(kept, KeptSegment{SrcStart: iv.start, SrcEnd: iv.end})
		case d <= 0:
			// Degenerate zero-width speech interval (e.g. collapsed by the
			// midpoint-overlap split); contributes nothing but is not a cut.
			continue
		default:
			if current == nil {
				current = &KeptSegment{SrcStart: iv.start, SrcEnd: iv.end}
			} else {
				current.SrcEnd = iv.end
			}
		}
	}
	closeCurrent()
	return kept
}

// assignCrossfades sets trail/lead fades between adjacent kept segments to
// crossfadeS; plan boundaries get zero (spec §4.4 step 5).
func assignCrossfades(kept []KeptSegment, crossfadeS float64) {
	for i := 0; i+1 < len(kept); i++ {
		kept[i].TrailFadeS = crossfadeS
		kept[i+1].LeadFadeS = crossfadeS
	}
}

// buildTimeline scans kept segments in source order, accumulating output
// time. Crossfades cost no output time: out_start_{i+1} = out_end_i -
// crossfade_s when a fade joins i and i+1 (spec §4.4 step 6).
func buildTimeline(kept []KeptSegment) (TimelineMap, float64) {
	var entries []TimelineEntry
	outCursor := 0.0

	for i, k := range kept {
		if i > 0 && kept[i-1].TrailFadeS > 0 {
			outCursor -= kept[i-1].TrailFadeS
		}
		outStart := outCursor
		outEnd := outStart + k.SrcDuration()
		entries = append(entries, TimelineEntry{
			SrcStart: k.SrcStart,
			SrcEnd:   k.SrcEnd,
			OutStart: outStart,
			OutEnd:   outEnd,
		})
		outCursor = outEnd
	}

	var duration float64
	if len(entries) > 0 {
		duration = entries[len(entries)-1].OutEnd
	}
	return TimelineMap{Entries: entries}, duration
}
