// Package vad implements C3: turning a PCM stream into a speech/silence
// partition of [0, duration), merging short gaps and intervals the way the
// teacher's dsp.go/analyzer.go pipeline turns raw samples into the
// TrackAnalysis's structured segments. The neural/energy detector itself is
// pluggable (Detector); this package owns the merge/pad contract and the
// process-wide cache (§4.3, §5).
package vad

import (
	"fmt"
	"sort"

	"github.com/clipsmith/pipeline/internal/preset"
)

// minSegmentS is the minimum interval duration the partition contract
// guarantees (spec §4.3): "each >= 20ms".
const minSegmentS = 0.020

// mergeGapS is the maximum gap between same-type raw detections that gets
// folded into a single interval (spec §4.3): "gaps < 10ms merged".
const mergeGapS = 0.010

// Segment is a half-open [Start, End) interval in source-time seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

// Analysis is the cacheable result of analyzing one source under one preset
// (spec §3's VadAnalysis). Keyed by (source_id, preset); immutable once built.
type Analysis struct {
	SourceID        string        `json:"source_id"`
	Duration        float64       `json:"duration"`
	SpeechSegments  []Segment     `json:"speech_segments"`
	SilenceSegments []Segment     `json:"silence_segments"`
	Preset          string        `json:"preset"`
	Config          preset.Config `json:"config"`
	GeneratedAt     string        `json:"generated_at"`
}

// BuildPartition turns raw speech detections (possibly overlapping, possibly
// containing sub-20ms noise blips) into the alternating speech/silence
// partition of [0, duration) required by spec §4.3: every interval >= 20ms,
// gaps between same-type raw detections < 10ms merged together first.
func BuildPartition(rawSpeech []Segment, duration float64) ([]Segment, []Segment, error) {
	if duration <= 0 {
		return nil, nil, fmt.Errorf("vad: non-positive duration %v", duration)
	}

	merged := mergeClose(clampAndSort(rawSpeech, duration), mergeGapS)
	segs := toAlternatingSegments(merged, duration)
	segs = collapseShort(segs, minSegmentS)

	var speech, silence []Segment
	for _, s := range segs {
		if s.isSpeech {
			speech = append(speech, s.Segment)
		} else {
			silence = append(silence, s.Segment)
		}
	}
	return speech, silence, nil
}

func clampAndSort(raw []Segment, duration float64) []Segment {
	out := make([]Segment, 0, len(raw))
	for _, s := range raw {
		start, end := s.Start, s.End
		if start < 0 {
			start = 0
		}
		if end > duration {
			end = duration
		}
		if end > start {
			out = append(out, Segment{Start: start, End: end})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// mergeClose merges overlapping or near-adjacent (gap < maxGap) segments of
// the same type into one.
func mergeClose(sorted []Segment, maxGap float64) []Segment {
	if len(sorted) == 0 {
		return nil
	}
	merged := []Segment{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.Start-last.End < maxGap {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

type typedSegment struct {
	Segment
	isSpeech bool
}

// toAlternatingSegments fills the gaps between merged speech intervals with
// silence intervals, producing a full alternating cover of [0, duration).
func toAlternatingSegments(speech []Segment, duration float64) []typedSegment {
	var out []typedSegment
	cursor := 0.0
	for _, sp := range speech {
		if sp.Start > cursor {
			out = append(out, typedSegment{Segment{cursor, sp.Start}, false})
		}
		out = append(out, typedSegment{sp, true})
		cursor = sp.End
	}
	if cursor < duration {
		out = append(out, typedSegment{Segment{cursor, duration}, false})
	}
	if len(out) == 0 {
		out = append(out, typedSegment{Segment{0, duration}, false})
	}
	return out
}

// collapseShort repeatedly folds any interval shorter than minDur into
// whichever neighbor is longer, adopting that neighbor's type. This keeps
// the partition alternating and contiguous while eliminating sub-threshold
// noise blips the detector might report.
func collapseShort(segs []typedSegment, minDur float64) []typedSegment {
	for {
		if len(segs) <= 1 {
			return segs
		}
		idx := -1
		shortest := minDur
		for i, s := range segs {
			if d := s.Duration(); d < shortest {
				shortest = d
				idx = i
			}
		}
		if idx == -1 {
			return segs
		}

		var mergeInto int
		switch {
		case idx == 0:
			mergeInto = 1
		case idx == len(segs)-1:
			mergeInto = idx - 1
		case segs[idx-1].Duration() >= segs[idx+1].Duration():
			mergeInto = idx - 1
		default:
			mergeInto = idx + 1
		}

		lo, hi := idx, mergeInto
		if lo > hi {
			lo, hi = hi, lo
		}
		combined := typedSegment{
			Segment:  Segment{Start: segs[lo].Start, End: segs[hi].End},
			isSpeech: segs[mergeInto].isSpeech,
		}
		next := make([]typedSegment, 0, len(segs)-1)
		next = append(next, segs[:lo]...)
		next = append(next, combined)
		next = append(next, segs[hi+1:]...)
		// combined adopted one neighbor's type; its *other* neighbor may now
		// share that type too, which would leave two adjacent same-type
		// segments. Fold those back together to keep the partition
		// alternating (spec §3).
		segs = coalesceAdjacentSameType(next)
	}
}

// coalesceAdjacentSameType folds consecutive same-type segments into one,
// keeping the partition alternating after a collapseShort merge pulls a
// short interval into a neighbor whose type the far side already shares.
func coalesceAdjacentSameType(segs []typedSegment) []typedSegment {
	if len(segs) <= 1 {
		return segs
	}
	out := make([]typedSegment, 0, len(segs))
	out = append(out, segs[0])
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if last.isSpeech == s.isSpeech {
			last.End = s.End
			continue
		}
		out = append(out, s)
	}
	return out
}
