package planner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipsmith/pipeline/internal/errs"
	"github.com/clipsmith/pipeline/internal/preset"
	"github.com/clipsmith/pipeline/internal/vad"
)

func tiktokCfg(t *testing.T) preset.Config {
	cfg, err := preset.Lookup(preset.TikTok)
	require.NoError(t, err)
	return cfg
}

func TestPlan_RejectsEmptyClipWindow(t *testing.T) {
	cfg := tiktokCfg(t)
	analysis := &vad.Analysis{
		Duration:        10,
		SpeechSegments:  []vad.Segment{{Start: 1, End: 2}},
		SilenceSegments: []vad.Segment{{Start: 0, End: 1}, {Start: 2, End: 10}},
	}
	_, err := Plan(analysis, 5, 5, cfg, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidRange)
}

func TestPlan_EmptyPlanWhenPureSilence(t *testing.T) {
	cfg := tiktokCfg(t)
	analysis := &vad.Analysis{
		Duration:        10,
		SpeechSegments:  nil,
		SilenceSegments: []vad.Segment{{Start: 0, End: 10}},
	}
	_, err := Plan(analysis, 1, 6, cfg, nil)
	assert.ErrorIs(t, err, errs.ErrEmptyPlan)
}

func TestPlan_KeptSegmentsMonotoneAndInsideClip(t *testing.T) {
	cfg := tiktokCfg(t)
	analysis := &vad.Analysis{
		Duration: 30,
		SpeechSegments: []vad.Segment{
			{Start: 1, End: 3},
			{Start: 6, End: 9},
			{Start: 15, End: 18},
		},
		SilenceSegments: []vad.Segment{
			{Start: 0, End: 1},
			{Start: 3, End: 6},
			{Start: 9, End: 15},
			{Start: 18, End: 30},
		},
	}

	plan, err := Plan(analysis, 0, 20, cfg, nil)
	require.NoError(t, err)
	require.NotEmpty(t, plan.KeptSegments)

	for i, k := range plan.KeptSegments {
		assert.GreaterOrEqual(t, k.SrcStart, 0.0)
		assert.LessOrEqual(t, k.SrcEnd, 20.0)
		assert.Less(t, k.SrcStart, k.SrcEnd)
		if i > 0 {
			assert.GreaterOrEqual(t, k.SrcStart, plan.KeptSegments[i-1].SrcEnd)
		}
	}

	for i, e := range plan.Timeline.Entries {
		assert.Less(t, e.OutStart, e.OutEnd)
		if i > 0 {
			assert.GreaterOrEqual(t, e.OutStart, plan.Timeline.Entries[i-1].OutStart)
		}
	}
	assert.InDelta(t, plan.Timeline.Entries[len(plan.Timeline.Entries)-1].OutEnd, plan.EstimatedOutputDuration, 1e-9)
}

func TestPlan_IsDeterministic(t *testing.T) {
	cfg := tiktokCfg(t)
	analysis := &vad.Analysis{
		Duration: 20,
		SpeechSegments: []vad.Segment{
			{Start: 2, End: 4},
			{Start: 10, End: 13},
		},
		SilenceSegments: []vad.Segment{
			{Start: 0, End: 2},
			{Start: 4, End: 10},
			{Start: 13, End: 20},
		},
	}

	p1, err := Plan(analysis, 0, 20, cfg, nil)
	require.NoError(t, err)
	p2, err := Plan(analysis, 0, 20, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestPlan_TrimmedSilenceResidueStandsAloneBetweenSpeechRuns(t *testing.T) {
	cfg := tiktokCfg(t)
	// Silence far longer than max_kept_silence_s trims to a nonzero
	// max_kept_silence_s residue: both its head and tail are cut away, so
	// its boundaries do not survive trimming and it stands alone as its
	// own KeptSegment, bridged to its neighbors by two crossfades. Speech
	// runs are padded by speech_padding_s, and the clip window's tail after
	// the last speech run is a trimmed silence too, so a fourth (residue)
	// segment follows.
	analysis := &vad.Analysis{
		Duration: 30,
		SpeechSegments: []vad.Segment{
			{Start: 0, End: 2},
			{Start: 20, End: 22},
		},
		SilenceSegments: []vad.Segment{
			{Start: 2, End: 20},
		},
	}
	plan, err := Plan(analysis, 0, 30, cfg, nil)
	require.NoError(t, err)
	require.Len(t, plan.KeptSegments, 4)
	assert.InDelta(t, 0, plan.KeptSegments[0].SrcStart, 1e-9)
	assert.InDelta(t, 2+cfg.SpeechPaddingS, plan.KeptSegments[0].SrcEnd, 1e-9)
	assert.InDelta(t, cfg.MaxKeptSilenceS, plan.KeptSegments[1].SrcDuration(), 1e-9)
	assert.InDelta(t, 20-cfg.SpeechPaddingS, plan.KeptSegments[2].SrcStart, 1e-9)
	assert.InDelta(t, 22+cfg.SpeechPaddingS, plan.KeptSegments[2].SrcEnd, 1e-9)
}

func TestPlan_OverrideKeepMSZeroMergesAdjacentSpeech(t *testing.T) {
	cfg := tiktokCfg(t)
	analysis := &vad.Analysis{
		Duration: 10,
		SpeechSegments: []vad.Segment{
			{Start: 0, End: 2},
			{Start: 3, End: 5},
		},
		SilenceSegments: []vad.Segment{
			{Start: 2, End: 3},
		},
	}
	adj := &Adjustments{
		Overrides: []Override{{SrcStart: 2, KeepMS: 0}},
	}
	plan, err := Plan(analysis, 0, 10, cfg, adj)
	require.NoError(t, err)
	// keep_ms=0 leaves no residual middle segment to emit: the two (padded)
	// speech runs end up as two adjacent KeptSegments joined by a single
	// crossfade, rather than two crossfades around an empty middle one.
	// The clip window's tail after 5s is a trimmed silence and leaves a
	// third, trailing residue segment.
	require.Len(t, plan.KeptSegments, 3, "keep_ms=0 override joins the speech runs directly; only the trailing residue follows")
	assert.InDelta(t, 0, plan.KeptSegments[0].SrcStart, 1e-9)
	assert.InDelta(t, 2+cfg.SpeechPaddingS, plan.KeptSegments[0].SrcEnd, 1e-9)
	assert.InDelta(t, 3-cfg.SpeechPaddingS, plan.KeptSegments[1].SrcStart, 1e-9)
	assert.InDelta(t, 5+cfg.SpeechPaddingS, plan.KeptSegments[1].SrcEnd, 1e-9)
	assert.Equal(t, cfg.CrossfadeS, plan.KeptSegments[0].TrailFadeS)
	assert.Equal(t, cfg.CrossfadeS, plan.KeptSegments[1].LeadFadeS)
}

func TestPlan_CrossfadeAssignedBetweenAdjacentKeptSegmentsOnly(t *testing.T) {
	cfg := tiktokCfg(t)
	analysis := &vad.Analysis{
		Duration: 10,
		SpeechSegments: []vad.Segment{
			{Start: 0, End: 2},
			{Start: 8, End: 10},
		},
		SilenceSegments: []vad.Segment{
			{Start: 2, End: 8},
		},
	}
	plan, err := Plan(analysis, 0, 10, cfg, nil)
	require.NoError(t, err)
	require.Len(t, plan.KeptSegments, 3)

	assert.Equal(t, 0.0, plan.KeptSegments[0].LeadFadeS, "plan boundary gets zero fade")
	assert.Equal(t, cfg.CrossfadeS, plan.KeptSegments[0].TrailFadeS)
	assert.Equal(t, cfg.CrossfadeS, plan.KeptSegments[1].LeadFadeS)
	assert.Equal(t, cfg.CrossfadeS, plan.KeptSegments[1].TrailFadeS)
	assert.Equal(t, cfg.CrossfadeS, plan.KeptSegments[2].LeadFadeS)
	assert.Equal(t, 0.0, plan.KeptSegments[2].TrailFadeS, "plan boundary gets zero fade")
}

func TestTimelineMap_ToOutput_DropsWordsOutsideKeptSegments(t *testing.T) {
	tm := TimelineMap{Entries: []TimelineEntry{
		{SrcStart: 0, SrcEnd: 5, OutStart: 0, OutEnd: 5},
		{SrcStart: 5.01, SrcEnd: 8, OutStart: 5, OutEnd: 7.99},
	}}

	out, ok := tm.ToOutput(2.5)
	require.True(t, ok)
	assert.InDelta(t, 2.5, out, 1e-9)

	_, ok = tm.ToOutput(5.005) // inside the fully-trimmed gap
	assert.False(t, ok)

	out, ok = tm.ToOutput(6)
	require.True(t, ok)
	assert.InDelta(t, 5.99, out, 1e-9)
}

// TestPlan_RandomizedTimelineHasNoDriftOrNegativeSpans runs many randomly
// generated speech/silence patterns through Plan and checks the TimelineMap
// it produces never drifts from the sum of its own entries and never
// produces a negative-duration span, regardless of how ragged the input
// segmentation is. Adapted from the headless timeline simulator the
// renderer's mix-timeline loop was checked against, rerun here against
// KeptSegments/TimelineMap instead of track transitions.
func TestPlan_RandomizedTimelineHasNoDriftOrNegativeSpans(t *testing.T) {
	cfg := tiktokCfg(t)
	rng := rand.New(rand.NewSource(42))

	for iteration := 0; iteration < 30; iteration++ {
		numSegments := 3 + rng.Intn(8)
		duration := 20.0 + rng.Float64()*40.0

		var speech, silence []vad.Segment
		cursor := 0.0
		for i := 0; i < numSegments && cursor < duration; i++ {
			segLen := 0.5 + rng.Float64()*3.0
			end := math.Min(cursor+segLen, duration)
			if i%2 == 0 {
				speech = append(speech, vad.Segment{Start: cursor, End: end})
			} else {
				silence = append(silence, vad.Segment{Start: cursor, End: end})
			}
			cursor = end
		}
		if cursor < duration {
			silence = append(silence, vad.Segment{Start: cursor, End: duration})
		}
		if len(speech) == 0 {
			continue // pure-silence draws are covered by TestPlan_EmptyPlanWhenPureSilence
		}

		analysis := &vad.Analysis{Duration: duration, SpeechSegments: speech, SilenceSegments: silence}
		plan, err := Plan(analysis, 0, duration, cfg, nil)
		require.NoError(t, err)

		var summed float64
		for i, e := range plan.Timeline.Entries {
			span := e.OutEnd - e.OutStart
			require.GreaterOrEqualf(t, span, 0.0, "run #%d: negative span at entry %d", iteration, i)
			summed += span
			if i > 0 {
				assert.GreaterOrEqualf(t, e.OutStart, plan.Timeline.Entries[i-1].OutStart, "run #%d: entry %d out of order", iteration, i)
			}
		}
		// Each TimelineEntry still spans its own KeptSegment's full source
		// duration; crossfades overlap those spans at the joins rather than
		// shortening them, so summed must be reduced by the total crossfade
		// overlap before comparing to EstimatedOutputDuration (§4.4).
		var crossfadeTotal float64
		for _, seg := range plan.KeptSegments {
			crossfadeTotal += seg.TrailFadeS
		}
		assert.InDeltaf(t, plan.EstimatedOutputDuration, summed-crossfadeTotal, 1e-9, "run #%d: drift between EstimatedOutputDuration and summed entries minus crossfade overlap", iteration)
	}
}
