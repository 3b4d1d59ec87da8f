package assembler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipsmith/pipeline/internal/planner"
)

func constantPCM(n int, v float32) []float32 {
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = v
	}
	return pcm
}

func TestAssemble_SingleSegmentNoCrossfade(t *testing.T) {
	sampleRate := 1000
	pcm := constantPCM(5000, 1.0)

	plan := &planner.EditPlan{
		KeptSegments: []planner.KeptSegment{
			{SrcStart: 1.0, SrcEnd: 3.0},
		},
		EstimatedOutputDuration: 2.0,
	}

	out, err := Assemble(pcm, sampleRate, plan)
	require.NoError(t, err)
	assert.InDelta(t, 2000, len(out), 1)
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestAssemble_OutputLengthMatchesEstimatedDuration(t *testing.T) {
	sampleRate := 16000
	pcm := constantPCM(16000*10, 0.5)

	plan := &planner.EditPlan{
		KeptSegments: []planner.KeptSegment{
			{SrcStart: 0, SrcEnd: 2, TrailFadeS: 0.01},
			{SrcStart: 3, SrcEnd: 5, LeadFadeS: 0.01, TrailFadeS: 0.01},
			{SrcStart: 6, SrcEnd: 8, LeadFadeS: 0.01},
		},
		EstimatedOutputDuration: 5.98,
	}

	out, err := Assemble(pcm, sampleRate, plan)
	require.NoError(t, err)
	expected := int(math.Round(plan.EstimatedOutputDuration * float64(sampleRate)))
	assert.InDelta(t, expected, len(out), 1)
}

func TestAssemble_CrossfadeRegionIsEqualPower(t *testing.T) {
	sampleRate := 1000
	pcm := constantPCM(5000, 1.0)

	plan := &planner.EditPlan{
		KeptSegments: []planner.KeptSegment{
			{SrcStart: 0, SrcEnd: 1, TrailFadeS: 0.1},
			{SrcStart: 2, SrcEnd: 3, LeadFadeS: 0.1},
		},
		EstimatedOutputDuration: 1.9,
	}

	out, err := Assemble(pcm, sampleRate, plan)
	require.NoError(t, err)

	// Equal-power gains satisfy cos^2 + sin^2 == 1; for two identical
	// unit-amplitude inputs the overlap [900, 1000) therefore sums to
	// cos + sin (between 1 and sqrt(2)), and every other sample stays at 1.
	for i := 0; i < len(out); i++ {
		expected := 1.0
		if i >= 900 && i < 1000 {
			x := (math.Pi / 2) * (float64(i-900) / 100)
			expected = math.Cos(x) + math.Sin(x)
		}
		assert.InDelta(t, expected, out[i], 1e-5)
	}
}

func TestAssemble_RejectsEmptyPlan(t *testing.T) {
	_, err := Assemble([]float32{1, 2, 3}, 1000, &planner.EditPlan{})
	assert.Error(t, err)
}

func TestAssemble_TruncatesFadeLongerThanSegment(t *testing.T) {
	sampleRate := 1000
	pcm := constantPCM(5000, 1.0)

	plan := &planner.EditPlan{
		KeptSegments: []planner.KeptSegment{
			{SrcStart: 0, SrcEnd: 0.05, TrailFadeS: 1.0}, // fade far exceeds segment length
			{SrcStart: 1, SrcEnd: 1.05, LeadFadeS: 1.0},
		},
		EstimatedOutputDuration: 0.1,
	}

	out, err := Assemble(pcm, sampleRate, plan)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
