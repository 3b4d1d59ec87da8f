package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clipsmith/pipeline/internal/crop"
	"github.com/clipsmith/pipeline/internal/planner"
)

func TestBuildFilterGraph_MultiSegmentEmitsConcat(t *testing.T) {
	plan := &planner.EditPlan{
		KeptSegments: []planner.KeptSegment{
			{SrcStart: 90, SrcEnd: 92},
			{SrcStart: 95, SrcEnd: 99},
			{SrcStart: 110, SrcEnd: 123},
		},
	}
	region := crop.Region{X: 10, Y: 0, W: 1215, H: 2160}

	fg := BuildFilterGraph(plan, region, crop.TikTok, "")

	assert.Contains(t, fg.Graph, "trim=start=90.000000:end=92.000000,setpts=PTS-STARTPTS")
	assert.Contains(t, fg.Graph, "trim=start=95.000000:end=99.000000,setpts=PTS-STARTPTS")
	assert.Contains(t, fg.Graph, "trim=start=110.000000:end=123.000000,setpts=PTS-STARTPTS")
	assert.Contains(t, fg.Graph, "concat=n=3:v=1:a=0")
	assert.Contains(t, fg.Graph, "scale=1080:1920,crop=1215:2160:10:0")
}

func TestBuildFilterGraph_SingleSegmentOmitsConcat(t *testing.T) {
	plan := &planner.EditPlan{
		KeptSegments: []planner.KeptSegment{
			{SrcStart: 1, SrcEnd: 5},
		},
	}
	region := crop.Region{X: 0, Y: 0, W: 1080, H: 1080}

	fg := BuildFilterGraph(plan, region, crop.LinkedInSquare, "")

	assert.NotContains(t, fg.Graph, "concat=")
	assert.Contains(t, fg.Graph, "trim=start=1.000000:end=5.000000,setpts=PTS-STARTPTS")
	assert.Contains(t, fg.Graph, "scale=1080:1080,crop=1080:1080:0:0")
}

func TestBuildFilterGraph_NoSubtitlesWhenAssPathEmpty(t *testing.T) {
	plan := &planner.EditPlan{KeptSegments: []planner.KeptSegment{{SrcStart: 0, SrcEnd: 1}}}
	fg := BuildFilterGraph(plan, crop.Region{W: 1080, H: 1920}, crop.TikTok, "")
	assert.False(t, strings.Contains(fg.Graph, "subtitles="))
}

func TestBuildFilterGraph_SubtitlesAppendedWhenProvided(t *testing.T) {
	plan := &planner.EditPlan{KeptSegments: []planner.KeptSegment{{SrcStart: 0, SrcEnd: 1}}}
	fg := BuildFilterGraph(plan, crop.Region{W: 1080, H: 1920}, crop.TikTok, "/tmp/cap.ass")
	assert.Contains(t, fg.Graph, "subtitles=/tmp/cap.ass")
}
