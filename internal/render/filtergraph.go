// Package render implements C9: building the exact filter-graph string the
// external media tool consumes, verifying the plan/assembled-audio sync
// invariant, and invoking the tool. The filter-graph string format is the
// one bit-exact wire contract the core owns (spec §6); everything else in
// this package (the subprocess wrapper, OS-conditional window
// suppression) is grounded on the teacher's renderer.go invocation style.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clipsmith/pipeline/internal/crop"
	"github.com/clipsmith/pipeline/internal/planner"
)

// FilterGraph is the built filter-graph string, ready to hand to the
// external tool.
type FilterGraph struct {
	Graph string
}

// BuildFilterGraph implements spec §6's emission contract exactly:
//
//	trim=start={src_start}:end={src_end},setpts=PTS-STARTPTS   (per kept segment)
//	concat=n=N:v=1:a=0                                          (omitted when N=1)
//	scale={sw}:{sh},crop={w}:{h}:{x}:{y}
//	subtitles={ass_path}                                        (optional)
//
// assPath is empty when no captions were produced for this request.
func BuildFilterGraph(plan *planner.EditPlan, region crop.Region, format crop.Format, assPath string) FilterGraph {
	n := len(plan.KeptSegments)
	var b strings.Builder

	labels := make([]string, n)
	for i, seg := range plan.KeptSegments {
		label := fmt.Sprintf("[v%d]", i)
		labels[i] = label
		fmt.Fprintf(&b, "[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS%s;",
			formatSeconds(seg.SrcStart), formatSeconds(seg.SrcEnd), label)
	}

	var mergedLabel string
	if n == 1 {
		mergedLabel = labels[0]
	} else {
		mergedLabel = "[vcat]"
		for _, l := range labels {
			b.WriteString(l)
		}
		fmt.Fprintf(&b, "concat=n=%d:v=1:a=0%s;", n, mergedLabel)
	}

	fmt.Fprintf(&b, "%sscale=%d:%d,crop=%d:%d:%d:%d",
		mergedLabel, format.Width, format.Height, region.W, region.H, region.X, region.Y)

	if assPath != "" {
		fmt.Fprintf(&b, ",subtitles=%s", assPath)
	}

	return FilterGraph{Graph: b.String()}
}

// formatSeconds renders a source-time value the way ffmpeg filter options
// expect: no exponent notation, always six decimal places (e.g. "90.000000").
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
