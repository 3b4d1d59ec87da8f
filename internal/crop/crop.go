// Package crop implements C8: computing the crop rectangle that frames the
// located subject within a target aspect ratio. This is pure geometry with
// no external collaborator or wire format in the example pack to ground
// against directly (see DESIGN.md for why this package is plain
// math/stdlib rather than a borrowed library); it mirrors the teacher's
// style of small deterministic numeric helpers (e.g. ComputePlayBounds in
// planner.go) rather than any one specific function.
package crop

import "math"

// Region is an integer-rounded crop rectangle in source pixel space.
type Region struct {
	X, Y, W, H int
}

// SubjectPosition is the minimal input crop needs from C7's aggregate
// (normalized position + confidence); duplicated here rather than importing
// the vision package so crop has no dependency on the oracle/frame-sampling
// machinery, only the numbers it actually consumes.
type SubjectPosition struct {
	NX, NY     float64
	Confidence float64
}

// Format is one of the fixed target delivery formats (spec §6).
type Format struct {
	Name    string
	Width   int
	Height  int
	AspectW int
	AspectH int
	ThirdsX float64
	ThirdsY float64
}

// Fixed target formats, per spec §6's table plus §4.8's rule-of-thirds
// placement rule (9:16 at 50/35, 1:1 and 4:5 at centre-centre).
var (
	TikTok         = Format{Name: "tiktok", Width: 1080, Height: 1920, AspectW: 9, AspectH: 16, ThirdsX: 0.50, ThirdsY: 0.35}
	YouTubeShorts  = Format{Name: "youtube_shorts", Width: 1080, Height: 1920, AspectW: 9, AspectH: 16, ThirdsX: 0.50, ThirdsY: 0.35}
	InstagramReels = Format{Name: "instagram_reels", Width: 1080, Height: 1920, AspectW: 9, AspectH: 16, ThirdsX: 0.50, ThirdsY: 0.35}
	LinkedIn       = Format{Name: "linkedin", Width: 1080, Height: 1350, AspectW: 4, AspectH: 5, ThirdsX: 0.50, ThirdsY: 0.50}
	LinkedInSquare = Format{Name: "linkedin_square", Width: 1080, Height: 1080, AspectW: 1, AspectH: 1, ThirdsX: 0.50, ThirdsY: 0.50}
)

var formatsByName = map[string]Format{
	TikTok.Name:         TikTok,
	YouTubeShorts.Name:  YouTubeShorts,
	InstagramReels.Name: InstagramReels,
	LinkedIn.Name:       LinkedIn,
	LinkedInSquare.Name: LinkedInSquare,
}

// LookupFormat returns the fixed Format for name, or false if unknown.
func LookupFormat(name string) (Format, bool) {
	f, ok := formatsByName[name]
	return f, ok
}

// needsReviewConfidenceFloor matches spec §4.8's "needs review" threshold.
const needsReviewConfidenceFloor = 0.70

// Compute implements spec §4.8: the largest format-aspect rectangle that
// fits inside (srcW, srcH), positioned so the subject lands on the format's
// rule-of-thirds point, clamped to the frame. Returns the region and
// whether it needs human review (low confidence, or a clamp that plausibly
// clipped the subject).
func Compute(srcW, srcH int, format Format, subject SubjectPosition) (Region, bool) {
	w, h := largestRect(srcW, srcH, format.AspectW, format.AspectH)

	subjectPxX := subject.NX * float64(srcW)
	subjectPxY := subject.NY * float64(srcH)

	// Position the rect so (subjectPxX, subjectPxY) lands at the format's
	// rule-of-thirds point within it.
	x := subjectPxX - format.ThirdsX*w
	y := subjectPxY - format.ThirdsY*h

	clampedX := clampFloat(x, 0, float64(srcW)-w)
	clampedY := clampFloat(y, 0, float64(srcH)-h)

	region := Region{
		X: int(math.Round(clampedX)),
		Y: int(math.Round(clampedY)),
		W: int(math.Round(w)),
		H: int(math.Round(h)),
	}

	clipped := clampedX != x || clampedY != y
	needsReview := subject.Confidence < needsReviewConfidenceFloor || clipped

	return region, needsReview
}

// largestRect returns the largest aspectW:aspectH rectangle that fits
// inside (srcW, srcH), as floats so rounding happens once at the end (spec
// §4.8: "round to integers, preserving aspect within 0.5px").
func largestRect(srcW, srcH, aspectW, aspectH int) (w, h float64) {
	srcAspect := float64(srcW) / float64(srcH)
	targetAspect := float64(aspectW) / float64(aspectH)

	if targetAspect > srcAspect {
		// Target is wider relative to height than source: width-limited.
		w = float64(srcW)
		h = w / targetAspect
	} else {
		h = float64(srcH)
		w = h * targetAspect
	}
	return w, h
}

func clampFloat(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NeedsUpscale reports whether the renderer must upscale region to fill
// format's output dimensions, rather than only downscale (spec §4.8:
// "no zoom unless necessary").
func NeedsUpscale(region Region, format Format) bool {
	return region.W < format.Width || region.H < format.Height
}
