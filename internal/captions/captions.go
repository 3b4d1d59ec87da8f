// Package captions implements C6: rebasing transcript word timestamps
// through a plan's TimelineMap so captions never drift from the speech they
// caption, then greedily grouping rebased words into on-screen chunks.
// Grounded on naozine-zbor's internal/asr/vad.go segment-offset token
// timestamp adjustment for the idea of rebasing a word's timestamp against a
// shared offset, generalized here to the plan's full TimelineMap.
package captions

import (
	"fmt"
	"os"
	"strings"

	"github.com/clipsmith/pipeline/internal/planner"
)

// Word is one transcript token with its source-time span.
type Word struct {
	Text     string
	SrcStart float64
	SrcEnd   float64
}

// Style tunes chunk grouping (spec §4.6 step 3); zero-value fields fall
// back to the documented defaults via WithDefaults.
type Style struct {
	MaxWordsPerChunk  int
	MaxIntraChunkGapS float64
	MaxChunkDurationS float64
}

// WithDefaults fills unset fields with spec §4.6's defaults.
func (s Style) WithDefaults() Style {
	if s.MaxWordsPerChunk <= 0 {
		s.MaxWordsPerChunk = 6
	}
	if s.MaxIntraChunkGapS <= 0 {
		s.MaxIntraChunkGapS = 0.700
	}
	if s.MaxChunkDurationS <= 0 {
		s.MaxChunkDurationS = 3.0
	}
	return s
}

// TimedWord is a Word rebased into output-time.
type TimedWord struct {
	Text     string
	OutStart float64
	OutEnd   float64
}

// CaptionChunk is a group of rebased words meant to appear on screen
// together (spec §4.6 step 4).
type CaptionChunk struct {
	Words    []TimedWord
	OutStart float64
	OutEnd   float64
}

// RebaseCaptions filters words to the clip window, maps each through the
// plan's shared TimelineMap, and groups the survivors into chunks (spec
// §4.6). Words with no containing kept segment are dropped, not kept
// zero-duration or re-anchored elsewhere.
func RebaseCaptions(words []Word, clipStart, clipEnd float64, plan *planner.EditPlan, style Style) []CaptionChunk {
	style = style.WithDefaults()

	var timed []TimedWord
	for _, w := range words {
		if w.SrcEnd <= clipStart || w.SrcStart >= clipEnd {
			continue
		}
		mid := (w.SrcStart + w.SrcEnd) / 2
		outMid, ok := plan.Timeline.ToOutput(mid)
		if !ok {
			continue
		}
		dur := w.SrcEnd - w.SrcStart
		timed = append(timed, TimedWord{
			Text:     w.Text,
			OutStart: outMid - dur/2,
			OutEnd:   outMid + dur/2,
		})
	}

	return chunk(timed, style)
}

// chunk greedily groups rebased words into CaptionChunks, breaking whenever
// the chunk would exceed MaxWordsPerChunk, the gap to the next word exceeds
// MaxIntraChunkGapS, or the chunk's total duration would exceed
// MaxChunkDurationS (spec §4.6 step 3).
func chunk(words []TimedWord, style Style) []CaptionChunk {
	if len(words) == 0 {
		return nil
	}

	var chunks []CaptionChunk
	current := []TimedWord{words[0]}

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, CaptionChunk{
			Words:    current,
			OutStart: current[0].OutStart,
			OutEnd:   current[len(current)-1].OutEnd,
		})
		current = nil
	}

	for i := 1; i < len(words); i++ {
		prev := words[i-1]
		w := words[i]
		gap := w.OutStart - prev.OutEnd
		wouldBeDuration := w.OutEnd - current[0].OutStart

		if len(current) >= style.MaxWordsPerChunk ||
			gap > style.MaxIntraChunkGapS ||
			wouldBeDuration > style.MaxChunkDurationS {
			flush()
		}
		current = append(current, w)
	}
	flush()

	return chunks
}

// WriteASS burns chunks into a minimal karaoke-style Advanced SubStation
// Alpha file at path: one dialogue line per chunk, words revealed in turn
// via \k centisecond tags, the same per-word timing an ASS karaoke renderer
// expects from the `subtitles=` filter (spec §4.6/§6).
func WriteASS(chunks []CaptionChunk, path string) error {
	var b strings.Builder
	b.WriteString("[Script Info]\nScriptType: v4.00+\nWrapStyle: 0\nScaledBorderAndShadow: yes\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	b.WriteString("Style: Caption,Arial,64,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,-1,0,0,0,100,100,0,0,1,3,0,2,60,60,80,1\n\n")
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, c := range chunks {
		var text strings.Builder
		for _, w := range c.Words {
			centiseconds := int((w.OutEnd - w.OutStart) * 100)
			if centiseconds < 1 {
				centiseconds = 1
			}
			fmt.Fprintf(&text, "{\\k%d}%s ", centiseconds, w.Text)
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,%s\n",
			assTimestamp(c.OutStart), assTimestamp(c.OutEnd), strings.TrimSpace(text.String()))
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// assTimestamp formats seconds as ASS's H:MM:SS.CC timestamp.
func assTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalCentis := int(seconds*100 + 0.5)
	cs := totalCentis % 100
	totalSeconds := totalCentis / 100
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
