// Package mediaprobe implements C1: reporting duration, sample rate, frame
// rate, and resolution of a source video by shelling out to ffprobe, the
// way the teacher shells out to ffmpeg throughout the repo. Grounded on
// farcloser-haustorium's internal/integration/ffprobe/probe.go for the JSON
// shape and context-timeout invocation style.
package mediaprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/clipsmith/pipeline/internal/errs"
)

// Metadata is the result of probing a source (spec §4.1).
type Metadata struct {
	DurationS  float64
	SampleRate int
	FrameRate  float64
	Width      int
	Height     int
}

// Prober reports metadata for a source file. The default implementation
// shells out to ffprobe; tests substitute a fake.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// FFProbe invokes the ffprobe binary and parses its JSON output.
type FFProbe struct {
	BinPath string
}

// New returns an FFProbe using binPath (empty defaults to "ffprobe" on PATH).
func New(binPath string) *FFProbe {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &FFProbe{BinPath: binPath}
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

type ffprobeFormat struct {
	Duration string `json:"duration,omitempty"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// Probe reports duration_s, sample_rate, frame_rate, width, height for path.
// Errors are wrapped with errs.ErrSourceUnreadable (fatal, spec §4.1).
func (p *FFProbe) Probe(ctx context.Context, path string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, p.BinPath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		slog.Error("ffprobe failed", "path", path, "stderr", stderr.String(), "error", err)
		return Metadata{}, fmt.Errorf("%w: %s: %v", errs.ErrSourceUnreadable, path, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse ffprobe json: %v", errs.ErrSourceUnreadable, err)
	}

	meta, err := metadataFromProbe(parsed)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", errs.ErrSourceUnreadable, err)
	}
	return meta, nil
}

func metadataFromProbe(parsed ffprobeOutput) (Metadata, error) {
	var video, audio *ffprobeStream
	for i := range parsed.Streams {
		s := &parsed.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil {
		return Metadata{}, fmt.Errorf("no video stream found")
	}

	frameRate, err := parseRational(firstNonEmpty(video.AvgFrameRate, video.RFrameRate))
	if err != nil || frameRate <= 0 {
		return Metadata{}, fmt.Errorf("invalid frame rate %q", video.RFrameRate)
	}

	duration, err := strconv.ParseFloat(firstNonEmpty(parsed.Format.Duration, video.Duration), 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid duration: %w", err)
	}

	sampleRate := 0
	if audio != nil && audio.SampleRate != "" {
		sampleRate, _ = strconv.Atoi(audio.SampleRate)
	}

	return Metadata{
		DurationS:  duration,
		SampleRate: sampleRate,
		FrameRate:  frameRate,
		Width:      video.Width,
		Height:     video.Height,
	}, nil
}

// parseRational parses ffprobe's "30000/1001" style rate strings.
func parseRational(s string) (float64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return strconv.ParseFloat(s, 64)
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0, fmt.Errorf("invalid denominator in %q", s)
	}
	return num / den, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
