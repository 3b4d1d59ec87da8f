package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"github.com/clipsmith/pipeline/internal/errs"
)

// HTTPOracle calls an externally hosted vision model over HTTP, the narrow
// contract spec §1 describes ("the vision model...treated as an oracle
// returning a normalized point with a confidence"). It posts the raw JPEG
// bytes and expects a JSON body shaped like SubjectPosition.
type HTTPOracle struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPOracle returns an HTTPOracle posting to url with the given
// per-call timeout (spec §5: "vision oracle 10s per frame").
func NewHTTPOracle(url string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{URL: url, Client: &http.Client{}, Timeout: timeout}
}

type oracleResponse struct {
	NX         float64 `json:"nx"`
	NY         float64 `json:"ny"`
	Confidence float64 `json:"confidence"`
}

// DisabledOracle is used when no oracle endpoint is configured: every call
// fails immediately, so Localize degrades straight to centre-crop without
// burning through the retry backoff against an endpoint that was never
// going to answer.
type DisabledOracle struct{}

func (DisabledOracle) Locate(ctx context.Context, jpeg []byte) (SubjectPosition, error) {
	return SubjectPosition{}, fmt.Errorf("%w: no oracle configured", errs.ErrVisionUnavailable)
}

// Locate posts jpeg to the oracle and parses its JSON response.
func (o *HTTPOracle) Locate(ctx context.Context, jpeg []byte) (SubjectPosition, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(jpeg))
	if err != nil {
		return SubjectPosition{}, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := o.Client.Do(req)
	if err != nil {
		return SubjectPosition{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return SubjectPosition{}, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, body)
	}

	var parsed oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return SubjectPosition{}, fmt.Errorf("decode oracle response: %w", err)
	}
	return SubjectPosition{NX: parsed.NX, NY: parsed.NY, Confidence: parsed.Confidence}, nil
}

// FFmpegFrameSource grabs a single JPEG frame at a source-time offset by
// shelling out to ffmpeg, the same -ss seek + single-frame-output idiom the
// rest of the pipeline uses for decoding (mediaprobe.FFProbe,
// audioextract.FFmpegExtractor).
type FFmpegFrameSource struct {
	BinPath string
}

// NewFFmpegFrameSource returns a FFmpegFrameSource. binPath empty defaults
// to "ffmpeg" on PATH.
func NewFFmpegFrameSource(binPath string) *FFmpegFrameSource {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegFrameSource{BinPath: binPath}
}

// FrameAt decodes the single frame nearest t and returns it as JPEG bytes,
// written to ffmpeg's stdout rather than a scratch file since callers only
// need the bytes for one oracle call.
func (s *FFmpegFrameSource) FrameAt(ctx context.Context, source string, t float64) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.6f", t),
		"-i", source,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, s.BinPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg frame grab at %.3fs: %v: %s", errs.ErrVisionUnavailable, t, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no frame at %.3fs", errs.ErrVisionUnavailable, t)
	}
	return stdout.Bytes(), nil
}
