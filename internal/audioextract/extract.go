// Package audioextract implements C2: decoding a time range of a source to
// linear PCM at a known rate via ffmpeg, the way the teacher's analyzer.go
// decodeToPCM shells out to ffmpeg and reads back raw float32 samples.
// extract_range is the single decode path shared by the VAD analyzer (C3)
// and the audio assembler (C5) so that both operate on the exact same byte
// sequence — spec §4.2 requires this to avoid resampling mismatches.
package audioextract

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/clipsmith/pipeline/internal/errs"
)

// Extractor decodes [t0, t1) of a source to mono float32 PCM at rate Hz.
type Extractor interface {
	ExtractRange(ctx context.Context, source string, t0, t1 float64, rate int, mono bool) (string, error)
}

// FFmpegExtractor shells out to ffmpeg, writing raw f32le PCM to scratchDir.
type FFmpegExtractor struct {
	BinPath    string
	ScratchDir string
}

// New returns an FFmpegExtractor. binPath empty defaults to "ffmpeg" on PATH.
func New(binPath, scratchDir string) *FFmpegExtractor {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegExtractor{BinPath: binPath, ScratchDir: scratchDir}
}

// ExtractRange decodes [t0, t1) of source to a temp raw-PCM file and returns
// its path. Output length equals round((t1-t0)*rate) samples ± 1, per
// spec §4.2. Errors are wrapped with errs.ErrDecodeFailed (fatal).
func (e *FFmpegExtractor) ExtractRange(ctx context.Context, source string, t0, t1 float64, rate int, mono bool) (string, error) {
	if t1 <= t0 {
		return "", fmt.Errorf("%w: extract range end <= start", errs.ErrDecodeFailed)
	}
	if err := os.MkdirAll(e.ScratchDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: scratch dir: %v", errs.ErrDecodeFailed, err)
	}

	channels := "2"
	if mono {
		channels = "1"
	}
	outPath := filepath.Join(e.ScratchDir, fmt.Sprintf("pcm_%s.f32le", uuid.NewString()))

	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.6f", t0),
		"-t", fmt.Sprintf("%.6f", t1-t0),
		"-i", source,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", channels,
		"-ar", fmt.Sprintf("%d", rate),
		"-y",
		outPath,
	}

	cmd := exec.CommandContext(ctx, e.BinPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: ffmpeg: %v: %s", errs.ErrDecodeFailed, err, stderr.String())
	}
	return outPath, nil
}

// ReadMonoFloat32 reads a raw f32le PCM file into a float32 slice.
func ReadMonoFloat32(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read pcm: %v", errs.ErrDecodeFailed, err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: pcm file %s has non-multiple-of-4 length", errs.ErrDecodeFailed, path)
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// WriteMonoFloat32 writes a float32 slice as raw f32le PCM.
func WriteMonoFloat32(path string, samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return os.WriteFile(path, buf, 0o644)
}

// WriteWAVFloat32 wraps samples (mono, 32-bit float) in a WAV container so
// the renderer can hand the assembled audio to ffmpeg as a plain -i input,
// the same self-describing-file handoff the teacher uses for the mp3/lrc
// pair out of RenderFinalMix, instead of requiring raw-PCM format flags on
// the render invocation.
func WriteWAVFloat32(path string, samples []float32, sampleRate int) error {
	const (
		formatIEEEFloat = 3
		bitsPerSample   = 32
		numChannels     = 1
	)
	dataSize := uint32(len(samples) * 4)
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(formatIEEEFloat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	for _, v := range samples {
		binary.Write(buf, binary.LittleEndian, v)
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}
