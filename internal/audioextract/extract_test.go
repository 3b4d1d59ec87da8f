package audioextract

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadMonoFloat32_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.f32le")

	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.01))
	}

	require.NoError(t, WriteMonoFloat32(path, samples))

	got, err := ReadMonoFloat32(path)
	require.NoError(t, err)
	require.Len(t, got, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], got[i], 1e-6)
	}
}

func TestReadMonoFloat32_RejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.f32le")
	require.NoError(t, WriteMonoFloat32(path, []float32{1, 2, 3}))
	require.NoError(t, os.Truncate(path, 11)) // cut the last sample short

	_, err := ReadMonoFloat32(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-multiple-of-4")
}

func TestWriteWAVFloat32_ProducesValidRIFFHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")
	samples := []float32{0, 0.5, -0.5, 1, -1}

	require.NoError(t, WriteWAVFloat32(path, samples, 48000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "fmt ", string(data[12:16]))
	assert.Equal(t, "data", string(data[36:40]))

	gotDataSize := binary.LittleEndian.Uint32(data[40:44])
	assert.Equal(t, uint32(len(samples)*4), gotDataSize)
}

func TestExtractRange_RejectsNonPositiveWindow(t *testing.T) {
	e := New("ffmpeg", t.TempDir())
	_, err := e.ExtractRange(nil, "source.mp4", 5.0, 5.0, 16000, true) //nolint:staticcheck // nil ctx fine for arg validation path
	assert.Error(t, err)
}
