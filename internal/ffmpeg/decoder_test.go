package ffmpeg

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeF32LE(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func TestReadInterleavedDecodesLittleEndianFloats(t *testing.T) {
	d := NewNetworkDecoder("https://example.invalid/stream", nil)
	samples := []float32{0.25, -0.5, 0.75, -1.0}
	d.stdout = io.NopCloser(bytes.NewReader(encodeF32LE(samples)))

	dst := make([]float32, 4)
	n, err := d.ReadInterleaved(dst, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDeltaSlice(t, samples, dst, 1e-6)
}

func TestReadInterleavedReturnsEOFOnShortRead(t *testing.T) {
	d := NewNetworkDecoder("https://example.invalid/stream", nil)
	samples := []float32{0.1, 0.2}
	d.stdout = io.NopCloser(bytes.NewReader(encodeF32LE(samples)))

	dst := make([]float32, 8)
	n, err := d.ReadInterleaved(dst, 4)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, n)
}

func TestPauseBlocksReadUntilPlay(t *testing.T) {
	d := NewNetworkDecoder("https://example.invalid/stream", nil)
	samples := []float32{0.1, 0.2}
	d.stdout = io.NopCloser(bytes.NewReader(encodeF32LE(samples)))
	d.Pause()

	done := make(chan struct{})
	go func() {
		dst := make([]float32, 2)
		d.ReadInterleaved(dst, 1)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("ReadInterleaved should not return while paused")
	case <-time.After(50 * time.Millisecond):
	}

	d.Play()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadInterleaved did not resume after Play")
	}
}

func TestBuildArgsIncludesSeekAndHeaders(t *testing.T) {
	d := NewNetworkDecoder("https://example.invalid/stream", map[string]string{"Authorization": "Bearer token"})
	args := d.buildArgs(30 * time.Second)

	joined := args
	foundSeek, foundHeader, foundURL := false, false, false
	for i, a := range joined {
		if a == "-ss" && i+1 < len(joined) && joined[i+1] == "30.000" {
			foundSeek = true
		}
		if a == "-headers" && i+1 < len(joined) && joined[i+1] == "Authorization: Bearer token\r\n" {
			foundHeader = true
		}
		if a == "-i" && i+1 < len(joined) && joined[i+1] == "https://example.invalid/stream" {
			foundURL = true
		}
	}
	assert.True(t, foundSeek)
	assert.True(t, foundHeader)
	assert.True(t, foundURL)
}

func TestBuildArgsOmitsSeekWhenZero(t *testing.T) {
	d := NewNetworkDecoder("https://example.invalid/stream", nil)
	args := d.buildArgs(0)
	for _, a := range args {
		assert.NotEqual(t, "-ss", a)
	}
}

func TestCurrentTimeAccountsForSeekOffsetAndBytesRead(t *testing.T) {
	d := NewNetworkDecoder("https://example.invalid/stream", nil)
	d.seekTo = 10 * time.Second
	d.bytesRead.Store(int64(44100 * bytesPerFrame)) // exactly one second of audio consumed

	got := d.CurrentTime()
	assert.InDelta(t, 11*time.Second, got, float64(5*time.Millisecond))
}
