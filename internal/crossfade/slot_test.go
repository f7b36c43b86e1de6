package crossfade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
	"github.com/wavify-audio/wavify-core/internal/tap"
)

// newTestSlot builds a Slot with its internals wired directly (bypassing
// Load, which execs a real ffmpeg process) so the lifecycle transitions
// (Play/Pause/HandOff/Stop) can be exercised without an external binary.
func newTestSlot(t *testing.T, ringSlot *ringbuffer.Slot) *Slot {
	t.Helper()
	_, cancel := context.WithCancel(context.Background())

	tp := tap.New(44100)
	tp.Prepare(feedFrameCount)
	tp.Attach(ringSlot.StandbyFullMix())

	s := &Slot{
		decoder:    ffmpeg.NewNetworkDecoder("https://example.invalid/stream", nil),
		tap:        tp,
		song:       queue.Song{VideoID: "abc123", Title: "Test Song"},
		feedCancel: cancel,
	}
	return s
}

func TestSlotSongReturnsPreloadedSong(t *testing.T) {
	ringSlot := ringbuffer.NewSlot()
	s := newTestSlot(t, ringSlot)
	assert.Equal(t, "abc123", s.Song().VideoID)
}

func TestSlotPlayPauseTogglesPlayingFlag(t *testing.T) {
	ringSlot := ringbuffer.NewSlot()
	s := newTestSlot(t, ringSlot)
	assert.False(t, s.IsPlaying())

	s.Play()
	assert.True(t, s.IsPlaying())

	s.Pause()
	assert.False(t, s.IsPlaying())
}

func TestHandOffReturnsDecoderAndSongWithoutClearingBuffer(t *testing.T) {
	ringSlot := ringbuffer.NewSlot()
	s := newTestSlot(t, ringSlot)

	standby := ringSlot.StandbyFullMix()
	frame := make([]float32, 64)
	for i := range frame {
		frame[i] = 0.2
	}
	standby.Write(frame, len(frame))
	require.Greater(t, standby.Available(), 0)

	decoder, song := s.HandOff()
	require.NotNil(t, decoder)
	assert.Equal(t, "abc123", song.VideoID)

	// Abandon must not clear the ring buffer the tap was writing into.
	assert.Greater(t, standby.Available(), 0)
	assert.Nil(t, s.decoder)
	assert.Nil(t, s.tap)
}

func TestStopClearsBufferAndReleasesDecoder(t *testing.T) {
	ringSlot := ringbuffer.NewSlot()
	s := newTestSlot(t, ringSlot)

	standby := ringSlot.StandbyFullMix()
	frame := make([]float32, 64)
	standby.Write(frame, len(frame))

	s.Stop()

	assert.Equal(t, 0, standby.Available())
	assert.Nil(t, s.decoder)
	assert.Nil(t, s.tap)
}

func TestEnableStemModeSwitchesTapTarget(t *testing.T) {
	ringSlot := ringbuffer.NewSlot()
	s := newTestSlot(t, ringSlot)

	decomposer := dsp.NewStemDecomposer(44100)
	s.EnableStemMode(decomposer, ringSlot)

	frames := 32
	buf := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		buf[2*i] = 0.4
		buf[2*i+1] = -0.4
	}
	s.tap.ProcessInterleaved(buf, frames)

	stems := ringSlot.StandbyStems()
	assert.Greater(t, stems[ringbuffer.StemDrums].Available(), 0)
}
