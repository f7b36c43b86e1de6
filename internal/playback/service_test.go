package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavify-audio/wavify-core/internal/engine"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

func newTestService(t *testing.T, hooks Hooks) *Service {
	t.Helper()
	ring := ringbuffer.NewSlot()
	audio := engine.New(44100)
	audio.BindSlot(engine.SlotA, ring.ActiveFullMix())
	audio.BindSlot(engine.SlotB, ring.StandbyFullMix())
	return New(ring, audio, hooks)
}

func TestGettersOnFreshServiceAreZeroValues(t *testing.T) {
	s := newTestService(t, Hooks{})
	assert.Equal(t, queue.Song{}, s.Song())
	assert.False(t, s.IsPlaying())
	assert.Equal(t, time.Duration(0), s.Duration())
}

func TestPlayPauseToggleWithoutLoadedDecoderAreSafeNoOps(t *testing.T) {
	s := newTestService(t, Hooks{})
	s.Play()
	assert.False(t, s.IsPlaying(), "Play with nothing loaded must not flip the playing flag")
	s.Pause()
	assert.False(t, s.IsPlaying())
	s.Toggle()
	assert.False(t, s.IsPlaying())
}

func TestCleanupWithNothingLoadedIsSafe(t *testing.T) {
	s := newTestService(t, Hooks{})
	s.Cleanup(false)
}

func TestTickWithoutDecoderDoesNothing(t *testing.T) {
	published := false
	s := newTestService(t, Hooks{OnNowPlaying: func(NowPlaying) { published = true }})
	s.Tick()
	assert.False(t, published)
}

func TestHandleFailureSurfacesOnceRetriesExhausted(t *testing.T) {
	var gotErr error
	s := newTestService(t, Hooks{OnFailed: func(err error) { gotErr = err }})
	s.retryAttempt = len(retryBackoffs)
	s.handleFailure(context.Background(), errors.New("decoder exploded"), 0)
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "decoder exploded")
}

func TestHandleFailureRetryDeniedFreshURLSurfacesFailed(t *testing.T) {
	var gotErr error
	done := make(chan struct{})
	s := newTestService(t, Hooks{
		OnRetryNeeded: func(song queue.Song) (string, map[string]string, bool) {
			return "", nil, false
		},
		OnFailed: func(err error) {
			gotErr = err
			close(done)
		},
	})
	s.handleFailure(context.Background(), errors.New("decoder exploded"), 0)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFailed was never called")
	}
	assert.Error(t, gotErr)
}

func TestAdoptPlayerTakesOverDecoderWithoutRestartingEngine(t *testing.T) {
	s := newTestService(t, Hooks{})

	// Pause before adopting so the feed loop's ReadInterleaved spins on its
	// pause-wait guard rather than touching the decoder's (never opened,
	// nil) stdout pipe.
	decoder := ffmpeg.NewNetworkDecoder("https://example.invalid/stream", nil)
	decoder.Pause()

	song := queue.Song{VideoID: "adopted123", Title: "Handed Off"}
	s.AdoptPlayer(context.Background(), decoder, song, 180*time.Second)

	assert.Equal(t, song, s.Song())
	assert.Equal(t, 180*time.Second, s.Duration())
	assert.True(t, s.IsPlaying())
}

func TestArtworkForCachesPerSongID(t *testing.T) {
	fetches := 0
	s := newTestService(t, Hooks{
		FetchArtwork: func(url string) ([]byte, error) {
			fetches++
			return []byte("art:" + url), nil
		},
	})
	song := queue.Song{VideoID: "abc", ThumbnailURL: "https://example.invalid/art.jpg"}

	first := s.artworkFor(song)
	second := s.artworkFor(song)

	assert.Equal(t, []byte("art:https://example.invalid/art.jpg"), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetches)
}

func TestArtworkForSkipsSongsWithoutThumbnail(t *testing.T) {
	called := false
	s := newTestService(t, Hooks{
		FetchArtwork: func(url string) ([]byte, error) {
			called = true
			return nil, nil
		},
	})
	data := s.artworkFor(queue.Song{VideoID: "no-thumb"})
	assert.Nil(t, data)
	assert.False(t, called)
}
