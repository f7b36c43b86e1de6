package crossfade

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavify-audio/wavify-core/internal/engine"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

func newTestEngine(t *testing.T, hooks Hooks) (*Engine, *ringbuffer.Slot) {
	t.Helper()
	ringSlot := ringbuffer.NewSlot()
	audio := engine.New(44100)
	audio.BindSlot(engine.SlotA, ringSlot.ActiveFullMix())
	audio.BindSlot(engine.SlotB, ringSlot.StandbyFullMix())

	e := New(ringSlot, audio, false, hooks)
	return e, ringSlot
}

func TestEvaluateIdleBelowLeadTimeStaysIdle(t *testing.T) {
	e, _ := newTestEngine(t, Hooks{})
	e.Evaluate(context.Background(), 30*time.Second, 0, 3*time.Minute, queue.Song{})
	assert.Equal(t, StateIdle, e.State())
}

func TestEvaluatePreloadNoNextSongStaysIdle(t *testing.T) {
	called := false
	e, _ := newTestEngine(t, Hooks{
		PreloadNeeded: func() (queue.Song, string, map[string]string, bool) {
			called = true
			return queue.Song{}, "", nil, false
		},
	})
	e.Evaluate(context.Background(), 5*time.Second, 0, 3*time.Minute, queue.Song{})
	assert.True(t, called)
	assert.Equal(t, StateIdle, e.State())
}

func TestEvaluatePreloadSameSongAsLoopOneStaysIdle(t *testing.T) {
	current := queue.Song{VideoID: "same"}
	e, _ := newTestEngine(t, Hooks{
		PreloadNeeded: func() (queue.Song, string, map[string]string, bool) {
			return current, "https://example.invalid", nil, true
		},
	})
	e.Evaluate(context.Background(), 5*time.Second, 0, 3*time.Minute, current)
	assert.Equal(t, StateIdle, e.State())
}

func TestEvaluateShortTrackNeverPreloads(t *testing.T) {
	called := false
	e, _ := newTestEngine(t, Hooks{
		PreloadNeeded: func() (queue.Song, string, map[string]string, bool) {
			called = true
			return queue.Song{}, "", nil, false
		},
	})
	// 10s track, default 6s fade: 10s < 3*6s, so preload must not fire even
	// though remaining is well under PreloadLeadTime.
	e.Evaluate(context.Background(), 5*time.Second, 5*time.Second, 10*time.Second, queue.Song{})
	assert.False(t, called)
	assert.Equal(t, StateIdle, e.State())
}

func TestLoudnessCorrectionClampsToSixDB(t *testing.T) {
	// outgoing much louder than incoming: correction should clamp at +6dB.
	g := loudnessCorrectionFrom(1.0, 0.01)
	expected := math.Pow(10, 6.0/20)
	assert.InDelta(t, expected, g, 1e-6)
}

func TestLoudnessCorrectionHandlesZeroInputs(t *testing.T) {
	assert.Equal(t, 1.0, loudnessCorrectionFrom(0, 1))
	assert.Equal(t, 1.0, loudnessCorrectionFrom(1, 0))
}

func TestQueueDidChangeCancelsWhileReadyButNotWhileCompleting(t *testing.T) {
	e, ringSlot := newTestEngine(t, Hooks{})

	e.mu.Lock()
	e.state = StateReady
	testSlot := newTestSlot(t, ringSlot)
	e.slot = testSlot
	e.mu.Unlock()

	e.QueueDidChange()
	assert.Equal(t, StateIdle, e.State())

	e.mu.Lock()
	e.state = StateCompleting
	e.mu.Unlock()
	e.QueueDidChange()
	assert.Equal(t, StateCompleting, e.State())
}

func TestSimpleFadeCompletesSwapsActiveLaneAndHandsOffDecoder(t *testing.T) {
	var gotDecoder *ffmpeg.NetworkDecoder
	var gotSong queue.Song
	completed := make(chan struct{})

	e, ringSlot := newTestEngine(t, Hooks{
		Complete: func(decoder *ffmpeg.NetworkDecoder, song queue.Song) {
			gotDecoder = decoder
			gotSong = song
			close(completed)
		},
	})
	e.SetFadeDuration(30 * time.Millisecond)

	require.True(t, ringSlot.IsActiveA())

	testSlot := newTestSlot(t, ringSlot)
	e.mu.Lock()
	e.state = StateReady
	e.slot = testSlot
	e.mu.Unlock()

	e.beginFade(context.Background())

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("fade did not complete in time")
	}

	assert.Eventually(t, func() bool { return e.State() == StateIdle }, time.Second, time.Millisecond)
	assert.False(t, ringSlot.IsActiveA(), "active lane should have swapped to B")
	assert.NotNil(t, gotDecoder)
	assert.Equal(t, "abc123", gotSong.VideoID)
}

func TestCancelDuringFadeStopsTimerAndClearsStandby(t *testing.T) {
	e, ringSlot := newTestEngine(t, Hooks{})
	e.SetFadeDuration(5 * time.Second) // long enough that Cancel wins the race

	testSlot := newTestSlot(t, ringSlot)
	standby := ringSlot.StandbyFullMix()
	frame := make([]float32, 32)
	standby.Write(frame, len(frame))

	e.mu.Lock()
	e.state = StateReady
	e.slot = testSlot
	e.mu.Unlock()

	e.beginFade(context.Background())
	time.Sleep(20 * time.Millisecond) // let the fade goroutine start ticking

	e.Cancel()

	assert.Equal(t, StateIdle, e.State())
	assert.True(t, ringSlot.IsActiveA(), "cancel must not swap the active lane")
	assert.Equal(t, 0, standby.Available())
}
