package crossfade

import (
	"context"
	"fmt"
	"sync"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
	"github.com/wavify-audio/wavify-core/internal/tap"
)

const feedFrameCount = 1024

// Slot is the Crossfade Slot of §4.7: a lightweight secondary decoder
// wrapper that preloads the next track into the standby ring buffer (or
// standby stem buffers, once stem mode is enabled) while the Playback
// Service keeps the current track playing from the active lane.
type Slot struct {
	decoder *ffmpeg.NetworkDecoder
	tap     *tap.Tap
	song    queue.Song

	playing bool
	mu      sync.Mutex

	feedCancel context.CancelFunc
	feedWG     sync.WaitGroup
}

// NewSlot returns an empty Slot ready for Load.
func NewSlot() *Slot {
	return &Slot{}
}

// Song returns the currently preloaded song, if any.
func (s *Slot) Song() queue.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.song
}

// IsPlaying reports whether the slot's decoder is actively feeding audio.
func (s *Slot) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Load opens a decoder for song at url, attaches a tap writing into
// ringSlot's standby full-mix buffer, and starts a background feed loop
// pumping decoded PCM through the tap. The decoder is not paused: the
// feed loop starts prefilling the standby buffer at once, and IsPlaying
// reports false until Play is called.
func (s *Slot) Load(ctx context.Context, song queue.Song, url string, headers map[string]string, inputRateHz float64, ringSlot *ringbuffer.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	decoder := ffmpeg.NewNetworkDecoder(url, headers)
	if err := decoder.Open(ctx, 0); err != nil {
		return fmt.Errorf("crossfade slot: open decoder: %w", err)
	}

	t := tap.New(inputRateHz)
	t.Prepare(feedFrameCount)
	t.Attach(ringSlot.StandbyFullMix())

	s.decoder = decoder
	s.tap = t
	s.song = song
	s.playing = false

	feedCtx, cancel := context.WithCancel(ctx)
	s.feedCancel = cancel
	s.feedWG.Add(1)
	go s.feedLoop(feedCtx, decoder, t)

	return nil
}

// EnableStemMode switches the slot's tap to route through a stem
// decomposer into ringSlot's standby stem buffers, used during the
// Crossfade Engine's analyze phase.
func (s *Slot) EnableStemMode(decomposer *dsp.StemDecomposer, ringSlot *ringbuffer.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tap == nil {
		return
	}
	s.tap.AttachStems(decomposer, ringSlot.StandbyStems(), ringSlot.StandbyFullMix())
}

func (s *Slot) feedLoop(ctx context.Context, decoder *ffmpeg.NetworkDecoder, t *tap.Tap) {
	defer s.feedWG.Done()
	buf := make([]float32, feedFrameCount*2)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := decoder.ReadInterleaved(buf, feedFrameCount)
		if n > 0 {
			t.ProcessInterleaved(buf[:n*2], n)
		}
		if err != nil {
			return
		}
	}
}

// Play resumes decoding (and therefore standby buffer prefill).
func (s *Slot) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decoder != nil {
		s.decoder.Play()
		s.playing = true
	}
}

// Pause halts decoding without releasing the decoder.
func (s *Slot) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decoder != nil {
		s.decoder.Pause()
		s.playing = false
	}
}

// HandOff transfers decoder ownership to the caller (the Playback
// Service) without interrupting decoding: the slot's tap abandons its
// ring buffer (does not clear it) and the feed loop is stopped, since the
// new owner installs its own feed loop against the same decoder and
// (usually the same, now-active) ring buffer.
func (s *Slot) HandOff() (*ffmpeg.NetworkDecoder, queue.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feedCancel != nil {
		s.feedCancel()
	}
	s.feedWG.Wait()
	if s.tap != nil {
		s.tap.Abandon()
	}

	decoder, song := s.decoder, s.song
	s.decoder = nil
	s.tap = nil
	s.playing = false
	return decoder, song
}

// Stop releases the slot's decoder and detaches (clearing) its tap —
// used when a preload is cancelled rather than handed off.
func (s *Slot) Stop() {
	s.mu.Lock()
	decoder, t := s.decoder, s.tap
	s.decoder = nil
	s.tap = nil
	s.playing = false
	cancel := s.feedCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.feedWG.Wait()
	if t != nil {
		t.Detach()
	}
	if decoder != nil {
		decoder.Close()
	}
}
