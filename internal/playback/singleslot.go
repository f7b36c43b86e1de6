package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/engine"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
	"github.com/wavify-audio/wavify-core/internal/tap"
	"github.com/wavify-audio/wavify-core/internal/tracker"
)

// SingleSlotService is the playback design that predates the active/standby
// ring buffer pair: one decoder feeding one tap into one ring buffer bound
// to a single Audio Engine slot. There is no standby lane, so there is
// nothing for a Crossfade Slot to preload into and no handoff method —
// advancing to the next song always means a fresh Load, same as Seek.
// Superseded by Service everywhere a standby lane exists to fade into; kept
// as a reference showing the shape the dual-slot design grew out of, the
// same way the teacher keeps a legacyPlaylist fallback path alongside
// MasterPlaylist.
type SingleSlotService struct {
	mu sync.Mutex

	buffer *ringbuffer.RingBuffer
	slot   engine.Slot
	audio  *engine.Engine
	hooks  Hooks

	decoder    *ffmpeg.NetworkDecoder
	tap        *tap.Tap
	feedCancel context.CancelFunc
	feedWG     sync.WaitGroup

	song        queue.Song
	url         string
	headers     map[string]string
	duration    time.Duration
	playing     bool
	endedFired  bool
	lastElapsed time.Duration

	retryAttempt   int
	trackerSession *tracker.Session
}

// NewSingleSlotService builds a service driving buffer, bound to slot on
// audio.
func NewSingleSlotService(buffer *ringbuffer.RingBuffer, slot engine.Slot, audio *engine.Engine, hooks Hooks) *SingleSlotService {
	return &SingleSlotService{
		buffer: buffer,
		slot:   slot,
		audio:  audio,
		hooks:  hooks,
	}
}

// Song returns the currently loaded song.
func (s *SingleSlotService) Song() queue.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.song
}

// IsPlaying reports whether the service is actively decoding/playing.
func (s *SingleSlotService) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Duration returns the currently loaded song's expected duration.
func (s *SingleSlotService) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Elapsed returns the playback position as of the last Tick.
func (s *SingleSlotService) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastElapsed
}

// Load tears down any existing decoder and opens a fresh one for song at
// url, always starting playback immediately (there is no standby lane to
// prefill silently into).
func (s *SingleSlotService) Load(ctx context.Context, song queue.Song, url string, headers map[string]string, expectedDuration time.Duration) {
	s.teardown()

	s.mu.Lock()
	s.song = song
	s.url = url
	s.headers = headers
	s.duration = expectedDuration
	s.retryAttempt = 0
	s.endedFired = false
	s.lastElapsed = 0
	s.mu.Unlock()

	if s.hooks.StartTrackerSession != nil {
		session := s.hooks.StartTrackerSession(song)
		s.mu.Lock()
		s.trackerSession = session
		s.mu.Unlock()
	}

	s.openAndAttach(ctx, url, headers, 0)
}

func (s *SingleSlotService) openAndAttach(ctx context.Context, url string, headers map[string]string, seekFrom time.Duration) {
	decoder := ffmpeg.NewNetworkDecoder(url, headers)
	decoder.OnFailed(func(err error) { s.handleFailure(ctx, err, url, headers, seekFrom) })
	if err := decoder.Open(ctx, seekFrom); err != nil {
		s.handleFailure(ctx, err, url, headers, seekFrom)
		return
	}

	t := tap.New(dsp.EngineSampleRate)
	t.Prepare(feedFrameCount)
	t.Attach(s.buffer)

	feedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.decoder = decoder
	s.tap = t
	s.feedCancel = cancel
	s.mu.Unlock()

	s.feedWG.Add(1)
	go s.feedLoop(feedCtx, decoder, t)

	if err := s.audio.Start(); err != nil {
		slog.Warn("single-slot playback: engine start failed", "error", err)
	}
	s.buffer.Clear()
	s.audio.SetSlotVolume(s.slot, 1.0)

	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
	decoder.Play()
}

func (s *SingleSlotService) feedLoop(ctx context.Context, decoder *ffmpeg.NetworkDecoder, t *tap.Tap) {
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

// handleFailure mirrors Service's exponential-backoff retry chain.
func (s *SingleSlotService) handleFailure(ctx context.Context, err error, url string, headers map[string]string, seekFrom time.Duration) {
	s.mu.Lock()
	attempt := s.retryAttempt
	song := s.song
	s.mu.Unlock()

	if attempt >= len(retryBackoffs) {
		if s.hooks.OnFailed != nil {
			s.hooks.OnFailed(err)
		}
		return
	}

	delay := retryBackoffs[attempt]
	s.mu.Lock()
	s.retryAttempt++
	s.mu.Unlock()

	time.AfterFunc(delay, func() {
		retryURL, retryHeaders := url, headers
		if s.hooks.OnRetryNeeded != nil {
			freshURL, freshHeaders, ok := s.hooks.OnRetryNeeded(song)
			if !ok {
				if s.hooks.OnFailed != nil {
					s.hooks.OnFailed(fmt.Errorf("single-slot playback: no fresh url for retry: %w", err))
				}
				return
			}
			retryURL, retryHeaders = freshURL, freshHeaders
			s.mu.Lock()
			s.url, s.headers = freshURL, freshHeaders
			s.mu.Unlock()
		}
		s.openAndAttach(ctx, retryURL, retryHeaders, seekFrom)
	})
}

// Play resumes decoding, starting the engine if it had been stopped by a
// prior Pause.
func (s *SingleSlotService) Play() {
	s.mu.Lock()
	decoder := s.decoder
	s.mu.Unlock()
	if decoder == nil {
		return
	}
	if err := s.audio.Start(); err != nil {
		slog.Warn("single-slot playback: engine start failed", "error", err)
	}
	decoder.Play()
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

// Pause halts decoding and stops the engine.
func (s *SingleSlotService) Pause() {
	s.mu.Lock()
	decoder := s.decoder
	s.playing = false
	s.mu.Unlock()
	if decoder != nil {
		decoder.Pause()
	}
	s.audio.Stop()
}

// Toggle flips between Play and Pause.
func (s *SingleSlotService) Toggle() {
	if s.IsPlaying() {
		s.Pause()
	} else {
		s.Play()
	}
}

// Seek mutes output, tears down and reopens the decoder at t, and unmutes
// after seekUnmuteDelay, the same sequence as the dual-slot Service's Seek.
func (s *SingleSlotService) Seek(ctx context.Context, t time.Duration) {
	s.audio.Mute()

	s.mu.Lock()
	s.endedFired = false
	s.lastElapsed = t
	url, headers := s.url, s.headers
	s.mu.Unlock()

	s.teardown()
	s.openAndAttach(ctx, url, headers, t)
	s.audio.Unmute(seekUnmuteDelay)
}

// teardown stops the feed loop, detaches the tap, and closes the decoder,
// without touching the engine.
func (s *SingleSlotService) teardown() {
	s.mu.Lock()
	decoder, t, cancel := s.decoder, s.tap, s.feedCancel
	s.decoder, s.tap, s.feedCancel = nil, nil, nil
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

// Cleanup tears down the decoder and stops the engine.
func (s *SingleSlotService) Cleanup() {
	s.teardown()
	s.audio.Stop()
}

// Tick is the periodic observer driving song-end detection, tracker
// milestone pings, and now-playing metadata publication.
func (s *SingleSlotService) Tick() {
	s.mu.Lock()
	decoder := s.decoder
	duration := s.duration
	ended := s.endedFired
	trackerSession := s.trackerSession
	song := s.song
	playing := s.playing
	s.mu.Unlock()

	if decoder == nil {
		return
	}
	elapsed := decoder.CurrentTime()
	s.mu.Lock()
	s.lastElapsed = elapsed
	s.mu.Unlock()

	if trackerSession != nil {
		trackerSession.Observe(elapsed.Seconds())
	}
	if s.hooks.OnNowPlaying != nil {
		rate := 0.0
		if playing {
			rate = 1.0
		}
		s.hooks.OnNowPlaying(NowPlaying{Song: song, Elapsed: elapsed, Duration: duration, Rate: rate})
	}

	if ended || duration <= 0 {
		return
	}
	if elapsed >= duration-songEndSlack {
		s.mu.Lock()
		s.endedFired = true
		s.mu.Unlock()
		if trackerSession != nil {
			trackerSession.End(elapsed.Seconds())
		}
		if s.hooks.OnSongEnded != nil {
			s.hooks.OnSongEnded()
		}
	}
}
