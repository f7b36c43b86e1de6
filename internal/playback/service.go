// Package playback implements the Playback Service: ownership of the
// primary decoder and the one-track playback lifecycle (load, retry,
// transport controls, song-end detection, now-playing metadata), plus
// adopting a decoder handed off mid-stream by the Crossfade Engine.
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

const feedFrameCount = 1024

// retryBackoffs are the exponential-backoff delays tried before a failed
// load is surfaced to the delegate.
var retryBackoffs = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

const (
	readyUnmuteDelay = 100 * time.Millisecond
	seekUnmuteDelay  = 80 * time.Millisecond
	songEndSlack     = 500 * time.Millisecond
)

// NowPlaying is one snapshot of playback metadata for the host OS
// media-controls surface.
type NowPlaying struct {
	Song     queue.Song
	Elapsed  time.Duration
	Duration time.Duration
	Rate     float64 // 0 while paused, 1 while playing
	Artwork  []byte
}

// Hooks wires the Playback Service to its collaborators.
type Hooks struct {
	// OnRetryNeeded resolves a fresh playback URL for song after a failed
	// attempt; ok=false ends the retry chain early.
	OnRetryNeeded func(song queue.Song) (url string, headers map[string]string, ok bool)
	// OnFailed is called once retries are exhausted (or a retry itself
	// can't get a fresh URL).
	OnFailed func(err error)
	// OnSongEnded fires exactly once per song, per the 0.5s song-end check.
	OnSongEnded func()
	// OnNowPlaying receives a metadata snapshot on every Tick.
	OnNowPlaying func(NowPlaying)
	// FetchArtwork resolves a thumbnail URL to image bytes; results are
	// cached once per song id.
	FetchArtwork func(url string) ([]byte, error)
	// StartTrackerSession begins a Playback Tracker session for song, or
	// nil if tracking isn't wired up.
	StartTrackerSession func(song queue.Song) *tracker.Session
	// OnOutgoingSample, if set, receives every decoded stereo sample
	// alongside the feed loop's normal tap processing. The Crossfade
	// Engine's FeedOutgoingSample and a beat tracker's Observe both hang
	// off this so neither needs its own handle on the active decoder.
	OnOutgoingSample func(l, r float32)
}

// Service owns the primary decoder, its Tap Bridge, and the single-track
// playback lifecycle described in the spec's Playback Service section.
type Service struct {
	mu sync.Mutex

	ring  *ringbuffer.Slot
	audio *engine.Engine
	hooks Hooks

	decoder    *ffmpeg.NetworkDecoder
	tap        *tap.Tap
	feedCancel context.CancelFunc
	feedWG     sync.WaitGroup

	song       queue.Song
	url        string
	headers    map[string]string
	duration   time.Duration
	playing    bool
	endedFired bool
	lastElapsed time.Duration

	retryAttempt   int
	trackerSession *tracker.Session

	artworkMu    sync.Mutex
	artworkCache map[string][]byte
}

// New builds a Playback Service driving ring's active lane through audio.
func New(ring *ringbuffer.Slot, audio *engine.Engine, hooks Hooks) *Service {
	return &Service{
		ring:         ring,
		audio:        audio,
		hooks:        hooks,
		artworkCache: make(map[string][]byte),
	}
}

// Song returns the currently loaded song.
func (s *Service) Song() queue.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.song
}

// IsPlaying reports whether the service is actively decoding/playing.
func (s *Service) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Duration returns the currently loaded song's expected duration.
func (s *Service) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Elapsed returns the playback position as of the last Tick.
func (s *Service) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastElapsed
}

func (s *Service) activeEngineSlot() engine.Slot {
	if s.ring.IsActiveA() {
		return engine.SlotA
	}
	return engine.SlotB
}

// Load resets retry state, opens a new decoder for song at url, installs
// a tap writing to the active ring buffer, and starts (or silently
// prefills, if autoPlay is false) playback.
func (s *Service) Load(ctx context.Context, song queue.Song, url string, headers map[string]string, expectedDuration time.Duration, autoPlay bool, seekTo time.Duration) {
	s.teardown()

	s.mu.Lock()
	s.song = song
	s.url = url
	s.headers = headers
	s.duration = expectedDuration
	s.retryAttempt = 0
	s.endedFired = false
	s.lastElapsed = seekTo
	s.mu.Unlock()

	if s.hooks.StartTrackerSession != nil {
		session := s.hooks.StartTrackerSession(song)
		s.mu.Lock()
		s.trackerSession = session
		s.mu.Unlock()
	}

	s.openAndAttach(ctx, seekTo, autoPlay)
}

// openAndAttach opens a decoder at seekFrom and wires its tap into the
// active ring buffer. On success it flushes the buffer, sets the active
// slot's mixer volume, starts (or pauses) the decoder, and unmutes after
// readyUnmuteDelay, matching the "on ready" contract. On failure it
// enters the retry chain.
func (s *Service) openAndAttach(ctx context.Context, seekFrom time.Duration, autoPlay bool) {
	s.mu.Lock()
	url, headers := s.url, s.headers
	s.mu.Unlock()

	decoder := ffmpeg.NewNetworkDecoder(url, headers)
	decoder.OnFailed(func(err error) { s.handleFailure(ctx, err, seekFrom) })
	if err := decoder.Open(ctx, seekFrom); err != nil {
		s.handleFailure(ctx, err, seekFrom)
		return
	}

	t := tap.New(dsp.EngineSampleRate)
	t.Prepare(feedFrameCount)
	t.Attach(s.ring.ActiveFullMix())

	feedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.decoder = decoder
	s.tap = t
	s.feedCancel = cancel
	s.mu.Unlock()

	s.feedWG.Add(1)
	go s.feedLoop(feedCtx, decoder, t)

	if err := s.audio.Start(); err != nil {
		slog.Warn("playback service: engine start failed", "error", err)
	}

	s.ring.ActiveFullMix().Clear()
	s.audio.SetSlotVolume(s.activeEngineSlot(), 1.0)

	s.mu.Lock()
	s.playing = autoPlay
	s.mu.Unlock()
	if autoPlay {
		decoder.Play()
	} else {
		decoder.Pause()
	}

	s.audio.Unmute(readyUnmuteDelay)
}

func (s *Service) feedLoop(ctx context.Context, decoder *ffmpeg.NetworkDecoder, t *tap.Tap) {
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
			if s.hooks.OnOutgoingSample != nil {
				for i := 0; i < n; i++ {
					s.hooks.OnOutgoingSample(buf[i*2], buf[i*2+1])
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// handleFailure drives the exponential-backoff retry chain, requesting a
// fresh URL via Hooks.OnRetryNeeded before each retry. Once attempts are
// exhausted (or a retry can't get a fresh URL), it surfaces to
// Hooks.OnFailed.
func (s *Service) handleFailure(ctx context.Context, err error, seekFrom time.Duration) {
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
		if s.hooks.OnRetryNeeded != nil {
			url, headers, ok := s.hooks.OnRetryNeeded(song)
			if !ok {
				if s.hooks.OnFailed != nil {
					s.hooks.OnFailed(fmt.Errorf("playback service: no fresh url for retry: %w", err))
				}
				return
			}
			s.mu.Lock()
			s.url, s.headers = url, headers
			s.mu.Unlock()
		}
		s.openAndAttach(ctx, seekFrom, true)
	})
}

// Play resumes decoding, starting the engine if it had been stopped by a
// prior Pause.
func (s *Service) Play() {
	s.mu.Lock()
	decoder := s.decoder
	s.mu.Unlock()
	if decoder == nil {
		return
	}
	if err := s.audio.Start(); err != nil {
		slog.Warn("playback service: engine start failed", "error", err)
	}
	decoder.Play()
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

// Pause halts decoding and stops the engine, dropping media-session
// activity until Play resumes it.
func (s *Service) Pause() {
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
func (s *Service) Toggle() {
	if s.IsPlaying() {
		s.Pause()
	} else {
		s.Play()
	}
}

// Seek mutes output, tears down and reopens the decoder at t, flushes
// the ring buffer once the new position is confirmed, and unmutes after
// seekUnmuteDelay.
func (s *Service) Seek(ctx context.Context, t time.Duration) {
	s.audio.Mute()

	s.mu.Lock()
	wasPlaying := s.playing
	s.endedFired = false
	s.lastElapsed = t
	s.mu.Unlock()

	s.teardown()
	s.openAndAttach(ctx, t, wasPlaying)
	s.audio.Unmute(seekUnmuteDelay)
}

// SeekToStart seeks back to the beginning of the current song.
func (s *Service) SeekToStart(ctx context.Context) {
	s.Seek(ctx, 0)
}

// teardown stops the feed loop, detaches (clearing) the tap, and closes
// the decoder, without touching the engine.
func (s *Service) teardown() {
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

// Cleanup removes observers, detaches the tap, and closes the decoder.
// It stops the engine too unless manageEngine is false — the Crossfade
// Engine passes false during a handoff, since the engine must keep
// rendering the newly active lane uninterrupted.
func (s *Service) Cleanup(manageEngine bool) {
	s.teardown()

	s.mu.Lock()
	trackerSession := s.trackerSession
	elapsed := s.lastElapsed
	s.trackerSession = nil
	s.mu.Unlock()
	if trackerSession != nil {
		trackerSession.End(elapsed.Seconds())
	}

	if manageEngine {
		s.audio.Stop()
	}
}

// AdoptPlayer takes over an already-playing decoder handed off by the
// Crossfade Engine's slot, without restarting the engine: the former
// standby lane is now active and already carries the right samples, so
// playback continues uninterrupted. A fresh tap is installed pointing at
// that same now-active buffer to keep feeding it from decoder.
func (s *Service) AdoptPlayer(ctx context.Context, decoder *ffmpeg.NetworkDecoder, song queue.Song, duration time.Duration) {
	s.teardown()

	t := tap.New(dsp.EngineSampleRate)
	t.Prepare(feedFrameCount)
	t.Attach(s.ring.ActiveFullMix())

	feedCtx, cancel := context.WithCancel(ctx)
	decoder.OnFailed(func(err error) { s.handleFailure(ctx, err, decoder.CurrentTime()) })

	s.mu.Lock()
	s.decoder = decoder
	s.tap = t
	s.feedCancel = cancel
	s.song = song
	s.duration = duration
	s.playing = true
	s.endedFired = false
	s.retryAttempt = 0
	s.lastElapsed = decoder.CurrentTime()
	s.mu.Unlock()

	s.feedWG.Add(1)
	go s.feedLoop(feedCtx, decoder, t)

	s.audio.SetSlotVolume(s.activeEngineSlot(), 1.0)

	if s.hooks.StartTrackerSession != nil {
		session := s.hooks.StartTrackerSession(song)
		s.mu.Lock()
		s.trackerSession = session
		s.mu.Unlock()
	}
}

// Tick is the periodic (0.5s) observer driving song-end detection,
// tracker milestone pings, and now-playing metadata publication.
func (s *Service) Tick() {
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
	s.publishNowPlaying(song, elapsed, duration, playing)

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

func (s *Service) publishNowPlaying(song queue.Song, elapsed, duration time.Duration, playing bool) {
	if s.hooks.OnNowPlaying == nil {
		return
	}
	rate := 0.0
	if playing {
		rate = 1.0
	}
	s.hooks.OnNowPlaying(NowPlaying{
		Song:     song,
		Elapsed:  elapsed,
		Duration: duration,
		Rate:     rate,
		Artwork:  s.artworkFor(song),
	})
}

// artworkFor fetches (and caches, once per song id) song's artwork.
func (s *Service) artworkFor(song queue.Song) []byte {
	if song.ThumbnailURL == "" || s.hooks.FetchArtwork == nil {
		return nil
	}
	s.artworkMu.Lock()
	defer s.artworkMu.Unlock()
	if data, ok := s.artworkCache[song.VideoID]; ok {
		return data
	}
	data, err := s.hooks.FetchArtwork(song.ThumbnailURL)
	if err != nil {
		slog.Debug("playback service: artwork fetch failed", "error", err, "video_id", song.VideoID)
		return nil
	}
	s.artworkCache[song.VideoID] = data
	return data
}
