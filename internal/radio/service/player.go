// Package service implements the control-plane business logic sitting
// between the HTTP handlers and the core audio packages (queue, playback,
// crossfade, eqsettings). Modeled on the teacher's own service/radio.go
// split: handlers stay thin, the service owns state transitions and
// produces snapshot structs the handlers render.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wavify-audio/wavify-core/config"
	"github.com/wavify-audio/wavify-core/internal/crossfade"
	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/eqsettings"
	"github.com/wavify-audio/wavify-core/internal/extractor"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/playback"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/tracker"
)

// evaluateInterval is how often RunLoop drives song-end detection and the
// Crossfade Engine's Evaluate.
const evaluateInterval = 500 * time.Millisecond

// StatusSnapshot is the full GET /api/status response body.
type StatusSnapshot struct {
	Song           queue.Song
	Playing        bool
	Elapsed        time.Duration
	Duration       time.Duration
	LoopMode       queue.LoopMode
	ShuffleEnabled bool
	QueueLength    int
	CrossfadeState string
}

// Player coordinates the Queue, Playback Service, Crossfade Engine, and EQ
// Settings Store into the single control surface the HTTP handlers drive.
// Its own fields are set up front; the playback/crossfade engines are
// bound in a second step via Bind, since they in turn need Player's own
// hook closures at construction time (Hooks()/CrossfadeHooks() are called
// before Bind).
type Player struct {
	mu sync.Mutex

	cfg        *config.Config
	queue      *queue.Queue
	eq         *eqsettings.Store
	extractor  *extractor.Extractor
	httpClient *resty.Client

	trackerBaseURL string
	clientID       string

	playback  *playback.Service
	crossfade *crossfade.Engine

	beatTracker *dsp.BeatTracker
}

// NewPlayer builds a Player over q/eq/ex; Bind must be called once the
// Playback Service and Crossfade Engine built from this Player's hooks
// exist.
func NewPlayer(cfg *config.Config, q *queue.Queue, eq *eqsettings.Store, ex *extractor.Extractor) *Player {
	return &Player{
		cfg:            cfg,
		queue:          q,
		eq:             eq,
		extractor:      ex,
		httpClient:     resty.New().SetTimeout(10 * time.Second),
		trackerBaseURL: cfg.TrackerPingBaseURL,
		clientID:       "wavify-core",
		beatTracker:    dsp.NewBeatTracker(dsp.EngineSampleRate),
	}
}

// Bind wires the already-constructed Playback Service and Crossfade Engine
// into the Player. Must be called exactly once, after both were built
// using Hooks()/CrossfadeHooks().
func (p *Player) Bind(pb *playback.Service, cx *crossfade.Engine) {
	p.mu.Lock()
	p.playback = pb
	p.crossfade = cx
	p.mu.Unlock()
}

// resolve fetches a fresh playable URL for song via the Stream Extractor.
func (p *Player) resolve(ctx context.Context, song queue.Song) (url string, headers map[string]string, err error) {
	rec, err := p.extractor.Resolve(ctx, song.VideoID)
	if err != nil {
		return "", nil, err
	}
	return rec.URL, rec.PlaybackHeaders, nil
}

// Hooks builds the playback.Hooks bundle for this Player. Call before
// constructing the Playback Service, then Bind the result back in.
func (p *Player) Hooks() playback.Hooks {
	return playback.Hooks{
		OnRetryNeeded: func(song queue.Song) (string, map[string]string, bool) {
			p.extractor.Invalidate(song.VideoID)
			url, headers, err := p.resolve(context.Background(), song)
			if err != nil {
				slog.Warn("player: retry resolve failed", "video_id", song.VideoID, "error", err)
				return "", nil, false
			}
			return url, headers, true
		},
		OnFailed: func(err error) {
			slog.Error("player: playback failed, skipping to next", "error", err)
			if nextErr := p.Next(context.Background()); nextErr != nil {
				slog.Warn("player: no next song after failure", "error", nextErr)
			}
		},
		OnSongEnded: func() {
			if err := p.Next(context.Background()); err != nil {
				slog.Info("player: queue exhausted at song end", "error", err)
			}
		},
		StartTrackerSession: func(song queue.Song) *tracker.Session {
			if p.trackerBaseURL == "" {
				return nil
			}
			return tracker.NewSession(tracker.NewClient(), p.trackerBaseURL, extractor.GenerateCPN(), p.clientID)
		},
		FetchArtwork: func(url string) ([]byte, error) {
			resp, err := p.httpClient.R().Get(url)
			if err != nil {
				return nil, err
			}
			if resp.IsError() {
				return nil, fmt.Errorf("player: artwork fetch got status %d", resp.StatusCode())
			}
			return resp.Body(), nil
		},
		OnOutgoingSample: func(l, r float32) {
			p.beatTracker.Observe(l, r)

			p.mu.Lock()
			cx := p.crossfade
			p.mu.Unlock()
			if cx != nil {
				cx.FeedOutgoingSample(l, r)
			}
		},
	}
}

// CrossfadeHooks builds the crossfade.Hooks bundle for this Player. Call
// before constructing the Crossfade Engine, then Bind the result back in.
func (p *Player) CrossfadeHooks() crossfade.Hooks {
	return crossfade.Hooks{
		PreloadNeeded: p.preloadNext,
		BeatAlign:     p.beatTracker.SnapToBeat,
		Complete: func(decoder *ffmpeg.NetworkDecoder, song queue.Song) {
			// The Crossfade Slot preloaded this exact song via PeekNext
			// without consuming it; now that the fade has completed and
			// handed off the decoder, advance the queue onto it for real.
			p.queue.MoveToNext()

			p.mu.Lock()
			pb := p.playback
			p.mu.Unlock()
			if pb == nil {
				return
			}
			pb.AdoptPlayer(context.Background(), decoder, song, time.Duration(song.DurationS*float64(time.Second)))
		},
	}
}

func (p *Player) preloadNext() (song queue.Song, url string, headers map[string]string, ok bool) {
	next, hasNext := p.queue.PeekNext()
	if !hasNext {
		return queue.Song{}, "", nil, false
	}
	url, headers, err := p.resolve(context.Background(), next)
	if err != nil {
		slog.Warn("player: preload resolve failed", "video_id", next.VideoID, "error", err)
		return queue.Song{}, "", nil, false
	}
	return next, url, headers, true
}

// Status builds the current status snapshot.
func (p *Player) Status() StatusSnapshot {
	p.mu.Lock()
	pb, cx := p.playback, p.crossfade
	p.mu.Unlock()

	snap := StatusSnapshot{
		LoopMode:       p.queue.LoopMode(),
		ShuffleEnabled: p.queue.ShuffleEnabled(),
		QueueLength:    len(p.queue.Ordered()),
	}
	if pb != nil {
		snap.Song = pb.Song()
		snap.Playing = pb.IsPlaying()
		snap.Elapsed = pb.Elapsed()
		snap.Duration = pb.Duration()
	}
	if cx != nil {
		snap.CrossfadeState = cx.State().String()
	}
	return snap
}

// Next advances the queue and loads the resolved next song, replacing
// whatever the Playback Service currently holds.
func (p *Player) Next(ctx context.Context) error {
	song, ok := p.queue.MoveToNext()
	if !ok {
		return fmt.Errorf("player: queue exhausted")
	}
	return p.load(ctx, song, true, 0)
}

// Previous moves the queue back one song and loads it.
func (p *Player) Previous(ctx context.Context) error {
	song, ok := p.queue.MoveToPrevious()
	if !ok {
		return fmt.Errorf("player: no previous song")
	}
	return p.load(ctx, song, true, 0)
}

func (p *Player) load(ctx context.Context, song queue.Song, autoPlay bool, seekTo time.Duration) error {
	url, headers, err := p.resolve(ctx, song)
	if err != nil {
		return fmt.Errorf("player: resolve %s: %w", song.VideoID, err)
	}
	p.mu.Lock()
	pb := p.playback
	cx := p.crossfade
	p.mu.Unlock()
	if pb == nil {
		return fmt.Errorf("player: playback service not bound")
	}
	pb.Load(ctx, song, url, headers, time.Duration(song.DurationS*float64(time.Second)), autoPlay, seekTo)
	if cx != nil {
		cx.QueueDidChange()
	}
	return nil
}

// Enqueue appends song to the end of the user-queue.
func (p *Player) Enqueue(song queue.Song) {
	p.queue.AddToQueue(song)
}

// PlayNow inserts song immediately after the current position and loads it.
func (p *Player) PlayNow(ctx context.Context, song queue.Song) error {
	p.queue.PlayNext(song)
	return p.Next(ctx)
}

// Toggle flips play/pause on the Playback Service.
func (p *Player) Toggle() {
	p.mu.Lock()
	pb := p.playback
	p.mu.Unlock()
	if pb != nil {
		pb.Toggle()
	}
}

// Seek seeks the Playback Service to t.
func (p *Player) Seek(ctx context.Context, t time.Duration) {
	p.mu.Lock()
	pb := p.playback
	p.mu.Unlock()
	if pb != nil {
		pb.Seek(ctx, t)
	}
}

// CycleLoopMode advances the queue's loop mode and returns the new value.
func (p *Player) CycleLoopMode() queue.LoopMode {
	return p.queue.CycleLoopMode()
}

// SetShuffle enables or disables shuffle on the queue.
func (p *Player) SetShuffle(enabled bool) {
	if enabled {
		p.queue.EnableShuffle(rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		p.queue.DisableShuffle()
	}
}

// RunLoop drives Tick/Evaluate on evaluateInterval until ctx is done. Meant
// to run in its own goroutine, started once by main.
func (p *Player) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(evaluateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Player) tick(ctx context.Context) {
	p.mu.Lock()
	pb, cx := p.playback, p.crossfade
	p.mu.Unlock()
	if pb == nil {
		return
	}
	pb.Tick()
	if cx == nil {
		return
	}
	duration := pb.Duration()
	if duration <= 0 {
		return
	}
	elapsed := pb.Elapsed()
	remaining := duration - elapsed
	cx.Evaluate(ctx, remaining, elapsed, duration, pb.Song())
}
