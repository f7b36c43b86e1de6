package crossfade

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/engine"
	"github.com/wavify-audio/wavify-core/internal/ffmpeg"
	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

// State is one node of the Crossfade Engine's state machine:
//
//	idle -> preloading -> analyzing (premium) | ready (simple)
//	analyzing -> ready
//	ready -> fading | stem_fading
//	fading | stem_fading -> completing -> idle
//
// Any non-idle state can return to idle via Cancel.
type State int

const (
	StateIdle State = iota
	StatePreloading
	StateAnalyzing
	StateReady
	StateFading
	StateStemFading
	StateCompleting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreloading:
		return "preloading"
	case StateAnalyzing:
		return "analyzing"
	case StateReady:
		return "ready"
	case StateFading:
		return "fading"
	case StateStemFading:
		return "stem_fading"
	case StateCompleting:
		return "completing"
	default:
		return "unknown"
	}
}

const (
	// PreloadLeadTime is how far from the end of a track preload begins.
	PreloadLeadTime = 20 * time.Second
	// DefaultFadeDuration is the fade length used when nothing overrides it.
	DefaultFadeDuration = 6 * time.Second

	analyzeWindow        = 300 * time.Millisecond
	smartEarlyMaxLead     = 10 * time.Second
	smartEarlyMinElapsed  = 30 * time.Second
	sideMidMonoThreshold  = 0.02
	loudnessClampDB       = 6.0
	fadeTickInterval      = time.Second / 60
	// vocalPollHz is the rate Evaluate is assumed to be called at for the
	// purposes of sizing the vocal-drop detector's trailing window; the
	// detector is rate-agnostic, it just expects "samples" fed at whatever
	// rate its caller chooses.
	vocalPollHz = 2.0
)

// PreloadFunc resolves the next song to preload, mirroring the
// on_preload_needed callback. ok is false when the queue has nothing next
// (end of queue, not looping).
type PreloadFunc func() (song queue.Song, url string, headers map[string]string, ok bool)

// BeatAligner snaps an ideal fade-trigger threshold (expressed as a
// "trigger when remaining <= this" duration) to the nearest confident
// downbeat within ±2s. ok=false leaves the plain fade-duration threshold
// in place. dsp.BeatTracker.SnapToBeat is one implementation; when
// Hooks.BeatAlign is unset, triggering uses the ideal (fade_duration)
// threshold.
type BeatAligner func(ideal time.Duration) (snapped time.Duration, ok bool)

// Hooks wires the Crossfade Engine to its collaborators: the queue, an
// optional outgoing-track vocal-level meter, the host's background-audio
// token, and the Playback Service's handoff.
type Hooks struct {
	PreloadNeeded PreloadFunc
	BeatAlign     BeatAligner

	// OutgoingVocalLevel, if set, is sampled once per Evaluate call while
	// in the ready state to drive the smart-early-transition check.
	OutgoingVocalLevel func() float64

	BackgroundTaskBegin func()
	BackgroundTaskEnd   func()

	// Complete is invoked once a fade finishes and the active/standby
	// lanes have swapped: it hands the freshly-activated decoder to the
	// Playback Service without restarting the Audio Engine.
	Complete func(decoder *ffmpeg.NetworkDecoder, song queue.Song)
}

// Engine is the Crossfade Engine: the state machine that preloads,
// analyzes, and fades between the active and standby lanes of a
// ringbuffer.Slot, driving an engine.Engine's slot/stem mixers.
type Engine struct {
	mu    sync.Mutex
	state State

	ring    *ringbuffer.Slot
	audio   *engine.Engine
	premium bool

	slot          *Slot
	choreographer *Choreographer
	profile       Profile
	fadeDuration  time.Duration

	outgoingDecomposer *dsp.StemDecomposer
	incomingDecomposer *dsp.StemDecomposer
	vocalDrop          *dsp.VocalDropDetector

	stemEligible       bool
	loudnessCorrection float64
	triggerThreshold   time.Duration

	stats              *TransitionStats
	candidateProfiles  []Profile
	transitionEnergy   Energy
	transitionProfile  Profile

	hooks Hooks

	cancelFade context.CancelFunc
	fadeWG     sync.WaitGroup
}

// New builds a Crossfade Engine driving ring (the shared dual-slot ring
// buffer pair) and audio (the Audio Engine mixing both its lanes).
// premium gates the analyze/stem-fade path; non-premium sessions only
// ever reach the simple fade.
func New(ring *ringbuffer.Slot, audio *engine.Engine, premium bool, hooks Hooks) *Engine {
	return &Engine{
		state:              StateIdle,
		ring:               ring,
		audio:              audio,
		premium:            premium,
		choreographer:      NewChoreographer(ProfileSmooth),
		profile:            ProfileSmooth,
		fadeDuration:       DefaultFadeDuration,
		outgoingDecomposer: dsp.NewStemDecomposer(dsp.EngineSampleRate),
		incomingDecomposer: dsp.NewStemDecomposer(dsp.EngineSampleRate),
		vocalDrop:          dsp.NewVocalDropDetector(vocalPollHz),
		hooks:              hooks,
		loudnessCorrection: 1.0,
		transitionEnergy:   EnergyCalm,
	}
}

// State returns the current state-machine node.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetProfile switches the fade-window profile the next fade will use.
func (e *Engine) SetProfile(p Profile) {
	e.mu.Lock()
	e.profile = p
	e.mu.Unlock()
}

// SetFadeDuration overrides the default 6s fade length.
func (e *Engine) SetFadeDuration(d time.Duration) {
	e.mu.Lock()
	e.fadeDuration = d
	e.mu.Unlock()
}

// EnableLearnedProfileSelection wires stats into the engine: every
// transition's play-through/skip outcome is recorded against it, and the
// profile used for each subsequent transition is chosen from candidates by
// whichever has the best play-through ratio so far for the observed energy
// bucket. Without this, SetProfile's manually configured (or default)
// profile is used for every transition.
func (e *Engine) EnableLearnedProfileSelection(stats *TransitionStats, candidates []Profile) {
	e.mu.Lock()
	e.stats = stats
	e.candidateProfiles = candidates
	e.mu.Unlock()
}

// Evaluate is the state machine's periodic driver entry point, called
// alongside the Playback Service's own song-end check with how much of
// the current (outgoing) track remains, how much has elapsed, and the
// track's total duration. currentSong is compared against whatever
// PreloadNeeded resolves next, to detect the loop-one case (next song ==
// current song).
func (e *Engine) Evaluate(ctx context.Context, remaining, elapsed, duration time.Duration, currentSong queue.Song) {
	e.mu.Lock()
	state := e.state
	threshold := e.triggerThreshold
	if threshold == 0 {
		threshold = e.fadeDuration
	}
	premium := e.premium
	stemEligible := e.stemEligible
	fadeDuration := e.fadeDuration
	e.mu.Unlock()

	switch state {
	case StateIdle:
		// Short tracks never preload: a crossfade eating into a track
		// shorter than 3x the fade duration would cut it down to little
		// more than the fade itself, so let it play to the end instead.
		if remaining <= PreloadLeadTime && duration >= 3*fadeDuration {
			e.beginPreload(ctx, currentSong)
		}
	case StateReady:
		vocalDropNow := false
		if premium && stemEligible && e.hooks.OutgoingVocalLevel != nil {
			level := e.hooks.OutgoingVocalLevel()
			vocalDropNow = e.vocalDrop.Observe(level * level)
		}
		smartEarly := vocalDropNow && elapsed >= smartEarlyMinElapsed && remaining <= threshold+smartEarlyMaxLead
		if remaining <= threshold || smartEarly {
			e.beginFade(ctx)
		}
	}
}

func (e *Engine) beginPreload(ctx context.Context, currentSong queue.Song) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return
	}
	e.state = StatePreloading
	e.mu.Unlock()

	if e.hooks.PreloadNeeded == nil {
		e.backToIdle()
		return
	}
	song, url, headers, ok := e.hooks.PreloadNeeded()
	if !ok || song.Equal(currentSong) {
		// Nothing next, or loop-one: no transition to preload into.
		e.backToIdle()
		return
	}

	slot := NewSlot()
	if err := slot.Load(ctx, song, url, headers, dsp.EngineSampleRate, e.ring); err != nil {
		slog.Warn("crossfade engine: preload failed", "error", err, "video_id", song.VideoID)
		e.backToIdle()
		return
	}
	slot.Play()

	e.mu.Lock()
	if e.state != StatePreloading {
		// cancel_crossfade() raced us back to idle while the decoder was
		// opening; honor it instead of resurrecting the slot.
		e.mu.Unlock()
		slot.Stop()
		return
	}
	e.slot = slot
	e.outgoingDecomposer.Reset()
	e.incomingDecomposer.Reset()
	if e.premium {
		e.state = StateAnalyzing
	} else {
		e.state = StateReady
	}
	premium := e.premium
	e.mu.Unlock()

	if premium {
		go e.analyze(ctx)
	}
}

// FeedOutgoingSample mirrors one stereo sample of the currently-playing
// (outgoing) track into the engine's analysis decomposer, a no-op outside
// the analyzing state. The Playback Service's own feed loop calls this
// alongside its normal tap processing so the outgoing track's loudness
// can be measured without the Crossfade Engine needing its own handle on
// the active tap.
func (e *Engine) FeedOutgoingSample(l, r float32) {
	e.mu.Lock()
	analyzing := e.state == StateAnalyzing
	e.mu.Unlock()
	if !analyzing {
		return
	}
	e.outgoingDecomposer.Process(l, r)
}

func (e *Engine) analyze(ctx context.Context) {
	e.mu.Lock()
	slot := e.slot
	fadeDuration := e.fadeDuration
	e.mu.Unlock()
	if slot == nil {
		return
	}
	slot.EnableStemMode(e.incomingDecomposer, e.ring)

	select {
	case <-ctx.Done():
		return
	case <-time.After(analyzeWindow):
	}

	e.mu.Lock()
	if e.state != StateAnalyzing {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ratio := e.incomingDecomposer.SideMidRatio()
	stemEligible := ratio > sideMidMonoThreshold

	loudness := 1.0
	if stemEligible {
		loudness = loudnessCorrectionFrom(e.outgoingDecomposer.MidRMS(), e.incomingDecomposer.MidRMS())
	}

	threshold := fadeDuration
	if e.hooks.BeatAlign != nil {
		if snapped, ok := e.hooks.BeatAlign(fadeDuration); ok {
			threshold = snapped
		}
	}

	energy := EnergyCalm
	if stemEligible {
		energy = EnergyEnergetic
	}

	e.mu.Lock()
	e.stemEligible = stemEligible
	e.loudnessCorrection = loudness
	e.triggerThreshold = threshold
	e.transitionEnergy = energy
	if e.stats != nil && len(e.candidateProfiles) > 0 {
		e.profile = e.stats.PreferredProfile(energy, e.candidateProfiles)
	}
	e.state = StateReady
	e.mu.Unlock()
}

// loudnessCorrectionFrom converts the RMS difference between the outgoing
// and incoming tracks into a linear gain applied to the incoming stems,
// clamped to ±6dB per §4.9. The inputs are the decomposers' plain
// mid-channel RMS values; no A-weighting is applied.
func loudnessCorrectionFrom(outgoingRMS, incomingRMS float64) float64 {
	if outgoingRMS <= 0 || incomingRMS <= 0 {
		return 1.0
	}
	diffDB := 20 * math.Log10(outgoingRMS/incomingRMS)
	if diffDB > loudnessClampDB {
		diffDB = loudnessClampDB
	} else if diffDB < -loudnessClampDB {
		diffDB = -loudnessClampDB
	}
	return math.Pow(10, diffDB/20)
}

func (e *Engine) beginFade(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateReady {
		e.mu.Unlock()
		return
	}
	stemMode := e.premium && e.stemEligible
	if stemMode {
		e.state = StateStemFading
	} else {
		e.state = StateFading
	}
	duration := e.fadeDuration
	loudness := e.loudnessCorrection
	e.choreographer.SetProfile(e.profile)
	e.transitionProfile = e.profile
	e.mu.Unlock()

	if e.hooks.BackgroundTaskBegin != nil {
		e.hooks.BackgroundTaskBegin()
	}

	fadeCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFade = cancel
	e.mu.Unlock()

	e.fadeWG.Add(1)
	if stemMode {
		e.audio.ActivateStemMode()
		go e.runStemFade(fadeCtx, duration, loudness)
	} else {
		go e.runSimpleFade(fadeCtx, duration, loudness)
	}
}

func (e *Engine) activeLanes() (outgoing, incoming engine.Slot) {
	if e.ring.IsActiveA() {
		return engine.SlotA, engine.SlotB
	}
	return engine.SlotB, engine.SlotA
}

func (e *Engine) runSimpleFade(ctx context.Context, duration time.Duration, loudness float64) {
	defer e.fadeWG.Done()
	ticker := time.NewTicker(fadeTickInterval)
	defer ticker.Stop()

	start := time.Now()
	outgoingLane, incomingLane := e.activeLanes()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p := float64(time.Since(start)) / float64(duration)
		if p >= 1 {
			e.audio.SetSlotVolume(outgoingLane, 0)
			e.audio.SetSlotVolume(incomingLane, loudness)
			e.complete(ctx)
			return
		}
		out := math.Cos(p * math.Pi / 2)
		in := math.Sin(p*math.Pi/2) * loudness
		e.audio.SetSlotVolume(outgoingLane, out)
		e.audio.SetSlotVolume(incomingLane, in)
	}
}

func (e *Engine) runStemFade(ctx context.Context, duration time.Duration, loudness float64) {
	defer e.fadeWG.Done()
	ticker := time.NewTicker(fadeTickInterval)
	defer ticker.Stop()

	start := time.Now()
	outgoingLane, incomingLane := e.activeLanes()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p := float64(time.Since(start)) / float64(duration)
		done := p >= 1
		if done {
			p = 1
		}
		gains := e.choreographer.Tick(p)
		for stem := ringbuffer.Stem(0); int(stem) < 4; stem++ {
			e.audio.SetStemVolume(outgoingLane, stem, gains.Outgoing[stem])
			e.audio.SetStemVolume(incomingLane, stem, gains.Incoming[stem]*loudness)
		}
		if done {
			e.complete(ctx)
			return
		}
	}
}

func (e *Engine) complete(ctx context.Context) {
	e.mu.Lock()
	e.state = StateCompleting
	slot := e.slot
	e.slot = nil
	stats, energy, profile := e.stats, e.transitionEnergy, e.transitionProfile
	e.mu.Unlock()

	if stats != nil {
		stats.RecordPlayThrough(energy, profile)
	}

	if e.audio.StemRampActive() || e.audio.InStemMode() {
		e.audio.DeactivateStemMode()
		for e.audio.StemRampActive() {
			e.audio.TickStemRamp()
			time.Sleep(time.Millisecond)
		}
	}

	e.ring.Swap()
	newActive, newStandby := e.activeLanes()
	e.audio.SetSlotVolume(newActive, 1.0)
	e.audio.SetSlotVolume(newStandby, 0.0)
	for stem := ringbuffer.Stem(0); int(stem) < 4; stem++ {
		e.audio.SetStemVolume(newActive, stem, 0.0)
		e.audio.SetStemVolume(newStandby, stem, 0.0)
	}

	var (
		decoder *ffmpeg.NetworkDecoder
		song    queue.Song
	)
	if slot != nil {
		decoder, song = slot.HandOff()
	}
	if e.hooks.Complete != nil && decoder != nil {
		e.hooks.Complete(decoder, song)
	}

	e.ring.StandbyFullMix().Clear()
	e.ring.StandbyStems().Clear()

	if e.hooks.BackgroundTaskEnd != nil {
		e.hooks.BackgroundTaskEnd()
	}

	e.backToIdle()
}

// Cancel implements cancel_crossfade(): stops timers, disables stem mode,
// releases the background token, and clears the standby buffer. A no-op
// while completing.
func (e *Engine) Cancel() {
	e.mu.Lock()
	state := e.state
	cancelFade := e.cancelFade
	slot := e.slot
	e.slot = nil
	e.cancelFade = nil
	stats, energy, profile := e.stats, e.transitionEnergy, e.transitionProfile
	e.mu.Unlock()

	if state == StateCompleting || state == StateIdle {
		return
	}

	if (state == StateFading || state == StateStemFading) && stats != nil {
		stats.RecordSkip(energy, profile)
	}

	if cancelFade != nil {
		cancelFade()
		e.fadeWG.Wait()
	}

	if e.audio.StemRampActive() || e.audio.InStemMode() {
		e.audio.DeactivateStemMode()
	}

	if slot != nil {
		slot.Stop()
	}
	e.ring.StandbyFullMix().Clear()
	e.ring.StandbyStems().Clear()

	if (state == StateFading || state == StateStemFading) && e.hooks.BackgroundTaskEnd != nil {
		e.hooks.BackgroundTaskEnd()
	}

	e.backToIdle()
}

// QueueDidChange cancels an in-flight preload/analyze/ready transition
// when the queue is mutated out from under it (reorder, remove, explicit
// song tap). Fades already in progress are left alone.
func (e *Engine) QueueDidChange() {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state == StatePreloading || state == StateAnalyzing || state == StateReady {
		e.Cancel()
	}
}

func (e *Engine) backToIdle() {
	e.mu.Lock()
	e.state = StateIdle
	e.stemEligible = false
	e.loudnessCorrection = 1.0
	e.triggerThreshold = 0
	e.mu.Unlock()
}
