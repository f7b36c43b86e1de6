package crossfade

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/wavify-audio/wavify-core/internal/kvstore"
)

// Energy buckets the outgoing/incoming pair's stereo character, the only
// signal the analyze step already computes that's cheap enough to key a
// learned preference on.
type Energy string

const (
	EnergyCalm      Energy = "calm"
	EnergyEnergetic Energy = "energetic"
)

type transitionOutcome struct {
	PlayThroughCount int `json:"playThroughCount"`
	SkipCount        int `json:"skipCount"`
}

// TransitionStats tracks, per "{energy}_{profile}" bucket, how often a
// transition using that profile at that energy level played through versus
// got skipped mid-fade. The Crossfade Engine's profile selector reads this
// to prefer whichever profile empirically gets played through more often,
// the way a recommendation system favors content with better completion
// rates.
type TransitionStats struct {
	mu      sync.Mutex
	kv      *kvstore.Store
	buckets map[string]transitionOutcome
}

// NewTransitionStats loads persisted bucket counts from kv, if any.
func NewTransitionStats(kv *kvstore.Store) *TransitionStats {
	t := &TransitionStats{kv: kv, buckets: make(map[string]transitionOutcome)}
	if kv != nil {
		var saved map[string]transitionOutcome
		if ok, err := kv.Get(kvstore.KeyTransitionStats, &saved); ok && err == nil {
			t.buckets = saved
		}
	}
	return t
}

func bucketKey(energy Energy, profile Profile) string {
	return fmt.Sprintf("%s_%s", energy, profile)
}

// RecordPlayThrough notes that a transition in this bucket ran to completion.
func (t *TransitionStats) RecordPlayThrough(energy Energy, profile Profile) {
	t.update(bucketKey(energy, profile), func(o *transitionOutcome) { o.PlayThroughCount++ })
}

// RecordSkip notes that a transition in this bucket was abandoned mid-fade.
func (t *TransitionStats) RecordSkip(energy Energy, profile Profile) {
	t.update(bucketKey(energy, profile), func(o *transitionOutcome) { o.SkipCount++ })
}

func (t *TransitionStats) update(key string, apply func(*transitionOutcome)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o := t.buckets[key]
	apply(&o)
	t.buckets[key] = o

	if t.kv != nil {
		if err := t.kv.Set(kvstore.KeyTransitionStats, t.buckets); err != nil {
			slog.Warn("crossfade: failed to persist transition stats", "error", err)
		}
	}
}

// PreferredProfile returns whichever candidate has the highest play-through
// ratio for energy, among transitions with at least one recorded outcome.
// Falls back to candidates[0] when no bucket has data yet.
func (t *TransitionStats) PreferredProfile(energy Energy, candidates []Profile) Profile {
	if len(candidates) == 0 {
		return ProfileSmooth
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	best := candidates[0]
	bestRatio := -1.0
	for _, p := range candidates {
		o, ok := t.buckets[bucketKey(energy, p)]
		total := o.PlayThroughCount + o.SkipCount
		if !ok || total == 0 {
			continue
		}
		ratio := float64(o.PlayThroughCount) / float64(total)
		if ratio > bestRatio {
			bestRatio = ratio
			best = p
		}
	}
	return best
}
