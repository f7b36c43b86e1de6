// Package eqsettings owns the mutable EQ settings cell: the enabled flag,
// the selected preset, and the ten band gains, broadcasting every mutation
// to subscribers (main wires the Audio Engine's live EQ as one; the admin
// HTTP plane reads Current instead) through a map of subscriber channels
// guarded by a mutex, rather than a single global channel any one slow
// reader could stall.
package eqsettings

import (
	"sync"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/kvstore"
)

// Preset names the fixed set of EQ presets. Custom marks user-edited bands
// that no longer match any named preset.
type Preset string

const (
	PresetFlat        Preset = "flat"
	PresetBassBoost    Preset = "bass_boost"
	PresetMegaBass     Preset = "mega_bass"
	PresetTrebleBoost Preset = "treble_boost"
	PresetVocal        Preset = "vocal"
	PresetRock         Preset = "rock"
	PresetPop          Preset = "pop"
	PresetJazz         Preset = "jazz"
	PresetClassical    Preset = "classical"
	PresetCustom       Preset = "custom"
)

// presetVectors holds the fixed ten-gain vector for every non-custom
// preset, band 0 through band 9 matching dsp.BandFrequencies.
var presetVectors = map[Preset][10]float64{
	PresetFlat:        {0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	PresetBassBoost:    {6, 5, 3, 1, 0, 0, 0, 0, 0, 0},
	PresetMegaBass:     {9, 7, 4, 1, 0, 0, 0, 0, 0, 0},
	PresetTrebleBoost: {0, 0, 0, 0, 0, 1, 3, 5, 6, 6},
	PresetVocal:        {-2, -2, -1, 2, 4, 4, 2, 0, -1, -2},
	PresetRock:         {4, 3, 2, 0, -1, 0, 2, 3, 4, 4},
	PresetPop:          {-1, 1, 3, 4, 2, -1, -2, -1, 1, 2},
	PresetJazz:         {3, 2, 1, 2, -1, -1, 0, 1, 2, 3},
	PresetClassical:    {4, 3, 2, 1, -1, -1, 0, 2, 3, 4},
}

// Band is one of the ten fixed equalizer bands.
type Band struct {
	FrequencyHz float64
	GainDB      float64
}

// Settings is an immutable snapshot of the EQ state, handed to subscribers
// on every change.
type Settings struct {
	Enabled bool
	Preset  Preset
	Bands   [10]Band
}

const (
	minGainDB = -12.0
	maxGainDB = 12.0
)

// Store holds the live EQ settings cell and fans out change notifications.
type Store struct {
	mu       sync.RWMutex
	current  Settings
	subs     map[uint64]chan Settings
	nextSub  uint64
	persist  *kvstore.Store
}

// New builds a Store seeded from kv (if it holds a previously persisted
// Settings value) or a flat, enabled-by-default configuration otherwise.
func New(kv *kvstore.Store) *Store {
	s := &Store{
		subs:    make(map[uint64]chan Settings),
		persist: kv,
	}
	s.current = flatSettings()

	if kv != nil {
		var saved Settings
		if ok, err := kv.Get(kvstore.KeyEQSettings, &saved); ok && err == nil {
			s.current = saved
		}
	}
	return s
}

func flatSettings() Settings {
	var bands [10]Band
	vec := presetVectors[PresetFlat]
	for i := range bands {
		bands[i] = Band{FrequencyHz: dsp.BandFrequencies[i], GainDB: vec[i]}
	}
	return Settings{Enabled: true, Preset: PresetFlat, Bands: bands}
}

// Current returns a snapshot of the current settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetEnabled toggles the EQ on or off without touching band gains.
func (s *Store) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.current.Enabled = enabled
	snapshot := s.current
	s.mu.Unlock()
	s.broadcast(snapshot)
	s.persistLocked(snapshot)
}

// SetBandGain mutates one band's gain, clamped to [-12, 12] dB, and forces
// the selected preset to Custom. band must be in [0, 9]; out-of-range
// values are ignored.
func (s *Store) SetBandGain(band int, gainDB float64) {
	if band < 0 || band >= 10 {
		return
	}
	if gainDB < minGainDB {
		gainDB = minGainDB
	}
	if gainDB > maxGainDB {
		gainDB = maxGainDB
	}

	s.mu.Lock()
	s.current.Bands[band].GainDB = gainDB
	s.current.Preset = PresetCustom
	snapshot := s.current
	s.mu.Unlock()

	s.broadcast(snapshot)
	s.persistLocked(snapshot)
}

// ApplyPreset overwrites all ten band gains with the named preset's fixed
// vector and selects it. Applying PresetCustom is a no-op (custom has no
// vector of its own — it only ever results from SetBandGain).
func (s *Store) ApplyPreset(preset Preset) {
	vec, ok := presetVectors[preset]
	if !ok {
		return
	}

	s.mu.Lock()
	for i := range s.current.Bands {
		s.current.Bands[i].GainDB = vec[i]
	}
	s.current.Preset = preset
	snapshot := s.current
	s.mu.Unlock()

	s.broadcast(snapshot)
	s.persistLocked(snapshot)
}

// Subscribe returns a channel that receives every subsequent Settings
// change, plus an unsubscribe function the caller must invoke when done.
// The channel is buffered by one slot: a subscriber that falls behind sees
// only the most recent settings, never blocks a mutation.
func (s *Store) Subscribe() (<-chan Settings, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Settings, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

func (s *Store) broadcast(snapshot Settings) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale pending value and replace it with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *Store) persistLocked(snapshot Settings) {
	if s.persist == nil {
		return
	}
	_ = s.persist.Set(kvstore.KeyEQSettings, snapshot)
}
