package ringbuffer

import "sync/atomic"

// FullMixCapacity is the sample capacity of a full-mix ring buffer: 4s of
// stereo audio at the 48000 Hz device-rate upper bound used for sizing
// (2 * 4 * 48000).
const FullMixCapacity = 4 * 48000 * 2

// StemCapacity is the sample capacity of each stem ring buffer: 2s of stereo
// audio at the 44100 Hz engine rate.
const StemCapacity = 2 * 44100 * 2

// Stem identifies one of the four decomposed crossfade lanes.
type Stem int

const (
	StemDrums Stem = iota
	StemBass
	StemVocal
	StemAtmosphere
	stemCount
)

func (s Stem) String() string {
	switch s {
	case StemDrums:
		return "drums"
	case StemBass:
		return "bass"
	case StemVocal:
		return "vocal"
	case StemAtmosphere:
		return "atmosphere"
	default:
		return "unknown"
	}
}

// Stems is a fixed four-tuple of per-stem ring buffers, one per Stem value.
type Stems [stemCount]*RingBuffer

// NewStems allocates a fresh Stems tuple, each buffer sized at StemCapacity.
func NewStems() Stems {
	return Stems{
		StemDrums:      New(StemCapacity),
		StemBass:       New(StemCapacity),
		StemVocal:      New(StemCapacity),
		StemAtmosphere: New(StemCapacity),
	}
}

// Clear resets every buffer in the tuple. Entries left nil (a zero-value
// Stems, e.g. when a tap was never attached in stem mode) are skipped.
func (s Stems) Clear() {
	for _, rb := range s {
		if rb != nil {
			rb.Clear()
		}
	}
}

// Slot holds the pair (A, B) of full-mix ring buffers plus their parallel
// stem tuples. Exactly one of A/B is "active" at a time; swapping which one
// is active is an O(1) atomic flip that every dependent getter observes.
type Slot struct {
	fullMix [2]*RingBuffer
	stems   [2]Stems

	// activeIdx is 0 or 1, indicating which of fullMix/stems is active. A
	// single atomic flip so the rendering thread's next callback observes
	// the swap atomically, with no torn reads across dependent getters.
	activeIdx atomic.Int32
}

// NewSlot allocates both lanes of a ring buffer slot.
func NewSlot() *Slot {
	return &Slot{
		fullMix: [2]*RingBuffer{New(FullMixCapacity), New(FullMixCapacity)},
		stems:   [2]Stems{NewStems(), NewStems()},
	}
}

// ActiveFullMix returns the currently active full-mix ring buffer.
func (s *Slot) ActiveFullMix() *RingBuffer {
	return s.fullMix[s.activeIdx.Load()]
}

// StandbyFullMix returns the currently standby full-mix ring buffer.
func (s *Slot) StandbyFullMix() *RingBuffer {
	return s.fullMix[1-s.activeIdx.Load()]
}

// ActiveStems returns the currently active stem tuple.
func (s *Slot) ActiveStems() Stems {
	return s.stems[s.activeIdx.Load()]
}

// StandbyStems returns the currently standby stem tuple.
func (s *Slot) StandbyStems() Stems {
	return s.stems[1-s.activeIdx.Load()]
}

// Swap flips which lane (A or B) is active. O(1) and commutes all dependent
// getters; safe to call from the main coordination thread while the
// rendering thread is mid-callback — the next callback observes the new
// active lane.
func (s *Slot) Swap() {
	for {
		old := s.activeIdx.Load()
		if s.activeIdx.CompareAndSwap(old, 1-old) {
			return
		}
	}
}

// IsActiveA reports whether lane A is currently the active lane.
func (s *Slot) IsActiveA() bool {
	return s.activeIdx.Load() == 0
}
