// Package crossfade implements the Crossfade Slot, Transition
// Choreographer, and Crossfade Engine: the state machine and stem-gain
// math that together drive a musical transition between two tracks.
package crossfade

import (
	"math"

	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

// fadeWindow is a (start_fraction, end_fraction) pair of total fade
// duration, as described in §4.8.
type fadeWindow struct {
	start, end float64
}

// stemWindows holds one stem's outgoing and incoming fade windows.
type stemWindows struct {
	outgoing fadeWindow
	incoming fadeWindow
}

// Profile names a named fade-window table. "smooth" is the default,
// generalized from the source's 6-stem choreography to this engine's 8
// (4 outgoing + 4 incoming).
type Profile string

const (
	ProfileSmooth Profile = "smooth"
	ProfileDJMix  Profile = "djMix"
	ProfileDrop   Profile = "drop"
)

var profiles = map[Profile]map[ringbuffer.Stem]stemWindows{
	ProfileSmooth: {
		ringbuffer.StemDrums:      {outgoing: fadeWindow{0.00, 0.40}, incoming: fadeWindow{0.20, 0.60}},
		ringbuffer.StemBass:       {outgoing: fadeWindow{0.05, 0.50}, incoming: fadeWindow{0.10, 0.50}},
		ringbuffer.StemAtmosphere: {outgoing: fadeWindow{0.00, 0.40}, incoming: fadeWindow{0.20, 0.60}},
		ringbuffer.StemVocal:      {outgoing: fadeWindow{0.15, 0.75}, incoming: fadeWindow{0.35, 0.85}},
	},
	// djMix front-loads the handoff: drums and bass swap almost immediately,
	// vocals and atmosphere linger on the outgoing track until the back half.
	ProfileDJMix: {
		ringbuffer.StemDrums:      {outgoing: fadeWindow{0.00, 0.20}, incoming: fadeWindow{0.00, 0.20}},
		ringbuffer.StemBass:       {outgoing: fadeWindow{0.00, 0.25}, incoming: fadeWindow{0.00, 0.25}},
		ringbuffer.StemAtmosphere: {outgoing: fadeWindow{0.40, 0.80}, incoming: fadeWindow{0.40, 0.80}},
		ringbuffer.StemVocal:      {outgoing: fadeWindow{0.50, 0.90}, incoming: fadeWindow{0.50, 0.90}},
	},
	// drop holds the outgoing track at full strength until late, then
	// crossfades everything together quickly to land on the incoming
	// track's drop.
	ProfileDrop: {
		ringbuffer.StemDrums:      {outgoing: fadeWindow{0.60, 0.85}, incoming: fadeWindow{0.60, 0.85}},
		ringbuffer.StemBass:       {outgoing: fadeWindow{0.65, 0.90}, incoming: fadeWindow{0.65, 0.90}},
		ringbuffer.StemAtmosphere: {outgoing: fadeWindow{0.55, 0.80}, incoming: fadeWindow{0.55, 0.80}},
		ringbuffer.StemVocal:      {outgoing: fadeWindow{0.70, 0.95}, incoming: fadeWindow{0.70, 0.95}},
	},
}

// StemGains is the per-stem (outgoing, incoming) gain vector the
// choreographer produces once per tick.
type StemGains struct {
	Outgoing [4]float64 // indexed by ringbuffer.Stem
	Incoming [4]float64
}

// duckThreshold is the level above which a stem is considered "present"
// for ducking purposes; duckBassGain/duckAtmosphereGain are the spec's
// fixed ducking multipliers.
const (
	duckThreshold      = 0.1
	duckBassGain       = 0.707 // -3dB
	duckAtmosphereGain = 0.85
)

// Choreographer produces stem-volume vectors at 60 Hz following a fade
// profile, per §4.8.
type Choreographer struct {
	profile Profile
}

// NewChoreographer returns a Choreographer using the given profile,
// falling back to "smooth" if profile is unrecognized.
func NewChoreographer(profile Profile) *Choreographer {
	if _, ok := profiles[profile]; !ok {
		profile = ProfileSmooth
	}
	return &Choreographer{profile: profile}
}

// SetProfile switches the active fade-window table.
func (c *Choreographer) SetProfile(profile Profile) {
	if _, ok := profiles[profile]; ok {
		c.profile = profile
	}
}

// Tick computes the stem gain vector for overall fade progress p ∈ [0,1].
func (c *Choreographer) Tick(p float64) StemGains {
	windows := profiles[c.profile]
	var gains StemGains

	for stem := ringbuffer.Stem(0); int(stem) < 4; stem++ {
		w := windows[stem]
		gains.Outgoing[stem] = windowGain(w.outgoing, p, true)
		gains.Incoming[stem] = windowGain(w.incoming, p, false)
	}

	bothBassPresent := gains.Outgoing[ringbuffer.StemBass] > duckThreshold && gains.Incoming[ringbuffer.StemBass] > duckThreshold
	if bothBassPresent {
		gains.Incoming[ringbuffer.StemBass] *= duckBassGain
		gains.Incoming[ringbuffer.StemAtmosphere] *= duckAtmosphereGain
	}

	return gains
}

// windowGain evaluates one stem's equal-power window curve at progress p.
// isOutgoing selects which before/after asymptote and which trig curve
// (cos for outgoing, sin for incoming) applies inside the window.
func windowGain(w fadeWindow, p float64, isOutgoing bool) float64 {
	switch {
	case p < w.start:
		if isOutgoing {
			return 1.0
		}
		return 0.0
	case p > w.end:
		if isOutgoing {
			return 0.0
		}
		return 1.0
	default:
		span := w.end - w.start
		var local float64
		if span > 0 {
			local = (p - w.start) / span
		}
		if isOutgoing {
			return math.Cos(local * math.Pi / 2)
		}
		return math.Sin(local * math.Pi / 2)
	}
}
