package crossfade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

func TestTickBeforeWindowHoldsOutgoingFullIncomingZero(t *testing.T) {
	c := NewChoreographer(ProfileSmooth)
	gains := c.Tick(0.0)
	assert.InDelta(t, 1.0, gains.Outgoing[ringbuffer.StemDrums], 1e-9)
	assert.InDelta(t, 0.0, gains.Incoming[ringbuffer.StemDrums], 1e-9)
}

func TestTickAfterWindowHoldsOutgoingZeroIncomingFull(t *testing.T) {
	c := NewChoreographer(ProfileSmooth)
	gains := c.Tick(1.0)
	assert.InDelta(t, 0.0, gains.Outgoing[ringbuffer.StemDrums], 1e-9)
	assert.InDelta(t, 1.0, gains.Incoming[ringbuffer.StemDrums], 1e-9)
}

func TestTickInsideWindowIsEqualPower(t *testing.T) {
	c := NewChoreographer(ProfileSmooth)
	// Drums window is 0.00-0.40 outgoing, 0.20-0.60 incoming; at p=0.20 the
	// outgoing leg is at local progress 0.5 through its own window.
	gains := c.Tick(0.20)
	expectedOutgoing := math.Cos(0.5 * math.Pi / 2)
	assert.InDelta(t, expectedOutgoing, gains.Outgoing[ringbuffer.StemDrums], 1e-9)
}

func TestBassDuckingAppliesWhenBothPresent(t *testing.T) {
	c := NewChoreographer(ProfileSmooth)
	// Bass windows: outgoing 0.05-0.50, incoming 0.10-0.50. At p=0.30 both
	// legs should be comfortably above the 0.1 ducking threshold.
	gains := c.Tick(0.30)
	require := gains.Outgoing[ringbuffer.StemBass] > duckThreshold && gains.Incoming[ringbuffer.StemBass] > duckThreshold
	assert.True(t, require, "expected both bass legs above duck threshold at p=0.30")

	// The recorded incoming bass gain must already reflect the -3dB duck.
	unducked := windowGain(profiles[ProfileSmooth][ringbuffer.StemBass].incoming, 0.30, false)
	assert.InDelta(t, unducked*duckBassGain, gains.Incoming[ringbuffer.StemBass], 1e-9)
	unduckedAtmos := windowGain(profiles[ProfileSmooth][ringbuffer.StemAtmosphere].incoming, 0.30, false)
	assert.InDelta(t, unduckedAtmos*duckAtmosphereGain, gains.Incoming[ringbuffer.StemAtmosphere], 1e-9)
}

func TestUnrecognizedProfileFallsBackToSmooth(t *testing.T) {
	c := NewChoreographer(Profile("does-not-exist"))
	assert.Equal(t, ProfileSmooth, c.profile)
}

func TestSetProfileIgnoresUnknownName(t *testing.T) {
	c := NewChoreographer(ProfileDJMix)
	c.SetProfile(Profile("bogus"))
	assert.Equal(t, ProfileDJMix, c.profile)
}

func TestVocalWindowsAreWidestInSmoothProfile(t *testing.T) {
	w := profiles[ProfileSmooth][ringbuffer.StemVocal]
	assert.InDelta(t, 0.60, w.outgoing.end-w.outgoing.start, 1e-9)
}
