package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParametricEQFlatGainsLeaveSignalNearUnity(t *testing.T) {
	eq := NewParametricEQ(44100)
	n := 4410
	buf := make([]float32, n*2)
	for i := 0; i < n; i++ {
		x := float32(math.Sin(2 * math.Pi * 1000 * float64(i) / 44100))
		buf[i*2] = x
		buf[i*2+1] = x
	}
	eq.ProcessInterleavedStereo(buf, false)

	// Settled region should be close to unity gain (cascaded flat biquads).
	for i := n - 100; i < n; i++ {
		expected := math.Sin(2 * math.Pi * 1000 * float64(i) / 44100)
		assert.InDelta(t, expected, buf[i*2], 0.1)
	}
}

func TestParametricEQBassPathEngagesAboveThreshold(t *testing.T) {
	eq := NewParametricEQ(44100)
	assert.False(t, eq.BassPathEngaged())

	eq.SetBandGain(0, 5)
	eq.SetBandGain(1, 5)
	assert.True(t, eq.BassPathEngaged())
}

func TestParametricEQCapsBandZeroWhenBassPathEngaged(t *testing.T) {
	eq := NewParametricEQ(44100)
	eq.SetBandGain(0, 10)
	eq.SetBandGain(1, 10)

	assert.True(t, eq.BassPathEngaged())
	assert.Equal(t, bassDoublingCapDB, eq.EffectiveBandZeroGain(false))
}

func TestParametricEQMegaBassPresetForcesCapEvenBelowThreshold(t *testing.T) {
	eq := NewParametricEQ(44100)
	eq.SetBandGain(0, 10)
	// band 1 left at 0, so BassPathEngaged() is false on level alone.
	assert.False(t, eq.BassPathEngaged())
	assert.Equal(t, bassDoublingCapDB, eq.EffectiveBandZeroGain(true))
}

func TestParallelBassChainAttenuatesHighFrequency(t *testing.T) {
	low := NewParallelBassChain(44100)
	high := NewParallelBassChain(44100)

	n := 4410
	var lowEnergy, highEnergy float64
	for i := 0; i < n; i++ {
		lx := math.Sin(2 * math.Pi * 60 * float64(i) / 44100)
		hx := math.Sin(2 * math.Pi * 5000 * float64(i) / 44100)
		ly := low.ProcessSample(0, lx)
		hy := high.ProcessSample(0, hx)
		if i > n/10 {
			lowEnergy += ly * ly
			highEnergy += hy * hy
		}
	}
	assert.Greater(t, lowEnergy, highEnergy)
}
