package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBiquadLowPassAttenuatesHighFrequency(t *testing.T) {
	const sampleRate = 44100.0
	var lp Biquad
	lp.Configure(LowPass, 500, sampleRate, 0.707, 0)

	lowEnergy := toneEnergy(&lp, 100, sampleRate)
	lp.Reset()
	highEnergy := toneEnergy(&lp, 8000, sampleRate)

	assert.Greater(t, lowEnergy, highEnergy, "low-pass should pass low frequencies more than high ones")
}

func TestBiquadHighPassAttenuatesLowFrequency(t *testing.T) {
	const sampleRate = 44100.0
	var hp Biquad
	hp.Configure(HighPass, 2000, sampleRate, 0.707, 0)

	highEnergy := toneEnergy(&hp, 8000, sampleRate)
	hp.Reset()
	lowEnergy := toneEnergy(&hp, 100, sampleRate)

	assert.Greater(t, highEnergy, lowEnergy, "high-pass should pass high frequencies more than low ones")
}

func TestBiquadPeakingBoostIncreasesEnergyAtCenter(t *testing.T) {
	const sampleRate = 44100.0
	var flat, boosted Biquad
	flat.Configure(Peaking, 1000, sampleRate, 1, 0)
	boosted.Configure(Peaking, 1000, sampleRate, 1, 6)

	flatEnergy := toneEnergy(&flat, 1000, sampleRate)
	boostedEnergy := toneEnergy(&boosted, 1000, sampleRate)

	assert.Greater(t, boostedEnergy, flatEnergy)
}

func TestBiquadResetClearsState(t *testing.T) {
	var b Biquad
	b.Configure(LowPass, 500, 44100, 0.707, 0)
	b.ProcessSample(0, 1.0)
	b.ProcessSample(0, 1.0)
	assert.NotEqual(t, 0.0, b.x1[0])

	b.Reset()
	assert.Equal(t, [2]float64{}, b.x1)
	assert.Equal(t, [2]float64{}, b.x2)
	assert.Equal(t, [2]float64{}, b.y1)
	assert.Equal(t, [2]float64{}, b.y2)
}

// toneEnergy runs one second of a sine tone at freqHz through the filter
// and returns the mean squared output, discarding the first 10% of samples
// to let the filter settle.
func toneEnergy(b *Biquad, freqHz, sampleRateHz float64) float64 {
	n := int(sampleRateHz)
	settle := n / 10
	sum := 0.0
	count := 0
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * freqHz * float64(i) / sampleRateHz)
		y := b.ProcessSample(0, x)
		if i >= settle {
			sum += y * y
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
