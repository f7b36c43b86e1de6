package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStemDecomposerMonoSignalHasZeroSide(t *testing.T) {
	d := NewStemDecomposer(44100)
	for i := 0; i < 44100; i++ {
		x := float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
		frame := d.Process(x, x) // identical L/R: a mono signal
		assert.InDelta(t, 0, frame.AtmosphereL, 1e-6)
	}
	assert.True(t, d.IsEssentiallyMono())
}

func TestStemDecomposerWideStereoHasHighStaggerIntensity(t *testing.T) {
	d := NewStemDecomposer(44100)
	for i := 0; i < 44100; i++ {
		l := float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
		r := -l // fully out-of-phase: maximal side energy
		d.Process(l, r)
	}
	assert.Greater(t, d.StaggerIntensity(), 0.9)
	assert.False(t, d.IsEssentiallyMono())
}

func TestStemDecomposerBassIsLowFrequencyEnergy(t *testing.T) {
	d := NewStemDecomposer(44100)
	var bassEnergy, vocalEnergy float64
	n := 44100
	settle := n / 10
	for i := 0; i < n; i++ {
		x := float32(math.Sin(2 * math.Pi * 60 * float64(i) / 44100)) // sub-bass tone
		frame := d.Process(x, x)
		if i >= settle {
			bassEnergy += float64(frame.BassL) * float64(frame.BassL)
			vocalEnergy += float64(frame.VocalL) * float64(frame.VocalL)
		}
	}
	assert.Greater(t, bassEnergy, vocalEnergy, "a 60Hz tone should dominate the bass lane over the vocal lane")
}

func TestStemDecomposerResetClearsAnalysis(t *testing.T) {
	d := NewStemDecomposer(44100)
	d.Process(1, -1)
	d.Process(1, -1)
	assert.Greater(t, d.SideMidRatio(), 0.0)

	d.ResetAnalysis()
	assert.Equal(t, 0.0, d.SideMidRatio())
}

func TestVocalDropDetectorFlagsSustainedDrop(t *testing.T) {
	v := NewVocalDropDetector(1000) // small rate keeps the test fast

	// Prime the trailing average at a steady, audible level.
	for i := 0; i < 2000; i++ {
		v.Observe(0.25) // amplitude 0.5
	}

	// Now drop well below 40% of that level for long enough to trip the
	// sustained-drop threshold.
	detected := false
	for i := 0; i < 2000; i++ {
		if v.Observe(0.0001) {
			detected = true
		}
	}
	assert.True(t, detected)
}

func TestVocalDropDetectorIgnoresBriefDip(t *testing.T) {
	v := NewVocalDropDetector(1000)
	for i := 0; i < 2000; i++ {
		v.Observe(0.25)
	}
	// A dip much shorter than the 400ms sustain window should never fire.
	detected := false
	for i := 0; i < 50; i++ {
		if v.Observe(0.0001) {
			detected = true
		}
	}
	assert.False(t, detected)
}
