package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressorReducesGainAboveThreshold(t *testing.T) {
	c := NewCompressor(44100)
	n := 4410
	var maxOut float32
	for i := 0; i < n; i++ {
		x := float32(0.9 * math.Sin(2*math.Pi*1000*float64(i)/44100)) // well above -18dB
		l, r := x, x
		c.ProcessFrame(&l, &r)
		if l > maxOut {
			maxOut = l
		}
	}
	assert.Less(t, maxOut, float32(0.9))
}

func TestCompressorLeavesQuietSignalsUntouched(t *testing.T) {
	c := NewCompressor(44100)
	n := 4410
	for i := 0; i < n; i++ {
		x := float32(0.001 * math.Sin(2*math.Pi*1000*float64(i)/44100)) // well below -18dB
		l, r := x, x
		orig := l
		c.ProcessFrame(&l, &r)
		assert.InDelta(t, orig, l, 1e-5)
	}
}

func TestLimiterClampsToUnityRange(t *testing.T) {
	lm := NewLimiter(44100)
	buf := make([]float32, 2000)
	for i := range buf {
		if i%2 == 0 {
			buf[i] = 1.5
		} else {
			buf[i] = -1.5
		}
	}
	lm.ProcessInterleavedStereo(buf)
	for _, v := range buf {
		assert.LessOrEqual(t, v, float32(1.0))
		assert.GreaterOrEqual(t, v, float32(-1.0))
	}
}

func TestLimiterResetClearsEnvelope(t *testing.T) {
	lm := NewLimiter(44100)
	l, r := float32(0.9), float32(0.9)
	lm.ProcessFrame(&l, &r)
	assert.NotEqual(t, silenceFloorDB, lm.follower.envelopeDB)

	lm.Reset()
	assert.Equal(t, silenceFloorDB, lm.follower.envelopeDB)
}
