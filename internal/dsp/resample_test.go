package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResamplerIdentityRatePassesThrough(t *testing.T) {
	r := NewResampler(EngineSampleRate)
	r.Prepare(4)
	input := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	out := r.Process(input, 4)
	assert.Equal(t, 8, len(out))
}

func TestResamplerUpsampleProducesMoreFrames(t *testing.T) {
	r := NewResampler(22050) // half the engine rate: should roughly double frame count
	r.Prepare(100)
	input := make([]float32, 100*2)
	for i := range input {
		input[i] = float32(i%7) / 7
	}
	out := r.Process(input, 100)
	outFrames := len(out) / 2
	assert.InDelta(t, 200, outFrames, 5)
}

func TestResamplerDownsampleProducesFewerFrames(t *testing.T) {
	r := NewResampler(88200) // twice the engine rate: should roughly halve frame count
	r.Prepare(100)
	input := make([]float32, 100*2)
	for i := range input {
		input[i] = float32(i%7) / 7
	}
	out := r.Process(input, 100)
	outFrames := len(out) / 2
	assert.InDelta(t, 50, outFrames, 5)
}

func TestResamplerPhaseStaysBoundedAcrossCalls(t *testing.T) {
	r := NewResampler(48000)
	r.Prepare(512)
	input := make([]float32, 512*2)
	for i := range input {
		input[i] = float32(i%11) / 11
	}
	for call := 0; call < 50; call++ {
		r.Process(input, 512)
		assert.GreaterOrEqual(t, r.phase, 0.0)
		assert.Less(t, r.phase, float64(512))
	}
}

func TestResamplerSetOutputRateRetargetsRatio(t *testing.T) {
	r := NewResampler(EngineSampleRate) // engine rate in, engine rate out: ratio 1
	r.SetOutputRate(48000)              // now targeting a faster device rate
	r.Prepare(100)
	input := make([]float32, 100*2)
	for i := range input {
		input[i] = float32(i%7) / 7
	}
	out := r.Process(input, 100)
	outFrames := len(out) / 2
	want := int(100 * 48000 / EngineSampleRate)
	assert.InDelta(t, want, outFrames, 2)
}

func TestResamplerContinuityAcrossBlockBoundary(t *testing.T) {
	// A constant-value input should produce a constant-value output with no
	// discontinuity introduced by splitting it across two Process calls.
	r := NewResampler(48000)
	r.Prepare(256)
	block := make([]float32, 256*2)
	for i := range block {
		block[i] = 0.5
	}
	out1 := r.Process(block, 256)
	out2 := r.Process(block, 256)

	for _, v := range out1 {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
	for _, v := range out2 {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}
