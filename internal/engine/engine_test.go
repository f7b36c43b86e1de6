package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

func TestRenderPullsFromBoundSlotAndProducesNonZeroOutput(t *testing.T) {
	e := New(dsp.EngineSampleRate)
	buf := ringbuffer.New(8192)
	frame := make([]float32, 256)
	for i := range frame {
		frame[i] = 0.3
	}
	buf.Write(frame, len(frame))

	e.BindSlot(SlotA, buf)
	e.SetSlotVolume(SlotA, 1.0)

	dst := make([]float32, deviceFramesPerBuffer*2)
	e.render(dst, deviceFramesPerBuffer)

	nonZero := false
	for _, v := range dst {
		if v != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero)
}

func TestMuteZeroesOutputImmediately(t *testing.T) {
	e := New(dsp.EngineSampleRate)
	buf := ringbuffer.New(8192)
	frame := make([]float32, 256)
	for i := range frame {
		frame[i] = 0.5
	}
	buf.Write(frame, len(frame))
	e.BindSlot(SlotA, buf)
	e.SetSlotVolume(SlotA, 1.0)

	e.Mute()

	dst := make([]float32, deviceFramesPerBuffer*2)
	e.render(dst, deviceFramesPerBuffer)
	for _, v := range dst {
		assert.Equal(t, float32(0), v)
	}
}

func TestUnmuteAfterDelayRestoresOutput(t *testing.T) {
	e := New(dsp.EngineSampleRate)
	buf := ringbuffer.New(8192)
	frame := make([]float32, 1024)
	for i := range frame {
		frame[i] = 0.5
	}
	buf.Write(frame, len(frame))
	e.BindSlot(SlotA, buf)
	e.SetSlotVolume(SlotA, 1.0)

	e.Mute()
	assert.True(t, e.muted.Load())

	e.Unmute(0)
	require.Eventually(t, func() bool {
		return !e.muted.Load()
	}, time.Second, time.Millisecond)
}

func TestStemModeRampCompletesAfterFiftySteps(t *testing.T) {
	e := New(dsp.EngineSampleRate)
	e.ActivateStemMode()
	assert.True(t, e.StemRampActive())

	for i := 0; i < stemRampSteps; i++ {
		e.TickStemRamp()
	}
	assert.False(t, e.StemRampActive())
	assert.True(t, e.InStemMode())
}

func TestStemRampEqualPowerAtMidpoint(t *testing.T) {
	var ramp stemModeRamp
	ramp.Activate()
	var fullMix, stemMix float64
	for i := 0; i < stemRampSteps/2; i++ {
		fullMix, stemMix = ramp.Tick()
	}
	// At the halfway point of an equal-power crossfade the two legs' power
	// sums to 1 (cos^2 + sin^2 == 1) regardless of progress.
	assert.InDelta(t, 1.0, fullMix*fullMix+stemMix*stemMix, 0.05)
}

func TestBindStemsWiresAllFourLanes(t *testing.T) {
	e := New(dsp.EngineSampleRate)
	stems := ringbuffer.NewStems()
	e.BindStems(SlotA, stems)
	for s := range e.stemSources[SlotA] {
		assert.NotNil(t, e.stemSources[SlotA][s].buffer)
	}
}
