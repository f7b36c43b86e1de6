// Package engine implements the Audio Engine: the fixed DSP graph that
// pulls samples from the active ring buffer slot, mixes in stem lanes
// during a crossfade, runs the EQ/bass/dynamics chain, and writes the
// result to the output device. Grounded on the teacher's domain-stack
// choice of github.com/gordonklaus/portaudio, adapted from the blocking
// Write-loop pattern shown in the pack's rustyguts-bken audio client (the
// teacher itself streams over HTTP and has no local device output of its
// own).
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

// deviceFramesPerBuffer is the block size requested from the output
// device; small enough for low latency, large enough to avoid excessive
// callback overhead.
const deviceFramesPerBuffer = 512

// Slot identifies which of the two crossfade slots a source node belongs
// to, matching ringbuffer.Slot's A/B lanes.
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

// Engine owns the whole DSP graph and the device output stream.
type Engine struct {
	deviceSampleRateHz float64

	slotSources  [2]*sourceNode
	stemSources  [2][4]*sourceNode // indexed [Slot][ringbuffer.Stem]

	stemRamp   stemModeRamp
	stemRampMu sync.Mutex

	outputResampler *dsp.Resampler
	eq              *dsp.ParametricEQ
	bass            *dsp.ParallelBassChain
	compressor      *dsp.Compressor
	limiter         *dsp.Limiter

	megaBassPreset atomic.Bool

	muted       atomic.Bool
	unmuteTimer *time.Timer
	unmuteMu    sync.Mutex

	stream  *portaudio.Stream
	running atomic.Bool

	mixScratch  []float32
	stemScratch []float32
	bassScratch []float32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Engine with an initial device rate estimate of
// deviceSampleRateHz. The DSP graph itself always runs at
// dsp.EngineSampleRate; the output resampler converts the post-mix signal to
// the device's actual native rate, which Start queries from the default
// output device and may differ from this initial estimate.
func New(deviceSampleRateHz float64) *Engine {
	e := &Engine{
		deviceSampleRateHz: deviceSampleRateHz,
		outputResampler:    dsp.NewResampler(dsp.EngineSampleRate),
		eq:                 dsp.NewParametricEQ(dsp.EngineSampleRate),
		bass:               dsp.NewParallelBassChain(dsp.EngineSampleRate),
		compressor:         dsp.NewCompressor(dsp.EngineSampleRate),
		limiter:            dsp.NewLimiter(dsp.EngineSampleRate),
		stopCh:             make(chan struct{}),
	}
	e.outputResampler.SetOutputRate(deviceSampleRateHz)
	for i := range e.slotSources {
		e.slotSources[i] = newSourceNode(dsp.EngineSampleRate)
		for s := range e.stemSources[i] {
			e.stemSources[i][s] = newSourceNode(dsp.EngineSampleRate)
		}
	}
	e.outputResampler.Prepare(deviceFramesPerBuffer * 4)
	return e
}

// BindSlot points a slot's full-mix source node at a ring buffer (or nil
// to silence it).
func (e *Engine) BindSlot(slot Slot, buf *ringbuffer.RingBuffer) {
	e.slotSources[slot].Bind(buf)
}

// BindStems points a slot's four stem source nodes at a Stems tuple.
func (e *Engine) BindStems(slot Slot, stems ringbuffer.Stems) {
	for s := ringbuffer.Stem(0); int(s) < len(stems); s++ {
		e.stemSources[slot][s].Bind(stems[s])
	}
}

// SetSlotVolume schedules slot's crossfade-mixer gain.
func (e *Engine) SetSlotVolume(slot Slot, v float64) {
	e.slotSources[slot].SetVolume(v)
}

// SetStemVolume schedules one stem lane's mixer gain for slot.
func (e *Engine) SetStemVolume(slot Slot, stem ringbuffer.Stem, v float64) {
	e.stemSources[slot][stem].SetVolume(v)
}

// ActivateStemMode begins the 50ms equal-power ramp into stem mode.
func (e *Engine) ActivateStemMode() {
	e.stemRampMu.Lock()
	e.stemRamp.Activate()
	e.stemRampMu.Unlock()
}

// DeactivateStemMode begins the 50ms equal-power ramp out of stem mode.
// The caller is responsible for clearing the stem ring buffers once the
// ramp completes (InStemMode/Active can be polled from the main thread).
func (e *Engine) DeactivateStemMode() {
	e.stemRampMu.Lock()
	e.stemRamp.Deactivate()
	e.stemRampMu.Unlock()
}

// StemRampActive reports whether a stem-mode transition is in progress.
func (e *Engine) StemRampActive() bool {
	e.stemRampMu.Lock()
	defer e.stemRampMu.Unlock()
	return e.stemRamp.Active()
}

// InStemMode reports whether the engine has completed an activation ramp
// and is fully in stem mode.
func (e *Engine) InStemMode() bool {
	e.stemRampMu.Lock()
	defer e.stemRampMu.Unlock()
	return e.stemRamp.InStemMode()
}

// TickStemRamp advances the 50ms equal-power stem-mode ramp by one 1ms
// step and returns the full-mix gain multiplier and stem mix scale for
// that step. Never called from the RT callback: the Crossfade Engine's
// completion step calls it once per millisecond until a deactivation ramp
// finishes. No caller applies the returned multipliers to SetSlotVolume /
// SetStemVolume, and no caller advances an activation ramp, so InStemMode
// does not become true during a stem fade.
func (e *Engine) TickStemRamp() (fullMixGain, stemMixScale float64) {
	e.stemRampMu.Lock()
	defer e.stemRampMu.Unlock()
	return e.stemRamp.Tick()
}

// SetEQGains applies all ten band gains.
func (e *Engine) SetEQGains(gains [10]float64) {
	e.eq.SetAllGains(gains)
}

// SetMegaBassPreset toggles the "Mega Bass" preset flag that forces the
// parallel bass path to engage regardless of band 0/1 gain.
func (e *Engine) SetMegaBassPreset(enabled bool) {
	e.megaBassPreset.Store(enabled)
}

// Mute immediately zeroes the final mixer output.
func (e *Engine) Mute() {
	e.unmuteMu.Lock()
	if e.unmuteTimer != nil {
		e.unmuteTimer.Stop()
		e.unmuteTimer = nil
	}
	e.unmuteMu.Unlock()
	e.muted.Store(true)
}

// Unmute schedules unmuting after delay — the spec calls for roughly
// 80-100ms to let the pipeline refill after a load/seek/retry.
func (e *Engine) Unmute(delay time.Duration) {
	e.unmuteMu.Lock()
	defer e.unmuteMu.Unlock()
	if e.unmuteTimer != nil {
		e.unmuteTimer.Stop()
	}
	e.unmuteTimer = time.AfterFunc(delay, func() {
		e.muted.Store(false)
	})
}

// Start queries the default output device's native sample rate, retargets
// the output resampler to it, and begins rendering. The device is opened at
// its own native rate rather than dsp.EngineSampleRate; the output
// resampler is what makes that possible.
func (e *Engine) Start() error {
	if e.running.Load() {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("engine: portaudio init: %w", err)
	}

	outDev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("engine: query default output device: %w", err)
	}
	deviceRate := outDev.DefaultSampleRate
	if deviceRate <= 0 {
		deviceRate = dsp.EngineSampleRate
	}
	e.deviceSampleRateHz = deviceRate
	e.outputResampler.SetOutputRate(deviceRate)

	outBuf := make([]float32, deviceFramesPerBuffer*2)
	stream, err := portaudio.OpenDefaultStream(0, 2, deviceRate, deviceFramesPerBuffer, outBuf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("engine: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("engine: start output stream: %w", err)
	}

	e.stream = stream
	e.stopCh = make(chan struct{})
	e.running.Store(true)

	e.wg.Add(1)
	go e.renderLoop(outBuf)
	return nil
}

// Stop halts rendering and closes the device.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	if e.stream != nil {
		e.stream.Stop()
		e.stream.Close()
		e.stream = nil
	}
	portaudio.Terminate()
}

func (e *Engine) renderLoop(outBuf []float32) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}
		e.render(outBuf, deviceFramesPerBuffer)
		if err := e.stream.Write(); err != nil {
			if e.running.Load() {
				slog.Warn("engine: device write failed", "error", err)
			}
			return
		}
	}
}

// render runs one block through the full graph: slot mixers, stem mixers,
// crossfade mixer, output resampler, EQ + parallel bass, main mixer,
// compressor, limiter, and finally the mute gate.
func (e *Engine) render(dst []float32, frameCount int) {
	need := frameCount * 2
	if cap(e.mixScratch) < need {
		e.mixScratch = make([]float32, need)
		e.stemScratch = make([]float32, need)
		e.bassScratch = make([]float32, need)
	}
	mix := e.mixScratch[:need]
	stemMix := e.stemScratch[:need]
	for i := range mix {
		mix[i] = 0
		stemMix[i] = 0
	}

	e.slotSources[SlotA].Render(mix, frameCount)
	e.slotSources[SlotB].Render(mix, frameCount)

	for slot := 0; slot < 2; slot++ {
		for s := 0; s < 4; s++ {
			e.stemSources[slot][s].Render(stemMix, frameCount)
		}
	}

	for i := range mix {
		mix[i] += stemMix[i]
	}

	resampled := e.outputResampler.Process(mix, frameCount)
	outFrames := len(resampled) / 2

	megaBass := e.megaBassPreset.Load()
	e.eq.ProcessInterleavedStereo(resampled, megaBass)

	if e.eq.BassPathEngaged() || megaBass {
		bassOut := e.bassScratch
		if cap(bassOut) < len(resampled) {
			bassOut = make([]float32, len(resampled))
			e.bassScratch = bassOut
		}
		bassOut = bassOut[:len(resampled)]
		for i := range bassOut {
			bassOut[i] = 0
		}
		e.bass.ProcessInterleavedStereo(resampled, bassOut)
		for i := range resampled {
			resampled[i] += bassOut[i]
		}
	}

	e.compressor.ProcessInterleavedStereo(resampled)
	e.limiter.ProcessInterleavedStereo(resampled)

	if e.muted.Load() {
		for i := range dst {
			dst[i] = 0
		}
		return
	}

	copyFrames := outFrames
	if copyFrames > frameCount {
		copyFrames = frameCount
	}
	for i := 0; i < copyFrames*2; i++ {
		dst[i] = resampled[i]
	}
	for i := copyFrames * 2; i < len(dst); i++ {
		dst[i] = 0
	}
}
