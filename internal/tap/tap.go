// Package tap implements the Tap Bridge: it intercepts decoded PCM from an
// already-decoding network audio source and redirects it into a ring
// buffer, resampling to engine rate and optionally routing through stem
// decomposition along the way. Grounded on the teacher's radio/stream.go
// buffer-stage handoff, generalized here into a real-time-safe bridge: no
// allocation, locking, or blocking once attached and running.
package tap

import (
	"sync"
	"sync/atomic"

	"github.com/wavify-audio/wavify-core/internal/dsp"
	"github.com/wavify-audio/wavify-core/internal/ringbuffer"
)

// Tap bridges a single decoder's output into a ring buffer target. Created
// and attached at track load, detached or abandoned on song change/handoff.
type Tap struct {
	resampler *dsp.Resampler

	// Exactly one of (fullMixTarget) or (stemTarget, possibly with
	// fullMixPassthrough also set) is non-nil once attached.
	fullMixTarget      *ringbuffer.RingBuffer
	stemTarget         ringbuffer.Stems
	fullMixPassthrough *ringbuffer.RingBuffer
	stemDecomposer     *dsp.StemDecomposer

	attached atomic.Bool

	mu                sync.Mutex // guards attach/detach/abandon transitions only
	scratchInterleaved []float32
	scratchFullMix     []float32
	scratchDrums       []float32
	scratchBass        []float32
	scratchVocal       []float32
	scratchAtmosphere  []float32
}

// New returns a Tap resampling from inputRateHz to the fixed engine rate.
func New(inputRateHz float64) *Tap {
	return &Tap{
		resampler: dsp.NewResampler(inputRateHz),
	}
}

// Prepare grows every scratch buffer the RT path may touch so Process never
// allocates. maxInputFrames should be at least the largest frame count the
// source decoder can hand back in one callback.
func (t *Tap) Prepare(maxInputFrames int) {
	t.resampler.Prepare(maxInputFrames)
	maxOutputFrames := maxInputFrames*2 + 64 // headroom for upsampling plus rounding
	if cap(t.scratchInterleaved) < maxInputFrames*2 {
		t.scratchInterleaved = make([]float32, maxInputFrames*2)
	}
	if cap(t.scratchFullMix) < maxOutputFrames*2 {
		t.scratchFullMix = make([]float32, maxOutputFrames*2)
		t.scratchDrums = make([]float32, maxOutputFrames*2)
		t.scratchBass = make([]float32, maxOutputFrames*2)
		t.scratchVocal = make([]float32, maxOutputFrames*2)
		t.scratchAtmosphere = make([]float32, maxOutputFrames*2)
	}
}

// SetInputRate updates the resampler's source rate, e.g. after a seek that
// lands on a segment with a different native sample rate.
func (t *Tap) SetInputRate(inputRateHz float64) {
	t.resampler.SetInputRate(inputRateHz)
}

// Attach binds the tap to a full-mix ring buffer target. Any previous
// attachment is released first (without clearing, matching abandon
// semantics — callers that want the old buffer cleared should Detach
// explicitly before attaching elsewhere).
func (t *Tap) Attach(target *ringbuffer.RingBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fullMixTarget = target
	t.stemTarget = ringbuffer.Stems{}
	t.fullMixPassthrough = nil
	t.stemDecomposer = nil
	t.attached.Store(true)
}

// AttachStems binds the tap to the four stem ring buffers plus an optional
// full-mix passthrough buffer, and installs the stem decomposer that
// routes the resampled output through §4.4's algorithm instead of feeding
// target directly.
func (t *Tap) AttachStems(decomposer *dsp.StemDecomposer, stems ringbuffer.Stems, fullMixPassthrough *ringbuffer.RingBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fullMixTarget = nil
	t.stemTarget = stems
	t.fullMixPassthrough = fullMixPassthrough
	t.stemDecomposer = decomposer
	t.attached.Store(true)
}

// Detach releases the tap and clears whatever buffer(s) it was writing to.
// Not real-time safe (Clear takes a lock) — only call from the main
// coordination thread.
func (t *Tap) Detach() {
	t.mu.Lock()
	fullMix, passthrough, stems := t.fullMixTarget, t.fullMixPassthrough, t.stemTarget
	t.fullMixTarget = nil
	t.fullMixPassthrough = nil
	t.stemTarget = ringbuffer.Stems{}
	t.stemDecomposer = nil
	t.attached.Store(false)
	t.mu.Unlock()

	if fullMix != nil {
		fullMix.Clear()
	}
	if passthrough != nil {
		passthrough.Clear()
	}
	stems.Clear()
}

// Abandon releases the tap without clearing its target buffer(s) — used
// when handing a decoder off to the primary playback service mid-stream so
// the already-buffered audio keeps flowing uninterrupted.
func (t *Tap) Abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fullMixTarget = nil
	t.fullMixPassthrough = nil
	t.stemTarget = ringbuffer.Stems{}
	t.stemDecomposer = nil
	t.attached.Store(false)
}

// Attached reports whether the tap currently owns a target.
func (t *Tap) Attached() bool {
	return t.attached.Load()
}

// ProcessInterleaved consumes frameCount interleaved stereo frames from buf
// (len(buf) >= frameCount*2), resamples them to engine rate, routes them to
// the attached target(s), and zeroes buf so the decoder's own output path
// stays silent — this tap owns all audible output. No-op if not attached.
// Safe to call from the real-time audio callback: no allocation once
// Prepare has sized the scratch buffers for the caller's frame count.
func (t *Tap) ProcessInterleaved(buf []float32, frameCount int) {
	if !t.attached.Load() {
		return
	}
	n := frameCount * 2
	t.deliver(buf[:n], frameCount)
	zero(buf[:n])
}

// ProcessPlanar consumes frameCount samples from two separate channel
// buffers, interleaving them before the same resample/route/zero path as
// ProcessInterleaved.
func (t *Tap) ProcessPlanar(left, right []float32, frameCount int) {
	if !t.attached.Load() {
		return
	}
	if cap(t.scratchInterleaved) < frameCount*2 {
		t.scratchInterleaved = make([]float32, frameCount*2)
	}
	interleaved := t.scratchInterleaved[:frameCount*2]
	for i := 0; i < frameCount; i++ {
		interleaved[2*i] = left[i]
		interleaved[2*i+1] = right[i]
	}
	t.deliver(interleaved, frameCount)
	zero(left[:frameCount])
	zero(right[:frameCount])
}

func (t *Tap) deliver(interleaved []float32, frameCount int) {
	resampled := t.resampler.Process(interleaved, frameCount)
	outFrames := len(resampled) / 2

	if t.stemDecomposer != nil {
		if cap(t.scratchFullMix) < outFrames*2 {
			t.Prepare(outFrames)
		}
		fullMix := t.scratchFullMix[:outFrames*2]
		drums := t.scratchDrums[:outFrames*2]
		bass := t.scratchBass[:outFrames*2]
		vocal := t.scratchVocal[:outFrames*2]
		atmosphere := t.scratchAtmosphere[:outFrames*2]

		t.stemDecomposer.ProcessBlock(resampled, outFrames, fullMix, drums, bass, vocal, atmosphere)

		t.stemTarget[ringbuffer.StemDrums].Write(drums, outFrames*2)
		t.stemTarget[ringbuffer.StemBass].Write(bass, outFrames*2)
		t.stemTarget[ringbuffer.StemVocal].Write(vocal, outFrames*2)
		t.stemTarget[ringbuffer.StemAtmosphere].Write(atmosphere, outFrames*2)
		if t.fullMixPassthrough != nil {
			t.fullMixPassthrough.Write(fullMix, outFrames*2)
		}
		return
	}

	if t.fullMixTarget != nil {
		t.fullMixTarget.Write(resampled, outFrames*2)
	}
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
