package dsp

// EngineSampleRate is the fixed internal processing rate of the Audio
// Engine and every ring buffer downstream of the Tap Bridge.
const EngineSampleRate = 44100.0

// Resampler performs linear-interpolation sample-rate conversion between an
// arbitrary input rate and an arbitrary output rate, entirely inside the
// real-time callback path. It carries a fractional phase accumulator and the
// last input frame across calls so interpolation is continuous at block
// boundaries, and grows its scratch output buffer on demand (intended to be
// done once via Prepare, well before the RT path is entered) rather than on
// every Process call.
//
// The Tap Bridge uses it to bring an arbitrary network-decoder rate up to
// EngineSampleRate before writing into a ring buffer; the Audio Engine uses
// it in the other direction, converting the fixed EngineSampleRate mix down
// to (or up to) whatever rate the output device was opened at.
type Resampler struct {
	inputRate  float64
	outputRate float64
	ratio      float64 // input frames consumed per output frame

	phase        float64 // fractional position into the current input block
	lastL        float64 // last input sample, channel 0, carried across blocks
	lastR        float64 // last input sample, channel 1, carried across blocks
	primed       bool
	scratch      []float32
}

// NewResampler creates a resampler converting from inputRateHz to the fixed
// engine rate. Call SetOutputRate afterward to target a different output
// rate (e.g. a device's native rate) instead.
func NewResampler(inputRateHz float64) *Resampler {
	r := &Resampler{outputRate: EngineSampleRate}
	r.setRate(inputRateHz)
	return r
}

// SetInputRate reconfigures the resampler for a new source rate (e.g. the
// network decoder reports a format change). Not RT-safe on its own merits —
// callers invoke this from the non-RT "configure" path, never mid-callback.
func (r *Resampler) SetInputRate(inputRateHz float64) {
	r.setRate(inputRateHz)
	r.phase = 0
	r.primed = false
}

// SetOutputRate reconfigures the resampler's target rate (e.g. the output
// device's native rate, queried once at stream-open time). Not RT-safe on
// its own merits — same non-RT "configure" path restriction as SetInputRate.
func (r *Resampler) SetOutputRate(outputRateHz float64) {
	if outputRateHz <= 0 {
		outputRateHz = EngineSampleRate
	}
	r.outputRate = outputRateHz
	r.setRate(r.inputRate)
	r.phase = 0
	r.primed = false
}

func (r *Resampler) setRate(inputRateHz float64) {
	if inputRateHz <= 0 {
		inputRateHz = r.outputRate
	}
	r.inputRate = inputRateHz
	r.ratio = inputRateHz / r.outputRate
}

// Prepare grows the scratch buffer so Process(frameCount) for any
// frameCount <= maxInputFrames does not need to allocate. Call during
// track-load setup, never from the RT callback.
func (r *Resampler) Prepare(maxInputFrames int) {
	needed := outputFrameBound(maxInputFrames, r.ratio) * 2
	if cap(r.scratch) < needed {
		r.scratch = make([]float32, needed)
	}
}

// outputFrameBound returns a safe upper bound on the number of output
// frames Process could produce for frameCount input frames at this ratio.
func outputFrameBound(frameCount int, ratio float64) int {
	if ratio <= 0 {
		ratio = 1
	}
	n := int(float64(frameCount)/ratio) + 2
	if n < 1 {
		n = 1
	}
	return n
}

// Process converts frameCount interleaved stereo input frames (2*frameCount
// float32 samples) at the configured input rate into interleaved stereo
// output at the configured output rate. The returned slice aliases the
// resampler's internal scratch buffer and is only valid until the next
// Process call.
func (r *Resampler) Process(input []float32, frameCount int) []float32 {
	needed := outputFrameBound(frameCount, r.ratio) * 2
	if cap(r.scratch) < needed {
		// RT-unsafe growth path: only reached if Prepare was not sized
		// generously enough ahead of time.
		r.scratch = make([]float32, needed)
	}
	out := r.scratch[:0]

	if !r.primed && frameCount > 0 {
		r.lastL = float64(input[0])
		r.lastR = float64(input[1])
	}

	pos := r.phase
	for pos < float64(frameCount) {
		idx := int(pos)
		frac := pos - float64(idx)

		var s0L, s0R, s1L, s1R float64
		if idx == 0 {
			s0L, s0R = r.lastL, r.lastR
		} else {
			s0L = float64(input[(idx-1)*2])
			s0R = float64(input[(idx-1)*2+1])
		}
		if idx < frameCount {
			s1L = float64(input[idx*2])
			s1R = float64(input[idx*2+1])
		} else {
			s1L, s1R = s0L, s0R
		}

		out = append(out, float32(lerp(s0L, s1L, frac)), float32(lerp(s0R, s1R, frac)))
		pos += r.ratio
	}

	if frameCount > 0 {
		r.lastL = float64(input[(frameCount-1)*2])
		r.lastR = float64(input[(frameCount-1)*2+1])
		r.primed = true
		r.phase = pos - float64(frameCount)
	}

	return out
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
