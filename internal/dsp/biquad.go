// Package dsp implements the no-allocation real-time signal processing
// graph: biquad filters, the linear-interpolation resampler, the stem
// decomposer, the parametric EQ, and the compressor/limiter dynamics chain.
package dsp

import "math"

// FilterKind selects which RBJ Audio EQ Cookbook formula Biquad.Configure
// uses to derive coefficients.
type FilterKind int

const (
	LowPass FilterKind = iota
	HighPass
	Peaking
	LowShelf
	HighShelf
)

// Biquad is a second-order IIR filter applied independently per channel,
// Direct Form I, coefficients and state persisted across calls so the
// filter carries no memory loss between process() invocations — required
// for the Stem Decomposer's bass low-pass and the parametric EQ bands.
// Adapted from the teacher corpus's peaking-EQ biquad (cliamp player.go);
// generalized here to the five filter kinds the spec's EQ graph needs.
type Biquad struct {
	b0, b1, b2, a1, a2 float64

	// Per-channel filter state (Direct Form I): x1/x2 are the last two input
	// samples, y1/y2 the last two output samples, for each channel.
	x1, x2 [2]float64
	y1, y2 [2]float64
}

// Configure (re)computes coefficients for the given kind, center/corner
// frequency, Q, and gain (dB, only meaningful for Peaking/Shelf kinds). Safe
// to call from a non-RT "configure" call per spec §9 RT-safety — never call
// this from inside the process callback with new parameters on every frame.
func (b *Biquad) Configure(kind FilterKind, freqHz, sampleRateHz, q, gainDB float64) {
	w0 := 2 * math.Pi * freqHz / sampleRateHz
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)

	switch kind {
	case LowPass:
		alpha := sinW0 / (2 * q)
		b0 := (1 - cosW0) / 2
		b1 := 1 - cosW0
		b2 := (1 - cosW0) / 2
		a0 := 1 + alpha
		a1 := -2 * cosW0
		a2 := 1 - alpha
		b.set(b0, b1, b2, a0, a1, a2)

	case HighPass:
		alpha := sinW0 / (2 * q)
		b0 := (1 + cosW0) / 2
		b1 := -(1 + cosW0)
		b2 := (1 + cosW0) / 2
		a0 := 1 + alpha
		a1 := -2 * cosW0
		a2 := 1 - alpha
		b.set(b0, b1, b2, a0, a1, a2)

	case Peaking:
		a := math.Pow(10, gainDB/40)
		alpha := sinW0 / (2 * q)
		b0 := 1 + alpha*a
		b1 := -2 * cosW0
		b2 := 1 - alpha*a
		a0 := 1 + alpha/a
		a1 := -2 * cosW0
		a2 := 1 - alpha/a
		b.set(b0, b1, b2, a0, a1, a2)

	case LowShelf:
		a := math.Pow(10, gainDB/40)
		alpha := sinW0 / 2 * math.Sqrt((a+1/a)*(1/q-1)+2)
		twoSqrtAAlpha := 2 * math.Sqrt(a) * alpha
		b0 := a * ((a + 1) - (a-1)*cosW0 + twoSqrtAAlpha)
		b1 := 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 := a * ((a + 1) - (a-1)*cosW0 - twoSqrtAAlpha)
		a0 := (a + 1) + (a-1)*cosW0 + twoSqrtAAlpha
		a1 := -2 * ((a - 1) + (a+1)*cosW0)
		a2 := (a + 1) + (a-1)*cosW0 - twoSqrtAAlpha
		b.set(b0, b1, b2, a0, a1, a2)

	case HighShelf:
		a := math.Pow(10, gainDB/40)
		alpha := sinW0 / 2 * math.Sqrt((a+1/a)*(1/q-1)+2)
		twoSqrtAAlpha := 2 * math.Sqrt(a) * alpha
		b0 := a * ((a + 1) + (a-1)*cosW0 + twoSqrtAAlpha)
		b1 := -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 := a * ((a + 1) + (a-1)*cosW0 - twoSqrtAAlpha)
		a0 := (a + 1) - (a-1)*cosW0 + twoSqrtAAlpha
		a1 := 2 * ((a - 1) - (a+1)*cosW0)
		a2 := (a + 1) - (a-1)*cosW0 - twoSqrtAAlpha
		b.set(b0, b1, b2, a0, a1, a2)
	}
}

func (b *Biquad) set(b0, b1, b2, a0, a1, a2 float64) {
	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

// ProcessSample runs one sample through the filter for the given channel
// index (0 or 1) and returns the filtered output, advancing the per-channel
// state. Allocation-free.
func (b *Biquad) ProcessSample(ch int, x float64) float64 {
	y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
	b.x2[ch] = b.x1[ch]
	b.x1[ch] = x
	b.y2[ch] = b.y1[ch]
	b.y1[ch] = y
	return y
}

// ProcessInterleavedStereo filters an interleaved stereo buffer in place.
func (b *Biquad) ProcessInterleavedStereo(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i] = float32(b.ProcessSample(0, float64(buf[i])))
		buf[i+1] = float32(b.ProcessSample(1, float64(buf[i+1])))
	}
}

// Reset zeroes the filter's memory without touching coefficients.
func (b *Biquad) Reset() {
	b.x1, b.x2 = [2]float64{}, [2]float64{}
	b.y1, b.y2 = [2]float64{}, [2]float64{}
}
