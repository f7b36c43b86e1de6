package dsp

import "math"

// BandFrequencies is the fixed set of ten EQ band center/corner
// frequencies, band 0 lowest (low-shelf) through band 9 highest
// (high-shelf).
var BandFrequencies = [10]float64{32, 64, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

const (
	eqBandCount   = 10
	parametricQ   = 1.0
	bassDoublingCapDB = 4.0  // main-EQ band-0 gain cap while the parallel bass path is engaged
	bassEngageThresholdDB = 3.0 // avg(band0,band1) above this engages the parallel bass path
	bassMixGain   = 0.25
	bassDriveDB   = 6.0
	bassLowpassHz = 120.0
)

// ParametricEQ is a 10-band parametric equalizer: band 0 is a low-shelf,
// band 9 a high-shelf, and bands 1-8 are peaking filters at Q=1. Cascaded
// Direct Form I biquads, one per band, processed in series.
type ParametricEQ struct {
	bands    [eqBandCount]Biquad
	gainsDB  [eqBandCount]float64
	sampleRateHz float64
}

// NewParametricEQ builds a flat (0 dB on every band) EQ at the given
// sample rate.
func NewParametricEQ(sampleRateHz float64) *ParametricEQ {
	eq := &ParametricEQ{sampleRateHz: sampleRateHz}
	for i := range eq.bands {
		eq.gainsDB[i] = 0
	}
	eq.reconfigureAll()
	return eq
}

// SetBandGain sets one band's gain in dB (expected range [-12, 12], not
// enforced here — the EQ Settings Store owns range validation) and
// recomputes that band's coefficients.
func (eq *ParametricEQ) SetBandGain(band int, gainDB float64) {
	if band < 0 || band >= eqBandCount {
		return
	}
	eq.gainsDB[band] = gainDB
	eq.reconfigureBand(band)
}

// SetAllGains replaces every band's gain (e.g. applying a preset vector)
// and recomputes every band's coefficients.
func (eq *ParametricEQ) SetAllGains(gainsDB [eqBandCount]float64) {
	eq.gainsDB = gainsDB
	eq.reconfigureAll()
}

// BassPathEngaged reports whether the average of bands 0 and 1 exceeds the
// engagement threshold, independent of preset — the caller also engages
// the parallel bass path when the "Mega Bass" preset is selected.
func (eq *ParametricEQ) BassPathEngaged() bool {
	avg := (eq.gainsDB[0] + eq.gainsDB[1]) / 2
	return avg > bassEngageThresholdDB
}

// EffectiveBandZeroGain returns band 0's gain as seen by the main EQ chain,
// capped at bassDoublingCapDB whenever the parallel bass path is engaged
// (by level or by forcing via megaBassPreset) to prevent doubling.
func (eq *ParametricEQ) EffectiveBandZeroGain(megaBassPreset bool) float64 {
	if eq.BassPathEngaged() || megaBassPreset {
		if eq.gainsDB[0] > bassDoublingCapDB {
			return bassDoublingCapDB
		}
	}
	return eq.gainsDB[0]
}

func (eq *ParametricEQ) reconfigureAll() {
	for i := range eq.bands {
		eq.reconfigureBand(i)
	}
}

func (eq *ParametricEQ) reconfigureBand(band int) {
	freq := BandFrequencies[band]
	switch band {
	case 0:
		eq.bands[band].Configure(LowShelf, freq, eq.sampleRateHz, 0.707, eq.gainsDB[band])
	case eqBandCount - 1:
		eq.bands[band].Configure(HighShelf, freq, eq.sampleRateHz, 0.707, eq.gainsDB[band])
	default:
		eq.bands[band].Configure(Peaking, freq, eq.sampleRateHz, parametricQ, eq.gainsDB[band])
	}
}

// ProcessInterleavedStereo runs an interleaved stereo block through all ten
// bands in series, in place. megaBassPreset forces the band-0 doubling cap
// the same way a level-triggered bass-path engagement would.
func (eq *ParametricEQ) ProcessInterleavedStereo(buf []float32, megaBassPreset bool) {
	if eq.EffectiveBandZeroGain(megaBassPreset) != eq.gainsDB[0] {
		// Band 0 is capped this block; swap in a capped copy, process, restore.
		capped := eq.bands[0]
		capped.Configure(LowShelf, BandFrequencies[0], eq.sampleRateHz, 0.707, eq.EffectiveBandZeroGain(megaBassPreset))
		capped.x1, capped.x2 = eq.bands[0].x1, eq.bands[0].x2
		capped.y1, capped.y2 = eq.bands[0].y1, eq.bands[0].y2
		capped.ProcessInterleavedStereo(buf)
		eq.bands[0].x1, eq.bands[0].x2 = capped.x1, capped.x2
		eq.bands[0].y1, eq.bands[0].y2 = capped.y1, capped.y2
	} else {
		eq.bands[0].ProcessInterleavedStereo(buf)
	}
	for i := 1; i < eqBandCount; i++ {
		eq.bands[i].ProcessInterleavedStereo(buf)
	}
}

// Reset clears filter memory on every band without touching gains.
func (eq *ParametricEQ) Reset() {
	for i := range eq.bands {
		eq.bands[i].Reset()
	}
}

// ParallelBassChain is the Audio Engine's secondary bass path: low-pass at
// 120 Hz, soft-knee harmonic distortion ("drive"), then a fixed mix gain,
// summed into the main mixer alongside the parametric EQ's output.
type ParallelBassChain struct {
	lowpass Biquad
	driveDB float64
	mixGain float64
}

// NewParallelBassChain builds the bass path at the given sample rate with
// the spec's fixed +6 dB drive and 0.25 mix gain.
func NewParallelBassChain(sampleRateHz float64) *ParallelBassChain {
	c := &ParallelBassChain{driveDB: bassDriveDB, mixGain: bassMixGain}
	c.lowpass.Configure(LowPass, bassLowpassHz, sampleRateHz, 0.707, 0)
	return c
}

// ProcessSample runs one sample through the low-pass and soft-clip drive
// stage, returning the contribution to be summed into the main mixer
// (already scaled by mixGain).
func (c *ParallelBassChain) ProcessSample(ch int, x float64) float64 {
	filtered := c.lowpass.ProcessSample(ch, x)
	driven := softClip(filtered * dbToLinear(c.driveDB))
	return driven * c.mixGain
}

// ProcessInterleavedStereo runs an interleaved stereo block through the
// bass chain and adds its contribution into dst (which must be the same
// length as buf and is not otherwise cleared by this call).
func (c *ParallelBassChain) ProcessInterleavedStereo(buf []float32, dst []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		dst[i] += float32(c.ProcessSample(0, float64(buf[i])))
		dst[i+1] += float32(c.ProcessSample(1, float64(buf[i+1])))
	}
}

// Reset clears the low-pass filter's memory.
func (c *ParallelBassChain) Reset() {
	c.lowpass.Reset()
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// softClip applies a cheap tanh-based soft saturator used as the parallel
// bass path's "harmonic distortion" stage.
func softClip(x float64) float64 {
	return math.Tanh(x)
}
