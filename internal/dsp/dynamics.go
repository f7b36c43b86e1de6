package dsp

import "math"

// envelopeFollower tracks a smoothed peak level in dB using separate
// attack/release time constants, stereo-linked (driven by the louder of
// the two channels in a frame).
type envelopeFollower struct {
	attackCoeff  float64
	releaseCoeff float64
	envelopeDB   float64
}

const silenceFloorDB = -120.0

func newEnvelopeFollower(attackMs, releaseMs, sampleRateHz float64) envelopeFollower {
	return envelopeFollower{
		attackCoeff:  timeConstantCoeff(attackMs, sampleRateHz),
		releaseCoeff: timeConstantCoeff(releaseMs, sampleRateHz),
		envelopeDB:   silenceFloorDB,
	}
}

func timeConstantCoeff(ms, sampleRateHz float64) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (ms / 1000.0 * sampleRateHz))
}

func (e *envelopeFollower) update(peakLinear float64) float64 {
	levelDB := linearToDB(peakLinear)
	if levelDB > e.envelopeDB {
		e.envelopeDB = e.attackCoeff*e.envelopeDB + (1-e.attackCoeff)*levelDB
	} else {
		e.envelopeDB = e.releaseCoeff*e.envelopeDB + (1-e.releaseCoeff)*levelDB
	}
	return e.envelopeDB
}

func (e *envelopeFollower) reset() {
	e.envelopeDB = silenceFloorDB
}

func linearToDB(x float64) float64 {
	if x <= 0 {
		return silenceFloorDB
	}
	db := 20 * math.Log10(x)
	if db < silenceFloorDB {
		return silenceFloorDB
	}
	return db
}

// Compressor is a feedforward, stereo-linked dynamics compressor: threshold
// -18 dB, 4:1 ratio, attack 2ms, release 80ms, applied as the main mixer's
// gain-reduction stage ahead of the limiter.
type Compressor struct {
	thresholdDB float64
	ratio       float64
	follower    envelopeFollower
}

// NewCompressor builds the Audio Engine's fixed-parameter compressor.
func NewCompressor(sampleRateHz float64) *Compressor {
	return &Compressor{
		thresholdDB: -18,
		ratio:       4,
		follower:    newEnvelopeFollower(2, 80, sampleRateHz),
	}
}

// ProcessFrame applies gain reduction to one stereo frame in place,
// detecting level from the louder of the two channels (stereo-linked).
func (c *Compressor) ProcessFrame(l, r *float32) {
	peak := math.Max(math.Abs(float64(*l)), math.Abs(float64(*r)))
	levelDB := c.follower.update(peak)

	gainReductionDB := 0.0
	if levelDB > c.thresholdDB {
		gainReductionDB = (levelDB - c.thresholdDB) * (1 - 1/c.ratio)
	}
	gain := dbToLinear(-gainReductionDB)

	*l = float32(float64(*l) * gain)
	*r = float32(float64(*r) * gain)
}

// ProcessInterleavedStereo applies the compressor to a full interleaved
// stereo block in place.
func (c *Compressor) ProcessInterleavedStereo(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		c.ProcessFrame(&buf[i], &buf[i+1])
	}
}

// Reset clears the envelope follower's state.
func (c *Compressor) Reset() {
	c.follower.reset()
}

// Limiter is a brick-wall, stereo-linked peak limiter: threshold -2 dB,
// attack 1ms, release 50ms, the final gain stage before device output.
type Limiter struct {
	thresholdDB float64
	follower    envelopeFollower
}

// NewLimiter builds the Audio Engine's fixed-parameter limiter.
func NewLimiter(sampleRateHz float64) *Limiter {
	return &Limiter{
		thresholdDB: -2,
		follower:    newEnvelopeFollower(1, 50, sampleRateHz),
	}
}

// ProcessFrame applies brick-wall gain reduction to one stereo frame in
// place.
func (lm *Limiter) ProcessFrame(l, r *float32) {
	peak := math.Max(math.Abs(float64(*l)), math.Abs(float64(*r)))
	levelDB := lm.follower.update(peak)

	gainReductionDB := 0.0
	if levelDB > lm.thresholdDB {
		gainReductionDB = levelDB - lm.thresholdDB
	}
	gain := dbToLinear(-gainReductionDB)

	*l = float32(float64(*l) * gain)
	*r = float32(float64(*r) * gain)
}

// ProcessInterleavedStereo applies the limiter to a full interleaved
// stereo block in place, then hard-clips any residual excursion past full
// scale as a final safety net.
func (lm *Limiter) ProcessInterleavedStereo(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		lm.ProcessFrame(&buf[i], &buf[i+1])
		buf[i] = clamp(buf[i], -1, 1)
		buf[i+1] = clamp(buf[i+1], -1, 1)
	}
}

// Reset clears the envelope follower's state.
func (lm *Limiter) Reset() {
	lm.follower.reset()
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
