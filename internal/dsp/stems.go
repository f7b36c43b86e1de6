package dsp

import "math"

// StemDecomposer performs cheap real-time stem separation on an interleaved
// stereo frame, writing each of four derived "stems" (drums, bass, vocal,
// atmosphere) to its own destination and maintaining a running side/mid
// energy ratio used to gate stereo-dependent crossfade behavior. Grounded in
// the mid/side split and biquad low-pass used by the Audio Engine's EQ
// chain, generalized to the decomposer's four-stem split.
type StemDecomposer struct {
	bassLowpass  Biquad
	drumsBandLow Biquad
	drumsBandHi  Biquad

	midRMSSum  float64
	sideRMSSum float64
	frameCount uint64
}

// NewStemDecomposer builds a decomposer configured for the given sample
// rate: bass low-pass at 250 Hz, and a rough drum band-pass around
// 80 Hz-4 kHz built from a high-pass followed by a low-pass stage.
func NewStemDecomposer(sampleRateHz float64) *StemDecomposer {
	d := &StemDecomposer{}
	d.bassLowpass.Configure(LowPass, 250, sampleRateHz, 0.707, 0)
	d.drumsBandLow.Configure(HighPass, 80, sampleRateHz, 0.707, 0)
	d.drumsBandHi.Configure(LowPass, 4000, sampleRateHz, 0.707, 0)
	return d
}

// StemFrame holds the four decomposed stem samples for one stereo frame,
// each itself a stereo pair, plus the full-mix passthrough.
type StemFrame struct {
	FullMixL, FullMixR         float32
	DrumsL, DrumsR             float32
	BassL, BassR               float32
	VocalL, VocalR             float32
	AtmosphereL, AtmosphereR   float32
}

// Process decomposes one interleaved stereo frame (L, R) into the four
// stem lanes. Allocation-free; safe to call from the RT tap path.
func (d *StemDecomposer) Process(l, r float32) StemFrame {
	mid := (float64(l) + float64(r)) / 2
	side := (float64(l) - float64(r)) / 2

	d.midRMSSum += mid * mid
	d.sideRMSSum += side * side
	d.frameCount++

	bass := d.bassLowpass.ProcessSample(0, mid)
	vocal := mid - bass

	drumsBand := d.drumsBandLow.ProcessSample(1, mid)
	drumsBand = d.drumsBandHi.ProcessSample(1, drumsBand)

	return StemFrame{
		FullMixL: l,
		FullMixR: r,

		DrumsL: float32(drumsBand),
		DrumsR: float32(drumsBand),

		BassL: float32(bass),
		BassR: float32(bass),

		VocalL: float32(vocal),
		VocalR: float32(vocal),

		AtmosphereL: float32(side),
		AtmosphereR: float32(-side),
	}
}

// ProcessBlock decomposes a full interleaved stereo block, writing each
// stem's interleaved samples into the corresponding destination slice
// (which must each be sized frameCount*2). Any destination may be nil to
// skip that lane (e.g. full-mix passthrough is optional).
func (d *StemDecomposer) ProcessBlock(input []float32, frameCount int, fullMix, drums, bass, vocal, atmosphere []float32) {
	for i := 0; i < frameCount; i++ {
		l := input[i*2]
		r := input[i*2+1]
		frame := d.Process(l, r)

		if fullMix != nil {
			fullMix[i*2] = frame.FullMixL
			fullMix[i*2+1] = frame.FullMixR
		}
		if drums != nil {
			drums[i*2] = frame.DrumsL
			drums[i*2+1] = frame.DrumsR
		}
		if bass != nil {
			bass[i*2] = frame.BassL
			bass[i*2+1] = frame.BassR
		}
		if vocal != nil {
			vocal[i*2] = frame.VocalL
			vocal[i*2+1] = frame.VocalR
		}
		if atmosphere != nil {
			atmosphere[i*2] = frame.AtmosphereL
			atmosphere[i*2+1] = frame.AtmosphereR
		}
	}
}

// Stereo thresholds gating stagger-intensity interpolation, per the
// decomposer's side/mid energy ratio analysis.
const (
	monoRatioThreshold      = 0.02
	fullStereoRatioThreshold = 0.15
)

// MidRMS returns the cumulative RMS level of the mid (mono-sum) signal
// since the last ResetAnalysis/Reset, used for the crossfade loudness
// correction. Returns 0 if no frames have been processed yet.
func (d *StemDecomposer) MidRMS() float64 {
	if d.frameCount == 0 {
		return 0
	}
	return math.Sqrt(d.midRMSSum / float64(d.frameCount))
}

// SideMidRatio returns the current cumulative side/mid RMS ratio. Returns 0
// if no frames have been processed yet.
func (d *StemDecomposer) SideMidRatio() float64 {
	if d.frameCount == 0 {
		return 0
	}
	midRMS := math.Sqrt(d.midRMSSum / float64(d.frameCount))
	sideRMS := math.Sqrt(d.sideRMSSum / float64(d.frameCount))
	if midRMS == 0 {
		if sideRMS == 0 {
			return 0
		}
		return fullStereoRatioThreshold * 10 // no center energy at all: treat as maximally wide
	}
	return sideRMS / midRMS
}

// StaggerIntensity maps the current side/mid ratio into [0, 1]: below
// monoRatioThreshold the track is treated as mono (stem mode should be
// skipped entirely by the caller); above fullStereoRatioThreshold, full
// staggered-fade intensity; in between, linear interpolation.
func (d *StemDecomposer) StaggerIntensity() float64 {
	ratio := d.SideMidRatio()
	switch {
	case ratio <= monoRatioThreshold:
		return 0
	case ratio >= fullStereoRatioThreshold:
		return 1
	default:
		return (ratio - monoRatioThreshold) / (fullStereoRatioThreshold - monoRatioThreshold)
	}
}

// IsEssentiallyMono reports whether the accumulated side/mid ratio falls at
// or below the mono gating threshold.
func (d *StemDecomposer) IsEssentiallyMono() bool {
	return d.SideMidRatio() <= monoRatioThreshold
}

// ResetAnalysis zeroes the running RMS accumulators and frame counter
// without touching filter state, used when a new track begins analysis.
func (d *StemDecomposer) ResetAnalysis() {
	d.midRMSSum = 0
	d.sideRMSSum = 0
	d.frameCount = 0
}

// Reset clears both the analysis accumulators and filter memory, used when
// a decomposer instance is recycled for a new track.
func (d *StemDecomposer) Reset() {
	d.ResetAnalysis()
	d.bassLowpass.Reset()
	d.drumsBandLow.Reset()
	d.drumsBandHi.Reset()
}

// VocalDropDetector implements the "is_vocal_drop_detected" heuristic:
// vocal RMS falling below 40% of its trailing 2s average for at least
// 400ms signals a vocal drop. The Crossfade Engine's Evaluate uses it to
// decide whether to trigger a premium stem fade early.
type VocalDropDetector struct {
	sampleRateHz     float64
	trailingWindow   []float64
	trailingPos      int
	trailingFilled   bool
	belowSince       int64 // frame index at which the level first dropped below threshold, -1 if not currently below
	frameIndex       int64
}

// NewVocalDropDetector builds a detector with a 2-second trailing RMS
// window at the given sample rate.
func NewVocalDropDetector(sampleRateHz float64) *VocalDropDetector {
	windowFrames := int(2 * sampleRateHz)
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &VocalDropDetector{
		sampleRateHz:   sampleRateHz,
		trailingWindow: make([]float64, windowFrames),
		belowSince:     -1,
	}
}

// Observe feeds one vocal-lane sample's instantaneous squared amplitude
// (vocalSample*vocalSample) and returns whether a sustained drop is
// currently in effect.
func (v *VocalDropDetector) Observe(vocalSampleSquared float64) bool {
	v.trailingWindow[v.trailingPos] = vocalSampleSquared
	v.trailingPos = (v.trailingPos + 1) % len(v.trailingWindow)
	if v.trailingPos == 0 {
		v.trailingFilled = true
	}
	v.frameIndex++

	if !v.trailingFilled {
		return false
	}

	sum := 0.0
	for _, s := range v.trailingWindow {
		sum += s
	}
	avg := math.Sqrt(sum / float64(len(v.trailingWindow)))
	current := math.Sqrt(vocalSampleSquared)

	below := avg > 0 && current < 0.4*avg
	if !below {
		v.belowSince = -1
		return false
	}
	if v.belowSince < 0 {
		v.belowSince = v.frameIndex
	}
	sustainedFrames := int64(0.4 * v.sampleRateHz)
	return v.frameIndex-v.belowSince >= sustainedFrames
}
