package dsp

import (
	"math"
	"time"
)

// Beat tracking constants. Tuned for "good enough to occasionally snap a
// crossfade trigger onto a downbeat", not for tempo-estimation accuracy.
const (
	beatHopSeconds      = 0.025 // ~40 energy frames/sec
	beatTrailingSeconds = 1.0   // adaptive-threshold averaging window
	beatOnsetFactor     = 1.5   // onset fires once energy clears 1.5x trailing avg
	beatMinIntervalSec  = 0.25  // debounce floor, caps detected tempo at 240 BPM
	beatWindowSeconds   = 8.0   // rolling window onset intervals are kept in
	beatConfidenceCount = 4
	beatVarianceThresh  = 0.01 // seconds^2, variance across the last 4 intervals
	beatSnapToleranceS  = 2.0
)

// BeatTracker estimates tempo from a running onset-energy series: short-hop
// energy, an adaptive trailing-average threshold, and inter-onset-interval
// averaging over a rolling window. It is a minimal onset-energy
// autocorrelation tracker, not a state-of-the-art beat tracker, and reports
// confidence accordingly.
type BeatTracker struct {
	sampleRateHz float64
	hopSamples   int

	hopSum   float64
	hopCount int

	trailing    []float64
	trailingPos int
	trailingSum float64
	filled      bool

	elapsed    float64
	onsetTimes []float64
	lastOnset  float64
	haveOnset  bool
}

// NewBeatTracker builds a tracker for stereo audio arriving at sampleRateHz.
func NewBeatTracker(sampleRateHz float64) *BeatTracker {
	hop := int(beatHopSeconds * sampleRateHz)
	if hop < 1 {
		hop = 1
	}
	trailingLen := int(beatTrailingSeconds / beatHopSeconds)
	if trailingLen < 1 {
		trailingLen = 1
	}
	return &BeatTracker{
		sampleRateHz: sampleRateHz,
		hopSamples:   hop,
		trailing:     make([]float64, trailingLen),
	}
}

// Observe feeds one stereo sample. Allocation-free; safe to call from the
// Playback Service's per-sample feed loop.
func (b *BeatTracker) Observe(l, r float32) {
	mid := float64(l+r) / 2
	b.hopSum += mid * mid
	b.hopCount++
	if b.hopCount < b.hopSamples {
		return
	}

	energy := b.hopSum / float64(b.hopCount)
	b.hopSum, b.hopCount = 0, 0
	b.elapsed += beatHopSeconds

	avg := b.trailingAverage()
	b.pushTrailing(energy)

	if b.filled && avg > 0 && energy >= beatOnsetFactor*avg {
		b.recordOnset()
	}
}

func (b *BeatTracker) pushTrailing(energy float64) {
	b.trailingSum -= b.trailing[b.trailingPos]
	b.trailing[b.trailingPos] = energy
	b.trailingSum += energy
	b.trailingPos = (b.trailingPos + 1) % len(b.trailing)
	if b.trailingPos == 0 {
		b.filled = true
	}
}

func (b *BeatTracker) trailingAverage() float64 {
	if !b.filled {
		if b.trailingPos == 0 {
			return 0
		}
		return b.trailingSum / float64(b.trailingPos)
	}
	return b.trailingSum / float64(len(b.trailing))
}

func (b *BeatTracker) recordOnset() {
	if b.haveOnset && b.elapsed-b.lastOnset < beatMinIntervalSec {
		return
	}
	b.haveOnset = true
	b.lastOnset = b.elapsed
	b.onsetTimes = append(b.onsetTimes, b.elapsed)

	cutoff := b.elapsed - beatWindowSeconds
	i := 0
	for i < len(b.onsetTimes) && b.onsetTimes[i] < cutoff {
		i++
	}
	b.onsetTimes = b.onsetTimes[i:]
}

// intervals returns the inter-onset gaps currently held in the rolling
// window, oldest first.
func (b *BeatTracker) intervals() []float64 {
	if len(b.onsetTimes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(b.onsetTimes)-1)
	for i := 1; i < len(b.onsetTimes); i++ {
		out = append(out, b.onsetTimes[i]-b.onsetTimes[i-1])
	}
	return out
}

// isConfident reports whether the variance across the last 4 recorded
// intervals is tight enough to trust the resulting BPM estimate.
func (b *BeatTracker) isConfident() bool {
	ivals := b.intervals()
	if len(ivals) < beatConfidenceCount {
		return false
	}
	last := ivals[len(ivals)-beatConfidenceCount:]
	mean := 0.0
	for _, v := range last {
		mean += v
	}
	mean /= float64(len(last))

	variance := 0.0
	for _, v := range last {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(last))
	return variance < beatVarianceThresh
}

// BPM returns the estimated tempo from the mean inter-onset interval
// currently in the rolling window, and whether isConfident holds.
func (b *BeatTracker) BPM() (float64, bool) {
	ivals := b.intervals()
	if len(ivals) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range ivals {
		sum += v
	}
	mean := sum / float64(len(ivals))
	if mean <= 0 {
		return 0, false
	}
	return 60.0 / mean, b.isConfident()
}

// SnapToBeat implements crossfade.BeatAligner by value: it snaps ideal to
// the nearest predicted downbeat within +/-2s of the current tempo and
// onset phase. ok is false whenever BPM isn't confident yet or no candidate
// downbeat falls within range.
func (b *BeatTracker) SnapToBeat(ideal time.Duration) (time.Duration, bool) {
	bpm, confident := b.BPM()
	if !confident {
		return 0, false
	}
	period := 60.0 / bpm
	phase := math.Mod(b.elapsed-b.lastOnset, period)
	untilNext := period - phase

	best := untilNext
	bestDiff := math.Abs(ideal.Seconds() - untilNext)
	for k := 1; k < 8; k++ {
		candidate := untilNext + float64(k)*period
		if diff := math.Abs(ideal.Seconds() - candidate); diff < bestDiff {
			bestDiff = diff
			best = candidate
		}
	}
	if bestDiff > beatSnapToleranceS {
		return 0, false
	}
	return time.Duration(best * float64(time.Second)), true
}
