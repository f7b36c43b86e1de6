package dsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// feedClickTrain drives tracker with a periodic burst of energy every
// periodSeconds, for durationSeconds total, at sampleRateHz.
func feedClickTrain(tracker *BeatTracker, sampleRateHz, periodSeconds, durationSeconds float64) {
	n := int(sampleRateHz * durationSeconds)
	burstWidth := 0.01
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRateHz
		phase := t - float64(int(t/periodSeconds))*periodSeconds
		amp := float32(0.01)
		if phase < burstWidth {
			amp = 1.0
		}
		tracker.Observe(amp, amp)
	}
}

func TestBeatTrackerEstimatesBPMFromRegularClickTrain(t *testing.T) {
	tracker := NewBeatTracker(1000)
	feedClickTrain(tracker, 1000, 0.5, 10) // 120 BPM for 10s

	bpm, confident := tracker.BPM()
	assert.True(t, confident)
	assert.InDelta(t, 120, bpm, 5)
}

func TestBeatTrackerNotConfidentWithoutEnoughOnsets(t *testing.T) {
	tracker := NewBeatTracker(1000)
	feedClickTrain(tracker, 1000, 0.5, 1) // well under 4 onsets

	_, confident := tracker.BPM()
	assert.False(t, confident)
}

func TestBeatTrackerNotConfidentOnSilence(t *testing.T) {
	tracker := NewBeatTracker(1000)
	for i := 0; i < 10000; i++ {
		tracker.Observe(0.01, 0.01)
	}

	_, confident := tracker.BPM()
	assert.False(t, confident)
}

func TestBeatTrackerSnapToBeatFindsNearbyDownbeat(t *testing.T) {
	tracker := NewBeatTracker(1000)
	feedClickTrain(tracker, 1000, 0.5, 10)

	snapped, ok := tracker.SnapToBeat(2 * time.Second)
	assert.True(t, ok)
	// nearest multiple of the 0.5s period to the 2s ideal should stay close
	assert.InDelta(t, 2*time.Second, snapped, float64(400*time.Millisecond))
}

func TestBeatTrackerSnapToBeatFailsWithoutConfidence(t *testing.T) {
	tracker := NewBeatTracker(1000)
	_, ok := tracker.SnapToBeat(2 * time.Second)
	assert.False(t, ok)
}
