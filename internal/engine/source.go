package engine

import "github.com/wavify-audio/wavify-core/internal/ringbuffer"

// sourceNode pulls interleaved stereo samples from a ring buffer and
// applies a per-sample smoothed gain. One instance backs each of the two
// slot mixers and each of the eight stem mixers.
type sourceNode struct {
	buffer *ringbuffer.RingBuffer
	gain   *gainSmoother
	scratch []float32
}

func newSourceNode(sampleRateHz float64) *sourceNode {
	return &sourceNode{gain: newGainSmoother(0, sampleRateHz)}
}

// Bind points the node at a new ring buffer (or nil to silence it without
// destroying the node).
func (n *sourceNode) Bind(buf *ringbuffer.RingBuffer) {
	n.buffer = buf
}

// SetVolume schedules a new target gain, ramped glitch-free by gainSmoother.
func (n *sourceNode) SetVolume(v float64) {
	n.gain.SetTarget(v)
}

// Render reads frameCount frames (frameCount*2 samples) from the bound
// buffer, applies the smoothed gain per-sample, and adds the result into
// dst (dst must already hold frameCount*2 samples; Render accumulates, it
// does not overwrite, so multiple source nodes can share one mix bus).
func (n *sourceNode) Render(dst []float32, frameCount int) {
	if n.buffer == nil {
		// Still advance the gain ramp so a subsequent Bind doesn't start
		// from a stale target discontinuity.
		for i := 0; i < frameCount; i++ {
			n.gain.Next()
		}
		return
	}
	need := frameCount * 2
	if cap(n.scratch) < need {
		n.scratch = make([]float32, need)
	}
	buf := n.scratch[:need]
	n.buffer.Read(buf, need)

	for i := 0; i < frameCount; i++ {
		g := float32(n.gain.Next())
		dst[2*i] += buf[2*i] * g
		dst[2*i+1] += buf[2*i+1] * g
	}
}
