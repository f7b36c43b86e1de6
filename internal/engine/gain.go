package engine

import "math"

// gainSmoother applies a per-sample exponential approach toward a target
// gain so volume mutations never produce a single-sample discontinuity.
// Mutations happen on the scheduling thread (SetTarget); the real-time
// callback only ever calls Next, which is branch-light and allocation-free.
type gainSmoother struct {
	current    float64
	target     float64
	coeff      float64 // per-sample approach rate toward target
}

// newGainSmoother starts fully at initial with a ~5ms smoothing time
// constant at sampleRateHz — short enough to feel instant, long enough to
// never click.
func newGainSmoother(initial float64, sampleRateHz float64) *gainSmoother {
	g := &gainSmoother{current: initial, target: initial}
	g.setTimeConstant(5.0, sampleRateHz)
	return g
}

func (g *gainSmoother) setTimeConstant(ms, sampleRateHz float64) {
	if ms <= 0 {
		g.coeff = 1
		return
	}
	samples := ms * sampleRateHz / 1000.0
	g.coeff = 1 - math.Exp(-1/samples)
}

// SetTarget schedules a new gain to approach; safe to call from the main
// coordination thread while Next runs concurrently on the RT thread (each
// field is only ever written from one side).
func (g *gainSmoother) SetTarget(v float64) {
	g.target = v
}

// SetImmediate snaps current and target to v with no ramp — used when a
// ring buffer is about to be cleared anyway and a ramp would only smear
// stale audio into the new state.
func (g *gainSmoother) SetImmediate(v float64) {
	g.current = v
	g.target = v
}

// Next advances the smoother by one sample and returns the new current
// gain. Called once per output sample from the RT callback.
func (g *gainSmoother) Next() float64 {
	g.current += (g.target - g.current) * g.coeff
	return g.current
}
