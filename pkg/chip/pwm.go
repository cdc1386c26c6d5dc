package chip

import "math"

// Phase is the position of t within the carrier period, in [0, 1).
func Phase(freq, origin, t float64) float64 {
	if freq <= 0 {
		return 0
	}
	p := freq * (t - origin)
	return p - math.Floor(p)
}

// CarrierHigh reports whether a PWM output with the given duty cycle is
// high at time t.
func CarrierHigh(freq, origin, duty, t float64) bool {
	if duty <= 0 {
		return false
	}
	if duty >= 1 || freq <= 0 {
		return true
	}
	return Phase(freq, origin, t) < duty
}

// ReanchorPhase returns the origin that keeps the carrier phase at t
// unchanged when the frequency moves from oldFreq to newFreq.
func ReanchorPhase(oldFreq, newFreq, t, oldOrigin float64) float64 {
	if newFreq <= 0 {
		return oldOrigin
	}
	return t - oldFreq*(t-oldOrigin)/newFreq
}

// QuantizeDuty clamps d to [0, 1] and rounds it to a multiple of
// 1/resolution.
func QuantizeDuty(d float64, resolution int) float64 {
	d = ClampDuty(d)
	if resolution <= 0 {
		return d
	}
	r := float64(resolution)
	return math.Round(d*r) / r
}

func ClampDuty(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	return math.Min(math.Max(d, 0), 1)
}
