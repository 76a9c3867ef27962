package sim

import (
	"fieldsim/internal/core/domain"
)

// Update models. Pure functions: given the same Source stream and inputs
// they always produce the same next value, which is what makes whole device
// timelines reproducible under a fixed seed.

// BoundedRandomWalk adds uniform noise in [-step, step] and clamps to
// [min, max]. A step of zero always returns current (the draw still
// happens, keeping the stream position stable).
func BoundedRandomWalk(rng Source, current, step, min, max float64) float64 {
	next := current + rng.Uniform(-step, step)
	return clamp(next, min, max)
}

// ProportionalTracking moves current a fraction of the way toward
// base + gain*(driver - reference). With smoothing in (0,1) the value
// approaches the target monotonically and never overshoots.
func ProportionalTracking(current, driver, reference, gain, base, smoothing, min, max float64) float64 {
	target := base + gain*(driver-reference)
	next := current + (target-current)*smoothing
	return clamp(next, min, max)
}

// DerivedBinaryState recomputes a binary point from its analog driver.
func DerivedBinaryState(driver, threshold float64) domain.BinaryState {
	if driver > threshold {
		return domain.Active
	}
	return domain.Inactive
}

// ProbabilisticToggle flips the state with probability p per tick.
func ProbabilisticToggle(rng Source, state domain.BinaryState, p float64) domain.BinaryState {
	if rng.Chance(p) {
		return !state
	}
	return state
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
