package sim

import (
	"encoding/binary"
	crand "crypto/rand"
	"math/rand/v2"
)

// Source is the random stream injected into the update models. Every device
// owns its own Source so its value timeline is reproducible regardless of
// how many other devices tick in the same process.
type Source interface {
	// Uniform draws from [lo, hi).
	Uniform(lo, hi float64) float64
	// Chance reports true with probability p.
	Chance(p float64) bool
}

type pcgSource struct {
	rng *rand.Rand
}

func NewSource(seed uint64) Source {
	return &pcgSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *pcgSource) Uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *pcgSource) Chance(p float64) bool {
	return s.rng.Float64() < p
}

// DeviceSource derives the per-device value stream from the engine seed and
// the device instance number.
func DeviceSource(seed uint64, instance uint32) Source {
	return NewSource(seed ^ (uint64(instance) * 0xd1342543de82ef95))
}

// jitterSource derives the per-device tick interval stream. Kept separate
// from the value stream so the cadence policy never shifts value draws.
func jitterSource(seed uint64, instance uint32) Source {
	return NewSource(seed ^ (uint64(instance)*0xd1342543de82ef95 + 1))
}

// RandomSeed returns an entropy-based engine seed for production runs.
func RandomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Uint64()
	}
	return binary.LittleEndian.Uint64(b[:])
}
