package speed

import (
	"math"
	"sync"
)

// Sampler returns the instantaneous movement speed as a multiplier of the baseline rate.
// Implementations must be safe to call from the executor while another goroutine
// updates the underlying reading.
type Sampler interface {
	SpeedMultiplier() float64
}

type SamplerFunc func() float64

func (f SamplerFunc) SpeedMultiplier() float64 { return f() }

// Constant always reports the same multiplier.
type Constant float64

func (c Constant) SpeedMultiplier() float64 { return float64(c) }

// Sanitize clamps readings the timing engine cannot integrate: negative, NaN and
// infinite values become 0.
func Sanitize(k float64) float64 {
	if math.IsNaN(k) || math.IsInf(k, 0) || k < 0 {
		return 0
	}
	return k
}

// Sequence replays a fixed trace of readings, wrapping around at the end. Useful to drive
// the engine with an alternating or recorded speed signal.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) SpeedMultiplier() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
