package metrics

import (
	"math"

	"github.com/san-kum/rbdrive/internal/compute"
)

// DefaultStabilityThreshold bounds a plausible joint acceleration.
const DefaultStabilityThreshold = 1e6

// Stability is the fraction of samples whose accelerations are all finite and
// within the threshold.
type Stability[T compute.Scalar] struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability[T compute.Scalar](threshold float64) *Stability[T] {
	return &Stability[T]{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability[T]) Name() string {
	return s.name
}

func (s *Stability[T]) Observe(sample Sample[T]) {
	s.samples++
	for _, val := range sample.Vd {
		a := math.Abs(float64(val))
		if !(a <= s.threshold) {
			s.violations++
			break
		}
	}
}

func (s *Stability[T]) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability[T]) Reset() {
	s.violations = 0
	s.samples = 0
}
