package pipeline

import "github.com/san-kum/rbdrive/internal/managed"

// InputSource fills the input buffers before the numeric calls.
type InputSource[T managed.Scalar] interface {
	Name() string
	Fill(q, v, vdDesired, tau []T) error
}

// Synthetic fills every element of each buffer with a constant.
type Synthetic[T managed.Scalar] struct {
	Q, V, VdDesired, Tau T
}

// DefaultSynthetic returns the fixed inputs q=1, v=2, vd=3, tau=4.
func DefaultSynthetic[T managed.Scalar]() Synthetic[T] {
	return Synthetic[T]{Q: 1, V: 2, VdDesired: 3, Tau: 4}
}

func (s Synthetic[T]) Name() string { return "synthetic" }

func (s Synthetic[T]) Fill(q, v, vdDesired, tau []T) error {
	fill(q, s.Q)
	fill(v, s.V)
	fill(vdDesired, s.VdDesired)
	fill(tau, s.Tau)
	return nil
}

func fill[T managed.Scalar](dst []T, x T) {
	for i := range dst {
		dst[i] = x
	}
}
