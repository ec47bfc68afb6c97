package metrics

import "github.com/san-kum/rbdrive/internal/compute"

// KineticEnergy is ½·vᵀ·M·v, averaged over samples.
type KineticEnergy[T compute.Scalar] struct {
	name    string
	be      compute.Backend[T]
	scratch []T
	total   float64
	samples int
}

func NewKineticEnergy[T compute.Scalar](be compute.Backend[T]) *KineticEnergy[T] {
	return &KineticEnergy[T]{
		name: "kinetic_energy",
		be:   be,
	}
}

func (e *KineticEnergy[T]) Name() string { return e.name }

func (e *KineticEnergy[T]) Observe(s Sample[T]) {
	if len(e.scratch) != s.NV {
		e.scratch = make([]T, s.NV)
	}
	e.be.SymMatVec(s.MassMatrix, s.NV, s.V, e.scratch)
	var ke float64
	for i, mv := range e.scratch {
		ke += float64(s.V[i]) * float64(mv)
	}
	e.total += 0.5 * ke
	e.samples++
}

func (e *KineticEnergy[T]) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *KineticEnergy[T]) Reset() {
	e.total = 0
	e.samples = 0
}
