// Package metrics summarizes the dynamics results of a pipeline run.
package metrics

import "github.com/san-kum/rbdrive/internal/compute"

// Sample is one forward dynamics solution and the quantities around it. The
// slices are borrowed and only valid during Observe.
type Sample[T compute.Scalar] struct {
	NV         int
	MassMatrix []T // upper triangle, column-major
	V          []T
	Tau        []T
	Vd         []T
}

type Metric[T compute.Scalar] interface {
	Name() string
	Observe(s Sample[T])
	Value() float64
	Reset()
}

// Standard returns the metrics every run reports.
func Standard[T compute.Scalar](be compute.Backend[T]) []Metric[T] {
	return []Metric[T]{
		NewKineticEnergy(be),
		NewEffort[T](),
		NewStability[T](DefaultStabilityThreshold),
	}
}

// Collect returns the current value of each metric by name.
func Collect[T compute.Scalar](ms []Metric[T]) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
