package rbd

import (
	"testing"

	"github.com/san-kum/rbdrive/internal/compute"
)

func BenchmarkInverseDynamics(b *testing.B) {
	m := chain(b)
	q := []float64{0.4, -0.9, 0.15}
	v := []float64{1.2, -0.3, 0.5}
	vd := []float64{0.1, 0.2, 0.3}
	tau := make([]float64, 3)
	ws := workspace(m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.InverseDynamics(q, v, vd, tau, ws.JointWrenches, ws.Accelerations)
	}
}

func BenchmarkMassMatrix(b *testing.B) {
	m := chain(b)
	q := []float64{0.4, -0.9, 0.15}
	mm := make([]float64, 9)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.MassMatrix(q, mm)
	}
}

func BenchmarkForwardDynamics(b *testing.B) {
	m := floatingBox(b)
	be := compute.NewCPUBackend[float64]()
	q := []float64{1, 0, 0, 0, 0, 0, 0}
	v := []float64{0.1, 0.2, 0.3, 1, 2, 3}
	tau := make([]float64, 6)
	vd := make([]float64, 6)
	ws := workspace(m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ForwardDynamics(be, q, v, tau, vd, ws)
	}
}
