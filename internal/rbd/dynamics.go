package rbd

import (
	"fmt"

	"github.com/san-kum/rbdrive/internal/compute"
)

// transforms returns the parent-to-body transform of every body at q.
func (m *Mechanism[T]) transforms(q []T) []Transform[T] {
	xs := make([]Transform[T], len(m.bodies))
	for i, b := range m.bodies {
		qi := q[b.qOff : b.qOff+b.Joint.NQ()]
		xs[i] = b.Tree.Then(b.Joint.Transform(qi))
	}
	return xs
}

func jointMotion[T Scalar](s []Motion[T], x []T) Motion[T] {
	var out Motion[T]
	for k, col := range s {
		out = out.Add(col.Scale(x[k]))
	}
	return out
}

// InverseDynamics computes the joint forces tau that produce accelerations
// vd at (q, v) under gravity (recursive Newton-Euler). The per-body joint
// wrenches and spatial accelerations, six values each in body coordinates,
// are written to wrenches and accels.
func (m *Mechanism[T]) InverseDynamics(q, v, vd, tau, wrenches, accels []T) error {
	nb := len(m.bodies)
	for _, c := range []struct {
		name string
		buf  []T
		n    int
	}{
		{"q", q, m.nq}, {"v", v, m.nv}, {"vd", vd, m.nv}, {"tau", tau, m.nv},
		{"jointwrenches", wrenches, 6 * nb}, {"accelerations", accels, 6 * nb},
	} {
		if err := m.check(c.name, c.buf, c.n); err != nil {
			return err
		}
	}
	m.rnea(q, v, vd, tau, wrenches, accels)
	return nil
}

func (m *Mechanism[T]) rnea(q, v, vd, tau, wrenches, accels []T) {
	nb := len(m.bodies)
	xs := m.transforms(q)
	vel := make([]Motion[T], nb)
	acc := make([]Motion[T], nb)
	f := make([]Force[T], nb)
	base := Motion[T]{Lin: m.Gravity.Scale(-1)}

	for i, b := range m.bodies {
		s := b.Joint.Subspace()
		nv := b.Joint.NV()
		vJ := jointMotion(s, v[b.vOff:b.vOff+nv])
		aJ := jointMotion(s, vd[b.vOff:b.vOff+nv])

		var vp, ap Motion[T]
		if b.Parent == World {
			ap = base
		} else {
			vp, ap = vel[b.Parent], acc[b.Parent]
		}
		vel[i] = xs[i].Motion(vp).Add(vJ)
		acc[i] = xs[i].Motion(ap).Add(aJ).Add(vel[i].CrossMotion(vJ))

		in := b.Inertia
		f[i] = in.MulMotion(acc[i]).Add(vel[i].CrossForce(in.MulMotion(vel[i])))
	}

	for i := nb - 1; i >= 0; i-- {
		b := m.bodies[i]
		for k, col := range b.Joint.Subspace() {
			tau[b.vOff+k] = col.Dot(f[i])
		}
		if b.Parent != World {
			f[b.Parent] = f[b.Parent].Add(xs[i].ForceToParent(f[i]))
		}
		f[i].Put(wrenches[6*i:])
		acc[i].Put(accels[6*i:])
	}
}

// MassMatrix computes the joint-space mass matrix at q into mm, an nv×nv
// column-major array (composite rigid body algorithm). Only the upper
// triangle is written.
func (m *Mechanism[T]) MassMatrix(q, mm []T) error {
	if err := m.check("q", q, m.nq); err != nil {
		return err
	}
	if err := m.check("massmatrix", mm, m.nv*m.nv); err != nil {
		return err
	}
	m.crba(q, mm)
	return nil
}

func (m *Mechanism[T]) crba(q, mm []T) {
	nb, nv := len(m.bodies), m.nv
	xs := m.transforms(q)
	ic := make([]Mat6[T], nb)
	for i, b := range m.bodies {
		ic[i] = b.Inertia.Mat6()
	}
	for i := nb - 1; i >= 0; i-- {
		if p := m.bodies[i].Parent; p != World {
			ic[p] = ic[p].Add(ic[i].Congruence(xs[i].Mat6()))
		}
	}

	for i, b := range m.bodies {
		for k, col := range b.Joint.Subspace() {
			c := b.vOff + k
			f := ic[i].MulMotion(col)
			for k2, col2 := range b.Joint.Subspace()[:k+1] {
				mm[b.vOff+k2+c*nv] = col2.Dot(f)
			}
			for j := i; m.bodies[j].Parent != World; {
				f = xs[j].ForceToParent(f)
				j = m.bodies[j].Parent
				bj := m.bodies[j]
				for k2, col2 := range bj.Joint.Subspace() {
					mm[bj.vOff+k2+c*nv] = col2.Dot(f)
				}
			}
		}
	}
}

// Workspace holds the outputs and scratch storage of ForwardDynamics.
type Workspace[T Scalar] struct {
	MassMatrix    []T // nv×nv, upper triangle
	Bias          []T // nv, velocity-product and gravity terms
	Factor        []T // nv×nv Cholesky scratch
	JointWrenches []T // 6 per body
	Accelerations []T // 6 per body
}

// ForwardDynamics computes the accelerations vd produced by tau at (q, v):
// it forms the bias with inverse dynamics at zero acceleration, the mass
// matrix, and solves M·vd = tau - bias with a Cholesky factorization.
func (m *Mechanism[T]) ForwardDynamics(be compute.Backend[T], q, v, tau, vd []T, ws Workspace[T]) error {
	nv := m.nv
	if err := m.check("factor", ws.Factor, nv*nv); err != nil {
		return err
	}
	if err := m.check("dynamicsbias", ws.Bias, nv); err != nil {
		return err
	}
	if err := m.check("tau", tau, nv); err != nil {
		return err
	}

	clear(vd)
	if err := m.InverseDynamics(q, v, vd, ws.Bias, ws.JointWrenches, ws.Accelerations); err != nil {
		return err
	}
	if err := m.MassMatrix(q, ws.MassMatrix); err != nil {
		return err
	}

	copy(ws.Factor, ws.MassMatrix)
	if err := be.CholeskyUpper(ws.Factor, nv); err != nil {
		return fmt.Errorf("rbd: factor mass matrix: %w", err)
	}
	for i := range vd {
		vd[i] = tau[i] - ws.Bias[i]
	}
	be.CholeskySolve(ws.Factor, nv, vd)
	return nil
}
