package dynlib

import (
	"fmt"

	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/rbd"
)

// views fetches the backing storage of each handle. No allocation may happen
// between fetching views and the kernel that uses them.
func (l *Library[T]) views(hs ...managed.Handle) ([][]T, error) {
	out := make([][]T, len(hs))
	for i, h := range hs {
		v, err := l.rt.KernelView(h)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (l *Library[T]) stateViews(state managed.Handle) (*rbd.Mechanism[T], []T, []T, error) {
	m, err := l.stateMechanism(state)
	if err != nil {
		return nil, nil, nil, err
	}
	q, err := l.rt.Field(state, "q")
	if err != nil {
		return nil, nil, nil, err
	}
	v, err := l.rt.Field(state, "v")
	if err != nil {
		return nil, nil, nil, err
	}
	vs, err := l.views(q, v)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, vs[0], vs[1], nil
}

// InverseDynamics writes into tau the joint forces that produce vdDesired at
// the state, and the per-body joint wrenches and accelerations.
func (l *Library[T]) InverseDynamics(tau, jointWrenches, accelerations, state, vdDesired managed.Handle) error {
	m, q, v, err := l.stateViews(state)
	if err != nil {
		return err
	}
	vs, err := l.views(vdDesired, tau, jointWrenches, accelerations)
	if err != nil {
		return err
	}
	if err := m.InverseDynamics(q, v, vs[0], vs[1], vs[2], vs[3]); err != nil {
		return fmt.Errorf("%s: %w", EntryInverseDynamics, err)
	}
	return nil
}

// MassMatrix writes the upper triangle of the state's mass matrix into out,
// a symmetric view.
func (l *Library[T]) MassMatrix(out, state managed.Handle) error {
	if k, err := l.rt.Kind(out); err != nil {
		return err
	} else if k != managed.KindSymmetric {
		return fmt.Errorf("%w: mass matrix output is %s, want %s", ErrType, k, managed.KindSymmetric)
	}
	m, q, _, err := l.stateViews(state)
	if err != nil {
		return err
	}
	mm, err := l.rt.KernelView(out)
	if err != nil {
		return err
	}
	if err := m.MassMatrix(q, mm); err != nil {
		return fmt.Errorf("%s: %w", EntryMassMatrix, err)
	}
	return nil
}

// Dynamics computes the accelerations produced by tau at the state and
// stores them, together with the mass matrix, bias, wrenches and
// accelerations, in result. The factorization reuses the result's factor
// field, so Dynamics allocates nothing.
func (l *Library[T]) Dynamics(result, state, tau managed.Handle) error {
	if err := l.expect(result, TypeDynamicsResult); err != nil {
		return err
	}
	m, err := l.stateMechanism(state)
	if err != nil {
		return err
	}

	fields := make([]managed.Handle, 0, 6)
	for _, name := range []string{"massmatrix", "dynamicsbias", "jointwrenches", "accelerations", "vd", "factor"} {
		h, err := l.rt.Field(result, name)
		if err != nil {
			return err
		}
		fields = append(fields, h)
	}

	_, q, v, err := l.stateViews(state)
	if err != nil {
		return err
	}
	vs, err := l.views(append(fields, tau)...)
	if err != nil {
		return err
	}
	ws := rbd.Workspace[T]{
		MassMatrix:    vs[0],
		Bias:          vs[1],
		JointWrenches: vs[2],
		Accelerations: vs[3],
		Factor:        vs[5],
	}
	if err := m.ForwardDynamics(l.backend, q, v, vs[6], vs[4], ws); err != nil {
		return fmt.Errorf("%s: %w", EntryDynamics, err)
	}
	return nil
}
