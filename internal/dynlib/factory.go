package dynlib

import (
	"fmt"

	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/urdf"
)

// CreateMechanism loads the URDF file at path and registers the mechanism as
// a runtime object. Nothing is registered when loading fails.
func (l *Library[T]) CreateMechanism(path string, floating bool) (managed.Handle, error) {
	m, err := urdf.Load[T](path, urdf.Options{Floating: floating, Gravity: l.opts.Gravity})
	if err != nil {
		return managed.Nil, err
	}
	return l.rt.NewOpaque(TypeMechanism, m)
}

// CreateState allocates a MechanismState for mech: segmented q and v vectors
// laid out per joint. q starts at the reference configuration and v at zero.
func (l *Library[T]) CreateState(mech managed.Handle) (state managed.Handle, err error) {
	m, err := l.mechanism(mech)
	if err != nil {
		return managed.Nil, err
	}

	var qa, va, q, v managed.Handle
	frame, err := l.rt.PushRoots(&mech, &qa, &va, &q, &v, &state)
	if err != nil {
		return managed.Nil, err
	}
	defer popInto(frame, &err)

	if qa, err = l.rt.NewArray(m.NumPositions()); err != nil {
		return managed.Nil, err
	}
	if va, err = l.rt.NewArray(m.NumVelocities()); err != nil {
		return managed.Nil, err
	}
	if q, err = l.rt.NewSegmented(qa, positionSegments(m)); err != nil {
		return managed.Nil, err
	}
	if v, err = l.rt.NewSegmented(va, velocitySegments(m)); err != nil {
		return managed.Nil, err
	}
	state, err = l.rt.NewStruct(TypeState,
		[]string{"mechanism", "q", "v"},
		[]managed.Handle{mech, q, v})
	if err != nil {
		return managed.Nil, err
	}

	// Views are fetched after the last allocation.
	qs, err := l.rt.KernelView(qa)
	if err != nil {
		return managed.Nil, err
	}
	m.ZeroConfiguration(qs)
	vs, err := l.rt.KernelView(va)
	if err != nil {
		return managed.Nil, err
	}
	clear(vs)

	log.Debugf("state %d for %s: nq=%d nv=%d", state, m, m.NumPositions(), m.NumVelocities())
	return state, nil
}

// CreateDynamicsResult allocates the DynamicsResult for mech, including the
// Cholesky scratch used by Dynamics. Contents are unspecified until a kernel
// writes them.
func (l *Library[T]) CreateDynamicsResult(mech managed.Handle) (res managed.Handle, err error) {
	m, err := l.mechanism(mech)
	if err != nil {
		return managed.Nil, err
	}
	nb, nv := m.NumBodies(), m.NumVelocities()

	var jw, acc, mmArr, mm, bias, factor, vdArr, vd managed.Handle
	frame, err := l.rt.PushRoots(&mech, &jw, &acc, &mmArr, &mm, &bias, &factor, &vdArr, &vd, &res)
	if err != nil {
		return managed.Nil, err
	}
	defer popInto(frame, &err)

	for _, a := range []struct {
		slot *managed.Handle
		n    int
	}{
		{&jw, 6 * nb}, {&acc, 6 * nb}, {&mmArr, nv * nv}, {&bias, nv}, {&factor, nv * nv}, {&vdArr, nv},
	} {
		if *a.slot, err = l.rt.NewArray(a.n); err != nil {
			return managed.Nil, err
		}
	}
	if mm, err = l.rt.NewSymmetric(mmArr, nv, 'U'); err != nil {
		return managed.Nil, err
	}
	if vd, err = l.rt.NewSegmented(vdArr, velocitySegments(m)); err != nil {
		return managed.Nil, err
	}
	res, err = l.rt.NewStruct(TypeDynamicsResult,
		[]string{"jointwrenches", "accelerations", "massmatrix", "dynamicsbias", "factor", "vd"},
		[]managed.Handle{jw, acc, mm, bias, factor, vd})
	if err != nil {
		return managed.Nil, err
	}
	return res, nil
}

// NumPositions returns the configuration vector length of mech.
func (l *Library[T]) NumPositions(mech managed.Handle) (int, error) {
	m, err := l.mechanism(mech)
	if err != nil {
		return 0, err
	}
	return m.NumPositions(), nil
}

// NumVelocities returns the velocity vector length of mech.
func (l *Library[T]) NumVelocities(mech managed.Handle) (int, error) {
	m, err := l.mechanism(mech)
	if err != nil {
		return 0, err
	}
	return m.NumVelocities(), nil
}

// Configuration returns the state's segmented q vector.
func (l *Library[T]) Configuration(state managed.Handle) (managed.Handle, error) {
	if err := l.expect(state, TypeState); err != nil {
		return managed.Nil, err
	}
	return l.rt.Field(state, "q")
}

// Velocity returns the state's segmented v vector.
func (l *Library[T]) Velocity(state managed.Handle) (managed.Handle, error) {
	if err := l.expect(state, TypeState); err != nil {
		return managed.Nil, err
	}
	return l.rt.Field(state, "v")
}

// Similar allocates a fresh segmented vector with the layout of seg.
func (l *Library[T]) Similar(seg managed.Handle) (out managed.Handle, err error) {
	segs, err := l.rt.Segments(seg)
	if err != nil {
		return managed.Nil, err
	}
	n, err := l.rt.Len(seg)
	if err != nil {
		return managed.Nil, err
	}

	var arr managed.Handle
	frame, err := l.rt.PushRoots(&seg, &arr, &out)
	if err != nil {
		return managed.Nil, err
	}
	defer popInto(frame, &err)

	if arr, err = l.rt.NewArray(n); err != nil {
		return managed.Nil, err
	}
	if out, err = l.rt.NewSegmented(arr, segs); err != nil {
		return managed.Nil, err
	}
	return out, nil
}

// Parent performs one unwrap step on an array-like object.
func (l *Library[T]) Parent(h managed.Handle) (managed.Handle, error) {
	return l.rt.Parent(h)
}

// Field looks up a field of a state or result.
func (l *Library[T]) Field(h managed.Handle, name string) (managed.Handle, error) {
	return l.rt.Field(h, name)
}

// popInto pops frame and reports a pop failure through err unless err is
// already set.
func popInto[T managed.Scalar](frame *managed.RootFrame[T], err *error) {
	if perr := frame.Pop(); perr != nil && *err == nil {
		*err = fmt.Errorf("dynlib: %w", perr)
	}
}
