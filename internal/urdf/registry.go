package urdf

import (
	"fmt"
	"slices"

	"github.com/san-kum/rbdrive/internal/rbd"
)

type jointFactory[T rbd.Scalar] func(name string, axis rbd.Vec3[T]) rbd.Joint[T]

// registry maps URDF joint type names to joint models.
type registry[T rbd.Scalar] struct {
	joints map[string]jointFactory[T]
}

func newRegistry[T rbd.Scalar]() *registry[T] {
	r := &registry[T]{joints: make(map[string]jointFactory[T])}

	hinge := func(name string, axis rbd.Vec3[T]) rbd.Joint[T] {
		return rbd.Joint[T]{Name: name, Type: rbd.Revolute, Axis: axis}
	}
	r.joints["revolute"] = hinge
	r.joints["continuous"] = hinge
	r.joints["prismatic"] = func(name string, axis rbd.Vec3[T]) rbd.Joint[T] {
		return rbd.Joint[T]{Name: name, Type: rbd.Prismatic, Axis: axis}
	}
	r.joints["fixed"] = func(name string, _ rbd.Vec3[T]) rbd.Joint[T] {
		return rbd.Joint[T]{Name: name, Type: rbd.Fixed}
	}
	r.joints["floating"] = func(name string, _ rbd.Vec3[T]) rbd.Joint[T] {
		return rbd.Joint[T]{Name: name, Type: rbd.Floating}
	}

	return r
}

func (r *registry[T]) joint(typ, name string, axis rbd.Vec3[T]) (rbd.Joint[T], error) {
	fn, ok := r.joints[typ]
	if !ok {
		return rbd.Joint[T]{}, fmt.Errorf("%w: %q", ErrUnsupportedJoint, typ)
	}
	return fn(name, axis), nil
}

// JointTypes lists the joint type names the loader accepts.
func JointTypes() []string {
	r := newRegistry[float64]()
	names := make([]string, 0, len(r.joints))
	for name := range r.joints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
