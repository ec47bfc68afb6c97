package rbd

import "fmt"

type JointType int

const (
	Fixed JointType = iota
	Revolute
	Prismatic
	// Floating is a free joint: q = (w, x, y, z, px, py, pz), v = body-frame (ω, v).
	Floating
)

func (t JointType) String() string {
	switch t {
	case Fixed:
		return "fixed"
	case Revolute:
		return "revolute"
	case Prismatic:
		return "prismatic"
	case Floating:
		return "floating"
	default:
		return fmt.Sprintf("JointType(%d)", int(t))
	}
}

// Joint connects a body to its parent. Axis is a unit vector in the joint frame
// and only matters for revolute and prismatic joints.
type Joint[T Scalar] struct {
	Name string
	Type JointType
	Axis Vec3[T]
}

func (j Joint[T]) NQ() int {
	switch j.Type {
	case Revolute, Prismatic:
		return 1
	case Floating:
		return 7
	}
	return 0
}

func (j Joint[T]) NV() int {
	switch j.Type {
	case Revolute, Prismatic:
		return 1
	case Floating:
		return 6
	}
	return 0
}

// Transform returns the joint transform from the joint frame to the body
// frame for joint coordinates q.
func (j Joint[T]) Transform(q []T) Transform[T] {
	switch j.Type {
	case Revolute:
		return Transform[T]{E: AxisAngle(j.Axis, q[0]).Transpose()}
	case Prismatic:
		return Transform[T]{E: Identity3[T](), P: j.Axis.Scale(q[0])}
	case Floating:
		rot := Quaternion(q[0], q[1], q[2], q[3])
		return OriginTransform(Vec3[T]{q[4], q[5], q[6]}, rot)
	}
	return IdentityTransform[T]()
}

// Subspace returns the motion subspace columns in body coordinates.
func (j Joint[T]) Subspace() []Motion[T] {
	switch j.Type {
	case Revolute:
		return []Motion[T]{{Ang: j.Axis}}
	case Prismatic:
		return []Motion[T]{{Lin: j.Axis}}
	case Floating:
		s := make([]Motion[T], 6)
		for i := range 3 {
			s[i].Ang[i] = 1
			s[3+i].Lin[i] = 1
		}
		return s
	}
	return nil
}
