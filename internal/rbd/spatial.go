package rbd

import (
	"math"

	"github.com/san-kum/rbdrive/internal/compute"
)

// Scalar is the numeric type the algorithms run in.
type Scalar = compute.Scalar

type Vec3[T Scalar] [3]T

func (a Vec3[T]) Add(b Vec3[T]) Vec3[T] { return Vec3[T]{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a Vec3[T]) Sub(b Vec3[T]) Vec3[T] { return Vec3[T]{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3[T]) Scale(s T) Vec3[T]     { return Vec3[T]{a[0] * s, a[1] * s, a[2] * s} }
func (a Vec3[T]) Dot(b Vec3[T]) T       { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func (a Vec3[T]) Cross(b Vec3[T]) Vec3[T] {
	return Vec3[T]{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a Vec3[T]) Norm() T { return T(math.Sqrt(float64(a.Dot(a)))) }

// Mat3 is a row-major 3×3 matrix.
type Mat3[T Scalar] [3][3]T

func Identity3[T Scalar]() Mat3[T] {
	return Mat3[T]{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Skew returns the matrix with Skew(a)·b = a×b.
func Skew[T Scalar](a Vec3[T]) Mat3[T] {
	return Mat3[T]{
		{0, -a[2], a[1]},
		{a[2], 0, -a[0]},
		{-a[1], a[0], 0},
	}
}

func (m Mat3[T]) MulVec(v Vec3[T]) Vec3[T] {
	return Vec3[T]{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func (m Mat3[T]) Mul(b Mat3[T]) Mat3[T] {
	var out Mat3[T]
	for i := range 3 {
		for j := range 3 {
			out[i][j] = m[i][0]*b[0][j] + m[i][1]*b[1][j] + m[i][2]*b[2][j]
		}
	}
	return out
}

func (m Mat3[T]) Add(b Mat3[T]) Mat3[T] {
	for i := range 3 {
		for j := range 3 {
			m[i][j] += b[i][j]
		}
	}
	return m
}

func (m Mat3[T]) Scale(s T) Mat3[T] {
	for i := range 3 {
		for j := range 3 {
			m[i][j] *= s
		}
	}
	return m
}

func (m Mat3[T]) Transpose() Mat3[T] {
	var out Mat3[T]
	for i := range 3 {
		for j := range 3 {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// AxisAngle returns the rotation by angle about the unit axis a (Rodrigues).
func AxisAngle[T Scalar](a Vec3[T], angle T) Mat3[T] {
	s, c := math.Sincos(float64(angle))
	k := Skew(a)
	r := Identity3[T]().Scale(T(c)).Add(k.Scale(T(s)))
	oc := T(1 - c)
	for i := range 3 {
		for j := range 3 {
			r[i][j] += oc * a[i] * a[j]
		}
	}
	return r
}

// RPY returns Rz(yaw)·Ry(pitch)·Rx(roll), the URDF fixed-axis convention.
func RPY[T Scalar](roll, pitch, yaw T) Mat3[T] {
	x := AxisAngle(Vec3[T]{1, 0, 0}, roll)
	y := AxisAngle(Vec3[T]{0, 1, 0}, pitch)
	z := AxisAngle(Vec3[T]{0, 0, 1}, yaw)
	return z.Mul(y).Mul(x)
}

// Quaternion returns the rotation for q = (w, x, y, z). The quaternion is
// normalized first; a zero quaternion is the identity.
func Quaternion[T Scalar](w, x, y, z T) Mat3[T] {
	n := T(math.Sqrt(float64(w*w + x*x + y*y + z*z)))
	if n == 0 {
		return Identity3[T]()
	}
	w, x, y, z = w/n, x/n, y/n, z/n
	return Mat3[T]{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// Motion is a spatial motion vector (angular, linear).
type Motion[T Scalar] struct {
	Ang, Lin Vec3[T]
}

func (a Motion[T]) Add(b Motion[T]) Motion[T] {
	return Motion[T]{a.Ang.Add(b.Ang), a.Lin.Add(b.Lin)}
}

func (a Motion[T]) Scale(s T) Motion[T] {
	return Motion[T]{a.Ang.Scale(s), a.Lin.Scale(s)}
}

// CrossMotion returns a ×m b.
func (a Motion[T]) CrossMotion(b Motion[T]) Motion[T] {
	return Motion[T]{
		Ang: a.Ang.Cross(b.Ang),
		Lin: a.Ang.Cross(b.Lin).Add(a.Lin.Cross(b.Ang)),
	}
}

// CrossForce returns a ×f f.
func (a Motion[T]) CrossForce(f Force[T]) Force[T] {
	return Force[T]{
		Ang: a.Ang.Cross(f.Ang).Add(a.Lin.Cross(f.Lin)),
		Lin: a.Ang.Cross(f.Lin),
	}
}

// Dot pairs a motion with a force: the power it does.
func (a Motion[T]) Dot(f Force[T]) T {
	return a.Ang.Dot(f.Ang) + a.Lin.Dot(f.Lin)
}

// Force is a spatial force vector (moment, linear force).
type Force[T Scalar] struct {
	Ang, Lin Vec3[T]
}

func (a Force[T]) Add(b Force[T]) Force[T] {
	return Force[T]{a.Ang.Add(b.Ang), a.Lin.Add(b.Lin)}
}

// Put writes the force as six consecutive values.
func (a Force[T]) Put(dst []T) {
	copy(dst[0:3], a.Ang[:])
	copy(dst[3:6], a.Lin[:])
}

// Put writes the motion as six consecutive values.
func (a Motion[T]) Put(dst []T) {
	copy(dst[0:3], a.Ang[:])
	copy(dst[3:6], a.Lin[:])
}

// Transform is a Plücker transform from a parent frame to a child frame: E
// rotates parent coordinates into the child, P is the child origin in parent
// coordinates.
type Transform[T Scalar] struct {
	E Mat3[T]
	P Vec3[T]
}

func IdentityTransform[T Scalar]() Transform[T] {
	return Transform[T]{E: Identity3[T]()}
}

// OriginTransform returns the transform to a child frame placed at xyz with
// orientation rot relative to the parent.
func OriginTransform[T Scalar](xyz Vec3[T], rot Mat3[T]) Transform[T] {
	return Transform[T]{E: rot.Transpose(), P: xyz}
}

// Motion maps a parent motion into child coordinates.
func (x Transform[T]) Motion(m Motion[T]) Motion[T] {
	return Motion[T]{
		Ang: x.E.MulVec(m.Ang),
		Lin: x.E.MulVec(m.Lin.Sub(x.P.Cross(m.Ang))),
	}
}

// ForceToParent maps a child force into parent coordinates.
func (x Transform[T]) ForceToParent(f Force[T]) Force[T] {
	et := x.E.Transpose()
	lin := et.MulVec(f.Lin)
	return Force[T]{
		Ang: et.MulVec(f.Ang).Add(x.P.Cross(lin)),
		Lin: lin,
	}
}

// Then returns the transform that applies x first and then next.
func (x Transform[T]) Then(next Transform[T]) Transform[T] {
	return Transform[T]{
		E: next.E.Mul(x.E),
		P: x.P.Add(x.E.Transpose().MulVec(next.P)),
	}
}

// Mat6 returns the 6×6 motion transform matrix.
func (x Transform[T]) Mat6() Mat6[T] {
	var m Mat6[T]
	b := x.E.Mul(Skew(x.P)).Scale(-1)
	m.setBlock(0, 0, x.E)
	m.setBlock(3, 0, b)
	m.setBlock(3, 3, x.E)
	return m
}

// Inertia is a rigid-body spatial inertia about a body frame origin: mass,
// first moment H = m·c and rotational inertia I about the origin.
type Inertia[T Scalar] struct {
	Mass T
	H    Vec3[T]
	I    Mat3[T]
}

// NewInertia builds the spatial inertia of a body with mass m, centre of mass
// com and rotational inertia ic about the centre of mass, all in body frame.
func NewInertia[T Scalar](m T, com Vec3[T], ic Mat3[T]) Inertia[T] {
	c2 := com.Dot(com)
	shift := Identity3[T]().Scale(c2)
	for i := range 3 {
		for j := range 3 {
			shift[i][j] -= com[i] * com[j]
		}
	}
	return Inertia[T]{Mass: m, H: com.Scale(m), I: ic.Add(shift.Scale(m))}
}

func (in Inertia[T]) MulMotion(v Motion[T]) Force[T] {
	return Force[T]{
		Ang: in.I.MulVec(v.Ang).Add(in.H.Cross(v.Lin)),
		Lin: v.Lin.Scale(in.Mass).Sub(in.H.Cross(v.Ang)),
	}
}

func (in Inertia[T]) Mat6() Mat6[T] {
	var m Mat6[T]
	s := Skew(in.H)
	m.setBlock(0, 0, in.I)
	m.setBlock(0, 3, s)
	m.setBlock(3, 0, s.Scale(-1))
	m.setBlock(3, 3, Identity3[T]().Scale(in.Mass))
	return m
}

// Mat6 is a row-major 6×6 spatial matrix over (angular, linear) coordinates.
type Mat6[T Scalar] [6][6]T

func (m *Mat6[T]) setBlock(r, c int, b Mat3[T]) {
	for i := range 3 {
		for j := range 3 {
			m[r+i][c+j] = b[i][j]
		}
	}
}

func (m Mat6[T]) Mul(b Mat6[T]) Mat6[T] {
	var out Mat6[T]
	for i := range 6 {
		for k := range 6 {
			if m[i][k] == 0 {
				continue
			}
			for j := range 6 {
				out[i][j] += m[i][k] * b[k][j]
			}
		}
	}
	return out
}

func (m Mat6[T]) Transpose() Mat6[T] {
	var out Mat6[T]
	for i := range 6 {
		for j := range 6 {
			out[i][j] = m[j][i]
		}
	}
	return out
}

func (m Mat6[T]) Add(b Mat6[T]) Mat6[T] {
	for i := range 6 {
		for j := range 6 {
			m[i][j] += b[i][j]
		}
	}
	return m
}

// MulMotion applies an inertia-like matrix to a motion, producing a force.
func (m Mat6[T]) MulMotion(v Motion[T]) Force[T] {
	in := [6]T{v.Ang[0], v.Ang[1], v.Ang[2], v.Lin[0], v.Lin[1], v.Lin[2]}
	var out [6]T
	for i := range 6 {
		for j := range 6 {
			out[i] += m[i][j] * in[j]
		}
	}
	return Force[T]{Ang: Vec3[T]{out[0], out[1], out[2]}, Lin: Vec3[T]{out[3], out[4], out[5]}}
}

// Congruence returns xᵀ·m·x.
func (m Mat6[T]) Congruence(x Mat6[T]) Mat6[T] {
	return x.Transpose().Mul(m).Mul(x)
}
