package rbd

import (
	"errors"
	"fmt"
)

var (
	ErrBadParent    = errors.New("rbd: parent must be the world or an earlier body")
	ErrDimension    = errors.New("rbd: buffer has wrong length")
	ErrNegativeMass = errors.New("rbd: negative body mass")
)

// World is the parent index of bodies attached to the fixed world frame.
const World = -1

type Body[T Scalar] struct {
	Name    string
	Parent  int
	Joint   Joint[T]
	Tree    Transform[T]
	Inertia Inertia[T]

	qOff, vOff int
}

// Mechanism is a kinematic tree. Bodies are stored so every parent precedes
// its children.
type Mechanism[T Scalar] struct {
	Name    string
	Gravity Vec3[T]

	bodies []Body[T]
	nq, nv int
}

func NewMechanism[T Scalar](name string) *Mechanism[T] {
	return &Mechanism[T]{Name: name, Gravity: Vec3[T]{0, 0, -9.81}}
}

// AddBody appends a body connected to parent through joint. tree places the
// joint frame in the parent body frame.
func (m *Mechanism[T]) AddBody(name string, parent int, joint Joint[T], tree Transform[T], in Inertia[T]) (int, error) {
	if parent < World || parent >= len(m.bodies) {
		return 0, fmt.Errorf("%w: body %s has parent %d with %d bodies", ErrBadParent, name, parent, len(m.bodies))
	}
	if in.Mass < 0 {
		return 0, fmt.Errorf("%w: body %s mass %v", ErrNegativeMass, name, in.Mass)
	}
	b := Body[T]{Name: name, Parent: parent, Joint: joint, Tree: tree, Inertia: in, qOff: m.nq, vOff: m.nv}
	m.bodies = append(m.bodies, b)
	m.nq += joint.NQ()
	m.nv += joint.NV()
	return len(m.bodies) - 1, nil
}

func (m *Mechanism[T]) NumBodies() int     { return len(m.bodies) }
func (m *Mechanism[T]) NumPositions() int  { return m.nq }
func (m *Mechanism[T]) NumVelocities() int { return m.nv }

func (m *Mechanism[T]) Body(i int) Body[T] { return m.bodies[i] }

// PositionRange returns the offset and length of body i's joint coordinates.
func (m *Mechanism[T]) PositionRange(i int) (off, n int) {
	return m.bodies[i].qOff, m.bodies[i].Joint.NQ()
}

// VelocityRange returns the offset and length of body i's joint velocities.
func (m *Mechanism[T]) VelocityRange(i int) (off, n int) {
	return m.bodies[i].vOff, m.bodies[i].Joint.NV()
}

// ZeroConfiguration writes the reference configuration: zero joint
// coordinates and identity quaternions.
func (m *Mechanism[T]) ZeroConfiguration(q []T) {
	clear(q)
	for _, b := range m.bodies {
		if b.Joint.Type == Floating {
			q[b.qOff] = 1
		}
	}
}

func (m *Mechanism[T]) check(name string, got []T, want int) error {
	if len(got) != want {
		return fmt.Errorf("%w: %s has %d elements, want %d", ErrDimension, name, len(got), want)
	}
	return nil
}

func (m *Mechanism[T]) String() string {
	return fmt.Sprintf("%s(bodies=%d nq=%d nv=%d)", m.Name, len(m.bodies), m.nq, m.nv)
}
