// Package dynlib is the dynamics library as the runtime sees it: a versioned
// table of entry points that create mechanisms, states and results as runtime
// objects and run the rigid-body kernels on their storage.
package dynlib

import (
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/rbdrive/internal/compute"
	"github.com/san-kum/rbdrive/internal/logging"
	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/rbd"
)

var log = logging.For("dynlib")

// ABIVersion is the version of the entry-point table. Bump it when an entry
// point changes signature or meaning.
const ABIVersion uint32 = 1

// LibraryName identifies the library in bootstrap images.
const LibraryName = "rbd"

// Entry point names.
const (
	EntryCreateMechanism      = "create_mechanism"
	EntryCreateState          = "create_state"
	EntryCreateDynamicsResult = "create_dynamics_result"
	EntryNumPositions         = "num_positions"
	EntryNumVelocities        = "num_velocities"
	EntryConfiguration        = "configuration"
	EntryVelocity             = "velocity"
	EntrySimilar              = "similar"
	EntryParent               = "parent"
	EntryInverseDynamics      = "inverse_dynamics"
	EntryMassMatrix           = "mass_matrix"
	EntryDynamics             = "dynamics"
)

// Runtime type names of library objects.
const (
	TypeMechanism      = "Mechanism"
	TypeState          = "MechanismState"
	TypeDynamicsResult = "DynamicsResult"
)

var (
	// ErrABI indicates a bootstrap image built against another table version.
	ErrABI = errors.New("dynlib: entry-point table version mismatch")

	// ErrMissingEntrypoint indicates an image that does not export a required entry point.
	ErrMissingEntrypoint = errors.New("dynlib: entry point not exported by image")

	// ErrType indicates a handle to an object of the wrong library type.
	ErrType = errors.New("dynlib: wrong object type")
)

// Entrypoints returns the sorted names of every entry point in the table.
func Entrypoints() []string {
	names := []string{
		EntryCreateMechanism, EntryCreateState, EntryCreateDynamicsResult,
		EntryNumPositions, EntryNumVelocities, EntryConfiguration, EntryVelocity,
		EntrySimilar, EntryParent, EntryInverseDynamics, EntryMassMatrix, EntryDynamics,
	}
	slices.Sort(names)
	return names
}

// NewImage returns a bootstrap image for elem that exports this library.
func NewImage(elem managed.ElemType) *managed.Image {
	img := managed.NewImage(elem)
	img.ABI = ABIVersion
	img.Library = LibraryName
	img.Entrypoints = Entrypoints()
	return img
}

type Options struct {
	// Gravity overrides the mechanism default when it has three entries.
	Gravity []float64
}

// Library is the entry-point table bound to one runtime.
type Library[T managed.Scalar] struct {
	rt      *managed.Runtime[T]
	opts    Options
	backend compute.Backend[T]
}

// Bind checks the runtime's bootstrap image against the table and returns the
// bound library. A runtime without an image accepts the table as is.
func Bind[T managed.Scalar](rt *managed.Runtime[T], opts Options) (*Library[T], error) {
	if img := rt.Image(); img != nil {
		if img.ABI != ABIVersion {
			return nil, fmt.Errorf("%w: image has %d, library has %d", ErrABI, img.ABI, ABIVersion)
		}
		if img.Library != LibraryName {
			return nil, fmt.Errorf("%w: image library %q", ErrMissingEntrypoint, img.Library)
		}
		for _, name := range Entrypoints() {
			if !img.Exports(name) {
				return nil, fmt.Errorf("%w: %s", ErrMissingEntrypoint, name)
			}
		}
	}
	return &Library[T]{rt: rt, opts: opts, backend: compute.NewCPUBackend[T]()}, nil
}

func (l *Library[T]) Runtime() *managed.Runtime[T] { return l.rt }
func (l *Library[T]) Backend() compute.Backend[T]  { return l.backend }

func (l *Library[T]) mechanism(h managed.Handle) (*rbd.Mechanism[T], error) {
	if err := l.expect(h, TypeMechanism); err != nil {
		return nil, err
	}
	v, err := l.rt.Opaque(h)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*rbd.Mechanism[T])
	if !ok {
		return nil, fmt.Errorf("%w: handle %d holds %T, want %s", ErrType, h, v, TypeMechanism)
	}
	return m, nil
}

func (l *Library[T]) stateMechanism(state managed.Handle) (*rbd.Mechanism[T], error) {
	if err := l.expect(state, TypeState); err != nil {
		return nil, err
	}
	mh, err := l.rt.Field(state, "mechanism")
	if err != nil {
		return nil, err
	}
	return l.mechanism(mh)
}

func (l *Library[T]) expect(h managed.Handle, typ string) error {
	got, err := l.rt.TypeName(h)
	if err != nil {
		return err
	}
	if got != typ {
		return fmt.Errorf("%w: handle %d is %s, want %s", ErrType, h, got, typ)
	}
	return nil
}

func positionSegments[T rbd.Scalar](m *rbd.Mechanism[T]) []managed.Segment {
	var segs []managed.Segment
	for i := range m.NumBodies() {
		if off, n := m.PositionRange(i); n > 0 {
			segs = append(segs, managed.Segment{Start: off, Len: n})
		}
	}
	return segs
}

func velocitySegments[T rbd.Scalar](m *rbd.Mechanism[T]) []managed.Segment {
	var segs []managed.Segment
	for i := range m.NumBodies() {
		if off, n := m.VelocityRange(i); n > 0 {
			segs = append(segs, managed.Segment{Start: off, Len: n})
		}
	}
	return segs
}
