package urdf

import (
	"errors"
	"fmt"
)

// Structural errors found while building the kinematic tree.
var (
	// ErrNoLinks indicates a robot without any link elements.
	ErrNoLinks = errors.New("urdf: robot has no links")

	// ErrUnknownLink indicates a joint naming a parent or child link that does not exist.
	ErrUnknownLink = errors.New("urdf: joint references unknown link")

	// ErrDuplicate indicates two links or two joints with the same name.
	ErrDuplicate = errors.New("urdf: duplicate name")

	// ErrMultipleRoots indicates more than one link without a parent joint.
	ErrMultipleRoots = errors.New("urdf: more than one root link")

	// ErrCycle indicates a joint graph that is not a tree.
	ErrCycle = errors.New("urdf: kinematic loop")

	// ErrUnsupportedJoint indicates a joint type the loader cannot model.
	ErrUnsupportedJoint = errors.New("urdf: unsupported joint type")

	// ErrBadValue indicates a malformed or out-of-range attribute.
	ErrBadValue = errors.New("urdf: bad attribute value")
)

// ParseError wraps a load failure with the file and element it came from.
type ParseError struct {
	Path    string
	Element string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Element, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
