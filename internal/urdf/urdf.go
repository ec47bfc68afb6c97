package urdf

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/rbdrive/internal/logging"
	"github.com/san-kum/rbdrive/internal/rbd"
)

var log = logging.For("urdf")

// Options controls how a robot description becomes a mechanism.
type Options struct {
	// Floating attaches the root link to the world with a floating joint
	// instead of welding it.
	Floating bool
	// Gravity overrides the default (0, 0, -9.81) when it has three entries.
	Gravity []float64
}

type robotXML struct {
	XMLName xml.Name   `xml:"robot"`
	Name    string     `xml:"name,attr"`
	Links   []linkXML  `xml:"link"`
	Joints  []jointXML `xml:"joint"`
}

type linkXML struct {
	Name     string       `xml:"name,attr"`
	Inertial *inertialXML `xml:"inertial"`
}

type inertialXML struct {
	Origin  originXML  `xml:"origin"`
	Mass    valueXML   `xml:"mass"`
	Inertia inertiaXML `xml:"inertia"`
}

type inertiaXML struct {
	IXX string `xml:"ixx,attr"`
	IXY string `xml:"ixy,attr"`
	IXZ string `xml:"ixz,attr"`
	IYY string `xml:"iyy,attr"`
	IYZ string `xml:"iyz,attr"`
	IZZ string `xml:"izz,attr"`
}

type jointXML struct {
	Name   string    `xml:"name,attr"`
	Type   string    `xml:"type,attr"`
	Origin originXML `xml:"origin"`
	Parent linkRef   `xml:"parent"`
	Child  linkRef   `xml:"child"`
	Axis   *axisXML  `xml:"axis"`
}

type originXML struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

type valueXML struct {
	Value string `xml:"value,attr"`
}

type linkRef struct {
	Link string `xml:"link,attr"`
}

type axisXML struct {
	XYZ string `xml:"xyz,attr"`
}

// Load parses the URDF file at path into a mechanism with scalar type T.
func Load[T rbd.Scalar](path string, opts Options) (*rbd.Mechanism[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()
	return Decode[T](f, path, opts)
}

// Decode parses a URDF document read from r. path is only used in errors.
func Decode[T rbd.Scalar](r io.Reader, path string, opts Options) (*rbd.Mechanism[T], error) {
	var robot robotXML
	if err := xml.NewDecoder(r).Decode(&robot); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	b := &builder[T]{path: path, robot: &robot, reg: newRegistry[T]()}
	m, err := b.build(opts)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %s from %s: bodies=%d nq=%d nv=%d floating=%t",
		m.Name, path, m.NumBodies(), m.NumPositions(), m.NumVelocities(), opts.Floating)
	return m, nil
}

type builder[T rbd.Scalar] struct {
	path  string
	robot *robotXML
	reg   *registry[T]

	links    map[string]int   // link name -> index into robot.Links
	children map[string][]int // link name -> child joint indices, file order
	body     map[string]int   // link name -> body index
	mech     *rbd.Mechanism[T]
}

func (b *builder[T]) fail(element string, err error) error {
	return &ParseError{Path: b.path, Element: element, Err: err}
}

func (b *builder[T]) build(opts Options) (*rbd.Mechanism[T], error) {
	robot := b.robot
	if len(robot.Links) == 0 {
		return nil, b.fail("", ErrNoLinks)
	}

	b.links = make(map[string]int, len(robot.Links))
	for i, l := range robot.Links {
		if _, dup := b.links[l.Name]; dup {
			return nil, b.fail(fmt.Sprintf("link %q", l.Name), ErrDuplicate)
		}
		b.links[l.Name] = i
	}

	b.children = make(map[string][]int)
	hasParent := make(map[string]bool, len(robot.Links))
	jointNames := make(map[string]bool, len(robot.Joints))
	for i, j := range robot.Joints {
		el := fmt.Sprintf("joint %q", j.Name)
		if jointNames[j.Name] {
			return nil, b.fail(el, ErrDuplicate)
		}
		jointNames[j.Name] = true
		for _, name := range []string{j.Parent.Link, j.Child.Link} {
			if _, ok := b.links[name]; !ok {
				return nil, b.fail(el, fmt.Errorf("%w: %q", ErrUnknownLink, name))
			}
		}
		if hasParent[j.Child.Link] || j.Parent.Link == j.Child.Link {
			return nil, b.fail(el, fmt.Errorf("%w: link %q has more than one parent", ErrCycle, j.Child.Link))
		}
		hasParent[j.Child.Link] = true
		b.children[j.Parent.Link] = append(b.children[j.Parent.Link], i)
	}

	var roots []string
	for _, l := range robot.Links {
		if !hasParent[l.Name] {
			roots = append(roots, l.Name)
		}
	}
	switch {
	case len(roots) == 0:
		return nil, b.fail("", fmt.Errorf("%w: every link has a parent", ErrCycle))
	case len(roots) > 1:
		return nil, b.fail("", fmt.Errorf("%w: %s", ErrMultipleRoots, strings.Join(roots, ", ")))
	}

	name := robot.Name
	if name == "" {
		name = roots[0]
	}
	b.mech = rbd.NewMechanism[T](name)
	if len(opts.Gravity) == 3 {
		b.mech.Gravity = rbd.Vec3[T]{T(opts.Gravity[0]), T(opts.Gravity[1]), T(opts.Gravity[2])}
	}
	b.body = make(map[string]int, len(robot.Links))

	rootJoint := rbd.Joint[T]{Name: "world_" + roots[0], Type: rbd.Fixed}
	if opts.Floating {
		rootJoint.Type = rbd.Floating
	}
	if err := b.addLink(roots[0], rbd.World, rootJoint, rbd.IdentityTransform[T]()); err != nil {
		return nil, err
	}

	if len(b.body) != len(robot.Links) {
		for _, l := range robot.Links {
			if _, ok := b.body[l.Name]; !ok {
				return nil, b.fail(fmt.Sprintf("link %q", l.Name), fmt.Errorf("%w: not connected to root %q", ErrCycle, roots[0]))
			}
		}
	}
	return b.mech, nil
}

// addLink adds the named link and then its subtree, depth first in file order.
func (b *builder[T]) addLink(name string, parent int, joint rbd.Joint[T], tree rbd.Transform[T]) error {
	el := fmt.Sprintf("link %q", name)
	in, err := inertia[T](b.robot.Links[b.links[name]].Inertial)
	if err != nil {
		return b.fail(el, err)
	}
	idx, err := b.mech.AddBody(name, parent, joint, tree, in)
	if err != nil {
		return b.fail(el, err)
	}
	b.body[name] = idx

	for _, ji := range b.children[name] {
		j := b.robot.Joints[ji]
		el := fmt.Sprintf("joint %q", j.Name)
		axis, err := jointAxis[T](j.Axis)
		if err != nil {
			return b.fail(el, err)
		}
		joint, err := b.reg.joint(j.Type, j.Name, axis)
		if err != nil {
			return b.fail(el, err)
		}
		tree, err := origin[T](j.Origin)
		if err != nil {
			return b.fail(el, err)
		}
		if err := b.addLink(j.Child.Link, idx, joint, tree); err != nil {
			return err
		}
	}
	return nil
}

func origin[T rbd.Scalar](o originXML) (rbd.Transform[T], error) {
	xyz, err := parseVec[T](o.XYZ, "origin xyz")
	if err != nil {
		return rbd.Transform[T]{}, err
	}
	rpy, err := parseVec[T](o.RPY, "origin rpy")
	if err != nil {
		return rbd.Transform[T]{}, err
	}
	return rbd.OriginTransform(xyz, rbd.RPY(rpy[0], rpy[1], rpy[2])), nil
}

func jointAxis[T rbd.Scalar](a *axisXML) (rbd.Vec3[T], error) {
	if a == nil || strings.TrimSpace(a.XYZ) == "" {
		return rbd.Vec3[T]{1, 0, 0}, nil
	}
	v, err := parseVec[T](a.XYZ, "axis xyz")
	if err != nil {
		return v, err
	}
	n := v.Norm()
	if n == 0 {
		return v, fmt.Errorf("%w: zero joint axis", ErrBadValue)
	}
	return v.Scale(1 / n), nil
}

// inertia converts an inertial block into a spatial inertia about the link
// frame origin. A missing block is a massless link.
func inertia[T rbd.Scalar](in *inertialXML) (rbd.Inertia[T], error) {
	if in == nil {
		return rbd.Inertia[T]{}, nil
	}
	com, err := parseVec[T](in.Origin.XYZ, "inertial origin xyz")
	if err != nil {
		return rbd.Inertia[T]{}, err
	}
	rpy, err := parseVec[T](in.Origin.RPY, "inertial origin rpy")
	if err != nil {
		return rbd.Inertia[T]{}, err
	}
	mass, err := parseScalar[T](in.Mass.Value, "mass")
	if err != nil {
		return rbd.Inertia[T]{}, err
	}

	var vals [6]T
	for i, s := range []string{in.Inertia.IXX, in.Inertia.IXY, in.Inertia.IXZ, in.Inertia.IYY, in.Inertia.IYZ, in.Inertia.IZZ} {
		if vals[i], err = parseScalar[T](s, "inertia"); err != nil {
			return rbd.Inertia[T]{}, err
		}
	}
	ic := rbd.Mat3[T]{
		{vals[0], vals[1], vals[2]},
		{vals[1], vals[3], vals[4]},
		{vals[2], vals[4], vals[5]},
	}
	r := rbd.RPY(rpy[0], rpy[1], rpy[2])
	ic = r.Mul(ic).Mul(r.Transpose())
	return rbd.NewInertia(mass, com, ic), nil
}

func parseScalar[T rbd.Scalar](s, what string) (T, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrBadValue, what, s)
	}
	return T(f), nil
}

func parseVec[T rbd.Scalar](s, what string) (rbd.Vec3[T], error) {
	var v rbd.Vec3[T]
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return v, nil
	}
	if len(fields) != 3 {
		return v, fmt.Errorf("%w: %s needs 3 values, got %q", ErrBadValue, what, s)
	}
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return v, fmt.Errorf("%w: %s %q", ErrBadValue, what, s)
		}
		v[i] = T(x)
	}
	return v, nil
}
