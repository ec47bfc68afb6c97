package managed

import (
	"fmt"
	"strings"
	"unsafe"
)

// Scalar is the numeric element type of a runtime's arrays.
type Scalar interface {
	~float32 | ~float64
}

// ElemType identifies a runtime's scalar type.
type ElemType uint8

const (
	Float64 ElemType = iota + 1
	Float32
)

// ElemTypeOf returns the ElemType matching T.
func ElemTypeOf[T Scalar]() ElemType {
	var z T
	if unsafe.Sizeof(z) == 4 {
		return Float32
	}
	return Float64
}

func (e ElemType) String() string {
	switch e {
	case Float64:
		return "Float64"
	case Float32:
		return "Float32"
	default:
		return fmt.Sprintf("ElemType(%d)", uint8(e))
	}
}

// Size returns the element size in bytes.
func (e ElemType) Size() int {
	if e == Float32 {
		return 4
	}
	return 8
}

// ParseElemType accepts "float64"/"float32" in any case, and the numeric
// selectors 1 and 2.
func ParseElemType(s string) (ElemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float64", "f64", "1":
		return Float64, nil
	case "float32", "f32", "2":
		return Float32, nil
	}
	return 0, fmt.Errorf("managed: unknown scalar type %q (want float64 or float32)", s)
}

// Handle is an opaque reference to a runtime object. The zero Handle is nil.
type Handle uint32

// Nil is the null handle.
const Nil Handle = 0

// Kind is the shape of a runtime object.
type Kind uint8

const (
	KindArray     Kind = iota + 1 // flat numeric storage
	KindSegmented                 // vector view partitioned into per-joint segments
	KindSymmetric                 // square symmetric view over a flat array
	KindStruct                    // named fields holding handles
	KindOpaque                    // Go value owned by the runtime
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "Array"
	case KindSegmented:
		return "SegmentedVector"
	case KindSymmetric:
		return "Symmetric"
	case KindStruct:
		return "Struct"
	case KindOpaque:
		return "Opaque"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Segment is a contiguous range of a segmented vector's parent array.
type Segment struct {
	Start int
	Len   int
}

// Stats summarizes collector activity.
type Stats struct {
	Collections int
	Relocations int
	Freed       int
	LiveObjects int
	HeapElems   int
	Chunks      int
}
