package managed

import (
	"fmt"
	"slices"
)

type object struct {
	kind Kind
	typ  string

	// KindArray: storage location and relocation generation.
	chunk int
	off   int
	n     int
	gen   uint64

	// KindSegmented, KindSymmetric
	parent   Handle
	segments []Segment
	dim      int
	uplo     byte

	// KindStruct
	names  []string
	fields []Handle

	// KindOpaque
	value any
}

func (o *object) children() []Handle {
	switch o.kind {
	case KindSegmented, KindSymmetric:
		return []Handle{o.parent}
	case KindStruct:
		return o.fields
	}
	return nil
}

// reserve finds room for n elements, opening a new chunk when the current one
// is full. Existing storage never moves here; only collection moves arrays.
func (rt *Runtime[T]) reserve(n int) (chunk, off int) {
	size := rt.opts.ChunkSize
	if n > size {
		rt.chunks = append(rt.chunks, make([]T, n))
		return len(rt.chunks) - 1, 0
	}
	if rt.used+n > len(rt.chunks[rt.cur]) {
		rt.chunks = append(rt.chunks, make([]T, size))
		rt.cur = len(rt.chunks) - 1
		rt.used = 0
	}
	off = rt.used
	rt.used += n
	return rt.cur, off
}

func (rt *Runtime[T]) register(o *object) Handle {
	h := rt.nextID
	rt.nextID++
	rt.objects[h] = o
	return h
}

func (rt *Runtime[T]) lookup(h Handle) (*object, error) {
	if h == Nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidHandle)
	}
	o, ok := rt.objects[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return o, nil
}

func (rt *Runtime[T]) lookupKind(h Handle, kinds ...Kind) (*object, error) {
	o, err := rt.lookup(h)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(kinds, o.kind) {
		return nil, fmt.Errorf("%w: handle %d is %s, want %v", ErrKind, h, o.kind, kinds)
	}
	return o, nil
}

// NewArray allocates a flat array of n elements. Contents are unspecified.
// Allocation may trigger a collection, which relocates other arrays.
func (rt *Runtime[T]) NewArray(n int) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return Nil, err
	}
	if n < 0 {
		return Nil, fmt.Errorf("managed: negative array length %d", n)
	}
	return rt.newArray(n), nil
}

func (rt *Runtime[T]) newArray(n int) Handle {
	rt.maybeCollect(n)
	chunk, off := rt.reserve(n)
	return rt.register(&object{kind: KindArray, chunk: chunk, off: off, n: n})
}

// NewSegmented wraps parent as a vector partitioned into segments. The
// segments must lie within the parent and must not overlap.
func (rt *Runtime[T]) NewSegmented(parent Handle, segments []Segment) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return Nil, err
	}
	p, err := rt.lookupKind(parent, KindArray)
	if err != nil {
		return Nil, err
	}
	next := 0
	for i, s := range segments {
		if s.Len < 0 || s.Start < next || s.Start+s.Len > p.n {
			return Nil, fmt.Errorf("managed: segment %d %+v outside parent of length %d", i, s, p.n)
		}
		next = s.Start + s.Len
	}
	rt.maybeCollect(0)
	return rt.register(&object{kind: KindSegmented, parent: parent, segments: slices.Clone(segments)}), nil
}

// NewSymmetric wraps a dim×dim column-major parent as a symmetric matrix
// whose uplo triangle ('U' or 'L') holds the data.
func (rt *Runtime[T]) NewSymmetric(parent Handle, dim int, uplo byte) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return Nil, err
	}
	p, err := rt.lookupKind(parent, KindArray)
	if err != nil {
		return Nil, err
	}
	if p.n != dim*dim {
		return Nil, fmt.Errorf("managed: symmetric %d×%d needs %d elements, parent has %d", dim, dim, dim*dim, p.n)
	}
	if uplo != 'U' && uplo != 'L' {
		return Nil, fmt.Errorf("managed: uplo must be 'U' or 'L', got %q", uplo)
	}
	rt.maybeCollect(0)
	return rt.register(&object{kind: KindSymmetric, parent: parent, dim: dim, uplo: uplo}), nil
}

// NewStruct allocates a struct object of type typ with the given fields.
func (rt *Runtime[T]) NewStruct(typ string, names []string, fields []Handle) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return Nil, err
	}
	if len(names) != len(fields) {
		return Nil, fmt.Errorf("managed: struct %s has %d names and %d fields", typ, len(names), len(fields))
	}
	for i, f := range fields {
		if _, err := rt.lookup(f); err != nil {
			return Nil, fmt.Errorf("managed: struct %s field %s: %w", typ, names[i], err)
		}
	}
	rt.maybeCollect(0)
	return rt.register(&object{kind: KindStruct, typ: typ, names: slices.Clone(names), fields: slices.Clone(fields)}), nil
}

// NewOpaque stores a Go value as a runtime object of type typ.
func (rt *Runtime[T]) NewOpaque(typ string, value any) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return Nil, err
	}
	rt.maybeCollect(0)
	return rt.register(&object{kind: KindOpaque, typ: typ, value: value}), nil
}

// Kind returns the object kind of h.
func (rt *Runtime[T]) Kind(h Handle) (Kind, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookup(h)
	if err != nil {
		return 0, err
	}
	return o.kind, nil
}

// TypeName returns the type name of a struct or opaque object, or the kind name.
func (rt *Runtime[T]) TypeName(h Handle) (string, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookup(h)
	if err != nil {
		return "", err
	}
	if o.typ != "" {
		return o.typ, nil
	}
	return o.kind.String(), nil
}

// Field returns the named field of a struct object.
func (rt *Runtime[T]) Field(h Handle, name string) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookupKind(h, KindStruct)
	if err != nil {
		return Nil, err
	}
	if i := slices.Index(o.names, name); i >= 0 {
		return o.fields[i], nil
	}
	return Nil, fmt.Errorf("%w: %s.%s", ErrNoField, o.typ, name)
}

// Opaque returns the Go value of an opaque object.
func (rt *Runtime[T]) Opaque(h Handle) (any, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookupKind(h, KindOpaque)
	if err != nil {
		return nil, err
	}
	return o.value, nil
}

// Parent performs one unwrap step: the backing array of a segmented vector
// or symmetric view. Arrays are their own parent.
func (rt *Runtime[T]) Parent(h Handle) (Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookupKind(h, KindArray, KindSegmented, KindSymmetric)
	if err != nil {
		return Nil, err
	}
	if o.kind == KindArray {
		return h, nil
	}
	return o.parent, nil
}

// Segments returns the segment layout of a segmented vector.
func (rt *Runtime[T]) Segments(h Handle) ([]Segment, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookupKind(h, KindSegmented)
	if err != nil {
		return nil, err
	}
	return slices.Clone(o.segments), nil
}

// Dim returns the dimension and stored triangle of a symmetric view.
func (rt *Runtime[T]) Dim(h Handle) (int, byte, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	o, err := rt.lookupKind(h, KindSymmetric)
	if err != nil {
		return 0, 0, err
	}
	return o.dim, o.uplo, nil
}

// Len returns the element count of an array-like object's backing storage.
func (rt *Runtime[T]) Len(h Handle) (int, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, o, err := rt.unwrap(h)
	if err != nil {
		return 0, err
	}
	return o.n, nil
}

// maxUnwrap bounds wrapper chains; the runtime only builds chains of depth one.
const maxUnwrap = 8

// unwrap follows wrapper parents down to the backing flat array.
func (rt *Runtime[T]) unwrap(h Handle) (Handle, *object, error) {
	for range maxUnwrap {
		o, err := rt.lookup(h)
		if err != nil {
			return Nil, nil, err
		}
		switch o.kind {
		case KindArray:
			return h, o, nil
		case KindSegmented, KindSymmetric:
			h = o.parent
		default:
			return Nil, nil, fmt.Errorf("%w: %s is not array-like", ErrKind, o.kind)
		}
	}
	return Nil, nil, fmt.Errorf("managed: wrapper chain deeper than %d", maxUnwrap)
}

func (rt *Runtime[T]) storage(o *object) []T {
	return rt.chunks[o.chunk][o.off : o.off+o.n : o.off+o.n]
}

// KernelView returns the backing storage of an array-like object for use by
// runtime-side kernels. The view is only valid until the next allocation;
// native code must use ResolveBuffer instead.
func (rt *Runtime[T]) KernelView(h Handle) ([]T, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return nil, err
	}
	_, o, err := rt.unwrap(h)
	if err != nil {
		return nil, err
	}
	return rt.storage(o), nil
}

// CopyOut returns a copy of the backing storage of an array-like object.
func (rt *Runtime[T]) CopyOut(h Handle) ([]T, error) {
	view, err := rt.KernelView(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(view), nil
}
