package managed

import "fmt"

// Buffer is a zero-copy borrow of an array's storage. Writes through Data are
// visible to the runtime and the other way around.
type Buffer[T Scalar] struct {
	// Data aliases the owner's storage. Its capacity equals its length.
	Data []T

	owner Handle
	gen   uint64
	frame *RootFrame[T]
}

// ResolveBuffer borrows the backing storage of h, unwrapping segmented and
// symmetric views to their parent array. h must be reachable from a live root
// frame. The borrow is tied to frame and ends when frame is popped.
func ResolveBuffer[T Scalar](frame *RootFrame[T], h Handle) (*Buffer[T], error) {
	rt := frame.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return nil, err
	}
	if frame.popped {
		return nil, fmt.Errorf("%w: root frame at depth %d already popped", ErrBorrowInvalidated, frame.depth)
	}
	if _, ok := rt.mark()[h]; !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrNotRooted, h)
	}
	owner, o, err := rt.unwrap(h)
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{
		Data:  rt.storage(o),
		owner: owner,
		gen:   o.gen,
		frame: frame,
	}, nil
}

// Len returns the element count.
func (b *Buffer[T]) Len() int { return len(b.Data) }

// Owner returns the array whose storage the buffer aliases.
func (b *Buffer[T]) Owner() Handle { return b.owner }

// ElemType returns the scalar type of the elements.
func (b *Buffer[T]) ElemType() ElemType { return ElemTypeOf[T]() }

// Valid reports whether Data still aliases the owner's storage.
func (b *Buffer[T]) Valid() error {
	rt := b.frame.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	switch {
	case rt.closed:
		return fmt.Errorf("%w: runtime shut down", ErrBorrowInvalidated)
	case b.frame.popped:
		return fmt.Errorf("%w: root frame at depth %d popped", ErrBorrowInvalidated, b.frame.depth)
	}
	o, ok := rt.objects[b.owner]
	if !ok {
		return fmt.Errorf("%w: owner %d collected", ErrBorrowInvalidated, b.owner)
	}
	if o.gen != b.gen {
		return fmt.Errorf("%w: owner %d relocated", ErrBorrowInvalidated, b.owner)
	}
	return nil
}
