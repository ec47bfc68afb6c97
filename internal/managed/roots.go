package managed

import "fmt"

// RootFrame is a registered set of handle slots. Objects whose handles sit in
// the slots of a live frame, and everything they reference, survive
// collection. Slots are read at collection time, so a handle stored into a
// slot after the push is rooted from then on.
type RootFrame[T Scalar] struct {
	rt     *Runtime[T]
	slots  []*Handle
	depth  int
	popped bool
}

// PushRoots registers slots as a new root frame on top of the stack.
func (rt *Runtime[T]) PushRoots(slots ...*Handle) (*RootFrame[T], error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.checkOpen(); err != nil {
		return nil, err
	}
	for i, s := range slots {
		if s == nil {
			return nil, fmt.Errorf("managed: root slot %d is a nil pointer", i)
		}
	}
	f := &RootFrame[T]{rt: rt, slots: slots, depth: len(rt.frames) + 1}
	rt.frames = append(rt.frames, f)
	rt.observer.OnPushRoots(f.depth, len(slots))
	return f, nil
}

// Pop unregisters the frame. Frames must be popped in reverse push order;
// popping an already popped frame does nothing.
func (f *RootFrame[T]) Pop() error {
	rt := f.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if f.popped || rt.closed {
		f.popped = true
		return nil
	}
	top := len(rt.frames) - 1
	if top < 0 || rt.frames[top] != f {
		return fmt.Errorf("%w: frame at depth %d, stack depth %d", ErrRootOrder, f.depth, len(rt.frames))
	}
	rt.frames[top] = nil
	rt.frames = rt.frames[:top]
	f.popped = true
	rt.observer.OnPopRoots(f.depth, len(f.slots))
	return nil
}

// Live reports whether the frame is still registered.
func (f *RootFrame[T]) Live() bool {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	return !f.popped && !f.rt.closed
}

// Depth returns the frame's 1-based position in the root stack.
func (f *RootFrame[T]) Depth() int { return f.depth }

// RootDepth returns the number of live root frames.
func (rt *Runtime[T]) RootDepth() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.frames)
}

// Reachable reports whether h is reachable from any live root frame.
func (rt *Runtime[T]) Reachable(h Handle) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return false
	}
	_, ok := rt.mark()[h]
	return ok
}
