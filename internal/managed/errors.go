package managed

import "errors"

var (
	// ErrAlreadyInitialized is returned by Init while another runtime is live.
	ErrAlreadyInitialized = errors.New("managed: runtime already initialized in this process")

	// ErrNotInitialized is returned by calls made after Shutdown.
	ErrNotInitialized = errors.New("managed: runtime not initialized")

	// ErrInvalidHandle indicates a nil, freed or unknown handle.
	ErrInvalidHandle = errors.New("managed: invalid handle")

	// ErrKind indicates a handle of the wrong object kind for the operation.
	ErrKind = errors.New("managed: wrong object kind")

	// ErrNoField indicates a struct field lookup miss.
	ErrNoField = errors.New("managed: no such field")

	// ErrRootOrder indicates a root frame popped out of stack order.
	ErrRootOrder = errors.New("managed: root frames must be popped in reverse push order")

	// ErrNotRooted indicates a borrow requested for an object no live root frame reaches.
	ErrNotRooted = errors.New("managed: object is not reachable from a live root frame")

	// ErrBorrowInvalidated indicates a borrow whose owner moved, died or lost its root.
	ErrBorrowInvalidated = errors.New("managed: borrowed buffer invalidated")

	// ErrGCSuspended is returned when the collector is already suspended.
	ErrGCSuspended = errors.New("managed: collector already suspended")

	// ErrImage indicates a bootstrap image that cannot be used by this runtime.
	ErrImage = errors.New("managed: unusable bootstrap image")
)
