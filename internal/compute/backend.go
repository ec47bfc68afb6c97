package compute

import (
	"errors"
	"sync/atomic"
)

// Scalar is the element type the backend operates on.
type Scalar interface {
	~float32 | ~float64
}

// ErrNotPositiveDefinite is returned when a Cholesky factorization meets a
// non-positive pivot.
var ErrNotPositiveDefinite = errors.New("compute: matrix is not positive definite")

// Backend is a dense linear-algebra provider. Matrices are n×n, column-major,
// and only the upper triangle (row <= col) is read or written.
type Backend[T Scalar] interface {
	Name() string
	Threads() int
	CholeskyUpper(a []T, n int) error
	CholeskySolve(u []T, n int, b []T)
	SymMatVec(a []T, n int, x, y []T)
	Cleanup()
}

var threads atomic.Int32

func init() {
	threads.Store(1)
}

// SetThreads sets the process-wide worker count. Values below one are clamped to one.
func SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	threads.Store(int32(n))
}

// Threads returns the process-wide worker count.
func Threads() int {
	return int(threads.Load())
}
