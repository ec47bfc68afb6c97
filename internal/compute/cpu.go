package compute

import (
	"fmt"
	"math"
	"sync"
)

// parallelMinRows is the matrix size below which work stays on the calling goroutine.
const parallelMinRows = 16

type CPUBackend[T Scalar] struct{}

func NewCPUBackend[T Scalar]() *CPUBackend[T] {
	return &CPUBackend[T]{}
}

func (c *CPUBackend[T]) Name() string { return "cpu" }
func (c *CPUBackend[T]) Threads() int { return Threads() }
func (c *CPUBackend[T]) Cleanup()     {}

// CholeskyUpper factors the symmetric matrix a in place as Uᵀ·U, writing U
// into the upper triangle. The strict lower triangle is left untouched.
func (c *CPUBackend[T]) CholeskyUpper(a []T, n int) error {
	if len(a) < n*n {
		return fmt.Errorf("compute: cholesky needs %d elements, got %d", n*n, len(a))
	}

	for j := 0; j < n; j++ {
		s := a[j+j*n]
		for k := 0; k < j; k++ {
			u := a[k+j*n]
			s -= u * u
		}
		if !(s > 0) {
			return fmt.Errorf("%w (pivot %d = %g)", ErrNotPositiveDefinite, j, float64(s))
		}
		d := T(math.Sqrt(float64(s)))
		a[j+j*n] = d

		for i := j + 1; i < n; i++ {
			s := a[j+i*n]
			for k := 0; k < j; k++ {
				s -= a[k+j*n] * a[k+i*n]
			}
			a[j+i*n] = s / d
		}
	}

	return nil
}

// CholeskySolve overwrites b with the solution of Uᵀ·U·x = b, where u holds
// the factor produced by CholeskyUpper.
func (c *CPUBackend[T]) CholeskySolve(u []T, n int, b []T) {
	// Uᵀ·y = b
	for i := 0; i < n; i++ {
		s := b[i]
		for k := 0; k < i; k++ {
			s -= u[k+i*n] * b[k]
		}
		b[i] = s / u[i+i*n]
	}

	// U·x = y
	for i := n - 1; i >= 0; i-- {
		s := b[i]
		for k := i + 1; k < n; k++ {
			s -= u[i+k*n] * b[k]
		}
		b[i] = s / u[i+i*n]
	}
}

// SymMatVec computes y = A·x for a symmetric A stored in its upper triangle.
func (c *CPUBackend[T]) SymMatVec(a []T, n int, x, y []T) {
	workers := Threads()
	if n < parallelMinRows || workers <= 1 {
		symRows(a, n, x, y, 0, n)
		return
	}

	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			symRows(a, n, x, y, s, e)
		}(start, end)
	}

	wg.Wait()
}

func symRows[T Scalar](a []T, n int, x, y []T, start, end int) {
	for i := start; i < end; i++ {
		var sum T
		for j := 0; j < n; j++ {
			if i <= j {
				sum += a[i+j*n] * x[j]
			} else {
				sum += a[j+i*n] * x[j]
			}
		}
		y[i] = sum
	}
}
