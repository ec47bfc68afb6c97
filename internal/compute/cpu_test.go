package compute

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spd3 is a 3×3 symmetric positive definite matrix, column-major, upper triangle filled.
func spd3() []float64 {
	return []float64{
		4, 0, 0,
		2, 5, 0,
		-2, 1, 6,
	}
}

func TestCholeskySolve(t *testing.T) {
	b := NewCPUBackend[float64]()
	a := spd3()
	x := []float64{1, -2, 3}

	rhs := make([]float64, 3)
	b.SymMatVec(a, 3, x, rhs)

	require.NoError(t, b.CholeskyUpper(a, 3))
	b.CholeskySolve(a, 3, rhs)

	for i := range x {
		assert.InDelta(t, x[i], rhs[i], 1e-12)
	}
}

func TestCholeskyLeavesLowerTriangle(t *testing.T) {
	b := NewCPUBackend[float64]()
	a := spd3()
	a[1] = 99 // (1,0)

	require.NoError(t, b.CholeskyUpper(a, 3))
	assert.Equal(t, 99.0, a[1])
}

func TestCholeskyNotPositiveDefinite(t *testing.T) {
	b := NewCPUBackend[float64]()
	a := []float64{
		1, 0,
		2, 1,
	}

	err := b.CholeskyUpper(a, 2)
	if !errors.Is(err, ErrNotPositiveDefinite) {
		t.Fatalf("expected ErrNotPositiveDefinite, got %v", err)
	}
}

func TestCholeskyShortBuffer(t *testing.T) {
	b := NewCPUBackend[float32]()
	assert.Error(t, b.CholeskyUpper(make([]float32, 3), 2))
}

func TestSymMatVecParallelMatchesSerial(t *testing.T) {
	const n = 40
	a := make([]float64, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i <= j; i++ {
			a[i+j*n] = float64(i+1) / float64(j+1)
		}
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i%7) - 3
	}

	b := NewCPUBackend[float64]()

	SetThreads(1)
	serial := make([]float64, n)
	b.SymMatVec(a, n, x, serial)

	SetThreads(4)
	defer SetThreads(1)
	parallel := make([]float64, n)
	b.SymMatVec(a, n, x, parallel)

	assert.Equal(t, serial, parallel)
}

func TestSetThreadsClamps(t *testing.T) {
	defer SetThreads(1)

	SetThreads(0)
	assert.Equal(t, 1, Threads())

	SetThreads(3)
	assert.Equal(t, 3, NewCPUBackend[float64]().Threads())
}

func TestVecPool(t *testing.T) {
	pool := NewVecPool[float64](4)

	v := pool.Get()
	require.Len(t, v, 4)
	v[0] = 1
	pool.Put(v)

	w := pool.Get()
	assert.Equal(t, 0.0, w[0], "pool did not reset vector")

	src := []float64{1, 2, 3, 4}
	cp := pool.GetAndCopy(src)
	cp[0] = 99
	assert.Equal(t, 1.0, src[0], "GetAndCopy did not create independent copy")
}
