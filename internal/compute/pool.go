package compute

import "sync"

// VecPool hands out scratch vectors of a fixed length.
type VecPool[T Scalar] struct {
	pool sync.Pool
	size int
}

func NewVecPool[T Scalar](size int) *VecPool[T] {
	p := &VecPool[T]{size: size}
	p.pool.New = func() any {
		v := make([]T, size)
		return &v
	}
	return p
}

func (p *VecPool[T]) Get() []T {
	return *p.pool.Get().(*[]T)
}

func (p *VecPool[T]) Put(v []T) {
	if len(v) != p.size {
		return
	}
	clear(v)
	p.pool.Put(&v)
}

// GetAndCopy returns a pooled vector holding a copy of src.
func (p *VecPool[T]) GetAndCopy(src []T) []T {
	dst := p.Get()
	copy(dst, src)
	return dst
}
