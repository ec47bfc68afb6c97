package metrics

import (
	"math"

	"github.com/san-kum/rbdrive/internal/compute"
)

// Effort is the mean absolute joint force per sample.
type Effort[T compute.Scalar] struct {
	name    string
	sum     float64
	samples int
}

func NewEffort[T compute.Scalar]() *Effort[T] {
	return &Effort[T]{
		name: "effort",
	}
}

func (c *Effort[T]) Name() string {
	return c.name
}

func (c *Effort[T]) Observe(s Sample[T]) {
	for _, val := range s.Tau {
		c.sum += math.Abs(float64(val))
	}
	c.samples++
}

func (c *Effort[T]) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *Effort[T]) Reset() {
	c.sum = 0
	c.samples = 0
}
