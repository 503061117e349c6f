package metrics

import (
	"math"
	"sync/atomic"
)

// Counter is a monotonic running sum updated lock-free.
type Counter struct {
	name string

	bits  atomic.Uint64 // float64 bits of the sum
	count atomic.Int64  // number of Add calls
}

// NewCounter creates a zero counter.
func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Kind returns KindCounter.
func (c *Counter) Kind() Kind { return KindCounter }

// Add increases the counter by n. Negative values are ignored.
func (c *Counter) Add(n float64) {
	if n < 0 || math.IsNaN(n) {
		return
	}
	for {
		old := c.bits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + n)
		if c.bits.CompareAndSwap(old, updated) {
			break
		}
	}
	c.count.Add(1)
}

// Value returns the current sum.
func (c *Counter) Value() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Snapshot returns the counter value.
func (c *Counter) Snapshot() Snapshot {
	return Snapshot{
		Name:  c.name,
		Kind:  KindCounter,
		Count: c.count.Load(),
		Value: c.Value(),
	}
}
