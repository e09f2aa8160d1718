package metric

import (
	"sync/atomic"
)

// Counter is a signed integer which can be incremented and decremented.
// Its count is the sum of all deltas since creation (or the last Clear).
type Counter struct {
	val atomic.Int64
}

// NewCounter returns an unregistered Counter. Use Registry.Counter to get a
// shared one.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) Kind() Kind { return KindCounter }

func (c *Counter) Render(r Renderer, ctx any) error { return r.RenderCounter(c, ctx) }

func (*Counter) metric() {}

// Inc adds n to the counter.
func (c *Counter) Inc(n int64) {
	c.val.Add(n)
}

// Dec subtracts n from the counter.
func (c *Counter) Dec(n int64) {
	c.val.Add(-n)
}

// Count returns the current value.
func (c *Counter) Count() int64 {
	return c.val.Load()
}

// Clear resets the counter to zero.
func (c *Counter) Clear() {
	c.val.Store(0)
}
