package mailbox

import "sync/atomic"

const counterMax = 7

// Counter is the cyclic mailbox counter of a slave. Values go 1 to 7 then
// wrap back to 1, 0 being reserved. The zero value starts at 1 and a Counter
// may be shared by concurrent callers.
type Counter struct {
	v atomic.Uint32
}

func NewCounter() *Counter {
	c := &Counter{}
	c.v.Store(1)
	return c
}

// Next returns the current value and advances the counter.
func (c *Counter) Next() uint8 {
	for {
		raw := c.v.Load()
		current := raw
		if current == 0 {
			current = 1
		}
		next := current + 1
		if current >= counterMax {
			next = 1
		}
		if c.v.CompareAndSwap(raw, next) {
			return uint8(current)
		}
	}
}

// Peek returns the value the next call to Next will return.
func (c *Counter) Peek() uint8 {
	v := c.v.Load()
	if v == 0 {
		return 1
	}
	return uint8(v)
}
