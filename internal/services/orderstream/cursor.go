package orderstream

import (
	"sync"

	"github.com/rzbill/ordernotify/internal/detector"
)

// Cursor is the highest order id a session has observed. It never moves
// backwards. Ids may be observed out of order: an id below the cursor that
// is still within detector.LateWindow of it and was not seen before counts as
// new.
type Cursor struct {
	mu    sync.Mutex
	start int64
	high  int64
	seen  map[int64]struct{}
}

// NewCursor starts at id. Nothing at or below id is ever new.
func NewCursor(id int64) *Cursor {
	return &Cursor{start: id, high: id, seen: make(map[int64]struct{})}
}

// Load returns the current position.
func (c *Cursor) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.high
}

// Advance records id and reports whether it was new to the session.
func (c *Cursor) Advance(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id <= c.floor() {
		return false
	}
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	if id > c.high {
		c.high = id
		if len(c.seen) > detector.LateWindow {
			floor := c.floor()
			for k := range c.seen {
				if k <= floor {
					delete(c.seen, k)
				}
			}
		}
	}
	return true
}

func (c *Cursor) floor() int64 {
	return max(c.start, c.high-detector.LateWindow)
}
