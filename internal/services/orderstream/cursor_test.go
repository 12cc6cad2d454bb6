package orderstream

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rzbill/ordernotify/internal/detector"
)

func TestCursorNeverMovesBack(t *testing.T) {
	c := NewCursor(100)
	for _, tc := range []struct {
		id   int64
		want bool
	}{
		{100, false},
		{50, false},
		{101, true},
		{103, true},
		{103, false},
		{102, true},
		{102, false},
	} {
		if got := c.Advance(tc.id); got != tc.want {
			t.Fatalf("Advance(%d) = %v, want %v", tc.id, got, tc.want)
		}
	}
	if got := c.Load(); got != 103 {
		t.Fatalf("Load() = %d, want 103", got)
	}
}

func TestCursorLateWindow(t *testing.T) {
	c := NewCursor(0)
	top := int64(3 * detector.LateWindow)
	if !c.Advance(top) {
		t.Fatal("first id rejected")
	}
	if c.Advance(top - detector.LateWindow) {
		t.Fatal("id at the window edge accepted")
	}
	if !c.Advance(top - detector.LateWindow + 1) {
		t.Fatal("id inside the window rejected")
	}
	for id := top + 1; id <= top+2*detector.LateWindow; id++ {
		c.Advance(id)
	}
	if n := len(c.seen); n > detector.LateWindow+1 {
		t.Fatalf("seen set not pruned: %d entries", n)
	}
}

func TestCursorConcurrentAdvance(t *testing.T) {
	c := NewCursor(0)
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for i := 1; i <= 1000; i++ {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if c.Advance(id) {
					wins.Add(1)
				}
			}(int64(i))
		}
	}
	wg.Wait()
	if c.Load() != 1000 {
		t.Fatalf("Load() = %d", c.Load())
	}
	if wins.Load() != 1000 {
		t.Fatalf("%d ids reported new, want exactly 1000", wins.Load())
	}
}
