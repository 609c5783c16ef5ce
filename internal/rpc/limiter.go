package rpc

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SlidingWindow 在任意滚动窗口内最多放行 budget 次请求，超出立即拒绝
type SlidingWindow struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	budget int
	window time.Duration
	stamps []time.Time
}

func NewSlidingWindow(clock clockwork.Clock, budget int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{clock: clock, budget: budget, window: window, stamps: make([]time.Time, 0, budget)}
}

// Allow records a dispatch if the window has room.
func (w *SlidingWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)
	if len(w.stamps) >= w.budget {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Remaining is the number of dispatches the window would still admit now.
func (w *SlidingWindow) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.clock.Now())
	return w.budget - len(w.stamps)
}

// stamps older than now-window no longer count
func (w *SlidingWindow) prune(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
