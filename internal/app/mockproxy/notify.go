package mockproxy

import (
	"context"
	"sync"
	"time"
)

// notify wakes every waiter whenever a new interaction is captured. Waiters take C()
// before checking their condition so a notification in between is not lost.
type notify struct {
	notify chan struct{}
	mu     sync.Mutex
}

func newNotify() *notify {
	return &notify{
		notify: make(chan struct{}),
	}
}

func (n *notify) C() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notify
}

func (n *notify) Wait(ctx context.Context, ch <-chan struct{}, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (n *notify) Notify() {
	n.mu.Lock()
	close(n.notify)
	n.notify = make(chan struct{})
	n.mu.Unlock()
}
