package dispatch

import (
	"context"
	"sync"
)

// ConnectedWorkers is the mutex-guarded counter of currently
// connected worker sessions, shared between the session layer (which
// increments/decrements it) and the enumerator (which blocks on it
// being non-zero before producing more work; spec.md §4.1
// "Pre-dispatch gating").
type ConnectedWorkers struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewConnectedWorkers returns a zeroed counter.
func NewConnectedWorkers() *ConnectedWorkers {
	c := &ConnectedWorkers{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Inc records a new connected session.
func (c *ConnectedWorkers) Inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Dec records a session's disconnection.
func (c *ConnectedWorkers) Dec() {
	c.mu.Lock()
	c.count--
	c.mu.Unlock()
}

// Count returns the current connected-session count.
func (c *ConnectedWorkers) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Wait blocks until at least one worker is connected or ctx is done.
func (c *ConnectedWorkers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		c.cond.Broadcast()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.count == 0 {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		c.cond.Wait()
	}
	return nil
}
