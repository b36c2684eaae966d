// Package shutdown implements a bounded grace-period coordinator:
// notify active work to wind down, then wait for either everything to
// finish or a grace period to elapse, whichever comes first.
package shutdown

import (
	"context"
	"sync"
)

// Coordinator tracks in-flight work with a sync.WaitGroup and exposes
// a single Wait call that respects the caller's context deadline
// instead of blocking forever.
type Coordinator struct {
	wg sync.WaitGroup
}

// New creates an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Track registers one unit of in-flight work; call the returned func
// when it completes.
func (c *Coordinator) Track() func() {
	c.wg.Add(1)
	return c.wg.Done
}

// Wait blocks until every tracked unit of work completes or ctx is
// done, whichever happens first. Returns ctx.Err() on the latter.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
