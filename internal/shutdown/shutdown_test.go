package shutdown

import (
	"context"
	"testing"
	"time"
)

func TestWaitReturnsWhenWorkCompletes(t *testing.T) {
	c := New()
	done := c.Track()
	go func() {
		time.Sleep(10 * time.Millisecond)
		done()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Errorf("Wait() error: %s", err)
	}
}

func TestWaitTimesOutOnGracePeriod(t *testing.T) {
	c := New()
	c.Track() // never completed
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); err == nil {
		t.Error("Wait() => nil error, expected context deadline error")
	}
}
