package engine

import (
	"context"
	"sync"
	"time"
)

// Periodic is a cancellable background task owned by the component that
// started it. Stop cancels the task and waits for its goroutine to exit.
type Periodic struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every calls fn every interval until ctx is cancelled or Stop is called.
// fn must not call Stop on its own task.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *Periodic {
	ctx, cancel := context.WithCancel(ctx)
	p := &Periodic{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}()
	return p
}

// Stop cancels the task and blocks until it has exited. Safe on nil and
// safe to call more than once.
func (p *Periodic) Stop() {
	if p == nil {
		return
	}
	p.once.Do(p.cancel)
	<-p.done
}

// Done is closed once the task goroutine has exited.
func (p *Periodic) Done() <-chan struct{} {
	return p.done
}
