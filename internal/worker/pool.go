package worker

import (
	"context"
	"sync"
)

// Pool bounds concurrent training sessions using a semaphore.
// Submit blocks until a slot frees, so queued runs launch in
// submission order up to the configured width.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go func() {
			defer func() {
				<-p.sem
				p.wg.Done()
			}()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports how many slots are currently held.
func (p *Pool) InFlight() int {
	return len(p.sem)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}
