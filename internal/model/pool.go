package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("model session pool is closed")

// session is one loaded copy of the model with its own input and output buffers.
type session interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

// sessionPool hands each session to at most one caller at a time.
type sessionPool struct {
	sessions chan session
	size     int
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
	stats    PoolStats
}

type PoolStats struct {
	Size            int
	InUse           int
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
}

func newSessionPool(sessions []session, timeout time.Duration) *sessionPool {
	pool := &sessionPool{
		sessions: make(chan session, len(sessions)),
		size:     len(sessions),
		timeout:  timeout,
	}
	pool.stats.Size = len(sessions)
	for _, s := range sessions {
		pool.sessions <- s
	}
	return pool
}

func (p *sessionPool) acquire(ctx context.Context) (session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.stats.InUse++
		p.stats.TotalAcquired++
		p.mu.Unlock()
		return s, nil
	case <-timeout:
		p.recordFailure()
		return nil, fmt.Errorf("timeout after %v waiting for available model session", p.timeout)
	case <-ctx.Done():
		p.recordFailure()
		return nil, ctx.Err()
	}
}

func (p *sessionPool) release(s session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.InUse--
	p.stats.TotalReleased++

	if p.closed {
		s.Destroy()
		return
	}
	p.sessions <- s
}

func (p *sessionPool) recordFailure() {
	p.mu.Lock()
	p.stats.AcquireFailures++
	p.mu.Unlock()
}

func (p *sessionPool) snapshot() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// close destroys idle sessions now; sessions still in use are destroyed on release.
func (p *sessionPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.sessions)

	for s := range p.sessions {
		s.Destroy()
	}
}
