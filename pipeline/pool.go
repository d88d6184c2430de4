package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

var ErrPoolClosed = errors.New("pool is closed")

// Factory builds a new pipeline for the pool.
type Factory func() (*Pipeline, error)

// Pool hands out pipelines to concurrent callers. Pipelines that report
// themselves unhealthy on Release are closed and rebuilt by the health check.
type Pool struct {
	pipelines  chan *Pipeline
	size       int
	factory    Factory
	mu         sync.Mutex
	closed     bool
	live       int
	metrics    *poolMetrics
	lastErrors []error
	done       chan struct{}
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	discarded       int64
	waitTime        time.Duration
}

// PoolMetrics is a point-in-time snapshot of pool activity.
type PoolMetrics struct {
	Size            int           `json:"pool_size"`
	Available       int           `json:"available"`
	InUse           int           `json:"in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	Discarded       int64         `json:"discarded"`
	WaitTime        time.Duration `json:"wait_time_ns"`
}

func NewPool(factory Factory, size int) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("pipeline factory is nil")
	}
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &Pool{
		pipelines: make(chan *Pipeline, size),
		size:      size,
		factory:   factory,
		metrics:   &poolMetrics{},
		done:      make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		p, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize pipeline %d: %w", i, err)
		}
		pool.pipelines <- p
		pool.live++
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *Pool) Acquire(ctx context.Context) (*Pipeline, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case pl, ok := <-p.pipelines:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return pl, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available pipeline")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns pl to the pool. An unhealthy pipeline is closed instead and
// replaced on the next health check.
func (p *Pool) Release(pl *Pipeline) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		pl.Close()
		return
	}
	if !pl.Healthy() {
		p.live--
		p.metrics.mu.Lock()
		p.metrics.discarded++
		p.metrics.mu.Unlock()
		if err := pl.Close(); err != nil {
			p.recordErrorLocked(err)
		}
		return
	}

	p.pipelines <- pl
}

func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.pipelines)

	for pl := range p.pipelines {
		pl.Close()
	}
}

func (p *Pool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish rebuilds pipelines discarded since the last check.
func (p *Pool) replenish() {
	p.mu.Lock()
	missing := p.size - p.live
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		pl, err := p.factory()
		if err != nil {
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			pl.Close()
			return
		}
		p.pipelines <- pl
		p.live++
		p.mu.Unlock()
	}
}

func (p *Pool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordErrorLocked(err)
}

func (p *Pool) recordErrorLocked(err error) {
	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// LastErrors returns the most recent factory and close errors, oldest first.
func (p *Pool) LastErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.lastErrors...)
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) Metrics() PoolMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolMetrics{
		Size:            p.size,
		Available:       len(p.pipelines),
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Discarded:       p.metrics.discarded,
		WaitTime:        p.metrics.waitTime,
	}
}
