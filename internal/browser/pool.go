package browser

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// Pool lends browser sessions to workers. At most capacity sessions exist at
// any time; sessions are opened lazily and reused while healthy.
//
// Waiters are served in FIFO order, so no worker starves while others keep
// re-acquiring.
type Pool struct {
	transport Transport
	capacity  int64
	sem       *semaphore.Weighted
	logger    *slog.Logger

	mu     sync.Mutex
	idle   []Session
	closed bool

	opened    atomic.Int64
	discarded atomic.Int64
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Capacity  int
	Idle      int
	Opened    int
	Discarded int
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a pool of at most capacity sessions opened by transport.
// capacity values below one are treated as one.
func NewPool(transport Transport, capacity int, opts ...PoolOption) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		transport: transport,
		capacity:  int64(capacity),
		sem:       semaphore.NewWeighted(int64(capacity)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire blocks until a session is available or ctx is done. It reuses an
// idle session when there is one and opens a new one otherwise. A failure to
// open is returned wrapped in ErrTransport and frees the slot.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.transport.Open(ctx)
	if err != nil {
		p.sem.Release(1)
		if IsTransient(err) {
			return nil, err
		}
		return nil, transportError("open session", err)
	}
	p.opened.Add(1)
	return s, nil
}

// Release returns a session. Healthy sessions go back to the idle set;
// unhealthy ones are closed and replaced lazily by a later Acquire.
func (p *Pool) Release(s Session, healthy bool) {
	defer p.sem.Release(1)

	if healthy {
		p.mu.Lock()
		if !p.closed {
			p.idle = append(p.idle, s)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	} else {
		p.discarded.Add(1)
	}

	if err := s.Close(); err != nil {
		p.logger.Debug("closing session failed", "error", err)
	}
}

// Close closes all idle sessions and makes later Acquire calls fail.
// Sessions still leased are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var result *multierror.Error
	for _, s := range idle {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return PoolStats{
		Capacity:  int(p.capacity),
		Idle:      idle,
		Opened:    int(p.opened.Load()),
		Discarded: int(p.discarded.Load()),
	}
}
