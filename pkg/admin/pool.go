package admin

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize bounds concurrent admin channel use.
const DefaultPoolSize = 4

// Dialer creates a new unconnected channel. The pool dials lazily on
// first acquisition of each slot.
type Dialer func() Channel

// Pool is a bounded pool of admin channels. GetConnection blocks on a
// semaphore permit; released channels are reused.
type Pool struct {
	dial Dialer
	sem  *semaphore.Weighted

	mu     sync.Mutex
	idle   []Channel
	closed bool
}

// NewPool creates a pool of at most maxSize channels.
func NewPool(maxSize int, dial Dialer) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultPoolSize
	}
	return &Pool{
		dial: dial,
		sem:  semaphore.NewWeighted(int64(maxSize)),
	}
}

// GetConnection acquires a channel, blocking until a permit is free. A
// freshly dialed channel whose connect fails is still returned, holding
// its permit, and reconnects on its next SendCommand.
func (p *Pool) GetConnection(ctx context.Context) (Channel, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrChannelClosed
	}
	var ch Channel
	if n := len(p.idle); n > 0 {
		ch = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if ch == nil {
		ch = p.dial()
		if err := ch.Connect(ctx); err != nil {
			// Hand the unconnected channel back anyway: SendCommand
			// reconnects on demand, and a dead server should not shrink
			// the pool permanently.
			slog.Warn("Admin pool connection failed, will retry on use", "error", err)
		}
	}
	return ch, nil
}

// Release returns a channel to the pool.
func (p *Pool) Release(ch Channel) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ch.Close()
		p.sem.Release(1)
		return
	}
	p.idle = append(p.idle, ch)
	p.mu.Unlock()
	p.sem.Release(1)
}

// WithConnection runs fn with a pooled channel.
func (p *Pool) WithConnection(ctx context.Context, fn func(Channel) error) error {
	ch, err := p.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer p.Release(ch)
	return fn(ch)
}

// Close closes all idle channels and rejects further acquisitions.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.idle {
		_ = ch.Close()
	}
	p.idle = nil
}
