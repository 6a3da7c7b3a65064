package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/edwingeng/deque/v2"
	"github.com/misaret/nomos-go/protocol"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of open connections to one target. Idle connections
// are kept on a deque and reused most-recently-returned first.
type Pool struct {
	target  Target
	bufpool *protocol.BufPool
	slots   *semaphore.Weighted
	mu      sync.Mutex
	idle    *deque.Deque[*Conn]
	closed  bool
}

func NewPool(t Target) *Pool {
	size := t.PoolSize
	if size < 1 {
		size = 1
	}
	return &Pool{
		target:  t,
		bufpool: protocol.NewBufPool(),
		slots:   semaphore.NewWeighted(int64(size)),
		idle:    deque.NewDeque[*Conn](),
	}
}

// Checkout takes a slot and returns an idle connection or a freshly dialed
// one. Every successful Checkout must be paired with Checkin.
func (p *Pool) Checkout(ctx context.Context) (*Conn, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPoolExhausted, p.target.Addr(), err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots.Release(1)
		return nil, ErrClosed
	}
	if p.idle.Len() > 0 {
		c := p.idle.PopBack()
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := Dial(p.target, p.bufpool)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	return c, nil
}

// Checkin returns c to the pool. Broken connections are dropped.
func (p *Pool) Checkin(c *Conn) {
	p.mu.Lock()
	if c.Broken() || p.closed {
		p.mu.Unlock()
		if !c.Broken() {
			_ = c.Close()
		}
	} else {
		p.idle.PushBack(c)
		p.mu.Unlock()
	}
	p.slots.Release(1)
}

// Idle reports how many connections are waiting for reuse.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

func (p *Pool) RoundTrip(req *protocol.Message) (*protocol.Message, error) {
	ctx := context.Background()
	if p.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.target.Timeout)
		defer cancel()
	}
	c, err := p.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Checkin(c)
	return c.RoundTrip(req)
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for p.idle.Len() > 0 {
		_ = p.idle.PopBack().Close()
	}
}
