package internal

import (
	"context"
	"fmt"

	"github.com/misaret/nomos-go/protocol"
	"golang.org/x/sync/semaphore"
)

// Single keeps one connection per target and serializes requests over it.
// The connection is dialed lazily and redialed after a failure.
type Single struct {
	target  Target
	bufpool *protocol.BufPool
	// slot guards conn and closed. Waiting for it counts against Timeout.
	slot   *semaphore.Weighted
	conn   *Conn
	closed bool
}

func NewSingle(t Target) *Single {
	return &Single{
		target:  t,
		bufpool: protocol.NewBufPool(),
		slot:    semaphore.NewWeighted(1),
	}
}

func (s *Single) RoundTrip(req *protocol.Message) (*protocol.Message, error) {
	ctx := context.Background()
	if s.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.target.Timeout)
		defer cancel()
	}
	if err := s.slot.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %s: connection busy: %v", ErrTimeout, s.target.Addr(), err)
	}
	defer s.slot.Release(1)

	if s.closed {
		return nil, ErrClosed
	}
	if s.conn == nil || s.conn.Broken() {
		c, err := Dial(s.target, s.bufpool)
		if err != nil {
			return nil, err
		}
		s.conn = c
	}
	return s.conn.RoundTrip(req)
}

// Close waits for an in-flight request to finish before closing the connection.
func (s *Single) Close() {
	_ = s.slot.Acquire(context.Background(), 1)
	defer s.slot.Release(1)
	s.closed = true
	if s.conn != nil && !s.conn.Broken() {
		_ = s.conn.Close()
	}
	s.conn = nil
}
