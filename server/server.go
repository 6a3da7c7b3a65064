// Package server is an in-memory Nomos Storage backend. It speaks the same
// frame protocol as the production servers and is meant for tests and local
// development, not for holding real data.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/misaret/nomos-go/internal/logging"
	"github.com/misaret/nomos-go/protocol"
)

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.memory = NewMemory(now)
	}
}

// WithSweepInterval removes expired entries periodically.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sweep = d
	}
}

// Server implements a TCP server.
type Server struct {
	addr     string
	logger   *slog.Logger
	memory   *Memory
	sweep    time.Duration
	wg       sync.WaitGroup
	listener net.Listener
	connCh   chan net.Conn
	StartCh  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(addr string, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:    addr,
		logger:  logging.NewNop(),
		memory:  NewMemory(nil),
		connCh:  make(chan net.Conn),
		StartCh: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Memory exposes the backing table.
func (s *Server) Memory() *Memory {
	return s.memory
}

// Addr is valid once StartCh is closed.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handle executes one request frame.
func (s *Server) Handle(req *protocol.Message) *protocol.Message {
	if req.Magic != protocol.MagicReq {
		return req.Fail(protocol.StatusBadRequest, "not a request frame")
	}
	key := string(req.Key)
	switch req.Op {
	case protocol.OpNoop:
		return req.Reply(nil)
	case protocol.OpGet:
		v, ok := s.memory.Get(req.Level, req.SubLevel, key, req.Expire)
		if !ok {
			return req.Fail(protocol.StatusNotFound, nil)
		}
		return req.Reply(v)
	case protocol.OpPut:
		if len(req.Key) == 0 {
			return req.Fail(protocol.StatusBadRequest, "empty key")
		}
		s.memory.Put(req.Level, req.SubLevel, key, req.Value, req.Expire)
		return req.Reply(nil)
	case protocol.OpDelete:
		if !s.memory.Delete(req.Level, req.SubLevel, key) {
			return req.Fail(protocol.StatusNotFound, nil)
		}
		return req.Reply(nil)
	}
	return req.Fail(protocol.StatusUnknownOp, nil)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	done := make(chan struct{})
	defer close(done)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
		case <-done:
		}

		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close TCP connection", "err", err)
		}
	}()

	r := bufio.NewReader(conn)
	bufpool := protocol.NewBufPool()
	for {
		var req protocol.Message
		if err := req.Read(r); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("failed to read frame", "remote", conn.RemoteAddr(), "err", err)
			}
			return
		}
		buf := bufpool.Get()
		err := s.Handle(&req).Write(conn, buf)
		bufpool.Put(buf)
		if err != nil {
			s.logger.Debug("failed to write frame", "remote", conn.RemoteAddr(), "err", err)
			return
		}
	}
}

func (s *Server) handleConns() {
	defer s.wg.Done()

	for {
		select {
		case conn := <-s.connCh:
			s.wg.Add(1)
			go s.handleConn(conn)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.memory.Sweep(); n > 0 {
				s.logger.Debug("swept expired entries", "count", n)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		close(s.StartCh)
		return err
	}
	s.listener = l

	s.wg.Add(1)
	go s.handleConns()
	if s.sweep > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	close(s.StartCh)
	s.logger.Info("nomos server listening", "addr", l.Addr().String())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			s.logger.Debug("failed to accept TCP connection", "err", err)
			continue
		}
		select {
		case s.connCh <- conn:
		case <-s.ctx.Done():
			_ = conn.Close()
			return nil
		}
	}
}

// Start runs ListenAndServe in the background and returns once the listener
// is up.
func Start(addr string, opts ...Option) (*Server, error) {
	s := New(addr, opts...)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()
	<-s.StartCh
	if s.listener == nil {
		return nil, <-errCh
	}
	return s, nil
}

func (s *Server) Shutdown() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}
