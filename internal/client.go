package internal

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/misaret/nomos-go/protocol"
)

var (
	ErrConnection    = errors.New("nomos: connection failed")
	ErrTransport     = errors.New("nomos: transport failure")
	ErrTimeout       = errors.New("nomos: request timed out")
	ErrPoolExhausted = errors.New("nomos: connection pool exhausted")
	ErrClosed        = errors.New("nomos: transport closed")
)

// Target describes how to reach one backend server.
type Target struct {
	Address        string
	Port           int
	ConnectTimeout time.Duration
	Timeout        time.Duration
	// PoolSize > 0 selects the pooled strategy with at most PoolSize open connections.
	PoolSize int
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// Transport sends one request frame and returns the matching response frame.
type Transport interface {
	RoundTrip(req *protocol.Message) (*protocol.Message, error)
	Close()
}

// NewTransport picks the connection strategy configured on t.
func NewTransport(t Target) Transport {
	if t.PoolSize > 0 {
		return NewPool(t)
	}
	return NewSingle(t)
}
