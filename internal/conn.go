package internal

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/misaret/nomos-go/protocol"
)

// Conn is a single socket to one server. It is not safe for concurrent use.
type Conn struct {
	target  Target
	conn    net.Conn
	reader  *bufio.Reader
	bufpool *protocol.BufPool
	broken  bool
}

func Dial(t Target, bufpool *protocol.BufPool) (*Conn, error) {
	d := net.Dialer{Timeout: t.ConnectTimeout}
	conn, err := d.Dial("tcp", t.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s - %v", ErrConnection, t.Addr(), err)
	}
	if bufpool == nil {
		bufpool = protocol.NewBufPool()
	}
	return &Conn{
		target:  t,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		bufpool: bufpool,
	}, nil
}

// Broken reports whether a transport failure has happened on this connection.
// A broken connection is already closed and must not be reused.
func (c *Conn) Broken() bool {
	return c.broken
}

func (c *Conn) Close() error {
	c.broken = true
	return c.conn.Close()
}

// RoundTrip writes req and reads exactly one response frame within the
// configured timeout.
func (c *Conn) RoundTrip(req *protocol.Message) (*protocol.Message, error) {
	if c.broken {
		return nil, fmt.Errorf("%w: %s: connection already closed", ErrTransport, c.target.Addr())
	}

	buf := c.bufpool.Get()
	defer c.bufpool.Put(buf)
	if err := req.Encode(buf); err != nil {
		return nil, err
	}

	if c.target.Timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.target.Timeout)); err != nil {
			return nil, c.fail(err)
		}
	}
	if _, err := buf.WriteTo(c.conn); err != nil {
		return nil, c.fail(err)
	}

	var resp protocol.Message
	if err := resp.Read(c.reader); err != nil {
		return nil, c.fail(err)
	}
	if resp.Magic != protocol.MagicRes || resp.Op != req.Op {
		return nil, c.fail(fmt.Errorf("%w: unexpected response %s/0x%02x to %s",
			protocol.ErrDecode, resp.Op, uint8(resp.Magic), req.Op))
	}
	return &resp, nil
}

func (c *Conn) fail(err error) error {
	c.broken = true
	_ = c.conn.Close()

	var ne net.Error
	switch {
	case errors.Is(err, protocol.ErrDecode):
		return fmt.Errorf("%s: %w", c.target.Addr(), err)
	case errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("%w: %s: %v", ErrTimeout, c.target.Addr(), err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransport, c.target.Addr(), err)
	}
}
