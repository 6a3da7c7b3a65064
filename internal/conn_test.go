package internal

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/misaret/nomos-go/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen starts a TCP listener whose accepted connections are handed to handle.
func listen(t *testing.T, handle func(net.Conn)) Target {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	t.Cleanup(func() {
		_ = l.Close()
		wg.Wait()
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return Target{Address: host, Port: p, ConnectTimeout: time.Second, Timeout: time.Second}
}

// echo answers every request with its own value.
func echo(conn net.Conn) {
	r := bufio.NewReader(conn)
	buf := new(bytes.Buffer)
	for {
		var req protocol.Message
		if err := req.Read(r); err != nil {
			return
		}
		buf.Reset()
		if err := req.Reply(req.Value).Write(conn, buf); err != nil {
			return
		}
	}
}

// silent reads forever and never answers.
func silent(conn net.Conn) {
	_, _ = bufio.NewReader(conn).WriteTo(new(bytes.Buffer))
}

func TestConnRoundTrip(t *testing.T) {
	target := listen(t, echo)
	c, err := Dial(target, nil)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		resp, err := c.RoundTrip(protocol.NewRequest(protocol.OpPut, 1, 1, 0, []byte("k"), []byte("v"+strconv.Itoa(i))))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"+strconv.Itoa(i)), resp.Value)
	}
	assert.False(t, c.Broken())
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	_, err = Dial(Target{Address: "127.0.0.1", Port: addr.Port, ConnectTimeout: time.Second}, nil)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestConnTimeoutDiscardsConnection(t *testing.T) {
	target := listen(t, silent)
	target.Timeout = 50 * time.Millisecond
	c, err := Dial(target, nil)
	require.NoError(t, err)

	_, err = c.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, c.Broken())

	_, err = c.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestConnPeerClose(t *testing.T) {
	target := listen(t, func(net.Conn) {})
	c, err := Dial(target, nil)
	require.NoError(t, err)

	_, err = c.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, c.Broken())
}

func TestConnMalformedResponse(t *testing.T) {
	target := listen(t, func(conn net.Conn) {
		var req protocol.Message
		if err := req.Read(conn); err != nil {
			return
		}
		_, _ = conn.Write(bytes.Repeat([]byte{0xFF}, protocol.HeaderSize))
	})
	c, err := Dial(target, nil)
	require.NoError(t, err)

	_, err = c.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
	assert.ErrorIs(t, err, protocol.ErrDecode)
	assert.True(t, c.Broken())
}

func TestConnMismatchedOp(t *testing.T) {
	target := listen(t, func(conn net.Conn) {
		var req protocol.Message
		if err := req.Read(conn); err != nil {
			return
		}
		req.Op = protocol.OpDelete
		_ = req.Reply(nil).Write(conn, new(bytes.Buffer))
	})
	c, err := Dial(target, nil)
	require.NoError(t, err)

	_, err = c.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
	assert.ErrorIs(t, err, protocol.ErrDecode)
}

func TestSingleRedialsAfterFailure(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	target := listen(t, func(conn net.Conn) {
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()
		if first {
			return
		}
		echo(conn)
	})
	s := NewSingle(target)
	defer s.Close()

	_, err := s.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
	assert.ErrorIs(t, err, ErrTransport)

	resp, err := s.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), []byte("again")))
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), resp.Value)
}

func TestSingleBoundsWaitBehindHungRequest(t *testing.T) {
	target := listen(t, silent)
	target.Timeout = 200 * time.Millisecond
	s := NewSingle(target)
	defer s.Close()

	const callers = 10
	var wg sync.WaitGroup
	elapsed := make([]time.Duration, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			_, errs[i] = s.RoundTrip(protocol.NewRequest(protocol.OpGet, 0, 0, 0, []byte("k"), nil))
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.ErrorIs(t, errs[i], ErrTimeout)
		assert.Less(t, elapsed[i], 1200*time.Millisecond)
	}
}

func TestSingleClosed(t *testing.T) {
	s := NewSingle(listen(t, echo))
	s.Close()
	_, err := s.RoundTrip(protocol.NewRequest(protocol.OpNoop, 0, 0, 0, nil, nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoolBoundsCheckouts(t *testing.T) {
	target := listen(t, echo)
	target.PoolSize = 2
	p := NewPool(target)
	defer p.Close()

	a, err := p.Checkout(context.Background())
	require.NoError(t, err)
	b, err := p.Checkout(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	p.Checkin(a)
	assert.Equal(t, 1, p.Idle())

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, c)

	p.Checkin(b)
	p.Checkin(c)
	assert.Equal(t, 2, p.Idle())
}

func TestPoolDropsBrokenConnections(t *testing.T) {
	target := listen(t, echo)
	target.PoolSize = 1
	p := NewPool(target)
	defer p.Close()

	c, err := p.Checkout(context.Background())
	require.NoError(t, err)
	_ = c.Close()
	p.Checkin(c)
	assert.Zero(t, p.Idle())

	resp, err := p.RoundTrip(protocol.NewRequest(protocol.OpPut, 0, 0, 0, []byte("k"), []byte("v")))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), resp.Value)
	assert.Equal(t, 1, p.Idle())
}

func TestPoolConcurrentRoundTrips(t *testing.T) {
	target := listen(t, echo)
	target.PoolSize = 4
	p := NewPool(target)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := []byte("value-" + strconv.Itoa(i))
			resp, err := p.RoundTrip(protocol.NewRequest(protocol.OpPut, 0, 0, 0, []byte("k"), v))
			if assert.NoError(t, err) {
				assert.Equal(t, v, resp.Value)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Idle(), 4)
}

func TestPoolClosed(t *testing.T) {
	target := listen(t, echo)
	target.PoolSize = 1
	p := NewPool(target)
	p.Close()
	_, err := p.RoundTrip(protocol.NewRequest(protocol.OpNoop, 0, 0, 0, nil, nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewTransportSelectsStrategy(t *testing.T) {
	assert.IsType(t, &Single{}, NewTransport(Target{}))
	assert.IsType(t, &Pool{}, NewTransport(Target{PoolSize: 3}))
}
