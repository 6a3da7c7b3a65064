package nomos

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/misaret/nomos-go/internal"
	"github.com/misaret/nomos-go/internal/logging"
	"github.com/misaret/nomos-go/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout        = time.Second
	DefaultConnectTimeout = time.Second
)

type options struct {
	timeout        time.Duration
	connectTimeout time.Duration
	poolSize       int
	logger         *slog.Logger
	registerer     prometheus.Registerer
}

// Option customizes a Client.
type Option func(*options)

// WithTimeout bounds each request round trip (write plus read).
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithConnectTimeout bounds dialing a server.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithPoolSize keeps up to n connections per server instead of a single
// serialized connection. n <= 0 keeps the single connection strategy.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics registers request counters and latency histograms on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

type node struct {
	endpoint  Endpoint
	transport internal.Transport
}

// Client talks to a fixed list of Nomos Storage servers. Each namespaced key
// lives on exactly one server, chosen by the router; there is no failover.
//
// Get, Put and Delete never return transport errors. A server that is down
// looks like a cache miss to Get and a false to Put and Delete, so a caller's
// request path is never broken by the cache.
type Client struct {
	nodes   []node
	router  Router
	logger  *slog.Logger
	metrics *metrics
}

// New builds a client for endpoints. The order of endpoints decides routing,
// so every process sharing a backend must list them in the same order.
func New(endpoints []Endpoint, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoServers
	}
	o := options{
		timeout:        DefaultTimeout,
		connectTimeout: DefaultConnectTimeout,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	nodes := make([]node, 0, len(endpoints))
	for _, e := range endpoints {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		nodes = append(nodes, node{endpoint: e})
	}
	for i := range nodes {
		nodes[i].transport = internal.NewTransport(internal.Target{
			Address:        nodes[i].endpoint.Host,
			Port:           nodes[i].endpoint.Port,
			ConnectTimeout: o.connectTimeout,
			Timeout:        o.timeout,
			PoolSize:       o.poolSize,
		})
	}

	return &Client{
		nodes:   nodes,
		router:  newRouter(len(nodes)),
		logger:  o.logger,
		metrics: newMetrics(o.registerer),
	}, nil
}

// DefaultClient builds a client from "host:port" addresses with default options.
func DefaultClient(addrs ...string) (*Client, error) {
	endpoints, err := ParseEndpoints(addrs...)
	if err != nil {
		return nil, err
	}
	return New(endpoints)
}

// Endpoints returns a copy of the configured server list.
func (c *Client) Endpoints() []Endpoint {
	out := make([]Endpoint, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n.endpoint
	}
	return out
}

// Route returns the server that owns key in the given namespace.
func (c *Client) Route(level, subLevel int, key string) Endpoint {
	return c.nodes[c.router.Route(level, subLevel, CanonicalKey(key))].endpoint
}

// Get returns the value stored under key. ok is false when the key is absent
// and also when the server could not be reached or answered garbage. A
// renewExpire above zero asks the server to reset the entry's TTL to that many
// seconds as part of the read.
func (c *Client) Get(level, subLevel int, key string, renewExpire int) (value []byte, ok bool) {
	start := time.Now()
	key = CanonicalKey(key)
	resp, err := c.do(protocol.OpGet, level, subLevel, key, renewExpire, nil)
	switch {
	case err == nil:
		c.metrics.observe("get", resultHit, start)
		return resp.Value, true
	case errors.Is(err, protocol.ErrNotFound):
		c.metrics.observe("get", resultMiss, start)
		return nil, false
	default:
		c.metrics.observe("get", resultError, start)
		c.logger.Warn("nomos get failed", "level", level, "sub_level", subLevel, "key", key, "err", err)
		return nil, false
	}
}

// Put stores value under key for expire seconds (0 keeps it until evicted).
// It returns false on any failure instead of an error.
func (c *Client) Put(level, subLevel int, key string, expire int, value []byte) bool {
	start := time.Now()
	key = CanonicalKey(key)
	_, err := c.do(protocol.OpPut, level, subLevel, key, expire, value)
	if err != nil {
		c.metrics.observe("put", resultError, start)
		c.logger.Warn("nomos put failed", "level", level, "sub_level", subLevel, "key", key, "size", len(value), "err", err)
		return false
	}
	c.metrics.observe("put", resultOK, start)
	return true
}

// Delete removes key. Deleting a missing key succeeds. It returns false only
// when the server could not confirm the delete.
func (c *Client) Delete(level, subLevel int, key string) bool {
	start := time.Now()
	key = CanonicalKey(key)
	_, err := c.do(protocol.OpDelete, level, subLevel, key, 0, nil)
	if err != nil && !errors.Is(err, protocol.ErrNotFound) {
		c.metrics.observe("delete", resultError, start)
		c.logger.Warn("nomos delete failed", "level", level, "sub_level", subLevel, "key", key, "err", err)
		return false
	}
	c.metrics.observe("delete", resultOK, start)
	return true
}

// Flush always fails: the backend has no bulk clear. Use versioned key
// prefixes to invalidate a whole namespace.
func (c *Client) Flush() error {
	c.metrics.observe("flush", resultFail, time.Now())
	return ErrUnsupportedOperation
}

// GetMany fetches keys in parallel across servers. The result holds only the
// keys that were found, indexed by the key as passed in.
func (c *Client) GetMany(level, subLevel int, keys []string, renewExpire int) map[string][]byte {
	groups := make(map[int][]string)
	for _, k := range keys {
		i := c.router.Route(level, subLevel, CanonicalKey(k))
		groups[i] = append(groups[i], k)
	}

	var (
		mu     sync.Mutex
		result = make(map[string][]byte, len(keys))
		g      errgroup.Group
	)
	for _, group := range groups {
		g.Go(func() error {
			for _, k := range group {
				if v, ok := c.Get(level, subLevel, k, renewExpire); ok {
					mu.Lock()
					result[k] = v
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// Ping sends a noop to every server. A nil entry means the server answered.
func (c *Client) Ping() map[Endpoint]error {
	var (
		mu     sync.Mutex
		result = make(map[Endpoint]error, len(c.nodes))
		g      errgroup.Group
	)
	for _, n := range c.nodes {
		g.Go(func() error {
			resp, err := n.transport.RoundTrip(protocol.NewRequest(protocol.OpNoop, 0, 0, 0, nil, nil))
			if err == nil {
				err = protocol.CheckStatus(resp)
			}
			mu.Lock()
			result[n.endpoint] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// Close releases every connection. The client must not be used afterwards.
func (c *Client) Close() {
	for _, n := range c.nodes {
		n.transport.Close()
	}
}

func (c *Client) do(op protocol.OpCode, level, subLevel int, key string, expire int, value []byte) (*protocol.Message, error) {
	if err := checkUint32("level", level); err != nil {
		return nil, err
	}
	if err := checkUint32("sub level", subLevel); err != nil {
		return nil, err
	}
	if err := checkUint32("expire", expire); err != nil {
		return nil, err
	}

	n := c.nodes[c.router.Route(level, subLevel, key)]
	req := protocol.NewRequest(op, uint32(level), uint32(subLevel), uint32(expire), []byte(key), value)
	resp, err := n.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckStatus(resp); err != nil {
		if errors.Is(err, protocol.ErrNotFound) || len(resp.Value) == 0 {
			return resp, err
		}
		return resp, fmt.Errorf("%s: %w: %s", n.endpoint, err, resp.Value)
	}
	return resp, nil
}

func checkUint32(name string, v int) error {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return fmt.Errorf("%w: %s %d out of range", ErrInvalidArgument, name, v)
	}
	return nil
}
