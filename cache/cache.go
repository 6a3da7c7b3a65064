// Package cache adapts a Nomos Storage client to a generic application cache
// with get/set/add/delete/flush semantics.
package cache

import (
	"errors"
	"log/slog"

	nomos "github.com/misaret/nomos-go"
	"github.com/misaret/nomos-go/internal/logging"
)

// Backend is the part of *nomos.Client the adapter needs.
type Backend interface {
	Get(level, subLevel int, key string, renewExpire int) ([]byte, bool)
	Put(level, subLevel int, key string, expire int, value []byte) bool
	Delete(level, subLevel int, key string) bool
	Flush() error
}

// manyGetter is implemented by backends that can batch reads.
type manyGetter interface {
	GetMany(level, subLevel int, keys []string, renewExpire int) map[string][]byte
}

var _ Backend = (*nomos.Client)(nil)
var _ manyGetter = (*nomos.Client)(nil)

type Option func(*Adapter)

// WithNamespace selects the level and sub level every key is stored under.
func WithNamespace(level, subLevel int) Option {
	return func(a *Adapter) {
		a.level = level
		a.subLevel = subLevel
	}
}

// WithKeyPrefix is mixed into every key before hashing. Changing the prefix
// invalidates everything written under the old one.
func WithKeyPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = prefix
	}
}

// WithDefaultTTL is used by Set and Add when they are given a ttl of 0.
func WithDefaultTTL(seconds int) Option {
	return func(a *Adapter) {
		a.defaultTTL = seconds
	}
}

// WithRenew makes every Get reset the entry's TTL to seconds.
func WithRenew(seconds int) Option {
	return func(a *Adapter) {
		a.renew = seconds
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// Adapter is a cache on top of a Backend. None of its methods fail loudly
// except Flush: a miss or false is all a caller sees when the backend is down.
type Adapter struct {
	backend    Backend
	level      int
	subLevel   int
	prefix     string
	defaultTTL int
	renew      int
	logger     *slog.Logger
}

func New(backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildKey returns the backend key for key.
func (a *Adapter) BuildKey(key Key) (string, error) {
	return buildKey(a.prefix, key)
}

func (a *Adapter) Get(key Key) ([]byte, bool) {
	return a.get("get", key, a.renew)
}

// Exists reports whether key holds a value without renewing it.
func (a *Adapter) Exists(key Key) bool {
	_, ok := a.get("exists", key, 0)
	return ok
}

func (a *Adapter) get(op string, key Key, renew int) ([]byte, bool) {
	k, err := a.BuildKey(key)
	if err != nil {
		a.logFailure(op, key, "bad_key", err)
		return nil, false
	}
	v, ok := a.backend.Get(a.level, a.subLevel, k, renew)
	if !ok {
		a.logger.Debug("cache miss", "op", op, "key", k, "reason", "miss")
		return nil, false
	}
	a.logger.Debug("cache hit", "op", op, "key", k, "size", len(v))
	return v, true
}

// Set stores value for ttl seconds; 0 means the default TTL.
func (a *Adapter) Set(key Key, value []byte, ttl int) bool {
	return a.set("set", key, value, ttl)
}

// Add behaves exactly like Set. The backend has no create-if-absent
// primitive, so an existing value is overwritten.
func (a *Adapter) Add(key Key, value []byte, ttl int) bool {
	return a.set("add", key, value, ttl)
}

func (a *Adapter) set(op string, key Key, value []byte, ttl int) bool {
	k, err := a.BuildKey(key)
	if err != nil {
		a.logFailure(op, key, "bad_key", err)
		return false
	}
	if ttl == 0 {
		ttl = a.defaultTTL
	}
	if !a.backend.Put(a.level, a.subLevel, k, ttl, value) {
		a.logger.Warn("cache write failed", "op", op, "key", k, "reason", "fail")
		return false
	}
	a.logger.Debug("cache write", "op", op, "key", k, "size", len(value), "ttl", ttl)
	return true
}

func (a *Adapter) Delete(key Key) bool {
	k, err := a.BuildKey(key)
	if err != nil {
		a.logFailure("delete", key, "bad_key", err)
		return false
	}
	if !a.backend.Delete(a.level, a.subLevel, k) {
		a.logger.Warn("cache delete failed", "op", "delete", "key", k, "reason", "fail")
		return false
	}
	a.logger.Debug("cache delete", "op", "delete", "key", k, "size", 0)
	return true
}

// Flush is not supported by the backend; the error is returned unchanged.
func (a *Adapter) Flush() error {
	err := a.backend.Flush()
	if err == nil {
		err = nomos.ErrUnsupportedOperation
	}
	reason := "fail"
	if errors.Is(err, nomos.ErrUnsupportedOperation) {
		reason = "unsupported"
	}
	a.logger.Warn("cache flush rejected", "op", "flush", "reason", reason, "err", err)
	return err
}

// GetMany returns the values found for keys, indexed by each key's position
// in keys. Keys that fail to build or miss are absent from the result.
func (a *Adapter) GetMany(keys ...Key) map[int][]byte {
	positions := make(map[string][]int, len(keys))
	backendKeys := make([]string, 0, len(keys))
	for i, key := range keys {
		k, err := a.BuildKey(key)
		if err != nil {
			a.logFailure("get_many", key, "bad_key", err)
			continue
		}
		if _, dup := positions[k]; !dup {
			backendKeys = append(backendKeys, k)
		}
		positions[k] = append(positions[k], i)
	}

	var found map[string][]byte
	if mg, ok := a.backend.(manyGetter); ok {
		found = mg.GetMany(a.level, a.subLevel, backendKeys, a.renew)
	} else {
		found = make(map[string][]byte, len(backendKeys))
		for _, k := range backendKeys {
			if v, ok := a.backend.Get(a.level, a.subLevel, k, a.renew); ok {
				found[k] = v
			}
		}
	}

	result := make(map[int][]byte, len(keys))
	size := 0
	for k, v := range found {
		for _, i := range positions[k] {
			result[i] = v
		}
		size += len(v)
	}
	a.logger.Debug("cache get many", "op", "get_many", "keys", len(keys), "hits", len(found), "size", size)
	return result
}

func (a *Adapter) logFailure(op string, key Key, reason string, err error) {
	name := "<nil>"
	if key != nil {
		name = key.String()
	}
	a.logger.Warn("cache key rejected", "op", op, "key", name, "reason", reason, "err", err)
}
