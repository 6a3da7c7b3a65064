// Package redisstore persists sessions in Redis. Each row is a string key with
// a native TTL; a sorted set scored by expire time indexes the rows for GC.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/misaret/nomos-go/session"
	backend "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "nomos:session:"

type Store struct {
	client backend.UniversalClient
	prefix string
	now    func() time.Time
}

var _ session.Store = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock sets the clock used to turn expire times into TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store with its own Redis client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Rows live under prefix+"row:" so no session id can name the index key.
func (s *Store) key(id string) string {
	return s.prefix + "row:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// ttl never returns less than a millisecond: a row saved already expired is
// still written and left to the index.
func (s *Store) ttl(expire time.Time) time.Duration {
	d := expire.Sub(s.now())
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func (s *Store) Load(ctx context.Context, id string, now time.Time) (session.Row, error) {
	row, err := s.lookup(ctx, id)
	if err != nil {
		return session.Row{}, err
	}
	if !row.Live(now) {
		return session.Row{}, session.ErrNoRow
	}
	return row, nil
}

// lookup returns the stored row whether or not it has expired.
func (s *Store) lookup(ctx context.Context, id string) (session.Row, error) {
	pipe := s.client.Pipeline()
	data := pipe.Get(ctx, s.key(id))
	score := pipe.ZScore(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return session.Row{}, fmt.Errorf("load session: %w", err)
	}

	raw, err := data.Bytes()
	if errors.Is(err, backend.Nil) {
		return session.Row{}, session.ErrNoRow
	}
	if err != nil {
		return session.Row{}, fmt.Errorf("load session: %w", err)
	}
	expire, err := score.Result()
	if errors.Is(err, backend.Nil) {
		// written by something that does not maintain the index
		return session.Row{}, session.ErrNoRow
	}
	if err != nil {
		return session.Row{}, fmt.Errorf("load session: %w", err)
	}
	return session.Row{ID: id, Expire: time.UnixMilli(int64(expire)), Data: raw}, nil
}

func (s *Store) write(ctx context.Context, pipe backend.Pipeliner, row session.Row) {
	pipe.Set(ctx, s.key(row.ID), row.Data, s.ttl(row.Expire))
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(row.Expire.UnixMilli()),
		Member: row.ID,
	})
}

func (s *Store) Save(ctx context.Context, row session.Row) error {
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		s.write(ctx, pipe, row)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, row session.Row) error {
	ok, err := s.client.SetNX(ctx, s.key(row.ID), row.Data, s.ttl(row.Expire)).Result()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if !ok {
		return session.ErrRowExists
	}
	err = s.client.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(row.Expire.UnixMilli()),
		Member: row.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) Rename(ctx context.Context, oldID, newID string, keepOld bool) error {
	row, err := s.lookup(ctx, oldID)
	if err != nil {
		return err
	}
	if oldID == newID {
		return nil
	}
	row.ID = newID
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		s.write(ctx, pipe, row)
		if !keepOld {
			pipe.Del(ctx, s.key(oldID))
			pipe.ZRem(ctx, s.indexKey(), oldID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes every indexed row whose expire is before now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
		members[i] = id
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, keys...)
	removed := pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return removed.Val(), nil
}
