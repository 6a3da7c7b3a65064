// Package session stores web session payloads through a pluggable Store.
//
// A session id is either absent (no row) or has exactly one row holding its
// expire time and payload. Rows move between those states through three
// transitions:
//
//	create          no row -> row   Write on an unknown id, RegenerateID without an old row
//	rename          row -> row'     RegenerateID, copying or moving the old row
//	delete-expired  row -> no row   GC, for every row whose expire has passed
//
// Destroy removes a row unconditionally.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoRow     = errors.New("session: no row")
	ErrRowExists = errors.New("session: row exists")
)

// Row is one stored session.
type Row struct {
	ID     string
	Expire time.Time
	Data   []byte
}

// Live reports whether the row has not expired at now.
func (r Row) Live(now time.Time) bool {
	return r.Expire.After(now)
}

// Store persists rows. Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the row for id if it is live at now, ErrNoRow otherwise.
	Load(ctx context.Context, id string, now time.Time) (Row, error)
	// Save creates or replaces the row.
	Save(ctx context.Context, row Row) error
	// Insert creates the row, failing with ErrRowExists if id is taken.
	Insert(ctx context.Context, row Row) error
	// Rename gives the row stored under oldID the id newID, expired or not.
	// The old row survives when keepOld is set. ErrNoRow if oldID has no row.
	Rename(ctx context.Context, oldID, newID string, keepOld bool) error
	// Delete removes the row; a missing row is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes every row with expire before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
