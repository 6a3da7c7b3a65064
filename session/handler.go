package session

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/misaret/nomos-go/internal/logging"
)

// DefaultLifetime matches the usual 1440 second session gc lifetime.
const DefaultLifetime = 24 * time.Minute

const (
	transitionCreate        = "create"
	transitionRename        = "rename"
	transitionDeleteExpired = "delete_expired"
)

type Option func(*Handler)

// WithLifetime sets how long a written session stays live.
func WithLifetime(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.lifetime = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithIDGenerator replaces NewID for RegenerateID.
func WithIDGenerator(gen func() string) Option {
	return func(h *Handler) {
		h.newID = gen
	}
}

// NewID returns a random session id: 32 lowercase hex characters.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Handler is a session save handler. It never returns errors: failures are
// logged and reported as "" or false.
type Handler struct {
	store    Store
	lifetime time.Duration
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

func NewHandler(store Store, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		lifetime: DefaultLifetime,
		now:      time.Now,
		newID:    NewID,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Lifetime is the expire offset applied by Write.
func (h *Handler) Lifetime() time.Duration {
	return h.lifetime
}

// Read returns the payload of a live session, or "" if there is none.
func (h *Handler) Read(ctx context.Context, id string) string {
	row, err := h.store.Load(ctx, id, h.now())
	if err != nil {
		if !errors.Is(err, ErrNoRow) {
			h.logger.Warn("session read failed", "id", id, "err", err)
		}
		return ""
	}
	return string(row.Data)
}

// Write stores data under id and pushes its expire to now plus the lifetime.
func (h *Handler) Write(ctx context.Context, id string, data string) bool {
	row := Row{ID: id, Expire: h.now().Add(h.lifetime), Data: []byte(data)}
	if err := h.store.Save(ctx, row); err != nil {
		h.logger.Warn("session write failed", "id", id, "size", len(data), "err", err)
		return false
	}
	return true
}

func (h *Handler) Destroy(ctx context.Context, id string) bool {
	if err := h.store.Delete(ctx, id); err != nil {
		h.logger.Warn("session destroy failed", "id", id, "err", err)
		return false
	}
	return true
}

// GC removes expired sessions. Expiry is tracked per row, so maxLifetime is
// only logged.
func (h *Handler) GC(ctx context.Context, maxLifetime time.Duration) bool {
	n, err := h.store.DeleteExpired(ctx, h.now())
	if err != nil {
		h.logger.Warn("session gc failed", "transition", transitionDeleteExpired, "err", err)
		return false
	}
	h.logger.Debug("session gc", "transition", transitionDeleteExpired, "removed", n, "max_lifetime", maxLifetime)
	return true
}

// RegenerateID moves the session under oldID to a fresh id and returns it.
// The old row is kept unless deleteOld is set. When oldID has no row an
// empty session is created under the new id.
func (h *Handler) RegenerateID(ctx context.Context, oldID string, deleteOld bool) (string, bool) {
	newID := h.newID()

	err := ErrNoRow
	if oldID != "" {
		err = h.store.Rename(ctx, oldID, newID, !deleteOld)
	}
	switch {
	case err == nil:
		h.logger.Debug("session id regenerated", "transition", transitionRename, "id", newID, "delete_old", deleteOld)
		return newID, true
	case !errors.Is(err, ErrNoRow):
		h.logger.Warn("session regenerate failed", "transition", transitionRename, "id", oldID, "err", err)
		return "", false
	}

	row := Row{ID: newID, Expire: h.now().Add(h.lifetime), Data: []byte{}}
	if err := h.store.Insert(ctx, row); err != nil {
		h.logger.Warn("session regenerate failed", "transition", transitionCreate, "id", newID, "err", err)
		return "", false
	}
	h.logger.Debug("session id regenerated", "transition", transitionCreate, "id", newID)
	return newID, true
}
