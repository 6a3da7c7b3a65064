// Package sessiontest holds the behaviour every session.Store must share.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/misaret/nomos-go/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs the shared store suite. newStore must return an
// empty store each time it is called.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	live := now.Add(time.Hour)
	dead := now.Add(-time.Hour)

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(ctx, "missing", now)
		assert.ErrorIs(t, err, session.ErrNoRow)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, session.Row{ID: "a", Expire: live, Data: []byte("payload")}))

		row, err := s.Load(ctx, "a", now)
		require.NoError(t, err)
		assert.Equal(t, "a", row.ID)
		assert.Equal(t, "payload", string(row.Data))
		assert.WithinDuration(t, live, row.Expire, time.Millisecond)

		require.NoError(t, s.Save(ctx, session.Row{ID: "a", Expire: live, Data: []byte("replaced")}))
		row, err = s.Load(ctx, "a", now)
		require.NoError(t, err)
		assert.Equal(t, "replaced", string(row.Data))
	})

	t.Run("BinaryPayload", func(t *testing.T) {
		s := newStore(t)
		bin := []byte{0x00, 0xff, '\n', 0x00}
		require.NoError(t, s.Save(ctx, session.Row{ID: "bin", Expire: live, Data: bin}))
		row, err := s.Load(ctx, "bin", now)
		require.NoError(t, err)
		assert.Equal(t, bin, row.Data)
	})

	t.Run("ExpiredRowIsAbsent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, session.Row{ID: "old", Expire: dead, Data: []byte("x")}))
		_, err := s.Load(ctx, "old", now)
		assert.ErrorIs(t, err, session.ErrNoRow)
	})

	t.Run("Insert", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, session.Row{ID: "n", Expire: live}))
		err := s.Insert(ctx, session.Row{ID: "n", Expire: live, Data: []byte("again")})
		assert.ErrorIs(t, err, session.ErrRowExists)

		row, err := s.Load(ctx, "n", now)
		require.NoError(t, err)
		assert.Empty(t, row.Data)
	})

	t.Run("RenameMoves", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, session.Row{ID: "a", Expire: live, Data: []byte("v")}))
		require.NoError(t, s.Rename(ctx, "a", "b", false))

		_, err := s.Load(ctx, "a", now)
		assert.ErrorIs(t, err, session.ErrNoRow)
		row, err := s.Load(ctx, "b", now)
		require.NoError(t, err)
		assert.Equal(t, "b", row.ID)
		assert.Equal(t, "v", string(row.Data))
		assert.WithinDuration(t, live, row.Expire, time.Millisecond)
	})

	t.Run("RenameCopies", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, session.Row{ID: "a", Expire: live, Data: []byte("v")}))
		require.NoError(t, s.Rename(ctx, "a", "b", true))

		for _, id := range []string{"a", "b"} {
			row, err := s.Load(ctx, id, now)
			require.NoError(t, err, id)
			assert.Equal(t, "v", string(row.Data), id)
		}
	})

	t.Run("RenameMissing", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Rename(ctx, "missing", "b", false), session.ErrNoRow)
		_, err := s.Load(ctx, "b", now)
		assert.ErrorIs(t, err, session.ErrNoRow)
	})

	t.Run("RenameToSelf", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, session.Row{ID: "a", Expire: live, Data: []byte("v")}))
		require.NoError(t, s.Rename(ctx, "a", "a", false))
		_, err := s.Load(ctx, "a", now)
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Delete(ctx, "missing"))
		require.NoError(t, s.Save(ctx, session.Row{ID: "a", Expire: live, Data: []byte("v")}))
		require.NoError(t, s.Delete(ctx, "a"))
		_, err := s.Load(ctx, "a", now)
		assert.ErrorIs(t, err, session.ErrNoRow)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, session.Row{ID: "old-1", Expire: dead, Data: []byte("x")}))
		require.NoError(t, s.Save(ctx, session.Row{ID: "old-2", Expire: now.Add(-time.Second), Data: []byte("y")}))
		require.NoError(t, s.Save(ctx, session.Row{ID: "fresh", Expire: live, Data: []byte("z")}))

		n, err := s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, n)

		row, err := s.Load(ctx, "fresh", now)
		require.NoError(t, err)
		assert.Equal(t, "z", string(row.Data))
	})

	t.Run("Handler", func(t *testing.T) {
		h := session.NewHandler(newStore(t))

		assert.Equal(t, "", h.Read(ctx, "sid"))
		assert.True(t, h.Write(ctx, "sid", "a|s:1:\"x\";"))
		assert.Equal(t, "a|s:1:\"x\";", h.Read(ctx, "sid"))

		moved, ok := h.RegenerateID(ctx, "sid", true)
		require.True(t, ok)
		assert.Len(t, moved, 32)
		assert.Equal(t, "", h.Read(ctx, "sid"))
		assert.Equal(t, "a|s:1:\"x\";", h.Read(ctx, moved))

		copied, ok := h.RegenerateID(ctx, moved, false)
		require.True(t, ok)
		assert.NotEqual(t, moved, copied)
		assert.Equal(t, h.Read(ctx, moved), h.Read(ctx, copied))

		created, ok := h.RegenerateID(ctx, "never-written", false)
		require.True(t, ok)
		assert.Equal(t, "", h.Read(ctx, created))
		assert.True(t, h.Write(ctx, created, "new"))
		assert.Equal(t, "new", h.Read(ctx, created))

		assert.True(t, h.Destroy(ctx, created))
		assert.Equal(t, "", h.Read(ctx, created))
		assert.True(t, h.GC(ctx, h.Lifetime()))
	})
}
