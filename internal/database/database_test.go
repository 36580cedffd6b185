package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "celestia.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_Memory(t *testing.T) {
	db, err := NewDB(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PingContext(context.Background()))
	assert.Equal(t, ":memory:", db.Path())
}

func TestWithTx(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		var id string
		err := db.WithTx(ctx, func(tx domain.Store) error {
			b := &models.Booking{UserID: "u1", ServiceType: models.ServiceCatering, Status: models.StatusPending}
			if err := tx.CreateBooking(ctx, b); err != nil {
				return err
			}
			id = b.ID
			return tx.UpdateBooking(ctx, b.ID, map[string]any{"status": models.StatusApproved})
		})
		require.NoError(t, err)

		got, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, got.Status)
	})

	t.Run("RollsBackOnError", func(t *testing.T) {
		boom := errors.New("boom")
		var id string
		err := db.WithTx(ctx, func(tx domain.Store) error {
			b := &models.Booking{UserID: "u2", ServiceType: models.ServiceCatering}
			if err := tx.CreateBooking(ctx, b); err != nil {
				return err
			}
			id = b.ID
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = db.GetBooking(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDocumentErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("MissingDocument", func(t *testing.T) {
		_, err := db.GetUser(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = db.UpdateBooking(ctx, "nope", map[string]any{"status": "approved"})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = db.DeleteUser(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		require.NoError(t, db.CreateUser(ctx, &models.User{ID: "dup", Name: "A"}))
		err := db.CreateUser(ctx, &models.User{ID: "dup", Name: "B"})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("InvalidField", func(t *testing.T) {
		require.NoError(t, db.CreateUser(ctx, &models.User{ID: "field", Name: "A"}))
		err := db.UpdateUser(ctx, "field", map[string]any{"name') --": "x"})
		assert.Error(t, err)
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		closed, err := NewDB(":memory:", nil)
		require.NoError(t, err)
		require.NoError(t, closed.Close())

		_, err = closed.ListUsers(ctx, "")
		assert.Error(t, err)
		assert.Error(t, closed.WithTx(ctx, func(domain.Store) error { return nil }))
	})
}
