package database

import (
	"context"
	"testing"

	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailability(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetAvailability(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, db.EnsureAvailability(ctx, models.DefaultAvailability()))
	flags, err := db.GetAvailability(ctx)
	require.NoError(t, err)
	assert.Len(t, flags, len(models.AvailabilityKeys))

	t.Run("PartialMerge", func(t *testing.T) {
		require.NoError(t, db.MergeAvailability(ctx, map[string]bool{models.AvailMovie: false}))

		flags, err := db.GetAvailability(ctx)
		require.NoError(t, err)
		assert.False(t, flags[models.AvailMovie])
		assert.True(t, flags[models.AvailCatering])
		assert.NotContains(t, flags, "updatedAt")
	})

	t.Run("EnsureKeepsStoredValues", func(t *testing.T) {
		require.NoError(t, db.EnsureAvailability(ctx, models.DefaultAvailability()))

		flags, err := db.GetAvailability(ctx)
		require.NoError(t, err)
		assert.False(t, flags[models.AvailMovie])
	})
}

func TestStaffRoster(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, m := range models.DefaultStaffRoster() {
		member := m
		require.NoError(t, db.CreateStaffMember(ctx, &member))
	}

	staff, err := db.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 10)
	assert.Equal(t, "Arjun Kumar", staff[0].Name)
	assert.Equal(t, "Technician", staff[0].Role)
}
