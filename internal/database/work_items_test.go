package database

import (
	"context"
	"testing"

	"celestia/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	supervisor := "sup-1"
	item := &models.WorkItem{
		Type:          models.WorkItemMaintenance,
		BookingID:     "booking-1",
		Status:        models.WorkItemPending,
		AssignedStaff: &supervisor,
		Facility:      "Deck 5 pool",
		Issue:         "Leaking pump",
	}
	require.NoError(t, db.CreateWorkItem(ctx, item))
	require.NoError(t, db.CreateWorkItem(ctx, &models.WorkItem{Type: models.WorkItemStationery, BookingID: "booking-2", Status: models.WorkItemPending}))

	maintenance, err := db.ListWorkItems(ctx, models.WorkItemFilter{Type: models.WorkItemMaintenance})
	require.NoError(t, err)
	require.Len(t, maintenance, 1)
	assert.Equal(t, "Deck 5 pool", maintenance[0].Facility)

	byBooking, err := db.ListWorkItems(ctx, models.WorkItemFilter{BookingID: "booking-2"})
	require.NoError(t, err)
	require.Len(t, byBooking, 1)
	assert.Equal(t, models.WorkItemStationery, byBooking[0].Type)

	require.NoError(t, db.UpdateWorkItem(ctx, item.ID, map[string]any{"status": models.WorkItemInProgress, "notes": "parts ordered"}))
	got, err := db.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemInProgress, got.Status)
	assert.Equal(t, "parts ordered", got.Notes)
	require.NotNil(t, got.AssignedStaff)
	assert.Equal(t, supervisor, *got.AssignedStaff)
}
