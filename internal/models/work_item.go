package models

import "time"

// WorkItem is a maintenance or stationery request derived from a paid booking.
type WorkItem struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	BookingID     string            `json:"bookingId"`
	Status        string            `json:"status"`
	AssignedStaff *string           `json:"assignedStaff"`
	Notes         string            `json:"notes,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	Facility      string            `json:"facility,omitempty"`
	Issue         string            `json:"issue,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func IsWorkItemType(t string) bool {
	return t == WorkItemMaintenance || t == WorkItemStationery
}

// BookingStatusFor maps a work-item status to the status mirrored on its booking.
func BookingStatusFor(workItemStatus string) string {
	switch workItemStatus {
	case WorkItemInProgress:
		return StatusApproved
	case WorkItemResolved:
		return StatusCompleted
	default:
		return workItemStatus
	}
}

// WorkItemFilter narrows a work-item listing by equality. Empty fields match all.
type WorkItemFilter struct {
	Type      string
	BookingID string
	Status    string
}
