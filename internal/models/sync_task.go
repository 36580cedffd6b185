package models

import "time"

// Outbox task types.
const (
	TaskMirrorBooking    = "mirror_booking"
	TaskNotifyAssignment = "notify_assignment"
)

// Outbox task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// SyncTask is a queued side effect of a committed booking change.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"taskType"`
	BookingID   string     `json:"bookingId"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retryCount"`
	LastError   *string    `json:"lastError"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt"`
	NextRetryAt *time.Time `json:"nextRetryAt"`
}

// AssignmentNotice is the payload of a notify_assignment task.
type AssignmentNotice struct {
	BookingID   string `json:"bookingId"`
	ServiceType string `json:"serviceType"`
	Role        string `json:"role"`
	StaffID     string `json:"staffId"`
	WorkItemID  string `json:"workItemId,omitempty"`
}

// AdminMetrics backs the admin and manager dashboards.
type AdminMetrics struct {
	TotalUsers        int    `json:"totalUsers"`
	TotalStaff        int    `json:"totalStaff"`
	TotalServices     int    `json:"totalServices"`
	PendingApprovals  int    `json:"pendingApprovals"`
	TotalBookings     int    `json:"totalBookings"`
	CompletedBookings int    `json:"completedBookings"`
	Revenue           string `json:"revenue"`
}
