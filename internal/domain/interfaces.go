package domain

import (
	"context"
	"time"

	"celestia/internal/models"
)

// Store is the document store. It is implemented both by the database handle
// and by an open transaction.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, role string) ([]*models.User, error)
	UpdateUser(ctx context.Context, id string, fields map[string]any) error
	DeleteUser(ctx context.Context, id string) error

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	UpdateBooking(ctx context.Context, id string, fields map[string]any) error

	CreateWorkItem(ctx context.Context, item *models.WorkItem) error
	GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error)
	ListWorkItems(ctx context.Context, filter models.WorkItemFilter) ([]*models.WorkItem, error)
	UpdateWorkItem(ctx context.Context, id string, fields map[string]any) error

	GetAvailability(ctx context.Context) (models.ServiceAvailability, error)
	EnsureAvailability(ctx context.Context, defaults models.ServiceAvailability) error
	MergeAvailability(ctx context.Context, patch map[string]bool) error

	CreateStaffMember(ctx context.Context, member *models.StaffMember) error
	ListStaff(ctx context.Context) ([]*models.StaffMember, error)

	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
}

// Repository is the database handle: a Store plus transactions and the
// outbox bookkeeping used by the background worker.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
	GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error)
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

// StateRepository holds fast-changing shared state: the role index, payment
// idempotency keys and revoked credentials.
type StateRepository interface {
	AddRoleMember(ctx context.Context, role, userID string) error
	RemoveRoleMember(ctx context.Context, role, userID string) error
	RoleMembers(ctx context.Context, role string) ([]string, error)
	ResetRoleIndex(ctx context.Context, index map[string][]string) error

	// ReservePayment claims an idempotency key. It returns false when the key
	// is already held, either in flight or completed.
	ReservePayment(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// PaymentResult returns the stored result for a completed key.
	PaymentResult(ctx context.Context, key string) ([]byte, bool, error)
	SavePaymentResult(ctx context.Context, key string, result []byte, ttl time.Duration) error
	ReleasePayment(ctx context.Context, key string) error

	RevokeSubject(ctx context.Context, userID string) error
	IsRevoked(ctx context.Context, userID string) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// OutboxNotifier wakes the outbox worker for tasks committed with a booking change.
type OutboxNotifier interface {
	Notify(ctx context.Context, tasks []models.SyncTask)
}

// SheetsWriter mirrors bookings into a spreadsheet.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
}

// AssignmentNotifier tells staff about a newly assigned booking.
type AssignmentNotifier interface {
	NotifyAssignment(ctx context.Context, notice models.AssignmentNotice) error
}
