package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"celestia/internal/database"
	"celestia/internal/models"
	"celestia/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

// recordingOutbox keeps every task the services hand to the worker.
type recordingOutbox struct {
	mu    sync.Mutex
	tasks []models.SyncTask
}

func (o *recordingOutbox) Notify(_ context.Context, tasks []models.SyncTask) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = append(o.tasks, tasks...)
}

func (o *recordingOutbox) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t.TaskType)
	}
	return out
}

type testEnv struct {
	db           *database.DB
	state        *repository.MemoryStateRepository
	events       *mockEventBus
	outbox       *recordingOutbox
	users        *UserService
	availability *AvailabilityService
	bookings     *BookingService
	workItems    *WorkItemService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "celestia.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	state := repository.NewMemoryStateRepository()
	bus := new(mockEventBus)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	outbox := &recordingOutbox{}

	availability := NewAvailabilityService(db, &logger)
	return &testEnv{
		db:           db,
		state:        state,
		events:       bus,
		outbox:       outbox,
		users:        NewUserService(db, state, bus, &logger),
		availability: availability,
		bookings:     NewBookingService(db, state, availability, bus, outbox, time.Hour, &logger),
		workItems:    NewWorkItemService(db, bus, outbox, &logger),
	}
}

// addUser stores an approved user and indexes staff roles.
func (e *testEnv) addUser(t *testing.T, name, role string) *models.User {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Name: name, Email: name + "@ship.test", Role: role}
	require.NoError(t, e.db.CreateUser(ctx, u))
	approved, err := e.users.Approve(ctx, nil, u.ID, role)
	require.NoError(t, err)
	return approved
}

func (e *testEnv) book(t *testing.T, owner *models.User, serviceType string, details map[string]string, price string) *models.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(context.Background(), owner, CreateBookingInput{
		ServiceType: serviceType,
		Details:     details,
		Price:       decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return b
}

var (
	cateringDetails   = map[string]string{"mealType": "dinner", "time": "19:00", "quantity": "2"}
	facilityDetails   = map[string]string{"requestType": "repair", "facility": "Cabin 12", "issue": "leaking tap"}
	stationeryDetails = map[string]string{"requestType": "supplies", "item": "pens", "quantity": "10", "requestedBy": "Deck 3"}
)
