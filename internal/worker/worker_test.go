package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"celestia/internal/config"
	"celestia/internal/database"
	"celestia/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewOutboxWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	task := enqueueMirror(t, db, worker, &models.Booking{ID: "b1", Status: models.StatusPending})

	queued, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &queued)

	stored := loadTask(t, db, task.ID)
	assert.Equal(t, models.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Nil(t, stored.NextRetryAt)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, []string{"b1"}, sheets.upserted())

	// A stale duplicate of a completed task is ignored.
	worker.processTask(ctx, &queued)
	assert.Len(t, sheets.upserted(), 1)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewOutboxWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}, nil)

	ctx := context.Background()
	task := enqueueMirror(t, db, worker, &models.Booking{ID: "b2"})
	queued, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &queued)

	stored := loadTask(t, db, task.ID)
	assert.Equal(t, models.TaskStatusRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "boom", *stored.LastError)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(time.Now().UTC()))

	// Not due yet: neither polled nor processed when delivered again.
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	worker.processTask(ctx, &queued)
	assert.Len(t, sheets.upserted(), 1)
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewOutboxWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	task := enqueueMirror(t, db, worker, &models.Booking{ID: "b3"})
	queued, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &queued)

	assert.Equal(t, models.TaskStatusFailed, loadTask(t, db, task.ID).Status)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, task.ID, failed[0].ID)
}

func TestProcessTaskMalformedPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewOutboxWorker(db, &fakeSheets{}, nil, RetryPolicy{MaxRetries: 5}, nil)

	ctx := context.Background()
	task := &models.SyncTask{TaskType: models.TaskMirrorBooking, BookingID: "b4", Payload: "invalid json"}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	worker.processTask(ctx, task)

	assert.Equal(t, models.TaskStatusFailed, loadTask(t, db, task.ID).Status)
}

func TestNotifyAssignment(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	worker := NewOutboxWorker(db, nil, notifier, RetryPolicy{}, nil)

	ctx := context.Background()
	notice := models.AssignmentNotice{BookingID: "b5", Role: models.RoleHeadCook, StaffID: "cook-1"}
	raw, err := json.Marshal(notice)
	require.NoError(t, err)
	task := &models.SyncTask{TaskType: models.TaskNotifyAssignment, BookingID: notice.BookingID, Payload: string(raw)}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	worker.processTask(ctx, task)

	assert.Equal(t, models.TaskStatusCompleted, loadTask(t, db, task.ID).Status)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, notice, notifier.notices[0])
}

func TestMirrorWithoutSheetsIsNoop(t *testing.T) {
	db := newTestDB(t)
	worker := NewOutboxWorker(db, nil, nil, RetryPolicy{}, nil)

	task := enqueueMirror(t, db, worker, &models.Booking{ID: "b6"})
	queued, _ := worker.tryLocalQueue()
	worker.processTask(context.Background(), &queued)

	assert.Equal(t, models.TaskStatusCompleted, loadTask(t, db, task.ID).Status)
}

func TestNotifyThroughRedis(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sheets := &fakeSheets{err: errors.New("quota")}
	worker := NewOutboxWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil, WithRedis(client, "test:outbox"))

	ctx := context.Background()
	task := enqueueMirror(t, db, worker, &models.Booking{ID: "b7"})

	_, ok := worker.tryLocalQueue()
	assert.False(t, ok, "redis delivery must bypass the local queue")

	queued, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, task.ID, queued.ID)

	worker.processTask(ctx, &queued)
	assert.Equal(t, models.TaskStatusFailed, loadTask(t, db, task.ID).Status)

	dead, err := client.LRange(ctx, "test:outbox:deadletter", 0, -1).Result()
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestNotifyFallsBackWhenRedisDown(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	worker := NewOutboxWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil, WithRedis(client, ""))
	task := enqueueMirror(t, db, worker, &models.Booking{ID: "b8"})

	queued, ok := worker.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, task.ID, queued.ID)
}

func TestRunDrainsByPolling(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewOutboxWorker(db, sheets, nil, RetryPolicy{}, nil, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Committed but never announced: only polling can find it.
	raw, err := json.Marshal(&models.Booking{ID: "b9"})
	require.NoError(t, err)
	task := &models.SyncTask{TaskType: models.TaskMirrorBooking, BookingID: "b9", Payload: string(raw)}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		stored, err := db.GetSyncTask(context.Background(), task.ID)
		return err == nil && stored.Status == models.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.WorkerConfig{MaxRetries: 3, BaseDelay: time.Second})
	assert.Equal(t, time.Minute, policy.MaxDelay)
	assert.Equal(t, float64(2), policy.BackoffFactor)
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
}

// Helpers

type fakeSheets struct {
	mu   sync.Mutex
	err  error
	rows []string
}

func (f *fakeSheets) UpsertBooking(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, b.ID)
	return f.err
}

func (f *fakeSheets) upserted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rows...)
}

type fakeNotifier struct {
	notices []models.AssignmentNotice
}

func (f *fakeNotifier) NotifyAssignment(_ context.Context, n models.AssignmentNotice) error {
	f.notices = append(f.notices, n)
	return nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.Nop()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// enqueueMirror stores a mirror task and announces it to the worker.
func enqueueMirror(t *testing.T, db *database.DB, w *OutboxWorker, b *models.Booking) *models.SyncTask {
	t.Helper()
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	task := &models.SyncTask{TaskType: models.TaskMirrorBooking, BookingID: b.ID, Payload: string(raw)}
	require.NoError(t, db.CreateSyncTask(context.Background(), task))
	w.Notify(context.Background(), []models.SyncTask{*task})
	return task
}

func loadTask(t *testing.T, db *database.DB, id int64) *models.SyncTask {
	t.Helper()
	task, err := db.GetSyncTask(context.Background(), id)
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	return task
}
