package service

import (
	"context"
	"encoding/json"
	"fmt"

	"celestia/internal/domain"
	"celestia/internal/models"
)

// pendingTasks collects outbox tasks written inside a transaction so the
// worker can be woken once it commits.
type pendingTasks []models.SyncTask

func (p *pendingTasks) mirrorBooking(ctx context.Context, tx domain.Store, booking *models.Booking) error {
	return p.add(ctx, tx, models.TaskMirrorBooking, booking.ID, booking)
}

func (p *pendingTasks) notifyAssignment(ctx context.Context, tx domain.Store, notice models.AssignmentNotice) error {
	return p.add(ctx, tx, models.TaskNotifyAssignment, notice.BookingID, notice)
}

func (p *pendingTasks) add(ctx context.Context, tx domain.Store, taskType, bookingID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	task := models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(raw),
		Status:    models.TaskStatusPending,
	}
	if err := tx.CreateSyncTask(ctx, &task); err != nil {
		return err
	}
	*p = append(*p, task)
	return nil
}

func (p pendingTasks) flush(ctx context.Context, outbox domain.OutboxNotifier) {
	if outbox == nil || len(p) == 0 {
		return
	}
	outbox.Notify(ctx, p)
}
