package service

import (
	"context"
	"fmt"
	"strings"

	"celestia/internal/domain"
	"celestia/internal/events"
	"celestia/internal/metrics"
	"celestia/internal/models"

	"github.com/rs/zerolog"
)

// WorkItemService handles maintenance and stationery requests raised by paid
// facility bookings.
type WorkItemService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	outbox   domain.OutboxNotifier
	logger   *zerolog.Logger
}

func NewWorkItemService(repo domain.Repository, eventBus domain.EventPublisher, outbox domain.OutboxNotifier, logger *zerolog.Logger) *WorkItemService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WorkItemService{repo: repo, eventBus: eventBus, outbox: outbox, logger: logger}
}

func (s *WorkItemService) List(ctx context.Context, itemType string) ([]*models.WorkItem, error) {
	if !models.IsWorkItemType(itemType) {
		return nil, fmt.Errorf("type must be %s or %s: %w", models.WorkItemMaintenance, models.WorkItemStationery, domain.ErrValidation)
	}
	return s.repo.ListWorkItems(ctx, models.WorkItemFilter{Type: itemType})
}

func (s *WorkItemService) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	return s.repo.GetWorkItem(ctx, id)
}

// UpdateStatus sets the work-item status and mirrors it onto the booking in
// the same transaction: in progress maps to approved, resolved to completed,
// anything else is copied as is.
func (s *WorkItemService) UpdateStatus(ctx context.Context, actor *models.User, id, status string) (*models.WorkItem, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, fmt.Errorf("status is required: %w", domain.ErrValidation)
	}

	var (
		item     *models.WorkItem
		booking  *models.Booking
		previous string
		tasks    pendingTasks
	)
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		item, err = tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		booking, err = tx.GetBooking(ctx, item.BookingID)
		if err != nil {
			return err
		}
		if err := ensureOwnerActive(ctx, tx, booking); err != nil {
			return err
		}

		if err := tx.UpdateWorkItem(ctx, id, map[string]any{"status": status}); err != nil {
			return err
		}
		item.Status = status

		previous = booking.Status
		mirrored := models.BookingStatusFor(status)
		if mirrored == previous {
			return nil
		}
		if err := tx.UpdateBooking(ctx, booking.ID, map[string]any{"status": mirrored}); err != nil {
			return err
		}
		booking.Status = mirrored
		return tasks.mirrorBooking(ctx, tx, booking)
	})
	metrics.IncWorkItemSync(syncLabel(status))
	if err != nil {
		return nil, err
	}

	tasks.flush(ctx, s.outbox)
	s.publish(events.EventWorkItemUpdated, item, booking, actor)
	if booking.Status != previous {
		s.publishBooking(booking, previous, actor)
	}
	s.logger.Info().
		Str("work_item_id", id).
		Str("status", status).
		Str("booking_status", booking.Status).
		Msg("Work item status synced")
	return item, nil
}

// AssignStaff reassigns the work-item to an active staff account or roster member.
func (s *WorkItemService) AssignStaff(ctx context.Context, actor *models.User, id, staffID string) (*models.WorkItem, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, fmt.Errorf("staffId is required: %w", domain.ErrValidation)
	}

	var item *models.WorkItem
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		item, err = tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureAssignable(ctx, tx, staffID); err != nil {
			return err
		}
		if err := tx.UpdateWorkItem(ctx, id, map[string]any{"assignedStaff": staffID}); err != nil {
			return err
		}
		item.AssignedStaff = &staffID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventWorkItemUpdated, item, nil, actor)
	return item, nil
}

func (s *WorkItemService) SaveNotes(ctx context.Context, actor *models.User, id, notes string) (*models.WorkItem, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("note is required: %w", domain.ErrValidation)
	}
	item, err := s.repo.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateWorkItem(ctx, id, map[string]any{"notes": notes}); err != nil {
		return nil, err
	}
	item.Notes = notes
	return item, nil
}

func (s *WorkItemService) publish(eventType string, item *models.WorkItem, booking *models.Booking, actor *models.User) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:  item.BookingID,
		Status:     item.Status,
		AssignedTo: item.AssignedStaff,
		WorkItemID: item.ID,
	}
	if booking != nil {
		payload.UserID = booking.UserID
		payload.ServiceType = booking.ServiceType
	}
	if actor != nil {
		payload.ChangedBy = actor.ID
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("work_item_id", item.ID).Msg("publish event error")
	}
}

func (s *WorkItemService) publishBooking(booking *models.Booking, previous string, actor *models.User) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		ServiceType:   booking.ServiceType,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
		AssignedTo:    booking.AssignedTo,
		PreviousState: previous,
	}
	if actor != nil {
		payload.ChangedBy = actor.ID
	}
	if err := s.eventBus.PublishJSON(events.EventBookingStatusChanged, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("publish event error")
	}
}
