package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"celestia/internal/domain"
	"celestia/internal/events"
	"celestia/internal/metrics"
	"celestia/internal/models"
)

const paymentSuccessMessage = "Payment successful and booking assigned"

// PayBooking captures a mock payment. On success the booking is paid and
// approved, routed to staff and, for facility services, a work-item is opened.
// A repeated idempotency key replays the stored result.
func (s *BookingService) PayBooking(ctx context.Context, actor *models.User, req models.PaymentRequest) (*models.PaymentResult, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("paymentMethod is required: %w", domain.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}

	booking, err := s.repo.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if actor.ID != booking.UserID && actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("booking %s: %w", booking.ID, domain.ErrForbidden)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		key = booking.ID + ":" + key
		result, replayed, err := s.reserveIdempotencyKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if replayed {
			metrics.IncPayment("replayed")
			return result, nil
		}
	}

	result, err := s.capturePayment(ctx, actor, req)
	if err != nil {
		if key != "" {
			if relErr := s.state.ReleasePayment(ctx, key); relErr != nil {
				s.logger.Error().Err(relErr).Str("booking_id", req.BookingID).Msg("Failed to release idempotency key")
			}
		}
		if errors.Is(err, domain.ErrPolicyViolation) || errors.Is(err, domain.ErrValidation) {
			metrics.IncPayment("rejected")
		} else {
			metrics.IncPayment("error")
		}
		return nil, err
	}
	metrics.IncPayment("paid")

	if key != "" {
		raw, err := json.Marshal(result)
		if err == nil {
			err = s.state.SavePaymentResult(ctx, key, raw, s.idempotencyTTL)
		}
		if err != nil {
			s.logger.Error().Err(err).Str("booking_id", req.BookingID).Msg("Failed to store payment result")
		}
	}
	return result, nil
}

// reserveIdempotencyKey claims key or returns the stored result of the
// payment that already used it.
func (s *BookingService) reserveIdempotencyKey(ctx context.Context, key string) (*models.PaymentResult, bool, error) {
	ok, err := s.state.ReservePayment(ctx, key, s.idempotencyTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return nil, false, nil
	}

	raw, done, err := s.state.PaymentResult(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read payment result: %w", err)
	}
	if !done {
		return nil, false, domain.ErrPaymentInFlight
	}

	var result models.PaymentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode stored payment result: %w", err)
	}
	return &result, true, nil
}

func (s *BookingService) capturePayment(ctx context.Context, actor *models.User, req models.PaymentRequest) (*models.PaymentResult, error) {
	var (
		booking  *models.Booking
		workItem *models.WorkItem
		role     string
		assignee *string
		tasks    pendingTasks
	)

	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		booking, err = tx.GetBooking(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if actor.ID != booking.UserID {
			if err := ensureOwnerActive(ctx, tx, booking); err != nil {
				return err
			}
		}
		if booking.IsPaid() {
			return fmt.Errorf("booking %s: %w", booking.ID, domain.ErrAlreadyPaid)
		}
		if booking.Status == models.StatusCancelled {
			return fmt.Errorf("booking %s is cancelled: %w", booking.ID, domain.ErrPolicyViolation)
		}
		if req.Amount.LessThan(booking.Price) {
			return fmt.Errorf("amount %s is below price %s: %w", req.Amount, booking.Price, domain.ErrInsufficientPayment)
		}

		role, assignee, err = s.router.Resolve(ctx, booking.ServiceType)
		if err != nil {
			return err
		}

		paidAt := s.now()
		if err := tx.UpdateBooking(ctx, booking.ID, map[string]any{
			"paymentStatus": models.PaymentPaid,
			"status":        models.StatusApproved,
			"paymentMethod": req.PaymentMethod,
			"paymentDate":   paidAt,
			"assignedTo":    assignee,
		}); err != nil {
			return err
		}
		booking.PaymentStatus = models.PaymentPaid
		booking.Status = models.StatusApproved
		booking.PaymentMethod = req.PaymentMethod
		booking.PaymentDate = &paidAt
		booking.AssignedTo = assignee

		spec, _ := models.LookupService(booking.ServiceType)
		if spec.WorkItemType != "" {
			workItem = newWorkItem(spec.WorkItemType, booking)
			if err := tx.CreateWorkItem(ctx, workItem); err != nil {
				return err
			}
		}

		if err := tasks.mirrorBooking(ctx, tx, booking); err != nil {
			return err
		}
		if assignee == nil {
			return nil
		}
		notice := models.AssignmentNotice{
			BookingID:   booking.ID,
			ServiceType: booking.ServiceType,
			Role:        role,
			StaffID:     *assignee,
		}
		if workItem != nil {
			notice.WorkItemID = workItem.ID
		}
		return tasks.notifyAssignment(ctx, tx, notice)
	})
	if err != nil {
		return nil, err
	}

	tasks.flush(ctx, s.outbox)

	result := &models.PaymentResult{BookingID: booking.ID, Message: paymentSuccessMessage}
	s.publishEvent(events.EventBookingPaid, booking, models.StatusPending, actor.ID)
	if assignee != nil {
		s.publishEvent(events.EventBookingAssigned, booking, "", actor.ID)
	} else {
		s.logger.Warn().Str("booking_id", booking.ID).Str("role", role).Msg("No staff holds the routing role, booking left unassigned")
	}
	if workItem != nil {
		result.WorkItemID = workItem.ID
		s.publishWorkItem(events.EventWorkItemCreated, workItem, booking, actor.ID)
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("payment_method", req.PaymentMethod).
		Str("amount", req.Amount.String()).
		Msg("Booking paid")
	return result, nil
}

// newWorkItem snapshots the paid booking into a pending work-item routed to
// the same staff member.
func newWorkItem(itemType string, booking *models.Booking) *models.WorkItem {
	details := make(map[string]string, len(booking.Details)+10)
	for k, v := range booking.Details {
		details[k] = v
	}
	details["id"] = booking.ID
	details["userId"] = booking.UserID
	details["serviceType"] = booking.ServiceType
	details["date"] = booking.Date
	details["price"] = booking.Price.String()
	details["status"] = booking.Status
	details["paymentStatus"] = booking.PaymentStatus
	details["paymentMethod"] = booking.PaymentMethod
	if booking.Time != "" {
		details["time"] = booking.Time
	}
	if booking.PaymentDate != nil {
		details["paymentDate"] = booking.PaymentDate.Format(time.RFC3339)
	}
	if booking.AssignedTo != nil {
		details["assignedTo"] = *booking.AssignedTo
	}

	return &models.WorkItem{
		Type:          itemType,
		BookingID:     booking.ID,
		Status:        models.WorkItemPending,
		AssignedStaff: booking.AssignedTo,
		Details:       details,
		Facility:      booking.Detail("facility"),
		Issue:         booking.Detail("issue"),
	}
}

func (s *BookingService) publishWorkItem(eventType string, item *models.WorkItem, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		ServiceType: booking.ServiceType,
		Status:      item.Status,
		AssignedTo:  item.AssignedStaff,
		WorkItemID:  item.ID,
		ChangedBy:   changedBy,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("work_item_id", item.ID).Msg("publish event error")
	}
}
