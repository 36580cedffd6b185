package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"celestia/internal/domain"
	"celestia/internal/events"
	"celestia/internal/metrics"
	"celestia/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type BookingService struct {
	repo           domain.Repository
	state          domain.StateRepository
	router         *StaffRouter
	availability   *AvailabilityService
	eventBus       domain.EventPublisher
	outbox         domain.OutboxNotifier
	idempotencyTTL time.Duration
	logger         *zerolog.Logger
	now            func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	state domain.StateRepository,
	availability *AvailabilityService,
	eventBus domain.EventPublisher,
	outbox domain.OutboxNotifier,
	idempotencyTTL time.Duration,
	logger *zerolog.Logger,
) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}
	return &BookingService{
		repo:           repo,
		state:          state,
		router:         NewStaffRouter(state),
		availability:   availability,
		eventBus:       eventBus,
		outbox:         outbox,
		idempotencyTTL: idempotencyTTL,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingInput is the voyager booking form.
type CreateBookingInput struct {
	UserID      string            `json:"userId"`
	ServiceType string            `json:"serviceType"`
	Date        string            `json:"date"`
	Time        string            `json:"time"`
	Details     map[string]string `json:"details"`
	Price       decimal.Decimal   `json:"price"`
}

// BookingPatch holds the mutable booking fields. Nil fields are left alone.
type BookingPatch struct {
	Status  *string           `json:"status"`
	Date    *string           `json:"date"`
	Time    *string           `json:"time"`
	Details map[string]string `json:"details"`
	Price   *decimal.Decimal  `json:"price"`
}

func (s *BookingService) CreateBooking(ctx context.Context, actor *models.User, in CreateBookingInput) (*models.Booking, error) {
	userID := actor.ID
	if in.UserID != "" && in.UserID != actor.ID {
		if actor.Role != models.RoleAdmin {
			return nil, fmt.Errorf("cannot book on behalf of another user: %w", domain.ErrForbidden)
		}
		if _, err := s.repo.GetUser(ctx, in.UserID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("user %s does not exist: %w", in.UserID, domain.ErrValidation)
			}
			return nil, err
		}
		userID = in.UserID
	}

	spec, ok := models.LookupService(in.ServiceType)
	if !ok {
		return nil, fmt.Errorf("unknown service type %q: %w", in.ServiceType, domain.ErrValidation)
	}

	booking := &models.Booking{
		UserID:        userID,
		ServiceType:   spec.Type,
		Status:        models.StatusPending,
		Date:          strings.TrimSpace(in.Date),
		Time:          strings.TrimSpace(in.Time),
		Details:       cleanDetails(in.Details),
		Price:         in.Price,
		PaymentStatus: models.PaymentPending,
	}
	if err := s.validateNew(booking, spec); err != nil {
		return nil, err
	}

	enabled, err := s.availability.IsEnabled(ctx, spec.AvailabilityKey)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, fmt.Errorf("%s: %w", spec.Type, domain.ErrServiceUnavailable)
	}

	var tasks pendingTasks
	err = s.repo.WithTx(ctx, func(tx domain.Store) error {
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return err
		}
		return tasks.mirrorBooking(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	tasks.flush(ctx, s.outbox)
	metrics.IncBookingCreated(spec.Type)
	s.publishEvent(events.EventBookingCreated, booking, "", actor.ID)
	s.logger.Info().Str("booking_id", booking.ID).Str("service_type", spec.Type).Str("user_id", userID).Msg("Booking created")
	return booking, nil
}

func cleanDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// validateNew checks required fields and fills the date default. A required
// "date" or "time" may come from the top-level field or from details.
func (s *BookingService) validateNew(b *models.Booking, spec models.ServiceSpec) error {
	if b.Date == "" {
		b.Date = b.Detail("date")
	}
	if b.Time == "" {
		b.Time = b.Detail("time")
	}

	var missing []string
	for _, field := range spec.RequiredFields {
		switch {
		case field == "date" && b.Date != "":
		case field == "time" && b.Time != "":
		case b.Detail(field) != "":
		default:
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields for %s: %s: %w", spec.Type, strings.Join(missing, ", "), domain.ErrValidation)
	}

	if b.Date == "" {
		b.Date = s.now().Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, b.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", domain.ErrValidation)
	}
	if b.Price.IsNegative() {
		return fmt.Errorf("price must not be negative: %w", domain.ErrValidation)
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor *models.User, id string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings lists bookings by filter. Non-staff callers only see their own.
func (s *BookingService) ListBookings(ctx context.Context, actor *models.User, filter models.BookingFilter) ([]*models.Booking, error) {
	if !actor.IsStaff() {
		filter.UserID = actor.ID
	}
	return s.repo.ListBookings(ctx, filter)
}

// Summary returns the booking receipt with its linked work-item, if any.
func (s *BookingService) Summary(ctx context.Context, actor *models.User, id string) (*models.BookingSummary, error) {
	booking, err := s.GetBooking(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	summary := &models.BookingSummary{
		ID:            booking.ID,
		ServiceType:   booking.ServiceType,
		Status:        booking.Status,
		Date:          booking.Date,
		Time:          booking.Time,
		Price:         booking.Price,
		PaymentStatus: booking.PaymentStatus,
		AssignedTo:    booking.AssignedTo,
	}

	items, err := s.repo.ListWorkItems(ctx, models.WorkItemFilter{BookingID: booking.ID})
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		summary.WorkItemID = items[0].ID
		summary.WorkItemState = items[0].Status
	}
	return summary, nil
}

// CancelBooking sets the booking to cancelled whatever its current status.
// Cancelling twice is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, actor *models.User, id string) (*models.Booking, error) {
	var (
		booking  *models.Booking
		previous string
		tasks    pendingTasks
	)
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		booking, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := canView(actor, booking); err != nil {
			return err
		}
		previous = booking.Status
		if previous == models.StatusCancelled {
			return nil
		}
		if actor.ID != booking.UserID {
			if err := ensureOwnerActive(ctx, tx, booking); err != nil {
				return err
			}
		}
		if err := tx.UpdateBooking(ctx, id, map[string]any{"status": models.StatusCancelled}); err != nil {
			return err
		}
		booking.Status = models.StatusCancelled
		return tasks.mirrorBooking(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	if previous != models.StatusCancelled {
		tasks.flush(ctx, s.outbox)
		metrics.IncTransition(models.StatusCancelled, true)
		s.publishEvent(events.EventBookingCancelled, booking, previous, actor.ID)
	}
	return booking, nil
}

// UpdateStatus moves a booking along its lifecycle on behalf of staff.
func (s *BookingService) UpdateStatus(ctx context.Context, actor *models.User, id, status string) (*models.Booking, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, fmt.Errorf("status is required: %w", domain.ErrValidation)
	}
	return s.UpdateBooking(ctx, actor, id, BookingPatch{Status: &status})
}

// UpdateBooking applies a staff patch. A status change is checked against the
// lifecycle; payment fields and the owner cannot be changed here.
func (s *BookingService) UpdateBooking(ctx context.Context, actor *models.User, id string, patch BookingPatch) (*models.Booking, error) {
	var (
		booking  *models.Booking
		previous string
		tasks    pendingTasks
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		booking, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := canHandle(actor, booking.ServiceType); err != nil {
			return err
		}
		if err := ensureOwnerActive(ctx, tx, booking); err != nil {
			return err
		}
		previous = booking.Status

		fields, err := s.patchFields(booking, patch)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := tx.UpdateBooking(ctx, id, fields); err != nil {
			return err
		}
		changed = true
		return tasks.mirrorBooking(ctx, tx, booking)
	})
	if patch.Status != nil && *patch.Status != previous && previous != "" {
		metrics.IncTransition(transitionLabel(booking.ServiceType, *patch.Status), err == nil)
	}
	if err != nil {
		return nil, err
	}

	if changed {
		tasks.flush(ctx, s.outbox)
		eventType := events.EventBookingUpdated
		if booking.Status != previous {
			eventType = events.EventBookingStatusChanged
		}
		s.publishEvent(eventType, booking, previous, actor.ID)
	}
	return booking, nil
}

// patchFields validates the patch against booking and applies it in memory,
// returning the stored fields to merge.
func (s *BookingService) patchFields(booking *models.Booking, patch BookingPatch) (map[string]any, error) {
	fields := make(map[string]any)

	if patch.Status != nil && *patch.Status != booking.Status {
		if err := validateTransition(booking.ServiceType, booking.Status, *patch.Status); err != nil {
			return nil, err
		}
		fields["status"] = *patch.Status
		booking.Status = *patch.Status
	}
	if patch.Date != nil {
		if _, err := time.Parse(models.DateLayout, *patch.Date); err != nil {
			return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", domain.ErrValidation)
		}
		fields["date"] = *patch.Date
		booking.Date = *patch.Date
	}
	if patch.Time != nil {
		fields["time"] = *patch.Time
		booking.Time = *patch.Time
	}
	if patch.Details != nil {
		merged := make(map[string]string, len(booking.Details)+len(patch.Details))
		for k, v := range booking.Details {
			merged[k] = v
		}
		for k, v := range patch.Details {
			if v == "" {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		fields["details"] = merged
		booking.Details = merged
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return nil, fmt.Errorf("price must not be negative: %w", domain.ErrValidation)
		}
		if booking.IsPaid() && !patch.Price.Equal(booking.Price) {
			return nil, fmt.Errorf("cannot reprice a paid booking: %w", domain.ErrPolicyViolation)
		}
		fields["price"] = *patch.Price
		booking.Price = *patch.Price
	}
	return fields, nil
}

// AssignStaff reassigns a booking to a staff account or roster member.
func (s *BookingService) AssignStaff(ctx context.Context, actor *models.User, id, staffID string) (*models.Booking, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, fmt.Errorf("staffId is required: %w", domain.ErrValidation)
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleManager {
		return nil, fmt.Errorf("only managers assign staff: %w", domain.ErrForbidden)
	}

	var (
		booking *models.Booking
		tasks   pendingTasks
	)
	err := s.repo.WithTx(ctx, func(tx domain.Store) error {
		var err error
		booking, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureOwnerActive(ctx, tx, booking); err != nil {
			return err
		}
		if err := ensureAssignable(ctx, tx, staffID); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, id, map[string]any{"assignedTo": staffID}); err != nil {
			return err
		}
		booking.AssignedTo = &staffID
		if err := tasks.mirrorBooking(ctx, tx, booking); err != nil {
			return err
		}
		spec, _ := models.LookupService(booking.ServiceType)
		return tasks.notifyAssignment(ctx, tx, models.AssignmentNotice{
			BookingID:   booking.ID,
			ServiceType: booking.ServiceType,
			Role:        spec.Role,
			StaffID:     staffID,
		})
	})
	if err != nil {
		return nil, err
	}

	tasks.flush(ctx, s.outbox)
	s.publishEvent(events.EventBookingAssigned, booking, "", actor.ID)
	return booking, nil
}

// ensureAssignable accepts an active staff account or a roster member id.
func ensureAssignable(ctx context.Context, tx domain.Store, staffID string) error {
	user, err := tx.GetUser(ctx, staffID)
	if err == nil {
		if !user.IsStaff() || !user.Active() {
			return fmt.Errorf("user %s is not active staff: %w", staffID, domain.ErrValidation)
		}
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	roster, err := tx.ListStaff(ctx)
	if err != nil {
		return err
	}
	for _, m := range roster {
		if m.ID == staffID {
			return nil
		}
	}
	return fmt.Errorf("staff member %s does not exist: %w", staffID, domain.ErrValidation)
}

// ensureOwnerActive rejects staff actions on bookings whose owner is not
// approved, is disabled or no longer exists.
func ensureOwnerActive(ctx context.Context, tx domain.Store, booking *models.Booking) error {
	owner, err := tx.GetUser(ctx, booking.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("booking %s: %w", booking.ID, domain.ErrOwnerInactive)
	}
	if err != nil {
		return err
	}
	if !owner.Active() {
		return fmt.Errorf("booking %s: %w", booking.ID, domain.ErrOwnerInactive)
	}
	return nil
}

func canView(actor *models.User, booking *models.Booking) error {
	if actor.IsStaff() || actor.ID == booking.UserID {
		return nil
	}
	return fmt.Errorf("booking %s: %w", booking.ID, domain.ErrForbidden)
}

// canHandle allows Admins, Managers and the role the service type routes to.
func canHandle(actor *models.User, serviceType string) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
		return nil
	}
	spec, ok := models.LookupService(serviceType)
	if ok && actor.Role == spec.Role {
		return nil
	}
	return fmt.Errorf("%s cannot handle %s bookings: %w", actor.Role, serviceType, domain.ErrForbidden)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, previous, changedBy string) {
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
		ChangedBy:     changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}
