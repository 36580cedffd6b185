package database

import (
	"context"
	"fmt"

	"celestia/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	ts := now()
	booking.CreatedAt = ts
	booking.UpdatedAt = ts

	if err := s.insertDoc(ctx, models.CollectionBookings, booking.ID, booking, ts); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.getDoc(ctx, models.CollectionBookings, id, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (s *Store) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var filters []filter
	if f.UserID != "" {
		filters = append(filters, filter{"userId", f.UserID})
	}
	if f.Status != "" {
		filters = append(filters, filter{"status", f.Status})
	}
	if f.ServiceType != "" {
		filters = append(filters, filter{"serviceType", f.ServiceType})
	}
	return queryDocs[models.Booking](ctx, s, models.CollectionBookings, filters...)
}

// UpdateBooking merges fields into the stored booking. Keys are JSON field names.
func (s *Store) UpdateBooking(ctx context.Context, id string, fields map[string]any) error {
	return s.mergeDoc(ctx, models.CollectionBookings, id, fields)
}
