package service

import (
	"context"
	"io"

	"celestia/internal/domain"
	"celestia/internal/models"

	"github.com/shopspring/decimal"
)

// Exporter renders report workbooks.
type Exporter interface {
	WriteUsers(w io.Writer, users []*models.User) error
	WriteBookings(w io.Writer, bookings []*models.Booking) error
}

// ReportService backs the admin and manager dashboards.
type ReportService struct {
	repo     domain.Repository
	exporter Exporter
}

func NewReportService(repo domain.Repository, exporter Exporter) *ReportService {
	return &ReportService{repo: repo, exporter: exporter}
}

// Metrics aggregates directory and booking totals. Revenue sums the price of
// every paid booking.
func (s *ReportService) Metrics(ctx context.Context) (*models.AdminMetrics, error) {
	users, err := s.repo.ListUsers(ctx, "")
	if err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListBookings(ctx, models.BookingFilter{})
	if err != nil {
		return nil, err
	}

	m := &models.AdminMetrics{
		TotalUsers:    len(users),
		TotalServices: len(models.Catalog),
		TotalBookings: len(bookings),
	}
	for _, u := range users {
		if u.IsStaff() {
			m.TotalStaff++
		}
		if !u.Approved {
			m.PendingApprovals++
		}
	}

	revenue := decimal.Zero
	for _, b := range bookings {
		if finishedStatuses[b.Status] {
			m.CompletedBookings++
		}
		if b.IsPaid() {
			revenue = revenue.Add(b.Price)
		}
	}
	m.Revenue = revenue.StringFixed(2)
	return m, nil
}

func (s *ReportService) ExportUsers(ctx context.Context, w io.Writer) error {
	users, err := s.repo.ListUsers(ctx, "")
	if err != nil {
		return err
	}
	return s.exporter.WriteUsers(w, users)
}

func (s *ReportService) ExportBookings(ctx context.Context, w io.Writer) error {
	bookings, err := s.repo.ListBookings(ctx, models.BookingFilter{})
	if err != nil {
		return err
	}
	return s.exporter.WriteBookings(w, bookings)
}
