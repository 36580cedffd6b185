package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"celestia/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	usersSheet    = "Users"
	bookingsSheet = "Bookings"
	timeLayout    = "2006-01-02 15:04"
)

var (
	userHeaders = []string{
		"ID", "Name", "Email", "Phone", "Role", "Approved", "Disabled", "Approved At", "Created At",
	}
	bookingHeaders = []string{
		"ID", "User ID", "Service Type", "Status", "Date", "Time", "Price",
		"Payment Status", "Payment Method", "Payment Date", "Assigned To", "Created At",
	}
)

// Exporter renders directory and booking reports as XLSX workbooks. When dir
// is set every rendered workbook is also archived there.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger, now: time.Now}
}

// WriteUsers writes the users workbook to w.
func (e *Exporter) WriteUsers(w io.Writer, users []*models.User) error {
	f, err := newWorkbook(usersSheet, userHeaders)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, u := range users {
		approvedAt := ""
		if u.ApprovedAt != nil {
			approvedAt = u.ApprovedAt.Format(timeLayout)
		}
		if err := setRow(f, usersSheet, i+2, []any{
			u.ID, u.Name, u.Email, u.Phone, u.Role,
			yesNo(u.Approved), yesNo(u.Disabled), approvedAt, u.CreatedAt.Format(timeLayout),
		}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(usersSheet, "A", "A", 38)
	_ = f.SetColWidth(usersSheet, "B", "I", 20)

	return e.write(f, w, "users")
}

// WriteBookings writes the bookings workbook to w. Prices are numeric cells.
func (e *Exporter) WriteBookings(w io.Writer, bookings []*models.Booking) error {
	f, err := newWorkbook(bookingsSheet, bookingHeaders)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, b := range bookings {
		paymentDate := ""
		if b.PaymentDate != nil {
			paymentDate = b.PaymentDate.Format(timeLayout)
		}
		assigned := ""
		if b.AssignedTo != nil {
			assigned = *b.AssignedTo
		}
		price, _ := b.Price.Float64()
		if err := setRow(f, bookingsSheet, i+2, []any{
			b.ID, b.UserID, b.ServiceType, b.Status, b.Date, b.Time, price,
			b.PaymentStatus, b.PaymentMethod, paymentDate, assigned, b.CreatedAt.Format(timeLayout),
		}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(bookingsSheet, "A", "B", 38)
	_ = f.SetColWidth(bookingsSheet, "C", "C", 26)
	_ = f.SetColWidth(bookingsSheet, "D", "L", 16)

	return e.write(f, w, "bookings")
}

func newWorkbook(sheet string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating header style: %w", err)
	}

	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := setRow(f, sheet, 1, row); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
	return f, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing row %d: %w", row, err)
	}
	return nil
}

func (e *Exporter) write(f *excelize.File, w io.Writer, name string) error {
	if e.dir != "" {
		if err := e.archive(f, name); err != nil {
			e.logger.Warn().Err(err).Str("export", name).Msg("Failed to archive export")
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing %s export: %w", name, err)
	}
	return nil
}

func (e *Exporter) archive(f *excelize.File, name string) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(e.dir, fmt.Sprintf("%s_export_%s.xlsx", name, e.now().Format("2006-01-02_15-04-05")))
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	e.logger.Info().Str("file_path", path).Msg("Excel export archived")
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
