package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"celestia/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	lastColumn = "L"
)

var bookingHeaders = []interface{}{
	"ID", "User ID", "Service Type", "Status", "Date", "Time", "Price",
	"Payment Status", "Payment Method", "Assigned To", "Created At", "Updated At",
}

var errRowNotFound = errors.New("booking row not found")

// BookingSheet mirrors bookings into one sheet of a spreadsheet, one row per
// booking keyed by the id in column A.
type BookingSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

// NewBookingSheet authenticates with a service account credentials file.
func NewBookingSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*BookingSheet, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newBookingSheet(srv, spreadsheetID, sheetName), nil
}

func newBookingSheet(srv *sheets.Service, spreadsheetID, sheetName string) *BookingSheet {
	if sheetName == "" {
		sheetName = "Bookings"
	}
	return &BookingSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[string]int),
	}
}

func (s *BookingSheet) rng(format string, args ...any) string {
	return s.sheetName + "!" + fmt.Sprintf(format, args...)
}

// TestConnection reads the header row.
func (s *BookingSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles to row 1.
func (s *BookingSheet) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:%s1", lastColumn), &sheets.ValueRange{
		Values: [][]interface{}{bookingHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache rebuilds the row index from the id column.
func (s *BookingSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellID(row); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// UpsertBooking rewrites the booking's row, appending it when absent.
func (s *BookingSheet) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil || booking.ID == "" {
		return fmt.Errorf("booking is required")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendBooking(ctx, booking)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A%d:%s%d", rowIdx, lastColumn, rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *BookingSheet) appendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// FindBookingRow returns the 1-based row holding bookingID.
func (s *BookingSheet) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellID(row) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func cellID(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	if v, ok := row[0].(string); ok {
		return v
	}
	return fmt.Sprint(row[0])
}

var rangeRow = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRow extracts the starting row from an A1 range such as "Bookings!A10:L10".
func firstRow(a1 string) (int, bool) {
	m := rangeRow.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	return row, err == nil
}

func (s *BookingSheet) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *BookingSheet) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func bookingRowValues(b *models.Booking) []interface{} {
	assigned := ""
	if b.AssignedTo != nil {
		assigned = *b.AssignedTo
	}
	return []interface{}{
		b.ID,
		b.UserID,
		b.ServiceType,
		b.Status,
		b.Date,
		b.Time,
		b.Price.StringFixed(2),
		b.PaymentStatus,
		b.PaymentMethod,
		assigned,
		b.CreatedAt.Format(timeLayout),
		b.UpdatedAt.Format(timeLayout),
	}
}
