package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"celestia/internal/config"
	"celestia/internal/database"
	"celestia/internal/domain"
	"celestia/internal/events"
	"celestia/internal/export"
	"celestia/internal/models"
	"celestia/internal/repository"
	"celestia/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testAuthConfig = config.APIAuthConfig{
	JWTSecret: "test-secret-0123456789",
	Issuer:    "celestia-test",
	TokenTTL:  time.Hour,
}

type apiEnv struct {
	db    *database.DB
	users *service.UserService
	srv   *HTTPServer
}

func newAPIEnv(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	state := repository.NewMemoryStateRepository()
	bus := events.NewEventBus()
	availability := service.NewAvailabilityService(db, &logger)
	require.NoError(t, availability.EnsureDefaults(context.Background()))

	svc := Services{
		Users:        service.NewUserService(db, state, bus, &logger),
		Bookings:     service.NewBookingService(db, state, availability, bus, nil, time.Hour, &logger),
		WorkItems:    service.NewWorkItemService(db, bus, nil, &logger),
		Availability: availability,
		Reports:      service.NewReportService(db, export.NewExporter("", &logger)),
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth = testAuthConfig
	}
	return &apiEnv{db: db, users: svc.Users, srv: NewHTTPServer(cfg, svc, state, db, &logger)}
}

// addUser stores an approved user and returns it with a bearer token.
func (e *apiEnv) addUser(t *testing.T, name, role string) (*models.User, string) {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Name: name, Email: name + "@ship.test", Role: role}
	require.NoError(t, e.db.CreateUser(ctx, u))
	approved, err := e.users.Approve(ctx, nil, u.ID, role)
	require.NoError(t, err)
	token, err := e.srv.tokens.Issue(u.ID)
	require.NoError(t, err)
	return approved, token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

var cateringBooking = map[string]any{
	"serviceType": models.ServiceCatering,
	"details":     map[string]string{"mealType": "dinner", "time": "19:00", "quantity": "2"},
	"price":       20,
}

func TestHealthAndReady(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = env.do(t, http.MethodGet, "/readyz", "", nil, requestIDHeader, "req-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))

	rec = env.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignup(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	_, _ = env.addUser(t, "admin", models.RoleAdmin)
	other, _ := env.addUser(t, "other", models.RoleVoyager)

	rec := env.do(t, http.MethodPost, "/api/users", "", map[string]string{"name": "Ann", "email": "ann@ship.test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[signupResponse](t, rec)
	assert.Equal(t, models.RoleVoyager, resp.User.Role)
	assert.False(t, resp.User.Approved)
	require.NotEmpty(t, resp.Token)

	t.Run("pending user reads own profile", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/users/"+resp.User.ID, resp.Token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("pending user cannot book", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/bookings", resp.Token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "account pending approval", errorMessage(t, rec))
	})

	t.Run("cannot read other profiles", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/users/"+other.ID, resp.Token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/users", "", map[string]string{"name": "Ann", "email": "ann@ship.test"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/users", "", map[string]string{"nickname": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthentication(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	admin, adminToken := env.addUser(t, "admin", models.RoleAdmin)
	voyager, voyagerToken := env.addUser(t, "voyager", models.RoleVoyager)
	gone, goneToken := env.addUser(t, "gone", models.RoleVoyager)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookings", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookings", "not-a-token", nil).Code)

	foreign := NewTokenIssuer(config.APIAuthConfig{JWTSecret: "another-secret-9876543210", Issuer: testAuthConfig.Issuer})
	forged, err := foreign.Issue(admin.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookings", forged, nil).Code)

	rec := env.do(t, http.MethodPost, "/api/users/"+voyager.ID+"/disable", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/bookings", voyagerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account disabled", errorMessage(t, rec))

	rec = env.do(t, http.MethodPost, "/api/users/"+voyager.ID+"/enable", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/bookings", voyagerToken, nil).Code)

	profile := decodeBody[models.User](t, env.do(t, http.MethodGet, "/api/users/"+voyager.ID, adminToken, nil))
	assert.Equal(t, voyager.ID, profile.ID)

	users := decodeBody[map[string][]models.User](t, env.do(t, http.MethodGet, "/api/users", adminToken, nil))
	assert.Len(t, users["users"], 3)

	rec = env.do(t, http.MethodDelete, "/api/users/"+gone.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/bookings", goneToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "credentials revoked", errorMessage(t, rec))
}

func TestRoleGates(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	_, voyagerToken := env.addUser(t, "voyager", models.RoleVoyager)
	_, managerToken := env.addUser(t, "manager", models.RoleManager)
	_, cookToken := env.addUser(t, "cook", models.RoleHeadCook)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"voyager lists users", http.MethodGet, "/api/users", voyagerToken, nil, http.StatusForbidden},
		{"voyager reads metrics", http.MethodGet, "/api/admin/metrics", voyagerToken, nil, http.StatusForbidden},
		{"manager reads metrics", http.MethodGet, "/api/admin/metrics", managerToken, nil, http.StatusOK},
		{"manager exports", http.MethodGet, "/api/admin/export/users.xlsx", managerToken, nil, http.StatusForbidden},
		{"voyager lists work items", http.MethodGet, "/api/maintenanceRequests?type=maintenance", voyagerToken, nil, http.StatusForbidden},
		{"voyager reads roster", http.MethodGet, "/api/staff", voyagerToken, nil, http.StatusForbidden},
		{"cook reads roster", http.MethodGet, "/api/staff", cookToken, nil, http.StatusOK},
		{"cook books", http.MethodPost, "/api/bookings", cookToken, cateringBooking, http.StatusForbidden},
		{"voyager toggles availability", http.MethodPatch, "/api/services/availability", voyagerToken, map[string]bool{"catering": false}, http.StatusForbidden},
		{"voyager reads catalog", http.MethodGet, "/api/services/catalog", voyagerToken, nil, http.StatusOK},
		{"voyager reads availability", http.MethodGet, "/api/services/availability", voyagerToken, nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestBookingPaymentFlow(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	voyager, voyagerToken := env.addUser(t, "voyager", models.RoleVoyager)
	cook, cookToken := env.addUser(t, "cook", models.RoleHeadCook)
	_, outsiderToken := env.addUser(t, "outsider", models.RoleVoyager)

	rec := env.do(t, http.MethodPost, "/api/bookings", voyagerToken, cateringBooking)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decodeBody[models.Booking](t, rec)
	assert.Equal(t, voyager.ID, booking.UserID)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Nil(t, booking.AssignedTo)

	payPath := "/api/bookings/" + booking.ID + "/pay"

	rec = env.do(t, http.MethodPost, payPath, voyagerToken, map[string]any{"paymentMethod": "card", "amount": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "insufficient")

	rec = env.do(t, http.MethodPost, payPath, outsiderToken, map[string]any{"paymentMethod": "card", "amount": 20})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, payPath, voyagerToken, map[string]any{"paymentMethod": "card", "amount": 20}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[models.PaymentResult](t, rec)
	assert.Equal(t, booking.ID, first.BookingID)

	rec = env.do(t, http.MethodPost, payPath, voyagerToken, map[string]any{"paymentMethod": "card", "amount": 20}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, decodeBody[models.PaymentResult](t, rec))

	rec = env.do(t, http.MethodPost, payPath, voyagerToken, map[string]any{"paymentMethod": "card", "amount": 20})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/bookings/"+booking.ID, voyagerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decodeBody[models.Booking](t, rec)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, models.StatusApproved, paid.Status)
	require.NotNil(t, paid.AssignedTo)
	assert.Equal(t, cook.ID, *paid.AssignedTo)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/bookings/"+booking.ID, outsiderToken, nil).Code)

	t.Run("staff drives the overlay", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, "/api/bookings/"+booking.ID, cookToken, map[string]string{"status": models.StatusPreparing})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, models.StatusPreparing, decodeBody[models.Booking](t, rec).Status)

		rec = env.do(t, http.MethodPatch, "/api/bookings/"+booking.ID, cookToken, map[string]string{"status": models.StatusPending})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = env.do(t, http.MethodPatch, "/api/bookings/"+booking.ID, voyagerToken, map[string]string{"status": models.StatusReady})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("voyager listing is scoped to own bookings", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/bookings", outsiderToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody[map[string][]models.Booking](t, rec)["bookings"])

		rec = env.do(t, http.MethodGet, "/api/bookings?userId="+voyager.ID, cookToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[map[string][]models.Booking](t, rec)["bookings"], 1)
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := env.do(t, http.MethodPost, "/api/bookings/"+booking.ID+"/cancel", voyagerToken, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, models.StatusCancelled, decodeBody[models.Booking](t, rec).Status)
		}
	})
}

func TestWorkItemRoutes(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	_, voyagerToken := env.addUser(t, "voyager", models.RoleVoyager)
	supervisor, supervisorToken := env.addUser(t, "supervisor", models.RoleSupervisor)

	rec := env.do(t, http.MethodPost, "/api/bookings", voyagerToken, map[string]any{
		"serviceType": models.ServiceFacilityMaintenance,
		"details":     map[string]string{"requestType": "repair", "facility": "Cabin 12", "issue": "leaking tap"},
		"price":       10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decodeBody[models.Booking](t, rec)

	rec = env.do(t, http.MethodPost, "/api/bookings/"+booking.ID+"/pay", voyagerToken, map[string]any{"paymentMethod": "cash", "amount": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[models.PaymentResult](t, rec)
	require.NotEmpty(t, result.WorkItemID)

	rec = env.do(t, http.MethodGet, "/api/maintenanceRequests?type=maintenance", supervisorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody[map[string][]models.WorkItem](t, rec)["items"]
	require.Len(t, items, 1)
	assert.Equal(t, booking.ID, items[0].BookingID)
	require.NotNil(t, items[0].AssignedStaff)
	assert.Equal(t, supervisor.ID, *items[0].AssignedStaff)

	rec = env.do(t, http.MethodGet, "/api/maintenanceRequests?type=laundry", supervisorToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	itemPath := "/api/maintenanceRequests/" + result.WorkItemID
	rec = env.do(t, http.MethodPut, itemPath+"/notes", supervisorToken, map[string]string{"notes": "washer replaced"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "washer replaced", decodeBody[models.WorkItem](t, rec).Notes)

	rec = env.do(t, http.MethodPut, itemPath+"/assignStaff", supervisorToken, map[string]string{"staffId": "nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, itemPath+"/status", supervisorToken, map[string]string{"status": models.WorkItemResolved})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/bookings/"+booking.ID, voyagerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCompleted, decodeBody[models.Booking](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/bookings/"+booking.ID+"/summary", voyagerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[models.BookingSummary](t, rec)
	assert.Equal(t, result.WorkItemID, summary.WorkItemID)
	assert.Equal(t, models.WorkItemResolved, summary.WorkItemState)
}

func TestAvailabilityToggle(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	_, voyagerToken := env.addUser(t, "voyager", models.RoleVoyager)
	_, managerToken := env.addUser(t, "manager", models.RoleManager)

	rec := env.do(t, http.MethodPatch, "/api/services/availability", managerToken, map[string]bool{models.AvailCatering: false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[map[string]bool](t, rec)[models.AvailCatering])

	rec = env.do(t, http.MethodPost, "/api/bookings", voyagerToken, cateringBooking)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "unavailable")
}

func TestExportBookings(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	_, adminToken := env.addUser(t, "admin", models.RoleAdmin)
	_, voyagerToken := env.addUser(t, "voyager", models.RoleVoyager)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/bookings", voyagerToken, cateringBooking).Code)

	rec := env.do(t, http.MethodGet, "/api/admin/export/bookings.xlsx", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRateLimit(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1}})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).Code)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", errorMessage(t, rec))
}

func TestFailHidesUnexpectedErrors(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	rec := httptest.NewRecorder()
	env.srv.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, internalErrorMessage, errorMessage(t, rec))

	rec = httptest.NewRecorder()
	env.srv.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("booking b1: %w", domain.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "booking b1: not found", errorMessage(t, rec))
}
