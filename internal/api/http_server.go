package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"celestia/internal/config"
	"celestia/internal/domain"
	"celestia/internal/logging"
	"celestia/internal/models"
	"celestia/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const internalErrorMessage = "internal server error"

// Services groups the application services behind the HTTP API.
type Services struct {
	Users        *service.UserService
	Bookings     *service.BookingService
	WorkItems    *service.WorkItemService
	Availability *service.AvailabilityService
	Reports      *service.ReportService
}

// Pinger reports whether a dependency is ready to serve.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTPServer exposes the booking API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	tokens  *TokenIssuer
	auth    *Authenticator
	limiter *rateLimiter
	ready   Pinger
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, revoked RevocationChecker, ready Pinger, logger *zerolog.Logger) *HTTPServer {
	base := *logging.Component(logger, "http")

	tokens := NewTokenIssuer(cfg.Auth)
	s := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		tokens:  tokens,
		auth:    NewAuthenticator(tokens, svc.Users, revoked, logger),
		limiter: newRateLimiter(cfg.RateLimit),
		ready:   ready,
		log:     base,
	}

	readTimeout := cfg.HTTP.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.HTTP.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.log))
	r.Use(recoverer(s.log))
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.handleSignup)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)

			// Pending accounts may still read their own profile.
			r.Get("/users/{id}", s.handleGetUser)

			r.Group(func(r chi.Router) {
				r.Use(requireApproved)

				r.Group(func(r chi.Router) {
					r.Use(requireRoles(models.RoleAdmin))
					r.Get("/users", s.handleListUsers)
					r.Post("/users/{id}/approve", s.handleApproveUser)
					r.Post("/users/{id}/disable", s.handleSetDisabled(true))
					r.Post("/users/{id}/enable", s.handleSetDisabled(false))
					r.Delete("/users/{id}", s.handleDeleteUser)
					r.Get("/admin/export/users.xlsx", s.handleExportUsers)
					r.Get("/admin/export/bookings.xlsx", s.handleExportBookings)
				})

				r.Get("/bookings", s.handleListBookings)
				r.With(requireRoles(models.RoleVoyager, models.RoleAdmin)).Post("/bookings", s.handleCreateBooking)
				r.Get("/bookings/{id}", s.handleGetBooking)
				r.Get("/bookings/{id}/summary", s.handleBookingSummary)
				r.With(requireStaff).Patch("/bookings/{id}", s.handleUpdateBooking)
				r.Post("/bookings/{id}/cancel", s.handleCancelBooking)
				r.Post("/bookings/{id}/pay", s.handlePayBooking)
				r.With(requireRoles(models.RoleManager, models.RoleAdmin)).Put("/bookings/{id}/assignStaff", s.handleAssignBookingStaff)

				r.Get("/services/availability", s.handleGetAvailability)
				r.With(requireRoles(models.RoleManager, models.RoleAdmin)).Patch("/services/availability", s.handleUpdateAvailability)
				r.Get("/services/catalog", s.handleCatalog)

				r.Group(func(r chi.Router) {
					r.Use(requireRoles(models.RoleSupervisor, models.RoleAdmin))
					r.Get("/maintenanceRequests", s.handleListWorkItems)
					r.Get("/maintenanceRequests/{id}", s.handleGetWorkItem)
					r.Put("/maintenanceRequests/{id}/status", s.handleWorkItemStatus)
					r.Put("/maintenanceRequests/{id}/assignStaff", s.handleWorkItemAssign)
					r.Put("/maintenanceRequests/{id}/notes", s.handleWorkItemNotes)
				})

				r.With(requireStaff).Get("/staff", s.handleStaffRoster)
				r.With(requireRoles(models.RoleAdmin, models.RoleManager)).Get("/admin/metrics", s.handleAdminMetrics)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fail maps a service error to its status code. Unexpected errors are logged
// and answered with a generic message.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().
			Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, internalErrorMessage)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPolicyViolation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", domain.ErrValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
