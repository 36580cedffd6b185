package api

import (
	"fmt"
	"net/http"
	"strings"

	"celestia/internal/domain"
	"celestia/internal/models"
	"celestia/internal/service"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type signupResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.svc.Users.Signup(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{User: user, Token: token})
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	id := chi.URLParam(r, "id")
	if caller.ID != id && (caller.Role != models.RoleAdmin || !caller.Approved) {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users.ListUsers(r.Context(), strings.TrimSpace(r.URL.Query().Get("role")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	user, err := s.svc.Users.Approve(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), strings.TrimSpace(body.Role))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleSetDisabled(disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.svc.Users.SetDisabled(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), disabled)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Users.DeleteUser(r.Context(), callerFrom(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("user %s deleted", id)})
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		UserID:      strings.TrimSpace(q.Get("userId")),
		Status:      strings.TrimSpace(q.Get("status")),
		ServiceType: strings.TrimSpace(q.Get("serviceType")),
	}

	bookings, err := s.svc.Bookings.ListBookings(r.Context(), callerFrom(r.Context()), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBookingInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), callerFrom(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBooking(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Bookings.Summary(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	var patch service.BookingPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.UpdateBooking(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handlePayBooking(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.BookingID = chi.URLParam(r, "id")
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	result, err := s.svc.Bookings.PayBooking(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type assignRequest struct {
	StaffID string `json:"staffId"`
}

func (s *HTTPServer) handleAssignBookingStaff(w http.ResponseWriter, r *http.Request) {
	var body assignRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.AssignStaff(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), body.StaffID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := s.svc.Availability.Get(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (s *HTTPServer) handleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	var patch map[string]bool
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	availability, err := s.svc.Availability.Update(r.Context(), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": models.Catalog})
}

func (s *HTTPServer) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.WorkItems.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("type")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleGetWorkItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.WorkItems.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleWorkItemStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	item, err := s.svc.WorkItems.UpdateStatus(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleWorkItemAssign(w http.ResponseWriter, r *http.Request) {
	var body assignRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	item, err := s.svc.WorkItems.AssignStaff(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), body.StaffID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleWorkItemNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes *string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Notes == nil {
		s.fail(w, r, fmt.Errorf("notes is required: %w", domain.ErrValidation))
		return
	}

	item, err := s.svc.WorkItems.SaveNotes(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), *body.Notes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleStaffRoster(w http.ResponseWriter, r *http.Request) {
	staff, err := s.svc.Users.StaffRoster(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (s *HTTPServer) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Reports.Metrics(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="users.xlsx"`)
	if err := s.svc.Reports.ExportUsers(r.Context(), w); err != nil {
		s.fail(w, r, err)
	}
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	if err := s.svc.Reports.ExportBookings(r.Context(), w); err != nil {
		s.fail(w, r, err)
	}
}
