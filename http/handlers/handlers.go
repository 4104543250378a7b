package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/http/middleware"
	resp "enrollment-crm/http/response"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/services"
	"enrollment-crm/services/kafka"
	"enrollment-crm/utils"
)

// Handler serves the CRM API on top of the services.
type Handler struct {
	Leads      *services.LeadService
	Courses    *services.CourseService
	Finance    *services.FinanceService
	Enrollment *services.EnrollmentService
	Dashboard  *services.DashboardService
	Auth       *services.AuthService
	Team       *services.TeamService
	DLQ        *kafka.DLQ
	Store      repository.Store
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp.Error(w, r, err)
}

func respondInvalid(w http.ResponseWriter, r *http.Request, err error) {
	resp.Error(w, r, apperrors.E(apperrors.Invalid, err))
}

// confirmed reports whether a destructive request was confirmed. When it
// was not, the 428 prompt has already been written.
func confirmed(w http.ResponseWriter, r *http.Request, title, message string) bool {
	if ok, _ := strconv.ParseBool(strings.TrimSpace(r.Header.Get(utils.HeaderConfirm))); ok {
		return true
	}
	if ok, _ := strconv.ParseBool(r.URL.Query().Get(utils.QueryConfirm)); ok {
		return true
	}
	resp.ConfirmationRequired(w, title, message)
	return false
}

// isEmptyBody reports whether decoding failed only because no body was sent.
func isEmptyBody(err error) bool {
	return errors.Is(err, io.EOF)
}

func currentUser(r *http.Request) models.User {
	u, _ := middleware.UserFromContext(r.Context())
	return u
}

// Health reports whether the database answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			resp.ErrorResponse(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	resp.SuccessResponse(w, http.StatusOK, "ok", nil)
}

// Bootstrap returns leads, courses and financial records in one call.
// GET /api/bootstrap
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	data, err := h.Dashboard.Bootstrap(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", data)
}

// GetDashboard returns the funnel aggregates.
// GET /api/dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Dashboard.Get(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", d)
}
