package http

import (
	"net/http"

	"enrollment-crm/http/handlers"
	"enrollment-crm/http/middleware"
	"enrollment-crm/metrics"
	"enrollment-crm/models"
)

var (
	leadWriters    = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleConsultant}
	courseWriters  = []models.UserRole{models.RoleAdmin, models.RoleManager}
	financeWriters = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleFinance}
	admins         = []models.UserRole{models.RoleAdmin}
)

// NewRouter configures all HTTP routes and middleware
func NewRouter(h *handlers.Handler, auth middleware.Authenticator, origins []string) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.RequireAuth(auth)
	read := func(fn http.HandlerFunc) http.Handler {
		return authed(fn)
	}
	write := func(roles []models.UserRole, fn http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(roles...)(fn))
	}

	// Operational
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// Session APIs
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.Handle("GET /api/auth/session", read(h.CurrentSession))
	mux.Handle("POST /api/auth/logout", read(h.Logout))

	mux.Handle("GET /api/bootstrap", read(h.Bootstrap))
	mux.Handle("GET /api/dashboard", read(h.GetDashboard))

	// Lead Management APIs
	mux.Handle("GET /api/leads", read(h.ListLeads))
	mux.Handle("POST /api/leads", write(leadWriters, h.CreateLead))
	mux.Handle("POST /api/leads/import", write(leadWriters, h.ImportLeads))
	mux.Handle("GET /api/leads/{id}", read(h.GetLead))
	mux.Handle("PUT /api/leads/{id}", write(leadWriters, h.UpdateLead))
	mux.Handle("DELETE /api/leads/{id}", write(leadWriters, h.DeleteLead))
	mux.Handle("PATCH /api/leads/{id}/status", write(leadWriters, h.ChangeLeadStatus))
	mux.Handle("POST /api/leads/{id}/notes", write(leadWriters, h.AddLeadNote))
	mux.Handle("PUT /api/leads/{id}/schedule", write(leadWriters, h.ScheduleLead))
	mux.Handle("POST /api/leads/{id}/enroll", write(leadWriters, h.EnrollLead))
	mux.Handle("POST /api/leads/{id}/installments", write(financeWriters, h.NextInstallment))
	mux.Handle("GET /api/leads/{id}/statement", read(h.LeadStatement))
	mux.Handle("GET /api/agenda", read(h.Agenda))

	// Course Management APIs
	mux.Handle("GET /api/courses", read(h.ListCourses))
	mux.Handle("POST /api/courses", write(courseWriters, h.CreateCourse))
	mux.Handle("GET /api/courses/{id}", read(h.GetCourse))
	mux.Handle("PUT /api/courses/{id}", write(courseWriters, h.UpdateCourse))
	mux.Handle("DELETE /api/courses/{id}", write(courseWriters, h.DeleteCourse))
	mux.Handle("PATCH /api/courses/{id}/active", write(courseWriters, h.ToggleCourse))

	// Finance APIs
	mux.Handle("GET /api/finance", read(h.ListRecords))
	mux.Handle("POST /api/finance", write(financeWriters, h.CreateRecord))
	mux.Handle("GET /api/finance/summary", read(h.FinanceSummary))
	mux.Handle("GET /api/finance/export", read(h.ExportRecords))
	mux.Handle("PUT /api/finance/{id}", write(financeWriters, h.UpdateRecord))
	mux.Handle("DELETE /api/finance/{id}", write(financeWriters, h.DeleteRecord))
	mux.Handle("PATCH /api/finance/{id}/status", write(financeWriters, h.SetRecordStatus))
	mux.Handle("POST /api/finance/{id}/payment-order", write(financeWriters, h.CreatePaymentOrder))
	mux.Handle("POST /api/finance/payments/verify", write(financeWriters, h.VerifyPayment))
	mux.HandleFunc("POST /api/finance/payments/webhook", h.PaymentWebhook)

	// Team APIs
	mux.Handle("GET /api/team", write(admins, h.ListTeam))
	mux.Handle("POST /api/team", write(admins, h.CreateTeamMember))
	mux.Handle("PUT /api/team/{id}", write(admins, h.UpdateTeamMember))
	mux.Handle("DELETE /api/team/{id}", write(admins, h.DeleteTeamMember))

	// DLQ Management APIs
	mux.Handle("GET /api/dlq/messages", write(admins, h.GetDLQMessages))
	mux.Handle("POST /api/dlq/messages/{id}/retry", write(admins, h.RetryDLQMessage))
	mux.Handle("POST /api/dlq/messages/{id}/resolve", write(admins, h.ResolveDLQMessage))
	mux.Handle("GET /api/dlq/stats", write(admins, h.GetDLQStats))

	return middleware.Instrument(middleware.EnableCORS(origins)(mux))
}
