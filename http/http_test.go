package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"enrollment-crm/http/handlers"
	"enrollment-crm/models"
	"enrollment-crm/repository/inmem"
	"enrollment-crm/services"
	"enrollment-crm/services/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type apiEnv struct {
	store  *inmem.Store
	router http.Handler
	tokens map[models.UserRole]string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := inmem.New()
	deps := &services.Deps{Store: store, Location: time.UTC}
	auth := services.NewAuthService(deps, "test-secret", time.Hour)
	enrollment := services.NewEnrollmentService(deps)
	h := &handlers.Handler{
		Leads:      services.NewLeadService(deps, enrollment),
		Courses:    services.NewCourseService(deps),
		Finance:    services.NewFinanceService(deps, nil, ""),
		Enrollment: enrollment,
		Dashboard:  services.NewDashboardService(deps, time.Minute),
		Auth:       auth,
		Team:       services.NewTeamService(deps),
		DLQ:        kafka.NewDLQ(store, nil, kafka.NewDispatcher()),
		Store:      store,
	}
	env := &apiEnv{
		store:  store,
		router: NewRouter(h, auth, []string{"http://localhost:5173"}),
		tokens: map[models.UserRole]string{},
	}

	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleConsultant, models.RoleFinance} {
		email := strings.ToLower(string(role)) + "@escola.com"
		hash, err := services.HashPassword("s3cret-pass")
		require.NoError(t, err)
		require.NoError(t, store.CreateUser(context.Background(), models.UserRow{
			ID:           "U-" + string(role),
			Email:        email,
			Role:         sql.NullString{String: string(role), Valid: true},
			PasswordHash: hash,
		}))

		rec := env.do(t, "", http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "s3cret-pass"}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var session services.Session
		decodeData(t, rec, &session)
		env.tokens[role] = session.Token
	}
	return env
}

func (e *apiEnv) do(t *testing.T, token, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) as(t *testing.T, role models.UserRole, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, e.tokens[role], method, path, body, nil)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
	return env
}

func TestAuthFlow(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "", http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@escola.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, "", http.MethodGet, "/api/auth/session", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.as(t, models.RoleAdmin, http.MethodGet, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decodeData(t, rec, &user)
	assert.Equal(t, "U-ADMIN", user.ID)
	assert.Equal(t, models.RoleAdmin, user.Role)

	rec = env.as(t, models.RoleAdmin, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.as(t, models.RoleAdmin, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGates(t *testing.T) {
	env := newAPIEnv(t)
	course := map[string]interface{}{"name": "Direito", "price": 1000, "enrollmentFee": 500, "enrollmentDiscount": 300, "duration": "5 Anos"}

	rec := env.as(t, models.RoleConsultant, http.MethodPost, "/api/courses", course)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.as(t, models.RoleConsultant, http.MethodGet, "/api/team", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.as(t, models.RoleFinance, http.MethodPost, "/api/leads", map[string]string{"name": "Ana"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.as(t, models.RoleAdmin, http.MethodPost, "/api/courses", course)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = env.as(t, models.RoleConsultant, http.MethodGet, "/api/courses", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteLeadNeedsConfirmation(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.as(t, models.RoleConsultant, http.MethodPost, "/api/leads", map[string]string{"name": "Ana", "email": "ana@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lead models.Lead
	decodeData(t, rec, &lead)
	assert.Equal(t, models.LeadStatusNew, lead.Status)

	rec = env.as(t, models.RoleConsultant, http.MethodDelete, "/api/leads/"+lead.ID, nil)
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	var prompt struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	decodeData(t, rec, &prompt)
	assert.Equal(t, "Excluir lead", prompt.Title)
	assert.Contains(t, prompt.Message, "Ana")

	rec = env.do(t, env.tokens[models.RoleConsultant], http.MethodDelete, "/api/leads/"+lead.ID, nil,
		http.Header{"X-Confirm": []string{"true"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.as(t, models.RoleConsultant, http.MethodGet, "/api/leads/"+lead.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.as(t, models.RoleConsultant, http.MethodDelete, "/api/leads/"+lead.ID+"?confirm=true", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrollThroughAPI(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.as(t, models.RoleAdmin, http.MethodPost, "/api/courses",
		map[string]interface{}{"name": "Direito", "price": 1000, "enrollmentFee": 500, "duration": "5 Anos"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var course models.Course
	decodeData(t, rec, &course)

	rec = env.as(t, models.RoleConsultant, http.MethodPost, "/api/leads",
		map[string]interface{}{"name": "Ana", "email": "ana@x.com", "courseIds": []string{course.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lead models.Lead
	decodeData(t, rec, &lead)

	rec = env.as(t, models.RoleConsultant, http.MethodPost, "/api/leads/"+lead.ID+"/enroll", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res services.EnrollmentResult
	body := decodeData(t, rec, &res)
	assert.Equal(t, models.LeadStatusEnrolled, res.Lead.Status)
	assert.Len(t, res.Records, 2)
	assert.Contains(t, body.Message, "R$ 1.500,00")

	rec = env.as(t, models.RoleConsultant, http.MethodPost, "/api/leads/"+lead.ID+"/enroll", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.as(t, models.RoleFinance, http.MethodGet, "/api/finance?leadId="+lead.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.FinancialRecord
	decodeData(t, rec, &records)
	assert.Len(t, records, 2)

	rec = env.as(t, models.RoleFinance, http.MethodGet, "/api/leads/"+lead.ID+"/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = env.as(t, models.RoleFinance, http.MethodGet, "/api/finance/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "financeiro.xlsx")

	rec = env.as(t, models.RoleFinance, http.MethodPost, "/api/finance/"+records[0].ID+"/payment-order", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "payments are not configured")
}

func TestFinanceQueryValidation(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.as(t, models.RoleFinance, http.MethodGet, "/api/finance?dueAfter=10/03/2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.as(t, models.RoleFinance, http.MethodGet, "/api/finance?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.as(t, models.RoleFinance, http.MethodGet, "/api/leads?created_after=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportLeadsUpload(t *testing.T) {
	env := newAPIEnv(t)

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Nome", "Email", "Telefone"},
		{"Ana", "ana@x.com", "11987654321"},
		{"Ana de novo", "ana@x.com", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	wb, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "leads.xlsx")
	require.NoError(t, err)
	_, err = part.Write(wb.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.tokens[models.RoleConsultant])
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report services.ImportReport
	decodeData(t, rec, &report)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 3, report.Skipped[0].Line)
}

func TestTeamSelfDeleteForbidden(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.as(t, models.RoleAdmin, http.MethodDelete, "/api/team/U-ADMIN?confirm=true", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.as(t, models.RoleAdmin, http.MethodDelete, "/api/team/U-FINANCE", nil)
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	rec = env.as(t, models.RoleAdmin, http.MethodDelete, "/api/team/U-FINANCE?confirm=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "", http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	env.store.Fail("Ping", errors.New("connection refused"))
	rec = env.do(t, "", http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, "", http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "", http.MethodOptions, "/api/leads", nil, http.Header{"Origin": []string{"http://localhost:5173"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Confirm")

	rec = env.do(t, "", http.MethodOptions, "/api/leads", nil, http.Header{"Origin": []string{"http://evil.test"}})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDLQEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	require.NoError(t, env.store.StoreDLQMessage(context.Background(), models.DLQMessage{
		Topic: "crm.notifications", Key: "L1", Value: `{"event":"unknown"}`, ErrorMessage: "boom", MaxRetries: 3,
	}))

	rec := env.as(t, models.RoleAdmin, http.MethodGet, "/api/dlq/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int                 `json:"count"`
		Data  []models.DLQMessage `json:"data"`
	}
	decodeData(t, rec, &listing)
	require.Equal(t, 1, listing.Count)
	id := listing.Data[0].MessageID

	rec = env.as(t, models.RoleAdmin, http.MethodPost, "/api/dlq/messages/"+id+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.as(t, models.RoleAdmin, http.MethodPost, "/api/dlq/messages/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.as(t, models.RoleAdmin, http.MethodGet, "/api/dlq/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhookSkipsSessionAuth(t *testing.T) {
	env := newAPIEnv(t)

	// No session token: the route answers from the finance service, which
	// rejects the delivery because no webhook secret is configured.
	rec := env.do(t, "", http.MethodPost, "/api/finance/payments/webhook",
		map[string]string{"event": "payment.captured"},
		http.Header{"X-Razorpay-Signature": {"deadbeef"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
