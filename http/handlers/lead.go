package handlers

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "enrollment-crm/errors"
	resp "enrollment-crm/http/response"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/services"
	"enrollment-crm/utils"
)

const maxImportSize = 10 << 20

func leadFilter(r *http.Request) (services.LeadFilter, error) {
	timeParams, err := utils.ParseTimeFilters(r)
	if err != nil {
		return services.LeadFilter{}, err
	}
	inDoubt, err := utils.ParseBoolParam(r, "inDoubt")
	if err != nil {
		return services.LeadFilter{}, err
	}
	q := r.URL.Query()
	return services.LeadFilter{
		Status:        models.LeadStatus(q.Get("status")),
		AssignedTo:    q.Get("assignedTo"),
		Source:        q.Get("source"),
		Search:        q.Get("q"),
		InDoubt:       inDoubt,
		CreatedAfter:  timeParams.CreatedAfter,
		CreatedBefore: timeParams.CreatedBefore,
	}, nil
}

// ListLeads returns leads, newest first.
// GET /api/leads?status=&assignedTo=&source=&q=&inDoubt=&created_after=&created_before=
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	f, err := leadFilter(r)
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	leads, err := h.Leads.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", leads)
}

// GetLead returns one lead.
// GET /api/leads/{id}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Leads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", lead)
}

// CreateLead registers a lead.
// POST /api/leads
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var in services.LeadInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	lead, err := h.Leads.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated, "Lead created", lead)
}

// UpdateLead replaces the writable fields of a lead.
// PUT /api/leads/{id}
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var in services.LeadInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	lead, err := h.Leads.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Lead updated", lead)
}

// DeleteLead removes a lead once confirmed.
// DELETE /api/leads/{id}
func (h *Handler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Leads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !confirmed(w, r, "Excluir lead", fmt.Sprintf("Deseja excluir o lead %s?", lead.Name)) {
		return
	}
	if err := h.Leads.Delete(r.Context(), lead.ID); err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Lead deleted", map[string]string{"id": lead.ID})
}

// ChangeLeadStatus moves a lead through the funnel. Moving to
// Matrícula Confirmada enrolls it.
// PATCH /api/leads/{id}/status
func (h *Handler) ChangeLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.LeadStatus `json:"status"`
	}
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	lead, err := h.Leads.ChangeStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Status updated", lead)
}

// AddLeadNote appends a note.
// POST /api/leads/{id}/notes
func (h *Handler) AddLeadNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	lead, err := h.Leads.AddNote(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Note added", lead)
}

// ScheduleLead sets the next action date.
// PUT /api/leads/{id}/schedule
func (h *Handler) ScheduleLead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	lead, err := h.Leads.Schedule(r.Context(), r.PathValue("id"), req.Date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Follow-up scheduled", lead)
}

// EnrollLead opens the enrollment fee and first tuition for a lead.
// POST /api/leads/{id}/enroll
func (h *Handler) EnrollLead(w http.ResponseWriter, r *http.Request) {
	res, err := h.Enrollment.Enroll(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated,
		fmt.Sprintf("Matrícula realizada: %d lançamentos, total %s", len(res.Records), utils.FormatBRL(res.Total())), res)
}

// NextInstallment opens the tuition installment after the last one.
// POST /api/leads/{id}/installments
func (h *Handler) NextInstallment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Enrollment.GenerateNextInstallment(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated, "Installment created", rec)
}

// LeadStatement downloads the PDF statement of a lead.
// GET /api/leads/{id}/statement
func (h *Handler) LeadStatement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pdf, err := h.Finance.Statement(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SendFile(w, "application/pdf", "extrato-"+id+".pdf", pdf)
}

// ImportLeads creates leads from an uploaded .xlsx file.
// POST /api/leads/import (multipart field "file")
func (h *Handler) ImportLeads(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondInvalid(w, r, apperrors.E("missing or unreadable upload field \"file\"", err))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		respondInvalid(w, r, apperrors.E("only .xlsx files are accepted"))
		return
	}

	logger.Info("Processing lead import: %s", header.Filename)
	report, err := h.Leads.Import(r.Context(), file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger.Info("Lead import completed: %d created, %d skipped", report.Created, len(report.Skipped))
	resp.SuccessResponse(w, http.StatusOK,
		fmt.Sprintf("Successfully imported %d leads", report.Created), report)
}

// Agenda lists scheduled follow-ups.
// GET /api/agenda?from=YYYY-MM-DD&to=YYYY-MM-DD&assignedTo=
func (h *Handler) Agenda(w http.ResponseWriter, r *http.Request) {
	from, err := utils.ParseDateParam(r, "from")
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	to, err := utils.ParseDateParam(r, "to")
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	leads, err := h.Leads.Agenda(r.Context(), from, to, r.URL.Query().Get("assignedTo"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", leads)
}
