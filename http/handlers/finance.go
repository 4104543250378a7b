package handlers

import (
	"fmt"
	"io"
	"net/http"

	resp "enrollment-crm/http/response"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/services"
	"enrollment-crm/utils"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxWebhookSize  = 1 << 20
)

func recordFilter(r *http.Request) (services.RecordFilter, error) {
	after, err := utils.ParseDateParam(r, "dueAfter")
	if err != nil {
		return services.RecordFilter{}, err
	}
	before, err := utils.ParseDateParam(r, "dueBefore")
	if err != nil {
		return services.RecordFilter{}, err
	}
	q := r.URL.Query()
	return services.RecordFilter{
		Status:    models.RecordStatus(q.Get("status")),
		LeadID:    q.Get("leadId"),
		DueAfter:  after,
		DueBefore: before,
	}, nil
}

// ListRecords returns financial records by due date.
// GET /api/finance?status=&leadId=&dueAfter=&dueBefore=
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := recordFilter(r)
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	records, err := h.Finance.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", records)
}

// FinanceSummary totals the filtered records.
// GET /api/finance/summary
func (h *Handler) FinanceSummary(w http.ResponseWriter, r *http.Request) {
	f, err := recordFilter(r)
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	sum, err := h.Finance.Summary(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", sum)
}

// ExportRecords downloads the filtered records as a workbook.
// GET /api/finance/export
func (h *Handler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	f, err := recordFilter(r)
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	data, err := h.Finance.Export(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SendFile(w, xlsxContentType, "financeiro.xlsx", data)
}

// CreateRecord adds a manual financial record.
// POST /api/finance
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var in services.RecordInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.Finance.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated, "Record created", rec)
}

// UpdateRecord replaces a financial record.
// PUT /api/finance/{id}
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var in services.RecordInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.Finance.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Record updated", rec)
}

// DeleteRecord removes a financial record once confirmed.
// DELETE /api/finance/{id}
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Finance.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !confirmed(w, r, "Excluir lançamento",
		fmt.Sprintf("Deseja excluir o lançamento %s de %s (%s)?", rec.CourseName, rec.StudentName, utils.FormatBRL(rec.Amount))) {
		return
	}
	if err := h.Finance.Delete(r.Context(), rec.ID); err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Record deleted", map[string]string{"id": rec.ID})
}

// SetRecordStatus marks a record paid, pending or overdue.
// PATCH /api/finance/{id}/status
func (h *Handler) SetRecordStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.RecordStatus `json:"status"`
	}
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.Finance.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Status updated", rec)
}

// CreatePaymentOrder opens a checkout order for a record.
// POST /api/finance/{id}/payment-order
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Finance.CreatePaymentOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger.Info("Payment order %s created for record %s", order.OrderID, order.RecordID)
	resp.SuccessResponse(w, http.StatusCreated, "Payment order created", order)
}

// VerifyPayment settles a record after checkout.
// POST /api/finance/payments/verify
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyPaymentRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.Finance.VerifyPayment(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Payment verified", rec)
}

// PaymentWebhook receives Razorpay deliveries. It is authenticated by the
// X-Razorpay-Signature header instead of a session.
// POST /api/finance/payments/webhook
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookSize))
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	res, err := h.Finance.HandleWebhook(r.Context(), body, r.Header.Get("X-Razorpay-Signature"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Webhook "+res.Status, res)
}
