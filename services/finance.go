package services

import (
	"context"
	"strings"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/metrics"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"
)

// RecordFilter narrows List. Due bounds are inclusive.
type RecordFilter struct {
	Status    models.RecordStatus
	LeadID    string
	DueAfter  *time.Time
	DueBefore *time.Time
}

// RecordInput is the writable part of a financial record.
type RecordInput struct {
	LeadID      string              `json:"leadId"`
	StudentName string              `json:"studentName" validate:"required,max=100"`
	CourseName  string              `json:"courseName" validate:"required,max=200"`
	Amount      float64             `json:"amount" validate:"gte=0"`
	DueDate     string              `json:"dueDate" validate:"required,datetime=2006-01-02"`
	Status      models.RecordStatus `json:"status"`
	Installment string              `json:"installment" validate:"max=20"`
}

// FinanceSummary totals the records per status.
type FinanceSummary struct {
	Total        float64                     `json:"total"`
	TotalPaid    float64                     `json:"totalPaid"`
	TotalPending float64                     `json:"totalPending"`
	TotalOverdue float64                     `json:"totalOverdue"`
	Count        int                         `json:"count"`
	ByStatus     map[models.RecordStatus]int `json:"byStatus"`
}

type FinanceService struct {
	deps          *Deps
	gateway       PaymentGateway
	currency      string
	webhookSecret string
}

// NewFinanceService wires the finance operations. A nil gateway disables
// online payments.
func NewFinanceService(d *Deps, gateway PaymentGateway, currency string) *FinanceService {
	if currency == "" {
		currency = "BRL"
	}
	return &FinanceService{deps: d.withDefaults(), gateway: gateway, currency: currency}
}

func (s *FinanceService) List(ctx context.Context, f RecordFilter) ([]models.FinancialRecord, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, apperrors.E(apperrors.Invalid, "unknown record status %q", string(f.Status))
	}
	rows, err := s.deps.Store.ListRecords(ctx, repository.RecordQuery{
		Status:    f.Status,
		LeadID:    f.LeadID,
		DueAfter:  f.DueAfter,
		DueBefore: f.DueBefore,
	})
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "loading financial records", err)
	}
	return normalizeRecords(rows), nil
}

func (s *FinanceService) Get(ctx context.Context, id string) (models.FinancialRecord, error) {
	row, err := s.deps.Store.GetRecord(ctx, id)
	if err != nil {
		return models.FinancialRecord{}, err
	}
	return NormalizeFinancialRecord(row), nil
}

func (s *FinanceService) validate(ctx context.Context, in *RecordInput) error {
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.CourseName = strings.TrimSpace(in.CourseName)
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = models.RecordPending
	} else if !in.Status.IsValid() {
		return apperrors.E(apperrors.Invalid, "unknown record status %q", string(in.Status))
	}
	if in.LeadID != "" {
		if _, err := s.deps.Store.GetLead(ctx, in.LeadID); err != nil {
			if apperrors.IsKind(err, apperrors.NotFound) {
				return apperrors.E(apperrors.Invalid, "unknown lead %s", in.LeadID)
			}
			return err
		}
	}
	return nil
}

// Create stores a manual record.
func (s *FinanceService) Create(ctx context.Context, in RecordInput) (models.FinancialRecord, error) {
	if err := s.validate(ctx, &in); err != nil {
		return models.FinancialRecord{}, err
	}

	now := s.deps.Now()
	rec := models.FinancialRecord{
		ID:          s.deps.NewID(),
		LeadID:      in.LeadID,
		StudentName: in.StudentName,
		CourseName:  in.CourseName,
		Amount:      utils.RoundCents(in.Amount),
		DueDate:     in.DueDate,
		Status:      in.Status,
		Installment: in.Installment,
		CreatedAt:   now,
	}
	if rec.Status == models.RecordPaid {
		rec.PaidAt = &now
	}

	if err := s.deps.Store.CreateRecords(ctx, []models.FinancialRow{rec.ToRow()}); err != nil {
		return models.FinancialRecord{}, apperrors.E(apperrors.Internal, "saving financial record", err)
	}

	metrics.RecordsCreated.WithLabelValues("manual").Inc()
	s.deps.invalidateDashboard(ctx)
	s.deps.publish(ctx, s.deps.Topics.Finance, utils.EventRecordsCreated, rec.ID,
		RecordsEvent{LeadID: rec.LeadID, Records: []models.FinancialRecord{rec}, Origin: "manual", Timestamp: now.UTC()})
	return rec, nil
}

func (s *FinanceService) Update(ctx context.Context, id string, in RecordInput) (models.FinancialRecord, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.FinancialRecord{}, err
	}
	if in.Status == "" {
		in.Status = current.Status
	}
	if err := s.validate(ctx, &in); err != nil {
		return models.FinancialRecord{}, err
	}

	rec := current
	rec.LeadID = in.LeadID
	rec.StudentName = in.StudentName
	rec.CourseName = in.CourseName
	rec.Amount = utils.RoundCents(in.Amount)
	rec.DueDate = in.DueDate
	rec.Installment = in.Installment
	s.applyStatus(&rec, in.Status)

	if err := s.deps.Store.UpdateRecord(ctx, rec.ToRow()); err != nil {
		return models.FinancialRecord{}, err
	}
	s.deps.invalidateDashboard(ctx)
	if rec.Status == models.RecordPaid && current.Status != models.RecordPaid {
		s.publishPaid(ctx, rec, "manual")
	}
	return rec, nil
}

func (s *FinanceService) Delete(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteRecord(ctx, id); err != nil {
		return err
	}
	logger.Info("Financial record deleted: %s", id)
	s.deps.invalidateDashboard(ctx)
	return nil
}

// applyStatus keeps PaidAt consistent with the status.
func (s *FinanceService) applyStatus(rec *models.FinancialRecord, status models.RecordStatus) {
	if status == models.RecordPaid && rec.PaidAt == nil {
		now := s.deps.Now()
		rec.PaidAt = &now
	}
	if status != models.RecordPaid {
		rec.PaidAt = nil
	}
	rec.Status = status
}

// SetStatus moves a record to any status.
func (s *FinanceService) SetStatus(ctx context.Context, id string, status models.RecordStatus) (models.FinancialRecord, error) {
	if !status.IsValid() {
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid, "unknown record status %q", string(status))
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return models.FinancialRecord{}, err
	}
	if rec.Status == status {
		return rec, nil
	}

	previous := rec.Status
	s.applyStatus(&rec, status)
	if err := s.deps.Store.UpdateRecord(ctx, rec.ToRow()); err != nil {
		return models.FinancialRecord{}, err
	}
	s.deps.invalidateDashboard(ctx)
	if status == models.RecordPaid && previous != models.RecordPaid {
		s.publishPaid(ctx, rec, "manual")
	}
	return rec, nil
}

func (s *FinanceService) MarkPaid(ctx context.Context, id string) (models.FinancialRecord, error) {
	return s.SetStatus(ctx, id, models.RecordPaid)
}

func (s *FinanceService) MarkPending(ctx context.Context, id string) (models.FinancialRecord, error) {
	return s.SetStatus(ctx, id, models.RecordPending)
}

func (s *FinanceService) publishPaid(ctx context.Context, rec models.FinancialRecord, origin string) {
	logger.Info("Financial record %s paid (%s)", rec.ID, utils.FormatBRL(rec.Amount))
	s.deps.publish(ctx, s.deps.Topics.Finance, utils.EventRecordPaid, rec.ID,
		RecordsEvent{LeadID: rec.LeadID, Records: []models.FinancialRecord{rec}, Origin: origin, Timestamp: s.deps.Now().UTC()})
}

// SweepOverdue flips PENDING records due before today to OVERDUE.
func (s *FinanceService) SweepOverdue(ctx context.Context) (int64, error) {
	n, err := s.deps.Store.MarkOverdue(ctx, s.deps.today())
	if err != nil {
		return 0, apperrors.E(apperrors.Internal, "marking overdue records", err)
	}
	metrics.OverdueRecords.Set(float64(n))
	if n > 0 {
		logger.Info("Overdue sweep: %d records marked as overdue", n)
		s.deps.invalidateDashboard(ctx)
	}
	return n, nil
}

// RunOverdueSweeper sweeps once, then on every tick until ctx is done.
func (s *FinanceService) RunOverdueSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	if _, err := s.SweepOverdue(ctx); err != nil {
		logger.Error("overdue sweep failed: %v", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Overdue sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOverdue(ctx); err != nil {
				logger.Error("overdue sweep failed: %v", err)
			}
		}
	}
}

func (s *FinanceService) Summary(ctx context.Context, f RecordFilter) (FinanceSummary, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return FinanceSummary{}, err
	}
	return SummarizeRecords(records), nil
}

// SummarizeRecords totals amounts per status.
func SummarizeRecords(records []models.FinancialRecord) FinanceSummary {
	sum := FinanceSummary{
		Count: len(records),
		ByStatus: map[models.RecordStatus]int{
			models.RecordPaid:    0,
			models.RecordPending: 0,
			models.RecordOverdue: 0,
		},
	}
	for _, r := range records {
		sum.ByStatus[r.Status]++
		sum.Total += r.Amount
		switch r.Status {
		case models.RecordPaid:
			sum.TotalPaid += r.Amount
		case models.RecordPending:
			sum.TotalPending += r.Amount
		case models.RecordOverdue:
			sum.TotalOverdue += r.Amount
		}
	}
	sum.Total = utils.RoundCents(sum.Total)
	sum.TotalPaid = utils.RoundCents(sum.TotalPaid)
	sum.TotalPending = utils.RoundCents(sum.TotalPending)
	sum.TotalOverdue = utils.RoundCents(sum.TotalOverdue)
	return sum
}

// Export renders the filtered records as an .xlsx workbook.
func (s *FinanceService) Export(ctx context.Context, f RecordFilter) ([]byte, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	data, err := BuildFinanceWorkbook(records)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "building finance workbook", err)
	}
	return data, nil
}

// Statement renders the PDF statement of a lead's records.
func (s *FinanceService) Statement(ctx context.Context, leadID string) ([]byte, error) {
	row, err := s.deps.Store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	records, err := s.List(ctx, RecordFilter{LeadID: leadID})
	if err != nil {
		return nil, err
	}
	pdf, err := GenerateStatement(NormalizeLead(row), records, s.deps.Now().In(s.deps.Location))
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "generating statement", err)
	}
	return pdf, nil
}

// CreatePaymentOrder opens a gateway order for an unpaid record and
// links it to the record.
func (s *FinanceService) CreatePaymentOrder(ctx context.Context, id string) (PaymentOrder, error) {
	if s.gateway == nil {
		return PaymentOrder{}, apperrors.E(apperrors.Invalid, "online payments are not configured")
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return PaymentOrder{}, err
	}
	if rec.Status == models.RecordPaid {
		return PaymentOrder{}, apperrors.E(apperrors.Conflict, "record %s is already paid", id)
	}
	if rec.Amount <= 0 {
		return PaymentOrder{}, apperrors.E(apperrors.Invalid, "record %s has no amount to pay", id)
	}

	receipt := "rec_" + id
	if len(id) > 8 {
		receipt = "rec_" + id[:8]
	}
	orderID, err := s.gateway.CreateOrder(minorUnits(rec.Amount), s.currency, receipt, map[string]interface{}{
		"record_id": rec.ID,
		"lead_id":   rec.LeadID,
		"course":    rec.CourseName,
	})
	if err != nil {
		return PaymentOrder{}, apperrors.E(apperrors.Internal, "creating payment order", err)
	}

	rec.PaymentOrderID = orderID
	if err := s.deps.Store.UpdateRecord(ctx, rec.ToRow()); err != nil {
		return PaymentOrder{}, err
	}
	logger.Info("Payment order %s created for record %s", orderID, id)

	return PaymentOrder{
		OrderID:  orderID,
		RecordID: rec.ID,
		Amount:   rec.Amount,
		Currency: s.currency,
		Receipt:  receipt,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// VerifyPayment checks the checkout signature and settles the record
// linked to the order. Repeated verifications of a paid record succeed.
func (s *FinanceService) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (models.FinancialRecord, error) {
	if s.gateway == nil {
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid, "online payments are not configured")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return models.FinancialRecord{}, err
	}
	if !s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		logger.Warn("Invalid payment signature for order %s", req.OrderID)
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid, "invalid payment signature")
	}

	return s.settleOrder(ctx, req.OrderID, "payment")
}

// settleOrder marks the record linked to orderID paid. A record that is
// already paid is returned unchanged.
func (s *FinanceService) settleOrder(ctx context.Context, orderID, origin string) (models.FinancialRecord, error) {
	row, err := s.deps.Store.GetRecordByOrderID(ctx, orderID)
	if err != nil {
		return models.FinancialRecord{}, err
	}
	rec := NormalizeFinancialRecord(row)
	if rec.Status == models.RecordPaid {
		return rec, nil
	}

	s.applyStatus(&rec, models.RecordPaid)
	if err := s.deps.Store.UpdateRecord(ctx, rec.ToRow()); err != nil {
		return models.FinancialRecord{}, err
	}
	s.deps.invalidateDashboard(ctx)
	s.publishPaid(ctx, rec, origin)
	return rec, nil
}
