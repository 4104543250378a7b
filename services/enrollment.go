package services

import (
	"context"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/metrics"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"
)

// EnrollmentResult is the enrolled lead with the records opened for it.
type EnrollmentResult struct {
	Lead    models.Lead              `json:"lead"`
	Records []models.FinancialRecord `json:"records"`
}

// Total sums the amounts of the opened records.
func (r EnrollmentResult) Total() float64 {
	var t float64
	for _, rec := range r.Records {
		t += rec.Amount
	}
	return utils.RoundCents(t)
}

type EnrollmentService struct {
	deps *Deps
}

func NewEnrollmentService(d *Deps) *EnrollmentService {
	return &EnrollmentService{deps: d.withDefaults()}
}

// Enroll turns a lead into billing obligations: the enrollment fee and
// first tuition installment are stored together with the lead's new
// Enrolled status. A lead that already has records is a Conflict.
func (s *EnrollmentService) Enroll(ctx context.Context, leadID string) (EnrollmentResult, error) {
	row, err := s.deps.Store.GetLead(ctx, leadID)
	if err != nil {
		return EnrollmentResult{}, err
	}
	lead := NormalizeLead(row)

	courseRows, err := s.deps.Store.ListCourses(ctx, false)
	if err != nil {
		return EnrollmentResult{}, apperrors.E(apperrors.Internal, "loading courses", err)
	}

	now := s.deps.Now()
	records := BuildEnrollmentRecords(lead, normalizeCourses(courseRows), s.deps.today(), s.deps.NewID)
	rows := make([]models.FinancialRow, len(records))
	for i := range records {
		records[i].CreatedAt = now
		rows[i] = records[i].ToRow()
	}

	previous := lead.Status
	lead.Status = models.LeadStatusEnrolled
	lead.UpdatedAt = now

	if err := s.deps.Store.SaveEnrollment(ctx, lead.ToRow(), rows); err != nil {
		return EnrollmentResult{}, err
	}

	metrics.Enrollments.Inc()
	metrics.RecordsCreated.WithLabelValues("enrollment").Add(float64(len(records)))
	s.deps.invalidateDashboard(ctx)

	result := EnrollmentResult{Lead: lead, Records: records}
	logger.Info("Lead %s enrolled: %d records, total %s", lead.ID, len(records), utils.FormatBRL(result.Total()))

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	s.deps.publish(ctx, s.deps.Topics.Leads, utils.EventLeadStatusChanged, lead.ID, newLeadEvent(lead, previous, now))
	s.deps.publish(ctx, s.deps.Topics.Leads, utils.EventLeadEnrolled, lead.ID,
		EnrollmentEvent{LeadID: lead.ID, RecordIDs: ids, Total: result.Total()})
	s.deps.publish(ctx, s.deps.Topics.Finance, utils.EventRecordsCreated, lead.ID,
		RecordsEvent{LeadID: lead.ID, Records: records, Origin: "enrollment", Timestamp: now.UTC()})
	s.deps.publish(ctx, s.deps.Topics.Notifications, utils.EventNotifyEnrollment, lead.ID,
		EnrollmentEvent{LeadID: lead.ID, RecordIDs: ids, Total: result.Total()})

	return result, nil
}

// GenerateNextInstallment appends the installment following the lead's
// latest tuition line.
func (s *EnrollmentService) GenerateNextInstallment(ctx context.Context, leadID string) (models.FinancialRecord, error) {
	if _, err := s.deps.Store.GetLead(ctx, leadID); err != nil {
		return models.FinancialRecord{}, err
	}

	rows, err := s.deps.Store.ListRecords(ctx, repository.RecordQuery{LeadID: leadID})
	if err != nil {
		return models.FinancialRecord{}, apperrors.E(apperrors.Internal, "loading financial records", err)
	}

	var (
		last    models.FinancialRecord
		lastNum int
	)
	for _, rec := range normalizeRecords(rows) {
		n, _, ok := parseInstallment(rec.Installment)
		if !ok {
			continue
		}
		if n > lastNum || (n == lastNum && rec.DueDate > last.DueDate) {
			last, lastNum = rec, n
		}
	}
	if lastNum == 0 {
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid, "lead %s has no tuition installments", leadID)
	}

	next, err := NextInstallment(last, s.deps.NewID)
	if err != nil {
		return models.FinancialRecord{}, err
	}
	next.CreatedAt = s.deps.Now()

	if err := s.deps.Store.CreateRecords(ctx, []models.FinancialRow{next.ToRow()}); err != nil {
		return models.FinancialRecord{}, apperrors.E(apperrors.Internal, "saving installment", err)
	}

	metrics.RecordsCreated.WithLabelValues("installment").Inc()
	s.deps.invalidateDashboard(ctx)
	s.deps.publish(ctx, s.deps.Topics.Finance, utils.EventRecordsCreated, leadID,
		RecordsEvent{LeadID: leadID, Records: []models.FinancialRecord{next}, Origin: "installment", Timestamp: next.CreatedAt.UTC()})
	return next, nil
}
