package services

import (
	"context"
	"fmt"

	"enrollment-crm/logger"
	"enrollment-crm/repository"
	"enrollment-crm/services/kafka"
	"enrollment-crm/utils"
)

// NotificationService turns notification events into emails.
type NotificationService struct {
	deps   *Deps
	mailer Mailer
}

// NewNotificationService builds the email handlers. A nil mailer makes
// every notification a logged no-op.
func NewNotificationService(d *Deps, mailer Mailer) *NotificationService {
	return &NotificationService{deps: d.withDefaults(), mailer: mailer}
}

// Register attaches the handlers to the event dispatcher.
func (s *NotificationService) Register(d *kafka.Dispatcher) {
	d.Register(utils.EventNotifyEnrollment, s.handleEnrollment)
	d.Register(utils.EventNotifyLeadAssigned, s.handleLeadAssigned)
}

func (s *NotificationService) handleEnrollment(ctx context.Context, ev kafka.Event) error {
	var payload EnrollmentEvent
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	return s.SendEnrollmentConfirmation(ctx, payload.LeadID)
}

func (s *NotificationService) handleLeadAssigned(ctx context.Context, ev kafka.Event) error {
	var payload LeadAssignedEvent
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	return s.SendLeadAssigned(ctx, payload.LeadID, payload.UserID)
}

// SendEnrollmentConfirmation mails the lead its records with the PDF
// statement attached.
func (s *NotificationService) SendEnrollmentConfirmation(ctx context.Context, leadID string) error {
	if s.mailer == nil {
		logger.Info("Skipping enrollment email for lead %s: mailer not configured", leadID)
		return nil
	}

	row, err := s.deps.Store.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("error loading lead %s: %w", leadID, err)
	}
	lead := NormalizeLead(row)
	if lead.Email == "" {
		logger.Info("Skipping enrollment email for lead %s: no email address", leadID)
		return nil
	}

	rows, err := s.deps.Store.ListRecords(ctx, repository.RecordQuery{LeadID: leadID})
	if err != nil {
		return fmt.Errorf("error loading records of lead %s: %w", leadID, err)
	}
	records := normalizeRecords(rows)

	statement, err := GenerateStatement(lead, records, s.deps.Now().In(s.deps.Location))
	if err != nil {
		logger.Warn("Statement for lead %s could not be generated, sending without it: %v", leadID, err)
		statement = nil
	}

	return sendCounted(s.mailer, "enrollment", enrollmentEmail(lead, records, statement))
}

// SendLeadAssigned tells a consultant about a lead handed to them.
func (s *NotificationService) SendLeadAssigned(ctx context.Context, leadID, userID string) error {
	if s.mailer == nil {
		logger.Info("Skipping assignment email for lead %s: mailer not configured", leadID)
		return nil
	}

	userRow, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("error loading user %s: %w", userID, err)
	}
	leadRow, err := s.deps.Store.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("error loading lead %s: %w", leadID, err)
	}

	return sendCounted(s.mailer, "lead_assigned", leadAssignedEmail(MapUser(userRow), NormalizeLead(leadRow)))
}
