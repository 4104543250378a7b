package services

import (
	"time"

	"enrollment-crm/models"
)

// LeadEvent is the payload of lead.created and lead.status_changed.
type LeadEvent struct {
	LeadID     string            `json:"leadId"`
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Source     string            `json:"source,omitempty"`
	AssignedTo string            `json:"assignedTo,omitempty"`
	Status     models.LeadStatus `json:"status"`
	Previous   models.LeadStatus `json:"previousStatus,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func newLeadEvent(l models.Lead, previous models.LeadStatus, at time.Time) LeadEvent {
	return LeadEvent{
		LeadID:     l.ID,
		Name:       l.Name,
		Email:      l.Email,
		Phone:      l.Phone,
		Source:     l.Source,
		AssignedTo: l.AssignedTo,
		Status:     l.Status,
		Previous:   previous,
		OccurredAt: at.UTC(),
	}
}

// EnrollmentEvent is the payload of lead.enrolled and of the enrollment
// confirmation notification.
type EnrollmentEvent struct {
	LeadID    string   `json:"leadId"`
	RecordIDs []string `json:"recordIds"`
	Total     float64  `json:"total"`
}

// RecordsEvent is the payload of finance.records_created and
// finance.record_paid.
type RecordsEvent struct {
	LeadID    string                   `json:"leadId,omitempty"`
	Records   []models.FinancialRecord `json:"records"`
	Origin    string                   `json:"origin"`
	Timestamp time.Time                `json:"timestamp"`
}

// LeadAssignedEvent asks for the assignment email to the consultant.
type LeadAssignedEvent struct {
	LeadID string `json:"leadId"`
	UserID string `json:"userId"`
}
