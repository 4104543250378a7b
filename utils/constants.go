package utils

// Event types published on the Kafka topics.
const (
	EventLeadCreated        = "lead.created"
	EventLeadStatusChanged  = "lead.status_changed"
	EventLeadEnrolled       = "lead.enrolled"
	EventRecordsCreated     = "finance.records_created"
	EventRecordPaid         = "finance.record_paid"
	EventNotifyEnrollment   = "notification.enrollment"
	EventNotifyLeadAssigned = "notification.lead_assigned"
)

// Confirmation of destructive requests.
const (
	HeaderConfirm = "X-Confirm"
	QueryConfirm  = "confirm"
)

// Legacy note prefixes that carry structured lead data.
const (
	NotePrefixCity     = "Cidade: "
	NotePrefixSource   = "Origem: "
	NotePrefixSchedule = "Agendamento: "
	NoteInDoubt        = "Dúvida: Sim"
)

// Fallback labels.
const (
	DefaultLeadName   = "Sem Nome"
	DefaultCourseName = "Curso"
	DefaultUserName   = "Usuário"
)

// DefaultDurationMonths is used when a course duration cannot be read.
const DefaultDurationMonths = 24
