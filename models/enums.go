package models

// UserRole gates what a team member can change.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleManager    UserRole = "MANAGER"
	RoleConsultant UserRole = "CONSULTANT"
	RoleFinance    UserRole = "FINANCE"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleConsultant, RoleFinance:
		return true
	}
	return false
}

// LeadStatus values are the labels stored by the sales team.
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "Novo Lead"
	LeadStatusContacted    LeadStatus = "Contato Realizado"
	LeadStatusNegotiating  LeadStatus = "Em Negociação"
	LeadStatusProposalSent LeadStatus = "Proposta Enviada"
	LeadStatusPendingDocs  LeadStatus = "Documentação Pendente"
	LeadStatusEnrolled     LeadStatus = "Matrícula Confirmada"
	LeadStatusLost         LeadStatus = "Perda / Desistência"
)

// LeadStatuses lists the funnel in order.
var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusNegotiating,
	LeadStatusProposalSent,
	LeadStatusPendingDocs,
	LeadStatusEnrolled,
	LeadStatusLost,
}

func (s LeadStatus) IsValid() bool {
	for _, known := range LeadStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the lead has left the funnel.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusEnrolled || s == LeadStatusLost
}

type CourseModality string

const (
	ModalityEAD            CourseModality = "EAD"
	ModalityPostDigital    CourseModality = "Pós Digital"
	ModalityPresencial     CourseModality = "Presencial"
	ModalitySemiPresencial CourseModality = "Semi-Presencial"
)

func (m CourseModality) IsValid() bool {
	switch m {
	case ModalityEAD, ModalityPostDigital, ModalityPresencial, ModalitySemiPresencial:
		return true
	}
	return false
}

// Formation and duration labels are suggestions; free text is accepted.
const (
	FormationBachelor       = "Bacharelado"
	FormationLicentiate     = "Licenciatura"
	FormationTechnologist   = "Tecnólogo"
	FormationSpecialization = "Especialização"
	FormationMBA            = "MBA"
	FormationMaster         = "Mestrado"
	FormationDoctorate      = "Doutorado"
	FormationTechnical      = "Técnico"
	FormationExtension      = "Extensão"
)

const (
	Duration6Months  = "6 Meses"
	Duration1Year    = "1 Ano"
	Duration18Months = "18 Meses"
	Duration2Years   = "2 Anos"
	Duration2_5Years = "2.5 Anos"
	Duration3Years   = "3 Anos"
	Duration4Years   = "4 Anos"
	Duration5Years   = "5 Anos"
)

const (
	SourceInstagram = "Instagram"
	SourceFacebook  = "Facebook"
	SourceGoogle    = "Google Ads"
	SourceTikTok    = "TikTok"
	SourceReferral  = "Indicação"
	SourceEvent     = "Evento / Feira"
	SourceWalkIn    = "Balcão / Presencial"
	SourceOther     = "Outros"
)

type RecordStatus string

const (
	RecordPaid    RecordStatus = "PAID"
	RecordPending RecordStatus = "PENDING"
	RecordOverdue RecordStatus = "OVERDUE"
)

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordPaid, RecordPending, RecordOverdue:
		return true
	}
	return false
}

// Installment label of an enrollment fee record.
const InstallmentSingleFee = "Taxa Única"

// DateLayout is the wire format of due dates and agenda dates.
const DateLayout = "2006-01-02"
