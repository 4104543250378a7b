package services

import (
	"strings"

	"enrollment-crm/models"
	"enrollment-crm/utils"
)

// NormalizeLead maps a stored lead row to the domain shape. Rows written
// by older clients keep city, source, doubt and schedule only inside the
// notes; those are recovered here when the columns are empty.
func NormalizeLead(row models.LeadRow) models.Lead {
	notes := []string(row.Notes)
	if notes == nil {
		notes = []string{}
	}

	status := models.LeadStatus(row.Status.String)
	if !status.IsValid() {
		status = models.LeadStatusNew
	}

	name := strings.TrimSpace(row.Name.String)
	if name == "" {
		name = utils.DefaultLeadName
	}

	city := row.City.String
	if city == "" {
		city = noteValue(notes, utils.NotePrefixCity)
	}
	source := row.Source.String
	if source == "" {
		source = noteValue(notes, utils.NotePrefixSource)
	}

	inDoubt := row.InDoubt.Valid && row.InDoubt.Bool
	if !inDoubt {
		for _, n := range notes {
			if n == utils.NoteInDoubt {
				inDoubt = true
				break
			}
		}
	}

	next := ""
	if row.NextActionDate.Valid {
		next = utils.FormatDate(row.NextActionDate.Time)
	} else if raw, ok := firstNoteWithPrefix(notes, utils.NotePrefixSchedule); ok {
		next = scheduleNoteToISO(raw)
	}

	return models.Lead{
		ID:             row.ID,
		Name:           name,
		Email:          row.Email.String,
		Phone:          row.Phone.String,
		City:           city,
		Source:         source,
		InDoubt:        inDoubt,
		CourseIDs:      utils.SplitCourseIDs(row.CourseID.String),
		Modality:       models.CourseModality(row.Modality.String),
		Status:         status,
		CreatedAt:      row.CreatedAt,
		AssignedTo:     row.AssignedTo.String,
		Notes:          append([]string{}, notes...),
		TotalValue:     row.TotalValue.Float64,
		NextActionDate: next,
		UpdatedAt:      row.UpdatedAt,
	}
}

// scheduleNoteToISO turns "DD/MM/YYYY" into "YYYY-MM-DD"; anything that
// does not split into three parts yields "".
func scheduleNoteToISO(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}

func firstNoteWithPrefix(notes []string, prefix string) (string, bool) {
	for _, n := range notes {
		if strings.HasPrefix(n, prefix) {
			return strings.TrimPrefix(n, prefix), true
		}
	}
	return "", false
}

func noteValue(notes []string, prefix string) string {
	v, _ := firstNoteWithPrefix(notes, prefix)
	return v
}

// NormalizeCourse maps a course row; missing fee and discount read as 0.
func NormalizeCourse(row models.CourseRow) models.Course {
	return models.Course{
		ID:                 row.ID,
		Name:               row.Name,
		Formation:          row.Formation.String,
		Modality:           models.CourseModality(row.Modality.String),
		Price:              row.Price,
		EnrollmentFee:      row.EnrollmentFee.Float64,
		EnrollmentDiscount: row.EnrollmentDiscount.Float64,
		Scholarship:        row.Scholarship,
		Duration:           row.Duration.String,
		Active:             row.Active,
	}
}

// NormalizeFinancialRecord maps a record row. Unknown statuses read as
// PENDING.
func NormalizeFinancialRecord(row models.FinancialRow) models.FinancialRecord {
	status := models.RecordStatus(row.Status)
	if !status.IsValid() {
		status = models.RecordPending
	}

	rec := models.FinancialRecord{
		ID:             row.ID,
		StudentName:    strings.TrimSpace(row.StudentName.String),
		CourseName:     row.CourseName.String,
		Amount:         row.Amount,
		Status:         status,
		Installment:    row.Installment.String,
		PaymentOrderID: row.PaymentOrderID.String,
		CreatedAt:      row.CreatedAt,
	}
	if row.LeadID.Valid && row.LeadID.String != "" {
		rec.LeadID = row.LeadID.String
	}
	if !row.DueDate.IsZero() {
		rec.DueDate = utils.FormatDate(row.DueDate)
	}
	if row.PaidAt.Valid {
		paid := row.PaidAt.Time
		rec.PaidAt = &paid
	}
	return rec
}

func normalizeLeads(rows []models.LeadRow) []models.Lead {
	out := make([]models.Lead, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeLead(row))
	}
	return out
}

func normalizeCourses(rows []models.CourseRow) []models.Course {
	out := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeCourse(row))
	}
	return out
}

func normalizeRecords(rows []models.FinancialRow) []models.FinancialRecord {
	out := make([]models.FinancialRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeFinancialRecord(row))
	}
	return out
}
