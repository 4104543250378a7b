package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"
	"enrollment-crm/utils"
)

const enrollmentFeePrefix = "Taxa de Matrícula - "

// DurationInMonths reads a course duration label such as "4 Anos",
// "18 Meses" or "2.5 Anos". Labels mentioning years are multiplied by 12.
// Empty, zero or unreadable labels fall back to 24 months.
func DurationInMonths(duration string) int {
	clean := strings.ToLower(strings.TrimSpace(duration))
	if clean == "" {
		return utils.DefaultDurationMonths
	}

	n, ok := leadingNumber(strings.SplitN(clean, " ", 2)[0])
	if !ok {
		return utils.DefaultDurationMonths
	}
	if strings.Contains(clean, "ano") {
		n *= 12
	}

	months := int(math.Floor(n + 0.5))
	if months <= 0 {
		return utils.DefaultDurationMonths
	}
	return months
}

// leadingNumber parses the longest decimal prefix of s. A comma counts as
// the decimal separator.
func leadingNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", ".")
	end := 0
	seenDot := false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// BuildEnrollmentRecords computes the billing lines opened when a lead
// enrolls: an optional enrollment fee due today followed by the first
// tuition installment due one month later. The first course of the lead
// drives fee, price, scholarship and duration.
func BuildEnrollmentRecords(lead models.Lead, courses []models.Course, today time.Time, newID func() string) []models.FinancialRecord {
	var main *models.Course
	if len(lead.CourseIDs) > 0 {
		for i := range courses {
			if courses[i].ID == lead.CourseIDs[0] {
				main = &courses[i]
				break
			}
		}
	}

	totalMonths := utils.DefaultDurationMonths
	if main != nil {
		totalMonths = DurationInMonths(main.Duration)
	}

	records := make([]models.FinancialRecord, 0, 2)

	if main != nil && main.EnrollmentFee > 0 {
		discount := main.EnrollmentDiscount
		title := enrollmentFeePrefix + main.Name
		if discount > 0 {
			title += fmt.Sprintf(" (Desc. %s)", utils.FormatBRL(discount))
		}
		records = append(records, models.FinancialRecord{
			ID:          newID(),
			LeadID:      lead.ID,
			StudentName: lead.Name,
			CourseName:  title,
			Amount:      utils.RoundCents(math.Max(0, main.EnrollmentFee-discount)),
			DueDate:     utils.FormatDate(today),
			Status:      models.RecordPending,
			Installment: models.InstallmentSingleFee,
		})
	}

	var gross, scholarship float64
	if main != nil {
		gross = main.Price
		scholarship = main.Scholarship
	} else {
		gross = lead.TotalValue / float64(totalMonths)
	}

	courseName := utils.DefaultCourseName
	switch {
	case len(lead.CourseIDs) > 1:
		courseName = fmt.Sprintf("%d Cursos", len(lead.CourseIDs))
	case main != nil && main.Name != "":
		courseName = main.Name
	}

	records = append(records, models.FinancialRecord{
		ID:          newID(),
		LeadID:      lead.ID,
		StudentName: lead.Name,
		CourseName:  courseName,
		Amount:      utils.RoundCents(gross * (1 - scholarship/100)),
		DueDate:     utils.FormatDate(today.AddDate(0, 1, 0)),
		Status:      models.RecordPending,
		Installment: fmt.Sprintf("01/%d", totalMonths),
	})

	return records
}

// parseInstallment splits "KK/NN".
func parseInstallment(label string) (current, total int, ok bool) {
	parts := strings.Split(strings.TrimSpace(label), "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	current, err1 := strconv.Atoi(parts[0])
	total, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || current <= 0 || total <= 0 {
		return 0, 0, false
	}
	return current, total, true
}

// NextInstallment derives the tuition line that follows last: same course
// and amount, counter advanced by one and due one month later.
func NextInstallment(last models.FinancialRecord, newID func() string) (models.FinancialRecord, error) {
	current, total, ok := parseInstallment(last.Installment)
	if !ok {
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid,
			"record %s is not a tuition installment", last.ID)
	}
	if current >= total {
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid,
			"installment plan %s is already complete", last.Installment)
	}
	due := last.Due()
	if due.IsZero() {
		return models.FinancialRecord{}, apperrors.E(apperrors.Invalid,
			"record %s has no due date", last.ID)
	}

	width := len(strings.Split(last.Installment, "/")[0])
	return models.FinancialRecord{
		ID:          newID(),
		LeadID:      last.LeadID,
		StudentName: last.StudentName,
		CourseName:  last.CourseName,
		Amount:      last.Amount,
		DueDate:     utils.FormatDate(due.AddDate(0, 1, 0)),
		Status:      models.RecordPending,
		Installment: fmt.Sprintf("%0*d/%d", width, current+1, total),
	}, nil
}

// isEnrollmentFeeTitle reports whether name is the fee title of course.
func isEnrollmentFeeTitle(name, course string) bool {
	title := enrollmentFeePrefix + course
	return name == title || strings.HasPrefix(name, title+" (")
}

// renamedCourseTitle rewrites a record's course name after a course
// rename, returning false when the record did not reference oldName.
func renamedCourseTitle(title, oldName, newName string) (string, bool) {
	if title == oldName {
		return newName, true
	}
	if isEnrollmentFeeTitle(title, oldName) {
		return enrollmentFeePrefix + newName + strings.TrimPrefix(title, enrollmentFeePrefix+oldName), true
	}
	return title, false
}
