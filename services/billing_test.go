package services

import (
	"fmt"
	"testing"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestDurationInMonths(t *testing.T) {
	cases := map[string]int{
		"":          24,
		"4 Anos":    48,
		"1 Ano":     12,
		"2.5 Anos":  30,
		"2,5 anos":  30,
		"18 Meses":  18,
		"6 Meses":   6,
		"  3 ANOS ": 36,
		"Livre":     24,
		"0 Meses":   24,
		"0 Anos":    24,
		"10.5":      11,
		"1.04 anos": 12,
		"1.25 anos": 15,
		"18meses":   18,
	}
	for in, want := range cases {
		assert.Equal(t, want, DurationInMonths(in), "duration %q", in)
	}
}

func TestBuildEnrollmentRecords_FeeAndTuition(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	lead := models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}}
	courses := []models.Course{{
		ID: "C1", Name: "Direito", Price: 1000, EnrollmentFee: 500,
		EnrollmentDiscount: 100, Scholarship: 20, Duration: "5 Anos",
	}}

	recs := BuildEnrollmentRecords(lead, courses, today, sequentialIDs())
	require.Len(t, recs, 2)

	fee := recs[0]
	assert.Equal(t, "id-1", fee.ID)
	assert.Equal(t, "L1", fee.LeadID)
	assert.Equal(t, "Ana", fee.StudentName)
	assert.Equal(t, "Taxa de Matrícula - Direito (Desc. R$ 100,00)", fee.CourseName)
	assert.Equal(t, 400.0, fee.Amount)
	assert.Equal(t, "2024-03-10", fee.DueDate)
	assert.Equal(t, models.RecordPending, fee.Status)
	assert.Equal(t, "Taxa Única", fee.Installment)

	tuition := recs[1]
	assert.Equal(t, "Direito", tuition.CourseName)
	assert.Equal(t, 800.0, tuition.Amount)
	assert.Equal(t, "2024-04-10", tuition.DueDate)
	assert.Equal(t, "01/60", tuition.Installment)
	assert.Equal(t, "L1", tuition.LeadID)
}

func TestBuildEnrollmentRecords_NoDiscountTitle(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	lead := models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}}
	courses := []models.Course{{ID: "C1", Name: "ADS", Price: 300, EnrollmentFee: 99.9, Duration: "2.5 Anos"}}

	recs := BuildEnrollmentRecords(lead, courses, today, sequentialIDs())
	require.Len(t, recs, 2)
	assert.Equal(t, "Taxa de Matrícula - ADS", recs[0].CourseName)
	assert.Equal(t, 99.9, recs[0].Amount)
	assert.Equal(t, "01/30", recs[1].Installment)
}

func TestBuildEnrollmentRecords_DiscountAboveFee(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	lead := models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}}
	courses := []models.Course{{ID: "C1", Name: "X", Price: 100, EnrollmentFee: 50, EnrollmentDiscount: 80, Duration: "1 Ano"}}

	recs := BuildEnrollmentRecords(lead, courses, today, sequentialIDs())
	require.Len(t, recs, 2)
	assert.Equal(t, 0.0, recs[0].Amount)
	assert.Equal(t, "Taxa de Matrícula - X (Desc. R$ 80,00)", recs[0].CourseName)
}

func TestBuildEnrollmentRecords_NoCourse(t *testing.T) {
	today := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	lead := models.Lead{ID: "L2", Name: "Bia", TotalValue: 2400}

	recs := BuildEnrollmentRecords(lead, nil, today, sequentialIDs())
	require.Len(t, recs, 1)
	assert.Equal(t, "Curso", recs[0].CourseName)
	assert.Equal(t, 100.0, recs[0].Amount)
	assert.Equal(t, "01/24", recs[0].Installment)
	// Jan 31 + 1 month overflows into March.
	assert.Equal(t, "2024-03-02", recs[0].DueDate)
}

func TestBuildEnrollmentRecords_UnknownCourseAndMultipleCourses(t *testing.T) {
	today := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	lead := models.Lead{ID: "L3", Name: "Caio", CourseIDs: []string{"missing", "C1", "C2"}, TotalValue: 1200}
	courses := []models.Course{{ID: "C1", Name: "A", Price: 10, EnrollmentFee: 10}}

	recs := BuildEnrollmentRecords(lead, courses, today, sequentialIDs())
	require.Len(t, recs, 1, "no fee without a main course")
	assert.Equal(t, "3 Cursos", recs[0].CourseName)
	assert.Equal(t, 50.0, recs[0].Amount)
}

func TestBuildEnrollmentRecords_RoundsToCents(t *testing.T) {
	today := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	lead := models.Lead{ID: "L4", Name: "Duda", TotalValue: 1000}

	recs := BuildEnrollmentRecords(lead, nil, today, sequentialIDs())
	require.Len(t, recs, 1)
	assert.Equal(t, 41.67, recs[0].Amount)
}

func TestNextInstallment(t *testing.T) {
	last := models.FinancialRecord{
		ID: "r1", LeadID: "L1", StudentName: "Ana", CourseName: "Direito",
		Amount: 800, DueDate: "2024-04-10", Installment: "01/60", Status: models.RecordPaid,
	}
	next, err := NextInstallment(last, sequentialIDs())
	require.NoError(t, err)
	assert.Equal(t, "02/60", next.Installment)
	assert.Equal(t, "2024-05-10", next.DueDate)
	assert.Equal(t, models.RecordPending, next.Status)
	assert.Equal(t, 800.0, next.Amount)
	assert.Equal(t, "L1", next.LeadID)

	last.Installment = "60/60"
	_, err = NextInstallment(last, sequentialIDs())
	assert.True(t, apperrors.IsKind(err, apperrors.Invalid))

	last.Installment = models.InstallmentSingleFee
	_, err = NextInstallment(last, sequentialIDs())
	assert.True(t, apperrors.IsKind(err, apperrors.Invalid))
}

func TestRenamedCourseTitle(t *testing.T) {
	got, ok := renamedCourseTitle("Direito", "Direito", "Direito Noturno")
	assert.True(t, ok)
	assert.Equal(t, "Direito Noturno", got)

	got, ok = renamedCourseTitle("Taxa de Matrícula - Direito (Desc. R$ 100,00)", "Direito", "Direito Noturno")
	assert.True(t, ok)
	assert.Equal(t, "Taxa de Matrícula - Direito Noturno (Desc. R$ 100,00)", got)

	got, ok = renamedCourseTitle("Taxa de Matrícula - Direito", "Direito", "Dir")
	assert.True(t, ok)
	assert.Equal(t, "Taxa de Matrícula - Dir", got)

	_, ok = renamedCourseTitle("Taxa de Matrícula - Direito Digital", "Direito", "Dir")
	assert.False(t, ok)
	_, ok = renamedCourseTitle("2 Cursos", "Direito", "Dir")
	assert.False(t, ok)
}
