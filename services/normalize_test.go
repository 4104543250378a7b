package services

import (
	"database/sql"
	"testing"
	"time"

	"enrollment-crm/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func ns(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func TestNormalizeLead_LegacyNotes(t *testing.T) {
	created := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	row := models.LeadRow{
		ID:        "L1",
		Name:      ns("  Maria  "),
		Status:    ns("whatever"),
		CourseID:  ns("c1,,c2,"),
		CreatedAt: created,
		Notes: pq.StringArray{
			"Cidade: Recife",
			"Origem: Instagram",
			"Dúvida: Sim",
			"Agendamento: 05/03/2024",
		},
		AssignedTo: ns("u1"),
		TotalValue: sql.NullFloat64{Float64: 1200, Valid: true},
	}

	lead := NormalizeLead(row)
	assert.Equal(t, "Maria", lead.Name)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Equal(t, "Recife", lead.City)
	assert.Equal(t, "Instagram", lead.Source)
	assert.True(t, lead.InDoubt)
	assert.Equal(t, "2024-03-05", lead.NextActionDate)
	assert.Equal(t, []string{"c1", "c2"}, lead.CourseIDs)
	assert.Equal(t, created, lead.CreatedAt)
	assert.Equal(t, "u1", lead.AssignedTo)
	assert.Equal(t, 1200.0, lead.TotalValue)
	assert.Len(t, lead.Notes, 4)
}

func TestNormalizeLead_ColumnsWin(t *testing.T) {
	row := models.LeadRow{
		ID:             "L1",
		Name:           ns("João"),
		Status:         ns(string(models.LeadStatusNegotiating)),
		City:           ns("Olinda"),
		Source:         ns("TikTok"),
		NextActionDate: sql.NullTime{Time: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Valid: true},
		Notes:          pq.StringArray{"Cidade: Recife", "Origem: Instagram", "Agendamento: 05/03/2024"},
	}

	lead := NormalizeLead(row)
	assert.Equal(t, models.LeadStatusNegotiating, lead.Status)
	assert.Equal(t, "Olinda", lead.City)
	assert.Equal(t, "TikTok", lead.Source)
	assert.Equal(t, "2024-06-01", lead.NextActionDate)
	assert.False(t, lead.InDoubt)
}

func TestNormalizeLead_Defaults(t *testing.T) {
	lead := NormalizeLead(models.LeadRow{ID: "L1", Name: ns("   ")})
	assert.Equal(t, "Sem Nome", lead.Name)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.NotNil(t, lead.CourseIDs)
	assert.Empty(t, lead.CourseIDs)
	assert.NotNil(t, lead.Notes)
	assert.Empty(t, lead.NextActionDate)
}

func TestNormalizeLead_MalformedSchedule(t *testing.T) {
	lead := NormalizeLead(models.LeadRow{ID: "L1", Notes: pq.StringArray{"Agendamento: amanhã"}})
	assert.Empty(t, lead.NextActionDate)

	lead = NormalizeLead(models.LeadRow{ID: "L1", Notes: pq.StringArray{"Agendamento:  1/2/2025 "}})
	assert.Equal(t, "2025-2-1", lead.NextActionDate)
}

func TestNormalizeLead_InDoubtNeedsExactNote(t *testing.T) {
	lead := NormalizeLead(models.LeadRow{ID: "L1", Notes: pq.StringArray{"Dúvida: Sim, sobre bolsa"}})
	assert.False(t, lead.InDoubt)

	lead = NormalizeLead(models.LeadRow{ID: "L1", InDoubt: sql.NullBool{Bool: true, Valid: true}})
	assert.True(t, lead.InDoubt)
}

func TestNormalizeCourse(t *testing.T) {
	c := NormalizeCourse(models.CourseRow{ID: "C1", Name: "ADS", Price: 300, Scholarship: 10, Active: true})
	assert.Equal(t, 0.0, c.EnrollmentFee)
	assert.Equal(t, 0.0, c.EnrollmentDiscount)
	assert.Equal(t, 300.0, c.Price)
	assert.Equal(t, 10.0, c.Scholarship)
	assert.True(t, c.Active)
}

func TestNormalizeFinancialRecord(t *testing.T) {
	due := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	rec := NormalizeFinancialRecord(models.FinancialRow{
		ID:          "R1",
		LeadID:      ns(""),
		StudentName: ns("  Ana "),
		CourseName:  ns("ADS"),
		Amount:      300,
		DueDate:     due,
		Status:      "CANCELLED",
	})
	assert.Empty(t, rec.LeadID)
	assert.Equal(t, "Ana", rec.StudentName)
	assert.Equal(t, "2024-04-10", rec.DueDate)
	assert.Equal(t, models.RecordPending, rec.Status)
	assert.Nil(t, rec.PaidAt)

	rec = NormalizeFinancialRecord(models.FinancialRow{ID: "R2", LeadID: ns("L1"), Status: "PAID"})
	assert.Equal(t, "L1", rec.LeadID)
	assert.Equal(t, models.RecordPaid, rec.Status)
	assert.Empty(t, rec.StudentName)
}
