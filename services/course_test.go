package services

import (
	"context"
	"errors"
	"testing"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseCreate(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCourseService(env.deps)

	c, err := svc.Create(context.Background(), CourseInput{
		Name: " Pedagogia ", Modality: models.ModalityEAD, Price: 299.999, Scholarship: 10, Duration: "4 Anos",
	})
	require.NoError(t, err)
	assert.Equal(t, "Pedagogia", c.Name)
	assert.Equal(t, 300.0, c.Price)
	assert.True(t, c.Active)

	inactive := false
	c2, err := svc.Create(context.Background(), CourseInput{Name: "Letras", Active: &inactive})
	require.NoError(t, err)
	assert.False(t, c2.Active)

	active, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Pedagogia", active[0].Name)
}

func TestCourseCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCourseService(env.deps)

	cases := map[string]CourseInput{
		"missing name":      {Price: 10},
		"negative price":    {Name: "A", Price: -1},
		"scholarship > 100": {Name: "A", Scholarship: 120},
		"negative fee":      {Name: "A", EnrollmentFee: -5},
		"negative discount": {Name: "A", EnrollmentDiscount: -5},
		"bad modality":      {Name: "A", Modality: "Híbrido"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), in)
			assert.True(t, apperrors.IsKind(err, apperrors.Invalid), "got %v", err)
		})
	}
}

func TestCourseUpdate_FailedRenameLeavesCourseAndRecords(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}})
	ctx := context.Background()
	_, err := NewEnrollmentService(env.deps).Enroll(ctx, "L1")
	require.NoError(t, err)

	env.store.Fail("RenameCourse", errors.New("connection reset"))
	svc := NewCourseService(env.deps)
	c := direito()
	_, err = svc.Update(ctx, "C1", CourseInput{Name: "Direito Noturno", Price: c.Price, Duration: c.Duration})
	require.Error(t, err)

	got, err := svc.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Direito", got.Name)

	records, err := NewFinanceService(env.deps, nil, "").List(ctx, RecordFilter{LeadID: "L1"})
	require.NoError(t, err)
	for _, r := range records {
		assert.NotContains(t, r.CourseName, "Noturno")
	}
}

func TestCourseUpdate_RenamePropagatesToRecords(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}})
	_, err := NewEnrollmentService(env.deps).Enroll(context.Background(), "L1")
	require.NoError(t, err)

	other := models.FinancialRecord{ID: "R9", StudentName: "Bia", CourseName: "Direito Digital", Amount: 10,
		DueDate: "2024-03-01", Status: models.RecordPending}
	require.NoError(t, env.store.CreateRecords(context.Background(), []models.FinancialRow{other.ToRow()}))

	svc := NewCourseService(env.deps)
	c := direito()
	_, err = svc.Update(context.Background(), "C1", CourseInput{
		Name: "Direito Noturno", Price: c.Price, EnrollmentFee: c.EnrollmentFee,
		EnrollmentDiscount: c.EnrollmentDiscount, Scholarship: c.Scholarship, Duration: c.Duration,
	})
	require.NoError(t, err)

	records, err := NewFinanceService(env.deps, nil, "").List(context.Background(), RecordFilter{})
	require.NoError(t, err)
	names := map[string]bool{}
	for _, r := range records {
		names[r.CourseName] = true
	}
	assert.True(t, names["Direito Noturno"])
	assert.True(t, names["Taxa de Matrícula - Direito Noturno (Desc. R$ 100,00)"])
	assert.True(t, names["Direito Digital"])
	assert.False(t, names["Direito"])

	got, err := svc.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.True(t, got.Active, "active flag is kept when omitted")
}

func TestCourseDelete_RefusedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C9", "C1"}})
	svc := NewCourseService(env.deps)

	err := svc.Delete(context.Background(), "C1")
	assert.True(t, apperrors.IsKind(err, apperrors.Conflict))

	require.NoError(t, env.store.DeleteLead(context.Background(), "L1"))
	require.NoError(t, svc.Delete(context.Background(), "C1"))
	assert.True(t, apperrors.IsKind(svc.Delete(context.Background(), "C1"), apperrors.NotFound))
}

func TestCourseToggleActive(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	svc := NewCourseService(env.deps)

	c, err := svc.ToggleActive(context.Background(), "C1", nil)
	require.NoError(t, err)
	assert.False(t, c.Active)

	on := true
	c, err = svc.ToggleActive(context.Background(), "C1", &on)
	require.NoError(t, err)
	assert.True(t, c.Active)

	c, err = svc.ToggleActive(context.Background(), "C1", &on)
	require.NoError(t, err)
	assert.True(t, c.Active)
}
