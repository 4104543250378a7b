package services

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnroll_OpensFeeAndTuition(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", Email: "ana@x.com", CourseIDs: []string{"C1"}})

	svc := NewEnrollmentService(env.deps)
	res, err := svc.Enroll(context.Background(), "L1")
	require.NoError(t, err)

	assert.Equal(t, models.LeadStatusEnrolled, res.Lead.Status)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 1200.0, res.Total())
	assert.Equal(t, "2024-03-10", res.Records[0].DueDate)
	assert.Equal(t, "2024-04-10", res.Records[1].DueDate)

	stored, err := env.store.ListRecords(context.Background(), repository.RecordQuery{LeadID: "L1"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	row, err := env.store.GetLead(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, string(models.LeadStatusEnrolled), row.Status.String)

	assert.Equal(t, []string{
		utils.EventLeadStatusChanged,
		utils.EventLeadEnrolled,
		utils.EventRecordsCreated,
		utils.EventNotifyEnrollment,
	}, env.events.names())
}

func TestEnroll_TodayUsesConfiguredZone(t *testing.T) {
	env := newTestEnv(t)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("timezone database unavailable")
	}
	env.deps.Location = loc
	// 01:30 UTC on the 11th is still the 10th in São Paulo.
	env.deps.Now = func() time.Time { return time.Date(2024, 3, 11, 1, 30, 0, 0, time.UTC) }
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", TotalValue: 2400})

	res, err := NewEnrollmentService(env.deps).Enroll(context.Background(), "L1")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "2024-04-10", res.Records[0].DueDate)
}

func TestEnroll_RejectsSecondEnrollment(t *testing.T) {
	env := newTestEnv(t)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", TotalValue: 2400})
	svc := NewEnrollmentService(env.deps)

	_, err := svc.Enroll(context.Background(), "L1")
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), "L1")
	assert.True(t, apperrors.IsKind(err, apperrors.Conflict))

	stored, _ := env.store.ListRecords(context.Background(), repository.RecordQuery{LeadID: "L1"})
	assert.Len(t, stored, 1)
}

func TestEnroll_UnknownLead(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewEnrollmentService(env.deps).Enroll(context.Background(), "nope")
	assert.True(t, apperrors.IsKind(err, apperrors.NotFound))
}

func TestEnroll_StorageFailureLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", TotalValue: 2400})
	env.store.Fail("SaveEnrollment", errors.New("disk full"))

	_, err := NewEnrollmentService(env.deps).Enroll(context.Background(), "L1")
	require.Error(t, err)

	row, _ := env.store.GetLead(context.Background(), "L1")
	assert.Equal(t, string(models.LeadStatusNew), row.Status.String)
	assert.Empty(t, env.events.names())
}

func TestGenerateNextInstallment(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}})
	svc := NewEnrollmentService(env.deps)

	_, err := svc.Enroll(context.Background(), "L1")
	require.NoError(t, err)

	next, err := svc.GenerateNextInstallment(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, "02/60", next.Installment)
	assert.Equal(t, "2024-05-10", next.DueDate)
	assert.Equal(t, 800.0, next.Amount)

	again, err := svc.GenerateNextInstallment(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, "03/60", again.Installment)
	assert.Equal(t, "2024-06-10", again.DueDate)
}

func TestGenerateNextInstallment_NoTuition(t *testing.T) {
	env := newTestEnv(t)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana"})

	_, err := NewEnrollmentService(env.deps).GenerateNextInstallment(context.Background(), "L1")
	assert.True(t, apperrors.IsKind(err, apperrors.Invalid))
}
