package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"enrollment-crm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDashboard(t *testing.T) {
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	leads := []models.Lead{
		{Status: models.LeadStatusNew, Source: "Instagram", TotalValue: 1000, NextActionDate: "2024-03-10"},
		{Status: models.LeadStatusNegotiating, Source: "Instagram", TotalValue: 500.25, InDoubt: true, NextActionDate: "2024-03-01"},
		{Status: models.LeadStatusEnrolled, TotalValue: 9000, NextActionDate: "2024-03-11"},
		{Status: models.LeadStatusLost, TotalValue: 100},
	}
	courses := []models.Course{{Active: true}, {Active: false}, {Active: true}}

	d := BuildDashboard(leads, courses, today)
	assert.Equal(t, 4, d.TotalLeads)
	assert.Equal(t, 1, d.Enrolled)
	assert.Equal(t, 0.25, d.ConversionRate)
	assert.Equal(t, 1500.25, d.PipelineValue)
	assert.Equal(t, 1, d.InDoubt)
	assert.Equal(t, 2, d.ActionsDue)
	assert.Equal(t, 2, d.ActiveCourses)
	assert.Equal(t, 2, d.BySource["Instagram"])
	assert.Equal(t, 2, d.BySource[models.SourceOther])
	assert.Equal(t, 0, d.ByStatus[models.LeadStatusContacted])
	assert.Len(t, d.ByStatus, len(models.LeadStatuses))
}

func TestBuildDashboard_Empty(t *testing.T) {
	d := BuildDashboard(nil, nil, time.Now())
	assert.Equal(t, 0, d.TotalLeads)
	assert.Equal(t, 0.0, d.ConversionRate)
}

func TestBootstrap(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", CourseIDs: []string{"C1"}})
	_, err := NewEnrollmentService(env.deps).Enroll(context.Background(), "L1")
	require.NoError(t, err)

	data, err := NewDashboardService(env.deps, time.Minute).Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Leads, 1)
	assert.Len(t, data.Courses, 1)
	assert.Len(t, data.Records, 2)
}

func TestBootstrap_AnyFailureFailsAll(t *testing.T) {
	env := newTestEnv(t)
	env.store.Fail("ListCourses", errors.New("connection reset"))

	_, err := NewDashboardService(env.deps, time.Minute).Bootstrap(context.Background())
	assert.Error(t, err)
}

func TestDashboard_CachedUntilWrite(t *testing.T) {
	env := newTestEnv(t)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana"})
	dash := NewDashboardService(env.deps, time.Minute)
	leads := newLeadService(env)
	ctx := context.Background()

	first, err := dash.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalLeads)

	env.addLead(t, models.Lead{ID: "L2", Name: "Bia"})
	cached, err := dash.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalLeads, "direct store writes do not invalidate")

	_, err = leads.Create(ctx, LeadInput{Name: "Caio"})
	require.NoError(t, err)
	fresh, err := dash.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.TotalLeads)
}
