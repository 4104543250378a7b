package services

import (
	"context"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"

	"golang.org/x/sync/errgroup"
)

const dashboardCacheKey = "dashboard:v1"

// Dashboard aggregates the funnel and the catalog.
type Dashboard struct {
	TotalLeads     int                       `json:"totalLeads"`
	ByStatus       map[models.LeadStatus]int `json:"byStatus"`
	BySource       map[string]int            `json:"bySource"`
	Enrolled       int                       `json:"enrolled"`
	ConversionRate float64                   `json:"conversionRate"`
	PipelineValue  float64                   `json:"pipelineValue"`
	InDoubt        int                       `json:"inDoubt"`
	ActionsDue     int                       `json:"actionsDue"`
	ActiveCourses  int                       `json:"activeCourses"`
	GeneratedAt    time.Time                 `json:"generatedAt"`
}

// BootstrapData is everything a client loads on start.
type BootstrapData struct {
	Leads   []models.Lead            `json:"leads"`
	Courses []models.Course          `json:"courses"`
	Records []models.FinancialRecord `json:"financialRecords"`
}

type DashboardService struct {
	deps *Deps
	ttl  time.Duration
}

func NewDashboardService(d *Deps, ttl time.Duration) *DashboardService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DashboardService{deps: d.withDefaults(), ttl: ttl}
}

// Bootstrap loads leads, courses and records concurrently. Any failure
// fails the whole load.
func (s *DashboardService) Bootstrap(ctx context.Context) (BootstrapData, error) {
	var (
		leads   []models.LeadRow
		courses []models.CourseRow
		records []models.FinancialRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leads, err = s.deps.Store.ListLeads(gctx, repository.LeadQuery{})
		return err
	})
	g.Go(func() error {
		var err error
		courses, err = s.deps.Store.ListCourses(gctx, false)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.deps.Store.ListRecords(gctx, repository.RecordQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		return BootstrapData{}, apperrors.E(apperrors.Internal, "loading initial data", err)
	}

	return BootstrapData{
		Leads:   normalizeLeads(leads),
		Courses: normalizeCourses(courses),
		Records: normalizeRecords(records),
	}, nil
}

// Get returns the cached dashboard or computes a fresh one.
func (s *DashboardService) Get(ctx context.Context) (Dashboard, error) {
	var cached Dashboard
	hit, err := s.deps.Cache.Get(ctx, dashboardCacheKey, &cached)
	if err != nil {
		logger.Warn("dashboard cache read failed: %v", err)
	}
	if hit {
		return cached, nil
	}

	data, err := s.Bootstrap(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d := BuildDashboard(data.Leads, data.Courses, s.deps.today())
	d.GeneratedAt = s.deps.Now().UTC()

	if err := s.deps.Cache.Set(ctx, dashboardCacheKey, d, s.ttl); err != nil {
		logger.Warn("dashboard cache write failed: %v", err)
	}
	return d, nil
}

// BuildDashboard computes the aggregates.
func BuildDashboard(leads []models.Lead, courses []models.Course, today time.Time) Dashboard {
	d := Dashboard{
		TotalLeads: len(leads),
		ByStatus:   make(map[models.LeadStatus]int, len(models.LeadStatuses)),
		BySource:   make(map[string]int),
	}
	for _, st := range models.LeadStatuses {
		d.ByStatus[st] = 0
	}

	todayISO := utils.FormatDate(today)
	for _, l := range leads {
		d.ByStatus[l.Status]++
		source := l.Source
		if source == "" {
			source = models.SourceOther
		}
		d.BySource[source]++
		if l.Status == models.LeadStatusEnrolled {
			d.Enrolled++
		}
		if !l.Status.IsTerminal() {
			d.PipelineValue += l.TotalValue
		}
		if l.InDoubt {
			d.InDoubt++
		}
		if l.NextActionDate != "" && l.NextActionDate <= todayISO {
			d.ActionsDue++
		}
	}
	if d.TotalLeads > 0 {
		d.ConversionRate = float64(d.Enrolled) / float64(d.TotalLeads)
	}
	d.PipelineValue = utils.RoundCents(d.PipelineValue)

	for _, c := range courses {
		if c.Active {
			d.ActiveCourses++
		}
	}
	return d
}

// invalidateDashboard drops the cached aggregates after a write.
func (d *Deps) invalidateDashboard(ctx context.Context) {
	if err := d.Cache.Delete(ctx, dashboardCacheKey); err != nil {
		logger.Warn("dashboard cache invalidation failed: %v", err)
	}
}
