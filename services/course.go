package services

import (
	"context"
	"strings"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"
)

// CourseInput is the writable part of a course.
type CourseInput struct {
	Name               string                `json:"name" yaml:"name" validate:"required,max=150"`
	Formation          string                `json:"formation" yaml:"formation" validate:"max=100"`
	Modality           models.CourseModality `json:"modality" yaml:"modality"`
	Price              float64               `json:"price" yaml:"price" validate:"gte=0"`
	EnrollmentFee      float64               `json:"enrollmentFee" yaml:"enrollmentFee" validate:"gte=0"`
	EnrollmentDiscount float64               `json:"enrollmentDiscount" yaml:"enrollmentDiscount" validate:"gte=0"`
	Scholarship        float64               `json:"scholarship" yaml:"scholarship" validate:"gte=0,lte=100"`
	Duration           string                `json:"duration" yaml:"duration" validate:"max=50"`
	Active             *bool                 `json:"active" yaml:"active"`
}

type CourseService struct {
	deps *Deps
}

func NewCourseService(d *Deps) *CourseService {
	return &CourseService{deps: d.withDefaults()}
}

func (s *CourseService) List(ctx context.Context, activeOnly bool) ([]models.Course, error) {
	rows, err := s.deps.Store.ListCourses(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "loading courses", err)
	}
	return normalizeCourses(rows), nil
}

func (s *CourseService) Get(ctx context.Context, id string) (models.Course, error) {
	row, err := s.deps.Store.GetCourse(ctx, id)
	if err != nil {
		return models.Course{}, err
	}
	return NormalizeCourse(row), nil
}

func validateCourse(in *CourseInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	if in.Modality != "" && !in.Modality.IsValid() {
		return apperrors.E(apperrors.Invalid, "unknown modality %q", string(in.Modality))
	}
	return nil
}

func (s *CourseService) Create(ctx context.Context, in CourseInput) (models.Course, error) {
	if err := validateCourse(&in); err != nil {
		return models.Course{}, err
	}

	c := models.Course{
		ID:                 s.deps.NewID(),
		Name:               in.Name,
		Formation:          in.Formation,
		Modality:           in.Modality,
		Price:              utils.RoundCents(in.Price),
		EnrollmentFee:      utils.RoundCents(in.EnrollmentFee),
		EnrollmentDiscount: utils.RoundCents(in.EnrollmentDiscount),
		Scholarship:        in.Scholarship,
		Duration:           in.Duration,
		Active:             in.Active == nil || *in.Active,
	}

	row := c.ToRow()
	row.CreatedAt = s.deps.Now()
	row.UpdatedAt = row.CreatedAt
	if err := s.deps.Store.CreateCourse(ctx, row); err != nil {
		return models.Course{}, err
	}

	logger.Info("Course created: %s (%s)", c.ID, c.Name)
	s.deps.invalidateDashboard(ctx)
	return c, nil
}

// Update replaces a course. A rename is carried over to the financial
// records that were titled after the old name.
func (s *CourseService) Update(ctx context.Context, id string, in CourseInput) (models.Course, error) {
	if err := validateCourse(&in); err != nil {
		return models.Course{}, err
	}
	current, err := s.deps.Store.GetCourse(ctx, id)
	if err != nil {
		return models.Course{}, err
	}

	c := models.Course{
		ID:                 id,
		Name:               in.Name,
		Formation:          in.Formation,
		Modality:           in.Modality,
		Price:              utils.RoundCents(in.Price),
		EnrollmentFee:      utils.RoundCents(in.EnrollmentFee),
		EnrollmentDiscount: utils.RoundCents(in.EnrollmentDiscount),
		Scholarship:        in.Scholarship,
		Duration:           in.Duration,
		Active:             current.Active,
	}
	if in.Active != nil {
		c.Active = *in.Active
	}

	row := c.ToRow()
	row.CreatedAt = current.CreatedAt
	row.UpdatedAt = s.deps.Now()
	if current.Name == c.Name {
		if err := s.deps.Store.UpdateCourse(ctx, row); err != nil {
			return models.Course{}, err
		}
	} else {
		records, err := s.renamedRecords(ctx, current.Name, c.Name)
		if err != nil {
			return models.Course{}, err
		}
		if err := s.deps.Store.RenameCourse(ctx, row, records); err != nil {
			return models.Course{}, apperrors.E("renaming course %s", id, err)
		}
		logger.Info("Course %s renamed from %q to %q, %d records updated", id, current.Name, c.Name, len(records))
	}

	s.deps.invalidateDashboard(ctx)
	return c, nil
}

// renamedRecords returns the records whose title carries oldName, with
// the title rewritten to newName.
func (s *CourseService) renamedRecords(ctx context.Context, oldName, newName string) ([]models.FinancialRow, error) {
	rows, err := s.deps.Store.ListRecords(ctx, repository.RecordQuery{})
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "loading financial records", err)
	}

	renamed := []models.FinancialRow{}
	for _, row := range rows {
		title, ok := renamedCourseTitle(row.CourseName.String, oldName, newName)
		if !ok {
			continue
		}
		row.CourseName.String = title
		row.CourseName.Valid = true
		renamed = append(renamed, row)
	}
	return renamed, nil
}

// Delete removes a course that no lead references.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.deps.Store.GetCourse(ctx, id); err != nil {
		return err
	}
	n, err := s.deps.Store.CountLeadsWithCourse(ctx, id)
	if err != nil {
		return apperrors.E(apperrors.Internal, "checking course usage", err)
	}
	if n > 0 {
		return apperrors.E(apperrors.Conflict, "course is referenced by %d leads", n)
	}

	if err := s.deps.Store.DeleteCourse(ctx, id); err != nil {
		return err
	}
	logger.Info("Course deleted: %s", id)
	s.deps.invalidateDashboard(ctx)
	return nil
}

// ToggleActive flips the active flag, or sets it when active is given.
func (s *CourseService) ToggleActive(ctx context.Context, id string, active *bool) (models.Course, error) {
	row, err := s.deps.Store.GetCourse(ctx, id)
	if err != nil {
		return models.Course{}, err
	}
	if active != nil {
		row.Active = *active
	} else {
		row.Active = !row.Active
	}
	row.UpdatedAt = s.deps.Now()

	if err := s.deps.Store.UpdateCourse(ctx, row); err != nil {
		return models.Course{}, err
	}
	s.deps.invalidateDashboard(ctx)
	return NormalizeCourse(row), nil
}
