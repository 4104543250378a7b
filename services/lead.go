package services

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"
)

// LeadFilter narrows List. Zero values match everything.
type LeadFilter struct {
	Status        models.LeadStatus
	AssignedTo    string
	Source        string
	Search        string
	InDoubt       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// LeadInput is the writable part of a lead.
type LeadInput struct {
	Name           string                `json:"name" validate:"required,max=100"`
	Email          string                `json:"email" validate:"omitempty,email"`
	Phone          string                `json:"phone" validate:"omitempty,phone"`
	City           string                `json:"city" validate:"max=100"`
	Source         string                `json:"source" validate:"max=100"`
	InDoubt        bool                  `json:"inDoubt"`
	CourseIDs      []string              `json:"courseIds"`
	Modality       models.CourseModality `json:"modality"`
	Status         models.LeadStatus     `json:"status"`
	AssignedTo     string                `json:"assignedTo"`
	Notes          []string              `json:"notes"`
	TotalValue     float64               `json:"totalValue" validate:"gte=0"`
	NextActionDate string                `json:"nextActionDate" validate:"omitempty,datetime=2006-01-02"`
	CreatedAt      *time.Time            `json:"createdAt"`
}

// ImportIssue explains why a spreadsheet line was not imported.
type ImportIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportReport summarises a spreadsheet import.
type ImportReport struct {
	Created int           `json:"created"`
	Skipped []ImportIssue `json:"skipped"`
	Leads   []models.Lead `json:"leads"`
}

type LeadService struct {
	deps       *Deps
	enrollment *EnrollmentService
}

func NewLeadService(d *Deps, enrollment *EnrollmentService) *LeadService {
	return &LeadService{deps: d.withDefaults(), enrollment: enrollment}
}

// List returns normalized leads newest first. Filters on reconstructed
// fields run after normalization so legacy rows match too.
func (s *LeadService) List(ctx context.Context, f LeadFilter) ([]models.Lead, error) {
	rows, err := s.deps.Store.ListLeads(ctx, repository.LeadQuery{
		AssignedTo:    f.AssignedTo,
		CreatedAfter:  f.CreatedAfter,
		CreatedBefore: f.CreatedBefore,
	})
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "loading leads", err)
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	searchDigits := utils.DigitsOnly(search)

	leads := []models.Lead{}
	for _, row := range rows {
		l := NormalizeLead(row)
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Source != "" && !strings.EqualFold(l.Source, f.Source) {
			continue
		}
		if f.InDoubt != nil && l.InDoubt != *f.InDoubt {
			continue
		}
		if search != "" && !matchesSearch(l, search, searchDigits) {
			continue
		}
		leads = append(leads, l)
	}
	return leads, nil
}

func matchesSearch(l models.Lead, search, digits string) bool {
	if strings.Contains(strings.ToLower(l.Name), search) || strings.Contains(strings.ToLower(l.Email), search) {
		return true
	}
	if strings.Contains(l.Phone, search) {
		return true
	}
	return len(digits) >= 3 && strings.Contains(utils.DigitsOnly(l.Phone), digits)
}

func (s *LeadService) Get(ctx context.Context, id string) (models.Lead, error) {
	row, err := s.deps.Store.GetLead(ctx, id)
	if err != nil {
		return models.Lead{}, err
	}
	return NormalizeLead(row), nil
}

// validate checks the input and resolves defaults shared by create and
// update.
func (s *LeadService) validate(ctx context.Context, in *LeadInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = models.LeadStatusNew
	} else if !in.Status.IsValid() {
		return apperrors.E(apperrors.Invalid, "unknown lead status %q", string(in.Status))
	}
	if in.Modality != "" && !in.Modality.IsValid() {
		return apperrors.E(apperrors.Invalid, "unknown modality %q", string(in.Modality))
	}

	in.CourseIDs = cleanIDs(in.CourseIDs)
	for _, id := range in.CourseIDs {
		if _, err := s.deps.Store.GetCourse(ctx, id); err != nil {
			if apperrors.IsKind(err, apperrors.NotFound) {
				return apperrors.E(apperrors.Invalid, "unknown course %s", id)
			}
			return err
		}
	}
	if in.Notes == nil {
		in.Notes = []string{}
	}
	return nil
}

func cleanIDs(ids []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || strings.Contains(id, ",") || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *LeadService) ensureUnique(ctx context.Context, email, phone, excludeID string) error {
	exists, err := s.deps.Store.LeadExists(ctx, email, phone, excludeID)
	if err != nil {
		return apperrors.E(apperrors.Internal, "checking duplicate leads", err)
	}
	if exists {
		return apperrors.E(apperrors.Conflict, "a lead with this email or phone already exists")
	}
	return nil
}

// Create stores a new lead. Creating a lead directly as Enrolled runs the
// enrollment.
func (s *LeadService) Create(ctx context.Context, in LeadInput) (models.Lead, error) {
	if err := s.validate(ctx, &in); err != nil {
		return models.Lead{}, err
	}
	if err := s.ensureUnique(ctx, in.Email, in.Phone, ""); err != nil {
		return models.Lead{}, err
	}

	now := s.deps.Now()
	lead := models.Lead{
		ID:             s.deps.NewID(),
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		City:           in.City,
		Source:         in.Source,
		InDoubt:        in.InDoubt,
		CourseIDs:      in.CourseIDs,
		Modality:       in.Modality,
		Status:         in.Status,
		CreatedAt:      now,
		AssignedTo:     in.AssignedTo,
		Notes:          in.Notes,
		TotalValue:     in.TotalValue,
		NextActionDate: in.NextActionDate,
		UpdatedAt:      now,
	}
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		lead.CreatedAt = *in.CreatedAt
	}

	enroll := lead.Status == models.LeadStatusEnrolled
	if enroll {
		lead.Status = models.LeadStatusNew
	}

	if err := s.deps.Store.CreateLead(ctx, lead.ToRow()); err != nil {
		return models.Lead{}, apperrors.E("saving lead", err)
	}
	logger.Info("Lead created: %s (%s)", lead.ID, lead.Name)

	s.deps.invalidateDashboard(ctx)
	s.deps.publish(ctx, s.deps.Topics.Leads, utils.EventLeadCreated, lead.ID, newLeadEvent(lead, "", now))
	if lead.AssignedTo != "" {
		s.notifyAssigned(ctx, lead)
	}

	if enroll {
		res, err := s.enrollment.Enroll(ctx, lead.ID)
		if err != nil {
			return lead, err
		}
		return res.Lead, nil
	}
	return lead, nil
}

// Update replaces the writable fields of a lead. Moving it to Enrolled
// runs the enrollment.
func (s *LeadService) Update(ctx context.Context, id string, in LeadInput) (models.Lead, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.Lead{}, err
	}
	if in.Status == "" {
		in.Status = current.Status
	}
	if err := s.validate(ctx, &in); err != nil {
		return models.Lead{}, err
	}
	if err := s.ensureUnique(ctx, in.Email, in.Phone, id); err != nil {
		return models.Lead{}, err
	}

	updated := current
	updated.Name = in.Name
	updated.Email = in.Email
	updated.Phone = in.Phone
	updated.City = in.City
	updated.Source = in.Source
	updated.InDoubt = in.InDoubt
	updated.CourseIDs = in.CourseIDs
	updated.Modality = in.Modality
	updated.AssignedTo = in.AssignedTo
	updated.TotalValue = in.TotalValue
	updated.NextActionDate = in.NextActionDate
	if len(in.Notes) > 0 {
		updated.Notes = in.Notes
	}
	syncStructuredNotes(&updated)
	updated.UpdatedAt = s.deps.Now()

	enroll := in.Status == models.LeadStatusEnrolled && current.Status != models.LeadStatusEnrolled
	if !enroll {
		updated.Status = in.Status
	}

	if err := s.deps.Store.UpdateLead(ctx, updated.ToRow()); err != nil {
		return models.Lead{}, err
	}
	s.deps.invalidateDashboard(ctx)

	if updated.AssignedTo != "" && updated.AssignedTo != current.AssignedTo {
		s.notifyAssigned(ctx, updated)
	}
	if enroll {
		return s.enrollOrMark(ctx, updated)
	}
	if updated.Status != current.Status {
		s.deps.publish(ctx, s.deps.Topics.Leads, utils.EventLeadStatusChanged, id,
			newLeadEvent(updated, current.Status, updated.UpdatedAt))
	}
	return updated, nil
}

func (s *LeadService) Delete(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteLead(ctx, id); err != nil {
		return err
	}
	logger.Info("Lead deleted: %s", id)
	s.deps.invalidateDashboard(ctx)
	return nil
}

// ChangeStatus moves a lead through the funnel.
func (s *LeadService) ChangeStatus(ctx context.Context, id string, status models.LeadStatus) (models.Lead, error) {
	if !status.IsValid() {
		return models.Lead{}, apperrors.E(apperrors.Invalid, "unknown lead status %q", string(status))
	}
	lead, err := s.Get(ctx, id)
	if err != nil {
		return models.Lead{}, err
	}
	if lead.Status == status {
		return lead, nil
	}
	if status == models.LeadStatusEnrolled {
		return s.enrollOrMark(ctx, lead)
	}

	previous := lead.Status
	lead.Status = status
	lead.UpdatedAt = s.deps.Now()
	if err := s.deps.Store.UpdateLead(ctx, lead.ToRow()); err != nil {
		return models.Lead{}, err
	}

	s.deps.invalidateDashboard(ctx)
	s.deps.publish(ctx, s.deps.Topics.Leads, utils.EventLeadStatusChanged, id, newLeadEvent(lead, previous, lead.UpdatedAt))
	return lead, nil
}

// enrollOrMark runs the enrollment. A lead that was billed before keeps
// its records and only gets the Enrolled status back.
func (s *LeadService) enrollOrMark(ctx context.Context, lead models.Lead) (models.Lead, error) {
	res, err := s.enrollment.Enroll(ctx, lead.ID)
	if err == nil {
		return res.Lead, nil
	}
	if !apperrors.IsKind(err, apperrors.Conflict) {
		return models.Lead{}, err
	}

	logger.Info("Lead %s already has financial records, marking as enrolled without billing", lead.ID)
	previous := lead.Status
	lead.Status = models.LeadStatusEnrolled
	lead.UpdatedAt = s.deps.Now()
	if err := s.deps.Store.UpdateLead(ctx, lead.ToRow()); err != nil {
		return models.Lead{}, err
	}
	s.deps.invalidateDashboard(ctx)
	s.deps.publish(ctx, s.deps.Topics.Leads, utils.EventLeadStatusChanged, lead.ID, newLeadEvent(lead, previous, lead.UpdatedAt))
	return lead, nil
}

// AddNote appends a note. Structured notes update the matching field.
func (s *LeadService) AddNote(ctx context.Context, id, text string) (models.Lead, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Lead{}, apperrors.E(apperrors.Invalid, "note text is required")
	}
	if len(text) > 2000 {
		return models.Lead{}, apperrors.E(apperrors.Invalid, "note must be at most 2000 characters")
	}

	lead, err := s.Get(ctx, id)
	if err != nil {
		return models.Lead{}, err
	}
	lead.Notes = append(lead.Notes, text)
	applyStructuredNote(&lead, text)
	lead.UpdatedAt = s.deps.Now()

	if err := s.deps.Store.UpdateLead(ctx, lead.ToRow()); err != nil {
		return models.Lead{}, err
	}
	s.deps.invalidateDashboard(ctx)
	return lead, nil
}

func applyStructuredNote(l *models.Lead, note string) {
	switch {
	case strings.HasPrefix(note, utils.NotePrefixCity):
		l.City = strings.TrimPrefix(note, utils.NotePrefixCity)
	case strings.HasPrefix(note, utils.NotePrefixSource):
		l.Source = strings.TrimPrefix(note, utils.NotePrefixSource)
	case note == utils.NoteInDoubt:
		l.InDoubt = true
	case strings.HasPrefix(note, utils.NotePrefixSchedule):
		iso := scheduleNoteToISO(strings.TrimPrefix(note, utils.NotePrefixSchedule))
		if _, err := utils.ParseDate(iso); err == nil {
			l.NextActionDate = iso
		}
	}
}

// syncStructuredNotes makes the legacy notes agree with the fields they
// mirror, since normalization falls back to them when a field is empty.
// Cleared fields lose their notes; the schedule note is rewritten to the
// current date.
func syncStructuredNotes(l *models.Lead) {
	notes := make([]string, 0, len(l.Notes)+1)
	for _, n := range l.Notes {
		switch {
		case strings.HasPrefix(n, utils.NotePrefixSchedule):
			continue
		case n == utils.NoteInDoubt && !l.InDoubt:
			continue
		case strings.HasPrefix(n, utils.NotePrefixCity) && l.City == "":
			continue
		case strings.HasPrefix(n, utils.NotePrefixSource) && l.Source == "":
			continue
		}
		notes = append(notes, n)
	}
	if l.NextActionDate != "" {
		notes = append(notes, utils.NotePrefixSchedule+utils.BrazilianDate(l.NextActionDate))
	}
	l.Notes = notes
}

// Schedule sets the next action date and mirrors it as a schedule note
// for readers that only look at notes.
func (s *LeadService) Schedule(ctx context.Context, id, date string) (models.Lead, error) {
	day, err := utils.ParseDate(date)
	if err != nil {
		return models.Lead{}, apperrors.E(apperrors.Invalid, err.Error())
	}

	lead, err := s.Get(ctx, id)
	if err != nil {
		return models.Lead{}, err
	}

	lead.NextActionDate = utils.FormatDate(day)
	syncStructuredNotes(&lead)
	lead.UpdatedAt = s.deps.Now()

	if err := s.deps.Store.UpdateLead(ctx, lead.ToRow()); err != nil {
		return models.Lead{}, err
	}
	s.deps.invalidateDashboard(ctx)
	return lead, nil
}

// Agenda lists leads with a next action inside [from, to], earliest
// first. Nil bounds are open.
func (s *LeadService) Agenda(ctx context.Context, from, to *time.Time, assignedTo string) ([]models.Lead, error) {
	leads, err := s.List(ctx, LeadFilter{AssignedTo: assignedTo})
	if err != nil {
		return nil, err
	}

	out := []models.Lead{}
	for _, l := range leads {
		if l.NextActionDate == "" {
			continue
		}
		day, err := utils.ParseDate(l.NextActionDate)
		if err != nil {
			continue
		}
		if from != nil && day.Before(*from) {
			continue
		}
		if to != nil && day.After(*to) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NextActionDate == out[j].NextActionDate {
			return out[i].Name < out[j].Name
		}
		return out[i].NextActionDate < out[j].NextActionDate
	})
	return out, nil
}

// Import creates leads from an .xlsx workbook. Bad lines are reported and
// skipped; duplicates within the file and against stored leads are
// skipped too.
func (s *LeadService) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	rows, err := ParseLeadWorkbook(r)
	if err != nil {
		return ImportReport{}, apperrors.E(apperrors.Invalid, err.Error())
	}

	courseRows, err := s.deps.Store.ListCourses(ctx, false)
	if err != nil {
		return ImportReport{}, apperrors.E(apperrors.Internal, "loading courses", err)
	}
	userRows, err := s.deps.Store.ListUsers(ctx)
	if err != nil {
		return ImportReport{}, apperrors.E(apperrors.Internal, "loading team", err)
	}

	parsed := make([]models.Lead, len(rows))
	for i, row := range rows {
		parsed[i] = row.Lead
	}
	_, dups := utils.DeduplicateLeads(parsed)
	duplicateOf := make(map[int]int, len(dups))
	for _, d := range dups {
		duplicateOf[d.Index] = rows[d.Of].Line
	}

	report := ImportReport{Skipped: []ImportIssue{}, Leads: []models.Lead{}}
	for i, row := range rows {
		if first, dup := duplicateOf[i]; dup {
			report.Skipped = append(report.Skipped, ImportIssue{Line: row.Line, Reason: "duplicate of line " + strconv.Itoa(first)})
			continue
		}

		in, issue := importInput(row, courseRows, userRows)
		if issue != "" {
			report.Skipped = append(report.Skipped, ImportIssue{Line: row.Line, Reason: issue})
			continue
		}

		lead, err := s.Create(ctx, in)
		if err != nil {
			report.Skipped = append(report.Skipped, ImportIssue{Line: row.Line, Reason: err.Error()})
			continue
		}
		report.Created++
		report.Leads = append(report.Leads, lead)
	}

	logger.Info("Lead import finished: %d created, %d skipped", report.Created, len(report.Skipped))
	return report, nil
}

// importInput maps a spreadsheet line, resolving course names and team
// members. Unknown statuses and modalities fall back to defaults.
func importInput(row ImportRow, courses []models.CourseRow, users []models.UserRow) (LeadInput, string) {
	l := row.Lead
	in := LeadInput{
		Name:       l.Name,
		Email:      l.Email,
		Phone:      l.Phone,
		City:       l.City,
		Source:     l.Source,
		Modality:   l.Modality,
		Status:     l.Status,
		Notes:      l.Notes,
		TotalValue: l.TotalValue,
		CourseIDs:  []string{},
	}
	if in.Name == "" {
		in.Name = utils.DefaultLeadName
	}
	if !in.Status.IsValid() {
		in.Status = models.LeadStatusNew
	}
	if in.Status == models.LeadStatusEnrolled {
		in.Status = models.LeadStatusPendingDocs
	}
	if !in.Modality.IsValid() {
		in.Modality = ""
	}

	for _, ref := range row.Courses {
		id := resolveCourse(ref, courses)
		if id == "" {
			return in, "unknown course " + ref
		}
		in.CourseIDs = append(in.CourseIDs, id)
	}

	if l.AssignedTo != "" {
		for _, u := range users {
			if strings.EqualFold(u.Email, l.AssignedTo) || strings.EqualFold(u.Name.String, l.AssignedTo) || u.ID == l.AssignedTo {
				in.AssignedTo = u.ID
				break
			}
		}
		if in.AssignedTo == "" {
			return in, "unknown team member " + l.AssignedTo
		}
	}
	return in, ""
}

func resolveCourse(ref string, courses []models.CourseRow) string {
	for _, c := range courses {
		if c.ID == ref || strings.EqualFold(c.Name, ref) {
			return c.ID
		}
	}
	return ""
}

func (s *LeadService) notifyAssigned(ctx context.Context, l models.Lead) {
	s.deps.publish(ctx, s.deps.Topics.Notifications, utils.EventNotifyLeadAssigned, l.ID,
		LeadAssignedEvent{LeadID: l.ID, UserID: l.AssignedTo})
}
