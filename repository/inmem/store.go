// Package inmem is a map-backed repository.Store used by tests.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"
	"enrollment-crm/repository"
	"enrollment-crm/utils"

	"github.com/google/uuid"
)

type Store struct {
	mutex   sync.RWMutex
	leads   map[string]models.LeadRow
	courses map[string]models.CourseRow
	records map[string]models.FinancialRow
	users   map[string]models.UserRow
	dlq     []models.DLQMessage
	dlqSeq  int64
	failing map[string]error
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		leads:   make(map[string]models.LeadRow),
		courses: make(map[string]models.CourseRow),
		records: make(map[string]models.FinancialRow),
		users:   make(map[string]models.UserRow),
		failing: make(map[string]error),
	}
}

// Fail makes every later call of the named method return err until
// Fail(method, nil) is called.
func (s *Store) Fail(method string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err == nil {
		delete(s.failing, method)
		return
	}
	s.failing[method] = err
}

func (s *Store) failure(method string) error {
	return s.failing[method]
}

func notFound(entity, id string) error {
	return apperrors.E(apperrors.NotFound, "%s %s not found", entity, id)
}

func (s *Store) Ping(context.Context) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.failure("Ping")
}

// ---- leads ----

func (s *Store) ListLeads(_ context.Context, q repository.LeadQuery) ([]models.LeadRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.failure("ListLeads"); err != nil {
		return nil, err
	}

	rows := make([]models.LeadRow, 0, len(s.leads))
	for _, row := range s.leads {
		if q.AssignedTo != "" && row.AssignedTo.String != q.AssignedTo {
			continue
		}
		if q.CreatedAfter != nil && row.CreatedAt.Before(*q.CreatedAfter) {
			continue
		}
		if q.CreatedBefore != nil && row.CreatedAt.After(*q.CreatedBefore) {
			continue
		}
		rows = append(rows, copyLead(row))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *Store) GetLead(_ context.Context, id string) (models.LeadRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	row, ok := s.leads[id]
	if !ok {
		return models.LeadRow{}, notFound("lead", id)
	}
	return copyLead(row), nil
}

func (s *Store) CreateLead(_ context.Context, row models.LeadRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.failure("CreateLead"); err != nil {
		return err
	}
	if _, ok := s.leads[row.ID]; ok {
		return apperrors.E(apperrors.Conflict, "lead already exists")
	}
	s.leads[row.ID] = copyLead(row)
	return nil
}

func (s *Store) UpdateLead(_ context.Context, row models.LeadRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.leads[row.ID]; !ok {
		return notFound("lead", row.ID)
	}
	s.leads[row.ID] = copyLead(row)
	return nil
}

func (s *Store) DeleteLead(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.leads[id]; !ok {
		return notFound("lead", id)
	}
	delete(s.leads, id)
	for rid, rec := range s.records {
		if rec.LeadID.Valid && rec.LeadID.String == id {
			rec.LeadID.Valid = false
			rec.LeadID.String = ""
			s.records[rid] = rec
		}
	}
	return nil
}

func (s *Store) LeadExists(_ context.Context, email, phone, excludeID string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	email = strings.TrimSpace(email)
	phone = utils.DigitsOnly(phone)
	for id, row := range s.leads {
		if id == excludeID {
			continue
		}
		if email != "" && strings.EqualFold(row.Email.String, email) {
			return true, nil
		}
		if phone != "" && utils.DigitsOnly(row.Phone.String) == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountLeadsWithCourse(_ context.Context, courseID string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	count := 0
	for _, row := range s.leads {
		for _, id := range strings.Split(row.CourseID.String, ",") {
			if id == courseID {
				count++
				break
			}
		}
	}
	return count, nil
}

func copyLead(row models.LeadRow) models.LeadRow {
	row.Notes = append([]string{}, row.Notes...)
	return row
}

// ---- courses ----

func (s *Store) ListCourses(_ context.Context, activeOnly bool) ([]models.CourseRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.failure("ListCourses"); err != nil {
		return nil, err
	}
	rows := make([]models.CourseRow, 0, len(s.courses))
	for _, row := range s.courses {
		if activeOnly && !row.Active {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func (s *Store) GetCourse(_ context.Context, id string) (models.CourseRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	row, ok := s.courses[id]
	if !ok {
		return models.CourseRow{}, notFound("course", id)
	}
	return row, nil
}

func (s *Store) CreateCourse(_ context.Context, row models.CourseRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.courses[row.ID]; ok {
		return apperrors.E(apperrors.Conflict, "course already exists")
	}
	s.courses[row.ID] = row
	return nil
}

func (s *Store) UpdateCourse(_ context.Context, row models.CourseRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.courses[row.ID]; !ok {
		return notFound("course", row.ID)
	}
	s.courses[row.ID] = row
	return nil
}

func (s *Store) RenameCourse(_ context.Context, row models.CourseRow, records []models.FinancialRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.failure("RenameCourse"); err != nil {
		return err
	}
	if _, ok := s.courses[row.ID]; !ok {
		return notFound("course", row.ID)
	}
	for _, rec := range records {
		if _, ok := s.records[rec.ID]; !ok {
			return notFound("financial record", rec.ID)
		}
	}
	s.courses[row.ID] = row
	for _, rec := range records {
		stored := s.records[rec.ID]
		stored.CourseName = rec.CourseName
		s.records[rec.ID] = stored
	}
	return nil
}

func (s *Store) DeleteCourse(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.courses[id]; !ok {
		return notFound("course", id)
	}
	delete(s.courses, id)
	return nil
}

// ---- financial records ----

func (s *Store) ListRecords(_ context.Context, q repository.RecordQuery) ([]models.FinancialRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.failure("ListRecords"); err != nil {
		return nil, err
	}
	rows := make([]models.FinancialRow, 0, len(s.records))
	for _, row := range s.records {
		if q.Status != "" && row.Status != string(q.Status) {
			continue
		}
		if q.LeadID != "" && row.LeadID.String != q.LeadID {
			continue
		}
		if q.DueAfter != nil && row.DueDate.Before(*q.DueAfter) {
			continue
		}
		if q.DueBefore != nil && row.DueDate.After(*q.DueBefore) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DueDate.Equal(rows[j].DueDate) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].DueDate.After(rows[j].DueDate)
	})
	return rows, nil
}

func (s *Store) GetRecord(_ context.Context, id string) (models.FinancialRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	row, ok := s.records[id]
	if !ok {
		return models.FinancialRow{}, notFound("financial record", id)
	}
	return row, nil
}

func (s *Store) GetRecordByOrderID(_ context.Context, orderID string) (models.FinancialRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, row := range s.records {
		if row.PaymentOrderID.Valid && row.PaymentOrderID.String == orderID {
			return row, nil
		}
	}
	return models.FinancialRow{}, notFound("payment order", orderID)
}

func (s *Store) CreateRecords(_ context.Context, rows []models.FinancialRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.failure("CreateRecords"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, ok := s.records[row.ID]; ok {
			return apperrors.E(apperrors.Conflict, "financial record %s already exists", row.ID)
		}
	}
	for _, row := range rows {
		s.records[row.ID] = row
	}
	return nil
}

func (s *Store) UpdateRecord(_ context.Context, row models.FinancialRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.records[row.ID]; !ok {
		return notFound("financial record", row.ID)
	}
	if row.PaymentOrderID.Valid {
		for id, other := range s.records {
			if id != row.ID && other.PaymentOrderID.String == row.PaymentOrderID.String {
				return apperrors.E(apperrors.Conflict, "payment order already linked to another record")
			}
		}
	}
	s.records[row.ID] = row
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.records[id]; !ok {
		return notFound("financial record", id)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) MarkOverdue(_ context.Context, today time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var n int64
	for id, row := range s.records {
		if row.Status == string(models.RecordPending) && row.DueDate.Before(today) {
			row.Status = string(models.RecordOverdue)
			s.records[id] = row
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveEnrollment(_ context.Context, lead models.LeadRow, records []models.FinancialRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.failure("SaveEnrollment"); err != nil {
		return err
	}
	if _, ok := s.leads[lead.ID]; !ok {
		return notFound("lead", lead.ID)
	}
	for _, rec := range s.records {
		if rec.LeadID.Valid && rec.LeadID.String == lead.ID {
			return apperrors.E(apperrors.Conflict, "lead %s already has financial records", lead.ID)
		}
	}
	for _, row := range records {
		s.records[row.ID] = row
	}
	s.leads[lead.ID] = copyLead(lead)
	return nil
}

// ---- users ----

func (s *Store) ListUsers(context.Context) ([]models.UserRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rows := make([]models.UserRow, 0, len(s.users))
	for _, row := range s.users {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name.String < rows[j].Name.String })
	return rows, nil
}

func (s *Store) GetUser(_ context.Context, id string) (models.UserRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	row, ok := s.users[id]
	if !ok {
		return models.UserRow{}, notFound("user", id)
	}
	return row, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (models.UserRow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	email = strings.TrimSpace(email)
	for _, row := range s.users {
		if strings.EqualFold(row.Email, email) {
			return row, nil
		}
	}
	return models.UserRow{}, notFound("user", email)
}

func (s *Store) CreateUser(_ context.Context, row models.UserRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, other := range s.users {
		if strings.EqualFold(other.Email, row.Email) {
			return apperrors.E(apperrors.Conflict, "a user with this email already exists")
		}
	}
	s.users[row.ID] = row
	return nil
}

func (s *Store) UpdateUser(_ context.Context, row models.UserRow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.users[row.ID]; !ok {
		return notFound("user", row.ID)
	}
	for id, other := range s.users {
		if id != row.ID && strings.EqualFold(other.Email, row.Email) {
			return apperrors.E(apperrors.Conflict, "a user with this email already exists")
		}
	}
	s.users[row.ID] = row
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.users, id)
	return nil
}

// ---- dead letters ----

func (s *Store) StoreDLQMessage(_ context.Context, msg models.DLQMessage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.failure("StoreDLQMessage"); err != nil {
		return err
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	for _, existing := range s.dlq {
		if existing.MessageID == msg.MessageID {
			return nil
		}
	}
	if msg.MaxRetries <= 0 {
		msg.MaxRetries = 5
	}
	s.dlqSeq++
	msg.ID = s.dlqSeq
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.dlq = append(s.dlq, msg)
	return nil
}

func (s *Store) ListDLQMessages(_ context.Context, limit int) ([]models.DLQMessage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := []models.DLQMessage{}
	for i := len(s.dlq) - 1; i >= 0 && len(out) < limit; i-- {
		if !s.dlq[i].Resolved {
			out = append(out, s.dlq[i])
		}
	}
	return out, nil
}

func (s *Store) GetDLQMessage(_ context.Context, messageID string) (models.DLQMessage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, msg := range s.dlq {
		if msg.MessageID == messageID {
			return msg, nil
		}
	}
	return models.DLQMessage{}, notFound("DLQ message", messageID)
}

func (s *Store) ListRetryableDLQ(_ context.Context, limit int) ([]models.DLQMessage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := []models.DLQMessage{}
	for _, msg := range s.dlq {
		if len(out) == limit {
			break
		}
		if !msg.Resolved && msg.RetryCount < msg.MaxRetries {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *Store) RecordDLQRetry(_ context.Context, messageID string, succeeded bool, notes string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i := range s.dlq {
		if s.dlq[i].MessageID != messageID {
			continue
		}
		s.dlq[i].RetryCount++
		if succeeded {
			s.dlq[i].Resolved = true
			s.dlq[i].Notes = notes
		}
		return nil
	}
	return notFound("DLQ message", messageID)
}

func (s *Store) ResolveDLQMessage(_ context.Context, messageID, notes string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i := range s.dlq {
		if s.dlq[i].MessageID == messageID {
			s.dlq[i].Resolved = true
			s.dlq[i].Notes = notes
			return nil
		}
	}
	return notFound("DLQ message", messageID)
}

func (s *Store) DLQStats(context.Context) (models.DLQStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stats := models.DLQStats{Total: len(s.dlq)}
	for _, msg := range s.dlq {
		if msg.Resolved {
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
	}
	return stats, nil
}
