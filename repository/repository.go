// Package repository defines the storage contracts of the CRM and their
// PostgreSQL implementation. Rows are returned raw; callers normalize them.
package repository

import (
	"context"
	"time"

	"enrollment-crm/models"
)

// LeadQuery narrows ListLeads to what the database can filter on. Filters
// on reconstructed fields (source, city, in-doubt) are applied after
// normalization.
type LeadQuery struct {
	AssignedTo    string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// RecordQuery narrows ListRecords.
type RecordQuery struct {
	Status    models.RecordStatus
	LeadID    string
	DueAfter  *time.Time
	DueBefore *time.Time
}

type LeadRepository interface {
	ListLeads(ctx context.Context, q LeadQuery) ([]models.LeadRow, error)
	GetLead(ctx context.Context, id string) (models.LeadRow, error)
	CreateLead(ctx context.Context, row models.LeadRow) error
	UpdateLead(ctx context.Context, row models.LeadRow) error
	DeleteLead(ctx context.Context, id string) error
	// LeadExists reports whether another lead (not excludeID) already uses
	// the email (case-insensitive) or the phone (digits only). Empty values
	// never match.
	LeadExists(ctx context.Context, email, phone, excludeID string) (bool, error)
	CountLeadsWithCourse(ctx context.Context, courseID string) (int, error)
}

type CourseRepository interface {
	ListCourses(ctx context.Context, activeOnly bool) ([]models.CourseRow, error)
	GetCourse(ctx context.Context, id string) (models.CourseRow, error)
	CreateCourse(ctx context.Context, row models.CourseRow) error
	UpdateCourse(ctx context.Context, row models.CourseRow) error
	// RenameCourse updates the course and the course_name of the given
	// records in one transaction.
	RenameCourse(ctx context.Context, row models.CourseRow, records []models.FinancialRow) error
	DeleteCourse(ctx context.Context, id string) error
}

type FinanceRepository interface {
	ListRecords(ctx context.Context, q RecordQuery) ([]models.FinancialRow, error)
	GetRecord(ctx context.Context, id string) (models.FinancialRow, error)
	GetRecordByOrderID(ctx context.Context, orderID string) (models.FinancialRow, error)
	// CreateRecords inserts all rows or none.
	CreateRecords(ctx context.Context, rows []models.FinancialRow) error
	UpdateRecord(ctx context.Context, row models.FinancialRow) error
	DeleteRecord(ctx context.Context, id string) error
	// MarkOverdue flips PENDING records due strictly before today.
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
}

// EnrollmentRepository persists the outcome of an enrollment atomically.
type EnrollmentRepository interface {
	SaveEnrollment(ctx context.Context, lead models.LeadRow, records []models.FinancialRow) error
}

type UserRepository interface {
	ListUsers(ctx context.Context) ([]models.UserRow, error)
	GetUser(ctx context.Context, id string) (models.UserRow, error)
	GetUserByEmail(ctx context.Context, email string) (models.UserRow, error)
	CreateUser(ctx context.Context, row models.UserRow) error
	UpdateUser(ctx context.Context, row models.UserRow) error
	DeleteUser(ctx context.Context, id string) error
}

type DLQRepository interface {
	StoreDLQMessage(ctx context.Context, msg models.DLQMessage) error
	ListDLQMessages(ctx context.Context, limit int) ([]models.DLQMessage, error)
	GetDLQMessage(ctx context.Context, messageID string) (models.DLQMessage, error)
	// ListRetryableDLQ returns unresolved messages below their retry budget,
	// oldest first.
	ListRetryableDLQ(ctx context.Context, limit int) ([]models.DLQMessage, error)
	// RecordDLQRetry bumps the retry counter and resolves the message when
	// the retry succeeded.
	RecordDLQRetry(ctx context.Context, messageID string, succeeded bool, notes string) error
	ResolveDLQMessage(ctx context.Context, messageID, notes string) error
	DLQStats(ctx context.Context) (models.DLQStats, error)
}

// Store bundles every repository; both the Postgres and the in-memory
// implementations satisfy it.
type Store interface {
	LeadRepository
	CourseRepository
	FinanceRepository
	EnrollmentRepository
	UserRepository
	DLQRepository
	Ping(ctx context.Context) error
}
