package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"
	"enrollment-crm/utils"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore implements Store on top of a sqlx pool.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// notFound turns sql.ErrNoRows into a NotFound application error.
func notFound(err error, entity, id string) error {
	if err == sql.ErrNoRows {
		return apperrors.E(apperrors.NotFound, "%s %s not found", entity, id)
	}
	return apperrors.E(apperrors.Internal, "loading %s %s", entity, id, err)
}

// uniqueViolation maps Postgres code 23505 to Conflict.
func uniqueViolation(err error, msg string) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return apperrors.E(apperrors.Conflict, msg)
	}
	return err
}

func expectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.E(apperrors.NotFound, "%s %s not found", entity, id)
	}
	return nil
}

// ---- leads ----

const leadColumns = `id, name, email, phone, city, source, in_doubt, course_id, modality,
	status, created_at, assigned_to, notes, total_value, next_action_date, updated_at`

func (s *PostgresStore) ListLeads(ctx context.Context, q LeadQuery) ([]models.LeadRow, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	args := []interface{}{}

	if q.AssignedTo != "" {
		args = append(args, q.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	if q.CreatedAfter != nil {
		args = append(args, *q.CreatedAfter)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if q.CreatedBefore != nil {
		args = append(args, *q.CreatedBefore)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows := []models.LeadRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching leads: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (models.LeadRow, error) {
	var row models.LeadRow
	err := s.db.GetContext(ctx, &row, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	if err != nil {
		return row, notFound(err, "lead", id)
	}
	return row, nil
}

const insertLead = `
	INSERT INTO leads (
		id, name, email, phone, city, source, in_doubt, course_id, modality,
		status, created_at, assigned_to, notes, total_value, next_action_date, updated_at
	) VALUES (
		:id, :name, :email, :phone, :city, :source, :in_doubt, :course_id, :modality,
		:status, :created_at, :assigned_to, :notes, :total_value, :next_action_date, :updated_at
	)`

func (s *PostgresStore) CreateLead(ctx context.Context, row models.LeadRow) error {
	if _, err := s.db.NamedExecContext(ctx, insertLead, row); err != nil {
		return uniqueViolation(err, "lead already exists")
	}
	return nil
}

const updateLead = `
	UPDATE leads SET
		name = :name, email = :email, phone = :phone, city = :city, source = :source,
		in_doubt = :in_doubt, course_id = :course_id, modality = :modality, status = :status,
		assigned_to = :assigned_to, notes = :notes, total_value = :total_value,
		next_action_date = :next_action_date, updated_at = :updated_at
	WHERE id = :id`

func (s *PostgresStore) UpdateLead(ctx context.Context, row models.LeadRow) error {
	res, err := s.db.NamedExecContext(ctx, updateLead, row)
	if err != nil {
		return fmt.Errorf("error updating lead: %w", err)
	}
	return expectOne(res, "lead", row.ID)
}

func (s *PostgresStore) DeleteLead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting lead: %w", err)
	}
	return expectOne(res, "lead", id)
}

func (s *PostgresStore) LeadExists(ctx context.Context, email, phone, excludeID string) (bool, error) {
	email = strings.TrimSpace(email)
	phone = utils.DigitsOnly(phone)
	if email == "" && phone == "" {
		return false, nil
	}
	var count int
	query := `
		SELECT COUNT(*) FROM leads
		WHERE id <> $3
		AND ((lower(email) = lower($1) AND $1 <> '')
			OR (regexp_replace(phone, '\D', '', 'g') = $2 AND $2 <> ''))`
	if err := s.db.GetContext(ctx, &count, query, email, phone, excludeID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostgresStore) CountLeadsWithCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM leads WHERE $1 = ANY(string_to_array(course_id, ','))`
	if err := s.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, err
	}
	return count, nil
}

// ---- courses ----

const courseColumns = `id, name, formation, modality, price, enrollment_fee, enrollment_discount,
	scholarship, duration, active, created_at, updated_at`

func (s *PostgresStore) ListCourses(ctx context.Context, activeOnly bool) ([]models.CourseRow, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows := []models.CourseRow{}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error fetching courses: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, id string) (models.CourseRow, error) {
	var row models.CourseRow
	err := s.db.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	if err != nil {
		return row, notFound(err, "course", id)
	}
	return row, nil
}

func (s *PostgresStore) CreateCourse(ctx context.Context, row models.CourseRow) error {
	query := `
		INSERT INTO courses (id, name, formation, modality, price, enrollment_fee,
			enrollment_discount, scholarship, duration, active, created_at, updated_at)
		VALUES (:id, :name, :formation, :modality, :price, :enrollment_fee,
			:enrollment_discount, :scholarship, :duration, :active, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return uniqueViolation(err, "course already exists")
	}
	return nil
}

const updateCourse = `
	UPDATE courses SET
		name = :name, formation = :formation, modality = :modality, price = :price,
		enrollment_fee = :enrollment_fee, enrollment_discount = :enrollment_discount,
		scholarship = :scholarship, duration = :duration, active = :active,
		updated_at = :updated_at
	WHERE id = :id`

func (s *PostgresStore) UpdateCourse(ctx context.Context, row models.CourseRow) error {
	res, err := s.db.NamedExecContext(ctx, updateCourse, row)
	if err != nil {
		return fmt.Errorf("error updating course: %w", err)
	}
	return expectOne(res, "course", row.ID)
}

func (s *PostgresStore) RenameCourse(ctx context.Context, row models.CourseRow, records []models.FinancialRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, updateCourse, row)
	if err != nil {
		return fmt.Errorf("error updating course: %w", err)
	}
	if err := expectOne(res, "course", row.ID); err != nil {
		return err
	}

	for _, rec := range records {
		res, err := tx.ExecContext(ctx,
			`UPDATE financial_records SET course_name = $1 WHERE id = $2`, rec.CourseName, rec.ID)
		if err != nil {
			return fmt.Errorf("error renaming course on record %s: %w", rec.ID, err)
		}
		if err := expectOne(res, "financial record", rec.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting course: %w", err)
	}
	return expectOne(res, "course", id)
}

// ---- financial records ----

const recordColumns = `id, lead_id, student_name, course_name, amount, due_date, status,
	installment, payment_order_id, paid_at, created_at`

const insertRecord = `
	INSERT INTO financial_records (id, lead_id, student_name, course_name, amount, due_date,
		status, installment, payment_order_id, paid_at, created_at)
	VALUES (:id, :lead_id, :student_name, :course_name, :amount, :due_date,
		:status, :installment, :payment_order_id, :paid_at, :created_at)`

func (s *PostgresStore) ListRecords(ctx context.Context, q RecordQuery) ([]models.FinancialRow, error) {
	query := `SELECT ` + recordColumns + ` FROM financial_records WHERE 1=1`
	args := []interface{}{}

	if q.Status != "" {
		args = append(args, string(q.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if q.LeadID != "" {
		args = append(args, q.LeadID)
		query += fmt.Sprintf(" AND lead_id = $%d", len(args))
	}
	if q.DueAfter != nil {
		args = append(args, *q.DueAfter)
		query += fmt.Sprintf(" AND due_date >= $%d", len(args))
	}
	if q.DueBefore != nil {
		args = append(args, *q.DueBefore)
		query += fmt.Sprintf(" AND due_date <= $%d", len(args))
	}
	query += " ORDER BY due_date DESC, created_at DESC"

	rows := []models.FinancialRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching financial records: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (models.FinancialRow, error) {
	var row models.FinancialRow
	err := s.db.GetContext(ctx, &row, `SELECT `+recordColumns+` FROM financial_records WHERE id = $1`, id)
	if err != nil {
		return row, notFound(err, "financial record", id)
	}
	return row, nil
}

func (s *PostgresStore) GetRecordByOrderID(ctx context.Context, orderID string) (models.FinancialRow, error) {
	var row models.FinancialRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+recordColumns+` FROM financial_records WHERE payment_order_id = $1`, orderID)
	if err != nil {
		return row, notFound(err, "payment order", orderID)
	}
	return row, nil
}

func (s *PostgresStore) CreateRecords(ctx context.Context, rows []models.FinancialRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertRecord, rows); err != nil {
		return fmt.Errorf("error inserting financial records: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, row models.FinancialRow) error {
	query := `
		UPDATE financial_records SET
			lead_id = :lead_id, student_name = :student_name, course_name = :course_name,
			amount = :amount, due_date = :due_date, status = :status,
			installment = :installment, payment_order_id = :payment_order_id, paid_at = :paid_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return uniqueViolation(err, "payment order already linked to another record")
	}
	return expectOne(res, "financial record", row.ID)
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM financial_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting financial record: %w", err)
	}
	return expectOne(res, "financial record", id)
}

func (s *PostgresStore) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE financial_records SET status = $1 WHERE status = $2 AND due_date < $3`,
		string(models.RecordOverdue), string(models.RecordPending), today)
	if err != nil {
		return 0, fmt.Errorf("error marking overdue records: %w", err)
	}
	return res.RowsAffected()
}

// SaveEnrollment inserts the generated records and updates the lead in one
// transaction. The lead row is locked so two concurrent enrollments of the
// same lead cannot both pass the duplicate check.
func (s *PostgresStore) SaveEnrollment(ctx context.Context, lead models.LeadRow, records []models.FinancialRow) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM leads WHERE id = $1 FOR UPDATE`, lead.ID); err != nil {
		return notFound(err, "lead", lead.ID)
	}

	var existing int
	if err := tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM financial_records WHERE lead_id = $1`, lead.ID); err != nil {
		return fmt.Errorf("error checking existing records: %w", err)
	}
	if existing > 0 {
		return apperrors.E(apperrors.Conflict, "lead %s already has financial records", lead.ID)
	}

	if len(records) > 0 {
		if _, err := tx.NamedExecContext(ctx, insertRecord, records); err != nil {
			return fmt.Errorf("error inserting financial records: %w", err)
		}
	}
	if _, err := tx.NamedExecContext(ctx, updateLead, lead); err != nil {
		return fmt.Errorf("error updating lead: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ---- users ----

const userColumns = `id, email, name, role, avatar, password_hash, created_at, updated_at`

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.UserRow, error) {
	rows := []models.UserRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("error fetching users: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (models.UserRow, error) {
	var row models.UserRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return row, notFound(err, "user", id)
	}
	return row, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.UserRow, error) {
	var row models.UserRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	if err != nil {
		return row, notFound(err, "user", email)
	}
	return row, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, row models.UserRow) error {
	query := `
		INSERT INTO users (id, email, name, role, avatar, password_hash, created_at, updated_at)
		VALUES (:id, :email, :name, :role, :avatar, :password_hash, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return uniqueViolation(err, "a user with this email already exists")
	}
	return nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, row models.UserRow) error {
	query := `
		UPDATE users SET email = :email, name = :name, role = :role, avatar = :avatar,
			password_hash = :password_hash, updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return uniqueViolation(err, "a user with this email already exists")
	}
	return expectOne(res, "user", row.ID)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	return expectOne(res, "user", id)
}
