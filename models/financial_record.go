package models

import (
	"database/sql"
	"time"
)

// FinancialRecord is one billable line: an enrollment fee or a tuition
// installment.
type FinancialRecord struct {
	ID             string       `json:"id"`
	LeadID         string       `json:"leadId,omitempty"`
	StudentName    string       `json:"studentName"`
	CourseName     string       `json:"courseName"`
	Amount         float64      `json:"amount"`
	DueDate        string       `json:"dueDate"`
	Status         RecordStatus `json:"status"`
	Installment    string       `json:"installment"`
	PaymentOrderID string       `json:"paymentOrderId,omitempty"`
	PaidAt         *time.Time   `json:"paidAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// FinancialRow mirrors the financial_records table.
type FinancialRow struct {
	ID             string         `db:"id"`
	LeadID         sql.NullString `db:"lead_id"`
	StudentName    sql.NullString `db:"student_name"`
	CourseName     sql.NullString `db:"course_name"`
	Amount         float64        `db:"amount"`
	DueDate        time.Time      `db:"due_date"`
	Status         string         `db:"status"`
	Installment    sql.NullString `db:"installment"`
	PaymentOrderID sql.NullString `db:"payment_order_id"`
	PaidAt         sql.NullTime   `db:"paid_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (f FinancialRecord) ToRow() FinancialRow {
	row := FinancialRow{
		ID:             f.ID,
		LeadID:         nullString(f.LeadID),
		StudentName:    nullString(f.StudentName),
		CourseName:     nullString(f.CourseName),
		Amount:         f.Amount,
		Status:         string(f.Status),
		Installment:    nullString(f.Installment),
		PaymentOrderID: nullString(f.PaymentOrderID),
		CreatedAt:      f.CreatedAt,
	}
	if t, err := time.Parse(DateLayout, f.DueDate); err == nil {
		row.DueDate = t
	}
	if f.PaidAt != nil {
		row.PaidAt = sql.NullTime{Time: *f.PaidAt, Valid: true}
	}
	return row
}

// Due parses DueDate; the zero time is returned for malformed values.
func (f FinancialRecord) Due() time.Time {
	t, _ := time.Parse(DateLayout, f.DueDate)
	return t
}
