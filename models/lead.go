package models

import (
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Lead is a prospective student moving through the sales funnel.
type Lead struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	City           string         `json:"city,omitempty"`
	Source         string         `json:"source,omitempty"`
	InDoubt        bool           `json:"inDoubt"`
	CourseIDs      []string       `json:"courseIds"`
	Modality       CourseModality `json:"modality"`
	Status         LeadStatus     `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	AssignedTo     string         `json:"assignedTo"`
	Notes          []string       `json:"notes"`
	TotalValue     float64        `json:"totalValue"`
	NextActionDate string         `json:"nextActionDate,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// LeadRow mirrors the leads table. Legacy rows may leave most columns null
// and carry their structured data inside Notes.
type LeadRow struct {
	ID             string          `db:"id"`
	Name           sql.NullString  `db:"name"`
	Email          sql.NullString  `db:"email"`
	Phone          sql.NullString  `db:"phone"`
	City           sql.NullString  `db:"city"`
	Source         sql.NullString  `db:"source"`
	InDoubt        sql.NullBool    `db:"in_doubt"`
	CourseID       sql.NullString  `db:"course_id"`
	Modality       sql.NullString  `db:"modality"`
	Status         sql.NullString  `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	AssignedTo     sql.NullString  `db:"assigned_to"`
	Notes          pq.StringArray  `db:"notes"`
	TotalValue     sql.NullFloat64 `db:"total_value"`
	NextActionDate sql.NullTime    `db:"next_action_date"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// ToRow converts the lead back to its storage shape; course ids are
// stored comma-joined for compatibility with existing rows.
func (l Lead) ToRow() LeadRow {
	row := LeadRow{
		ID:         l.ID,
		Name:       nullString(l.Name),
		Email:      nullString(l.Email),
		Phone:      nullString(l.Phone),
		City:       nullString(l.City),
		Source:     nullString(l.Source),
		InDoubt:    sql.NullBool{Bool: l.InDoubt, Valid: true},
		CourseID:   nullString(strings.Join(l.CourseIDs, ",")),
		Modality:   nullString(string(l.Modality)),
		Status:     nullString(string(l.Status)),
		CreatedAt:  l.CreatedAt,
		AssignedTo: nullString(l.AssignedTo),
		Notes:      pq.StringArray(append([]string{}, l.Notes...)),
		TotalValue: sql.NullFloat64{Float64: l.TotalValue, Valid: true},
		UpdatedAt:  l.UpdatedAt,
	}
	if t, err := time.Parse(DateLayout, l.NextActionDate); err == nil {
		row.NextActionDate = sql.NullTime{Time: t, Valid: true}
	}
	return row
}

// HasCourse reports whether id is one of the lead's courses.
func (l Lead) HasCourse(id string) bool {
	for _, c := range l.CourseIDs {
		if c == id {
			return true
		}
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
