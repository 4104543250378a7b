package models

import (
	"database/sql"
	"time"
)

// Course is a catalog offering. Price is the monthly tuition; Scholarship
// is a percentage discount on it; EnrollmentDiscount is a fixed amount off
// the enrollment fee.
type Course struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	Formation          string         `json:"formation" yaml:"formation"`
	Modality           CourseModality `json:"modality" yaml:"modality"`
	Price              float64        `json:"price" yaml:"price"`
	EnrollmentFee      float64        `json:"enrollmentFee" yaml:"enrollmentFee"`
	EnrollmentDiscount float64        `json:"enrollmentDiscount" yaml:"enrollmentDiscount"`
	Scholarship        float64        `json:"scholarship" yaml:"scholarship"`
	Duration           string         `json:"duration" yaml:"duration"`
	Active             bool           `json:"active" yaml:"active"`
}

// CourseRow mirrors the courses table.
type CourseRow struct {
	ID                 string          `db:"id"`
	Name               string          `db:"name"`
	Formation          sql.NullString  `db:"formation"`
	Modality           sql.NullString  `db:"modality"`
	Price              float64         `db:"price"`
	EnrollmentFee      sql.NullFloat64 `db:"enrollment_fee"`
	EnrollmentDiscount sql.NullFloat64 `db:"enrollment_discount"`
	Scholarship        float64         `db:"scholarship"`
	Duration           sql.NullString  `db:"duration"`
	Active             bool            `db:"active"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (c Course) ToRow() CourseRow {
	return CourseRow{
		ID:                 c.ID,
		Name:               c.Name,
		Formation:          nullString(c.Formation),
		Modality:           nullString(string(c.Modality)),
		Price:              c.Price,
		EnrollmentFee:      sql.NullFloat64{Float64: c.EnrollmentFee, Valid: c.EnrollmentFee != 0},
		EnrollmentDiscount: sql.NullFloat64{Float64: c.EnrollmentDiscount, Valid: c.EnrollmentDiscount != 0},
		Scholarship:        c.Scholarship,
		Duration:           nullString(c.Duration),
		Active:             c.Active,
	}
}
