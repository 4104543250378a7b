package models

import (
	"database/sql"
	"time"
)

// User is a team member as exposed to clients.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	Avatar string   `json:"avatar,omitempty"`
}

// UserRow mirrors the users table.
type UserRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	Name         sql.NullString `db:"name"`
	Role         sql.NullString `db:"role"`
	Avatar       sql.NullString `db:"avatar"`
	PasswordHash string         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
