package db

import (
	"context"
	"fmt"
	"time"

	"enrollment-crm/config"
	"enrollment-crm/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var DB *sqlx.DB

// InitDB opens the pool described by config.AppConfig, pings it and runs
// the migrations.
func InitDB() error {
	var err error
	DB, err = Open(config.GetDBConnString())
	if err != nil {
		return err
	}

	if err := Migrate(context.Background(), DB); err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}

	return nil
}

// Open connects without migrating.
func Open(connStr string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return conn, nil
}

// Close releases the pool.
func Close() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

var migrations = []struct {
	name string
	stmt string
}{
	{"pgcrypto", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
	{"users", `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		role TEXT,
		avatar TEXT,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"courses", `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		name TEXT NOT NULL,
		formation TEXT,
		modality TEXT,
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		enrollment_fee NUMERIC(12,2),
		enrollment_discount NUMERIC(12,2),
		scholarship NUMERIC(5,2) NOT NULL DEFAULT 0,
		duration TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"leads", `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		name TEXT,
		email TEXT,
		phone TEXT,
		city TEXT,
		source TEXT,
		in_doubt BOOLEAN,
		course_id TEXT,
		modality TEXT,
		status TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		assigned_to TEXT,
		notes TEXT[] NOT NULL DEFAULT '{}',
		total_value NUMERIC(12,2),
		next_action_date DATE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"leads_idx", `CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads (assigned_to)`},
	{"financial_records", `
	CREATE TABLE IF NOT EXISTS financial_records (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		lead_id TEXT REFERENCES leads(id) ON DELETE SET NULL,
		student_name TEXT,
		course_name TEXT,
		amount NUMERIC(12,2) NOT NULL,
		due_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		installment TEXT,
		payment_order_id TEXT UNIQUE,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"financial_records_idx", `CREATE INDEX IF NOT EXISTS idx_financial_records_lead ON financial_records (lead_id)`},
	{"dlq_messages", `
	CREATE TABLE IF NOT EXISTS dlq_messages (
		id BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE DEFAULT gen_random_uuid()::text,
		topic TEXT NOT NULL,
		key TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 5,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TIMESTAMPTZ,
		last_retry_at TIMESTAMPTZ,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
}

// Migrate creates the schema; every statement is idempotent.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := conn.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		logger.Debug("Migration applied: %s", m.name)
	}
	return nil
}
