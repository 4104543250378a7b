package models

import "time"

// DLQMessage is an event that could not be published or handled.
type DLQMessage struct {
	ID           int64     `db:"id" json:"id"`
	MessageID    string    `db:"message_id" json:"messageId"`
	Topic        string    `db:"topic" json:"topic"`
	Key          string    `db:"key" json:"key"`
	Value        string    `db:"value" json:"value"`
	ErrorMessage string    `db:"error_message" json:"errorMessage"`
	RetryCount   int       `db:"retry_count" json:"retryCount"`
	MaxRetries   int       `db:"max_retries" json:"maxRetries"`
	Resolved     bool      `db:"resolved" json:"resolved"`
	Notes        string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// DLQStats summarises the dead letter table.
type DLQStats struct {
	Total      int `json:"total_dlq_messages"`
	Unresolved int `json:"unresolved_messages"`
	Resolved   int `json:"resolved_messages"`
}
