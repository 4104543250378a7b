package repository

import (
	"context"
	"fmt"

	"enrollment-crm/models"
)

const dlqColumns = `id, message_id, topic, key, value, error_message, retry_count, max_retries,
	resolved, notes, created_at`

// StoreDLQMessage inserts a failed message. An empty MessageID lets the
// database generate one.
func (s *PostgresStore) StoreDLQMessage(ctx context.Context, msg models.DLQMessage) error {
	maxRetries := msg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var err error
	if msg.MessageID == "" {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dlq_messages (topic, key, value, error_message, max_retries)
			VALUES ($1, $2, $3, $4, $5)`,
			msg.Topic, msg.Key, msg.Value, msg.ErrorMessage, maxRetries)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dlq_messages (message_id, topic, key, value, error_message, max_retries)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (message_id) DO NOTHING`,
			msg.MessageID, msg.Topic, msg.Key, msg.Value, msg.ErrorMessage, maxRetries)
	}
	if err != nil {
		return fmt.Errorf("error storing DLQ message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDLQMessages(ctx context.Context, limit int) ([]models.DLQMessage, error) {
	msgs := []models.DLQMessage{}
	query := `SELECT ` + dlqColumns + ` FROM dlq_messages WHERE resolved = FALSE ORDER BY created_at DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &msgs, query, limit); err != nil {
		return nil, fmt.Errorf("error querying DLQ messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) GetDLQMessage(ctx context.Context, messageID string) (models.DLQMessage, error) {
	var msg models.DLQMessage
	err := s.db.GetContext(ctx, &msg, `SELECT `+dlqColumns+` FROM dlq_messages WHERE message_id = $1`, messageID)
	if err != nil {
		return msg, notFound(err, "DLQ message", messageID)
	}
	return msg, nil
}

func (s *PostgresStore) ListRetryableDLQ(ctx context.Context, limit int) ([]models.DLQMessage, error) {
	msgs := []models.DLQMessage{}
	query := `
		SELECT ` + dlqColumns + `
		FROM dlq_messages
		WHERE resolved = FALSE AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $1`
	if err := s.db.SelectContext(ctx, &msgs, query, limit); err != nil {
		return nil, fmt.Errorf("error querying retryable DLQ messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) RecordDLQRetry(ctx context.Context, messageID string, succeeded bool, notes string) error {
	query := `
		UPDATE dlq_messages
		SET retry_count = retry_count + 1, last_retry_at = NOW()
		WHERE message_id = $1`
	args := []interface{}{messageID}
	if succeeded {
		query = `
			UPDATE dlq_messages
			SET retry_count = retry_count + 1, last_retry_at = NOW(), resolved = TRUE,
				resolved_at = NOW(), notes = $2
			WHERE message_id = $1`
		args = append(args, notes)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating DLQ message %s: %w", messageID, err)
	}
	return expectOne(res, "DLQ message", messageID)
}

func (s *PostgresStore) ResolveDLQMessage(ctx context.Context, messageID, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dlq_messages
		SET resolved = TRUE, resolved_at = NOW(), notes = $2
		WHERE message_id = $1`, messageID, notes)
	if err != nil {
		return fmt.Errorf("error resolving DLQ message: %w", err)
	}
	return expectOne(res, "DLQ message", messageID)
}

func (s *PostgresStore) DLQStats(ctx context.Context) (models.DLQStats, error) {
	var stats models.DLQStats
	err := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE resolved = FALSE),
			COUNT(*) FILTER (WHERE resolved = TRUE)
		FROM dlq_messages`).Scan(&stats.Total, &stats.Unresolved, &stats.Resolved)
	if err != nil {
		return stats, fmt.Errorf("error getting DLQ stats: %w", err)
	}
	return stats, nil
}
