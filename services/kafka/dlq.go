package kafka

import (
	"context"
	"encoding/json"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/repository"
)

func jsonEncode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

func deadLetterFor(topic, key string, payload []byte, cause error) models.DLQMessage {
	return models.DLQMessage{
		Topic:        topic,
		Key:          key,
		Value:        string(payload),
		ErrorMessage: cause.Error(),
	}
}

// DLQ manages stored dead letters: listing, replaying and resolving.
type DLQ struct {
	store      repository.DLQRepository
	producer   *Producer
	dispatcher *Dispatcher
	batch      int
}

func NewDLQ(store repository.DLQRepository, p *Producer, d *Dispatcher) *DLQ {
	return &DLQ{store: store, producer: p, dispatcher: d, batch: 10}
}

func (q *DLQ) List(ctx context.Context, limit int) ([]models.DLQMessage, error) {
	return q.store.ListDLQMessages(ctx, limit)
}

func (q *DLQ) Stats(ctx context.Context) (models.DLQStats, error) {
	return q.store.DLQStats(ctx)
}

func (q *DLQ) Resolve(ctx context.Context, messageID, notes string) error {
	if _, err := q.store.GetDLQMessage(ctx, messageID); err != nil {
		return err
	}
	if err := q.store.ResolveDLQMessage(ctx, messageID, notes); err != nil {
		return err
	}
	logger.Info("DLQ message %s marked as resolved", messageID)
	return nil
}

// Retry replays one message and reports whether it went through. The
// message is republished when Kafka is enabled and dispatched locally
// otherwise.
func (q *DLQ) Retry(ctx context.Context, messageID string) (bool, error) {
	msg, err := q.store.GetDLQMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.Resolved {
		return false, apperrors.E(apperrors.Conflict, "DLQ message %s is already resolved", messageID)
	}
	return q.replay(ctx, msg, "Manually retried successfully")
}

func (q *DLQ) replay(ctx context.Context, msg models.DLQMessage, notes string) (bool, error) {
	var err error
	if q.producer != nil && q.producer.Enabled() {
		err = q.producer.Republish(ctx, msg.Topic, msg.Key, []byte(msg.Value))
	} else if q.dispatcher != nil {
		err = q.dispatcher.Dispatch(ctx, []byte(msg.Value))
	} else {
		err = apperrors.E(apperrors.Internal, "no way to replay DLQ messages")
	}

	ok := err == nil
	if !ok {
		logger.Warn("Retry of DLQ message %s failed: %v", msg.MessageID, err)
	}
	if recErr := q.store.RecordDLQRetry(ctx, msg.MessageID, ok, notes); recErr != nil {
		return ok, recErr
	}
	if ok {
		logger.Info("DLQ message %s marked as resolved", msg.MessageID)
	}
	return ok, nil
}

// RetryPending replays one batch of unresolved messages that still have
// retry budget.
func (q *DLQ) RetryPending(ctx context.Context) (processed, resolved int, err error) {
	msgs, err := q.store.ListRetryableDLQ(ctx, q.batch)
	if err != nil {
		return 0, 0, err
	}
	for _, msg := range msgs {
		logger.Info("Auto-retrying DLQ message %s (attempt %d/%d)", msg.MessageID, msg.RetryCount+1, msg.MaxRetries)
		ok, err := q.replay(ctx, msg, "Auto-retried successfully")
		if err != nil {
			logger.Error("Error updating DLQ message %s: %v", msg.MessageID, err)
			continue
		}
		processed++
		if ok {
			resolved++
		}
	}
	if processed > 0 {
		logger.Info("DLQ auto-retry completed: processed %d messages, %d resolved", processed, resolved)
	}
	return processed, resolved, nil
}

// RunAutoRetry calls RetryPending every interval until ctx is done.
func (q *DLQ) RunAutoRetry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("DLQ auto-retry scheduler started (every %s)", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("DLQ auto-retry stopped")
			return
		case <-ticker.C:
			if _, _, err := q.RetryPending(ctx); err != nil {
				logger.Error("Error querying unresolved DLQ messages for retry: %v", err)
			}
		}
	}
}

type retryBudget struct {
	DeadLetterStore
	max int
}

func (r retryBudget) StoreDLQMessage(ctx context.Context, msg models.DLQMessage) error {
	if msg.MaxRetries == 0 {
		msg.MaxRetries = r.max
	}
	return r.DeadLetterStore.StoreDLQMessage(ctx, msg)
}

// WithMaxRetries stamps the retry budget on dead letters stored through
// store. Non-positive budgets leave the storage default.
func WithMaxRetries(store DeadLetterStore, max int) DeadLetterStore {
	if store == nil || max <= 0 {
		return store
	}
	return retryBudget{DeadLetterStore: store, max: max}
}
