package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"enrollment-crm/logger"
	"enrollment-crm/metrics"
	"enrollment-crm/models"

	"github.com/avast/retry-go/v4"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterStore persists messages that could not be delivered.
type DeadLetterStore interface {
	StoreDLQMessage(ctx context.Context, msg models.DLQMessage) error
}

// Producer writes JSON events. A Producer without a writer is disabled and
// Publish is a no-op.
type Producer struct {
	mutex    sync.Mutex
	writer   messageWriter
	dlq      DeadLetterStore
	attempts uint
	delay    time.Duration
	timeout  time.Duration
}

// NewProducer returns a disabled producer when brokers is empty.
func NewProducer(brokers []string, dlq DeadLetterStore) *Producer {
	p := &Producer{dlq: dlq, attempts: 3, delay: time.Second, timeout: 5 * time.Second}
	if len(brokers) == 0 {
		logger.Info("Kafka is disabled (KAFKA_BROKERS is empty)")
		return p
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		Async:        false,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
	logger.Info("Kafka producer initialized. Brokers=%v", brokers)
	return p
}

// Enabled reports whether events leave the process.
func (p *Producer) Enabled() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.writer != nil
}

// Publish writes ev to topic keyed by ev.Key, retrying with exponential
// backoff. After the last failed attempt the payload is stored as a dead
// letter and the error is returned.
func (p *Producer) Publish(ctx context.Context, topic string, ev Event) error {
	if !p.Enabled() {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling Kafka message: %v", err)
		return err
	}

	err = p.write(ctx, topic, ev.Key, payload)
	metrics.EventsPublished.WithLabelValues(topic, metrics.Outcome(err)).Inc()
	if err == nil {
		return nil
	}

	logger.Warn("Sending failed message to DLQ. Topic: %s, Key: %s", topic, ev.Key)
	if p.dlq != nil {
		dlqErr := p.dlq.StoreDLQMessage(context.WithoutCancel(ctx), models.DLQMessage{
			Topic:        topic,
			Key:          ev.Key,
			Value:        string(payload),
			ErrorMessage: "publish failed: " + err.Error(),
		})
		if dlqErr != nil {
			logger.Error("Failed to send message to DLQ: %v", dlqErr)
		}
	}
	return err
}

// Republish writes an already encoded payload without the dead letter
// fallback; used when replaying dead letters.
func (p *Producer) Republish(ctx context.Context, topic, key string, payload []byte) error {
	if !p.Enabled() {
		return nil
	}
	return p.write(ctx, topic, key, payload)
}

func (p *Producer) write(ctx context.Context, topic, key string, payload []byte) error {
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: payload}

	return retry.Do(
		func() error {
			p.mutex.Lock()
			w := p.writer
			p.mutex.Unlock()

			wctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			return w.WriteMessages(wctx, msg)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Kafka publish attempt %d failed: %v", n+1, err)
		}),
	)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
