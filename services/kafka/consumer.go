package kafka

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"enrollment-crm/logger"
	"enrollment-crm/models"

	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads the notification topic and hands every message to the
// dispatcher. Failed messages become dead letters.
type Consumer struct {
	mutex      sync.Mutex
	reader     messageReader
	dispatcher *Dispatcher
	dlq        DeadLetterStore
	running    bool
}

// NewConsumer returns nil when brokers is empty.
func NewConsumer(brokers []string, groupID string, topics []string, d *Dispatcher, dlq DeadLetterStore) *Consumer {
	if len(brokers) == 0 {
		logger.Info("Kafka consumer is disabled (KAFKA_BROKERS is empty)")
		return nil
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          brokers,
		GroupTopics:      topics,
		GroupID:          groupID,
		StartOffset:      kafka.LastOffset,
		CommitInterval:   time.Second,
		MaxBytes:         10e6,
		SessionTimeout:   20 * time.Second,
		ReadBackoffMin:   100 * time.Millisecond,
		ReadBackoffMax:   time.Second,
		QueueCapacity:    100,
		RebalanceTimeout: 60 * time.Second,
	})

	logger.Info("Kafka consumer initialized. Brokers=%v, Topics=%v, ConsumerGroup=%s", brokers, topics, groupID)
	return &Consumer{reader: reader, dispatcher: d, dlq: dlq}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.mutex.Lock()
	if c.running {
		c.mutex.Unlock()
		logger.Warn("Consumer already running")
		return
	}
	c.running = true
	c.mutex.Unlock()

	defer func() {
		c.mutex.Lock()
		c.running = false
		c.mutex.Unlock()
	}()

	logger.Info("Kafka consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Consumer stop signal received")
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if strings.Contains(err.Error(), "Group Coordinator Not Available") {
				sleep(ctx, 500*time.Millisecond)
				continue
			}
			logger.Warn("Kafka read failed: %v", err)
			sleep(ctx, time.Second)
			continue
		}

		c.Handle(ctx, msg)
	}
}

// Handle dispatches one message and reports whether it succeeded.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) bool {
	err := c.dispatcher.Dispatch(ctx, msg.Value)
	if err == nil {
		return true
	}

	logger.Error("Error handling message on %s (key %s): %v", msg.Topic, string(msg.Key), err)
	if c.dlq != nil {
		dlqErr := c.dlq.StoreDLQMessage(context.WithoutCancel(ctx), models.DLQMessage{
			Topic:        msg.Topic,
			Key:          string(msg.Key),
			Value:        string(msg.Value),
			ErrorMessage: err.Error(),
		})
		if dlqErr != nil {
			logger.Error("Error storing DLQ message: %v", dlqErr)
		}
	}
	return false
}

// Running reports whether Run is active.
func (c *Consumer) Running() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.running
}

// Close stops the reader; Run returns on its next read.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		logger.Error("Error closing consumer: %v", err)
		return err
	}
	logger.Info("Kafka consumer stopped")
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
