package kafka

import (
	"context"
	"strings"
	"time"

	"enrollment-crm/logger"

	"github.com/avast/retry-go/v4"
	"github.com/segmentio/kafka-go"
)

// EnsureTopics creates the given topics in the background, retrying while
// the brokers come up. Existing topics are left alone.
func EnsureTopics(ctx context.Context, brokers []string, topics []string) {
	if len(brokers) == 0 || len(topics) == 0 {
		return
	}

	go func() {
		err := retry.Do(
			func() error {
				conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
				if err != nil {
					return err
				}
				defer conn.Close()

				configs := make([]kafka.TopicConfig, 0, len(topics))
				for _, t := range dedupe(topics) {
					configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
				}
				err = conn.CreateTopics(configs...)
				if err != nil && !strings.Contains(err.Error(), "already exists") {
					return err
				}
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(5),
			retry.Delay(time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			logger.Warn("Could not create Kafka topics %v: %v (topics may need manual creation)", topics, err)
			return
		}
		logger.Info("Kafka topics ready: %v", topics)
	}()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Bus publishes through Kafka when a producer is enabled and runs the
// registered handlers in-process otherwise.
type Bus struct {
	producer   *Producer
	dispatcher *Dispatcher
	dlq        DeadLetterStore
}

func NewBus(p *Producer, d *Dispatcher, dlq DeadLetterStore) *Bus {
	return &Bus{producer: p, dispatcher: d, dlq: dlq}
}

// Publish sends event name for key. Without Kafka, events that have a
// local handler are processed on a goroutine; failures become dead letters
// in both modes.
func (b *Bus) Publish(ctx context.Context, topic, name, key string, data interface{}) error {
	ev, err := NewEvent(name, key, data)
	if err != nil {
		return err
	}

	if b.producer != nil && b.producer.Enabled() {
		return b.producer.Publish(ctx, topic, ev)
	}

	if b.dispatcher == nil || !b.dispatcher.Handles(name) {
		logger.Debug("Event %s for %s not delivered: no broker and no local handler", name, key)
		return nil
	}

	go func() {
		bg := context.WithoutCancel(ctx)
		if err := b.dispatcher.DispatchEvent(bg, ev); err != nil {
			logger.Error("In-process handler for %s failed: %v", name, err)
			b.deadLetter(bg, topic, ev, err)
		}
	}()
	return nil
}

func (b *Bus) deadLetter(ctx context.Context, topic string, ev Event, cause error) {
	if b.dlq == nil {
		return
	}
	payload, err := jsonEncode(ev)
	if err != nil {
		logger.Error("Error marshaling DLQ message: %v", err)
		return
	}
	if err := b.dlq.StoreDLQMessage(ctx, deadLetterFor(topic, ev.Key, payload, cause)); err != nil {
		logger.Error("Error storing DLQ message: %v", err)
	}
}
