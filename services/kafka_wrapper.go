package services

import (
	"context"
	"time"

	"enrollment-crm/config"
	"enrollment-crm/logger"
	"enrollment-crm/repository"
	"enrollment-crm/services/kafka"
	"enrollment-crm/utils"

	"github.com/google/uuid"
)

// EventPublisher is satisfied by *kafka.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic, name, key string, data interface{}) error
}

// Topics names the Kafka topics events are written to.
type Topics struct {
	Leads         string
	Finance       string
	Notifications string
}

func TopicsFromConfig(cfg config.Config) Topics {
	return Topics{
		Leads:         cfg.KafkaLeadTopic,
		Finance:       cfg.KafkaFinanceTopic,
		Notifications: cfg.KafkaNotificationTopic,
	}
}

// Deps carries what every service needs.
type Deps struct {
	Store    repository.Store
	Events   EventPublisher
	Topics   Topics
	Cache    Cache
	Location *time.Location
	Now      func() time.Time
	NewID    func() string
}

// withDefaults fills unset dependencies with in-process stand-ins.
func (d *Deps) withDefaults() *Deps {
	if d.Events == nil {
		d.Events = kafka.NewBus(nil, nil, nil)
	}
	if d.Cache == nil {
		d.Cache = NewMemoryCache()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// publish is best effort: failures are logged and never fail the caller.
func (d *Deps) publish(ctx context.Context, topic, name, key string, data interface{}) {
	if err := d.Events.Publish(ctx, topic, name, key, data); err != nil {
		logger.Warn("failed to publish %s event for %s: %v", name, key, err)
	}
}

func (d *Deps) today() time.Time {
	return utils.Today(d.Now(), d.Location)
}
