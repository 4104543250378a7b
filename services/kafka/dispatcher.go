package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"enrollment-crm/logger"
)

// Event is the envelope of every message on the CRM topics.
type Event struct {
	Event     string          `json:"event"`
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes data into an envelope.
func NewEvent(name, key string, data interface{}) (Event, error) {
	ev := Event{Event: name, Key: key, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ev, fmt.Errorf("error encoding %s payload: %w", name, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Event)
	}
	return json.Unmarshal(e.Data, v)
}

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher routes events to handlers by name.
type Dispatcher struct {
	mutex    sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a handler to an event name, replacing any earlier one.
func (d *Dispatcher) Register(event string, h Handler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handlers[event] = h
	logger.Info("Event handler registered: %s", event)
}

// Handles reports whether a handler is bound to event.
func (d *Dispatcher) Handles(event string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	_, ok := d.handlers[event]
	return ok
}

// Dispatch decodes a raw message and runs its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, value []byte) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return d.DispatchEvent(ctx, ev)
}

// DispatchEvent runs the handler bound to ev.Event.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev Event) error {
	if ev.Event == "" {
		return fmt.Errorf("message does not contain valid event type")
	}

	d.mutex.RLock()
	h, ok := d.handlers[ev.Event]
	d.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("unknown event type: %s", ev.Event)
	}

	if err := h(ctx, ev); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}
