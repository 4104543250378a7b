package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"enrollment-crm/models"
	"enrollment-crm/repository/inmem"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mutex  sync.Mutex
	fail   int
	calls  int
	writes []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.calls++
	if w.calls <= w.fail {
		return errors.New("broker unavailable")
	}
	w.writes = append(w.writes, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testProducer(w *fakeWriter, dlq DeadLetterStore) *Producer {
	return &Producer{writer: w, dlq: dlq, attempts: 3, delay: time.Millisecond, timeout: time.Second}
}

func TestProducer_DisabledIsNoop(t *testing.T) {
	store := inmem.New()
	p := NewProducer(nil, store)
	assert.False(t, p.Enabled())

	ev, err := NewEvent("lead.created", "L1", map[string]string{"id": "L1"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "crm.leads", ev))

	stats, _ := store.DLQStats(context.Background())
	assert.Equal(t, 0, stats.Total)
}

func TestProducer_RetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{fail: 2}
	p := testProducer(w, inmem.New())

	ev, _ := NewEvent("lead.created", "L1", nil)
	require.NoError(t, p.Publish(context.Background(), "crm.leads", ev))
	assert.Equal(t, 3, w.calls)
	require.Len(t, w.writes, 1)
	assert.Equal(t, "L1", string(w.writes[0].Key))
	assert.Equal(t, "crm.leads", w.writes[0].Topic)
}

func TestProducer_FinalFailureGoesToDLQ(t *testing.T) {
	store := inmem.New()
	w := &fakeWriter{fail: 10}
	p := testProducer(w, store)

	ev, _ := NewEvent("finance.record_paid", "R1", map[string]string{"id": "R1"})
	err := p.Publish(context.Background(), "crm.finance", ev)
	require.Error(t, err)
	assert.Equal(t, 3, w.calls)

	msgs, err := store.ListDLQMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "crm.finance", msgs[0].Topic)
	assert.Equal(t, "R1", msgs[0].Key)
	assert.Contains(t, msgs[0].Value, `"event":"finance.record_paid"`)
	assert.Contains(t, msgs[0].ErrorMessage, "broker unavailable")
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	var got Event
	d.Register("notification.enrollment", func(_ context.Context, ev Event) error {
		got = ev
		return nil
	})

	ev, _ := NewEvent("notification.enrollment", "L1", map[string]string{"leadId": "L1"})
	payload, _ := jsonEncode(ev)
	require.NoError(t, d.Dispatch(context.Background(), payload))
	assert.Equal(t, "L1", got.Key)

	var data map[string]string
	require.NoError(t, got.Decode(&data))
	assert.Equal(t, "L1", data["leadId"])

	assert.ErrorContains(t, d.Dispatch(context.Background(), []byte("{")), "unmarshal")
	assert.ErrorContains(t, d.Dispatch(context.Background(), []byte(`{"key":"x"}`)), "event type")
	assert.ErrorContains(t, d.Dispatch(context.Background(), []byte(`{"event":"nope"}`)), "unknown event type")
}

func TestConsumerHandle_FailureStoresDeadLetter(t *testing.T) {
	store := inmem.New()
	d := NewDispatcher()
	d.Register("notification.enrollment", func(context.Context, Event) error {
		return errors.New("smtp down")
	})
	c := &Consumer{dispatcher: d, dlq: store}

	ev, _ := NewEvent("notification.enrollment", "L1", nil)
	payload, _ := jsonEncode(ev)
	ok := c.Handle(context.Background(), kafka.Message{Topic: "crm.notifications", Key: []byte("L1"), Value: payload})
	assert.False(t, ok)

	stats, _ := store.DLQStats(context.Background())
	assert.Equal(t, 1, stats.Unresolved)
}

func TestBus_InProcessDispatch(t *testing.T) {
	d := NewDispatcher()
	done := make(chan string, 1)
	d.Register("notification.lead_assigned", func(_ context.Context, ev Event) error {
		done <- ev.Key
		return nil
	})
	bus := NewBus(NewProducer(nil, nil), d, inmem.New())

	require.NoError(t, bus.Publish(context.Background(), "crm.notifications", "notification.lead_assigned", "L9", nil))
	select {
	case key := <-done:
		assert.Equal(t, "L9", key)
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}

	// Events without a local handler are dropped.
	require.NoError(t, bus.Publish(context.Background(), "crm.leads", "lead.created", "L9", nil))
}

func TestBus_InProcessFailureIsDeadLettered(t *testing.T) {
	store := inmem.New()
	d := NewDispatcher()
	d.Register("notification.enrollment", func(context.Context, Event) error { return errors.New("boom") })
	bus := NewBus(NewProducer(nil, nil), d, store)

	require.NoError(t, bus.Publish(context.Background(), "crm.notifications", "notification.enrollment", "L1", nil))
	require.Eventually(t, func() bool {
		stats, _ := store.DLQStats(context.Background())
		return stats.Unresolved == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDLQ_RetryAndResolve(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	d := NewDispatcher()
	attempts := 0
	d.Register("notification.enrollment", func(context.Context, Event) error {
		attempts++
		if attempts == 1 {
			return errors.New("still failing")
		}
		return nil
	})

	ev, _ := NewEvent("notification.enrollment", "L1", nil)
	payload, _ := jsonEncode(ev)
	require.NoError(t, store.StoreDLQMessage(ctx, models.DLQMessage{MessageID: "m1", Topic: "crm.notifications", Key: "L1", Value: string(payload)}))
	require.NoError(t, store.StoreDLQMessage(ctx, models.DLQMessage{MessageID: "m2", Topic: "crm.leads", Value: "not json"}))

	q := NewDLQ(store, NewProducer(nil, nil), d)

	ok, err := q.Retry(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.Retry(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	msg, _ := store.GetDLQMessage(ctx, "m1")
	assert.True(t, msg.Resolved)
	assert.Equal(t, 2, msg.RetryCount)

	_, err = q.Retry(ctx, "m1")
	assert.Error(t, err, "resolved messages are not replayed")

	processed, resolved, err := q.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, resolved)

	require.NoError(t, q.Resolve(ctx, "m2", "payload is corrupt"))
	stats, _ := q.Stats(ctx)
	assert.Equal(t, models.DLQStats{Total: 2, Unresolved: 0, Resolved: 2}, stats)

	assert.Error(t, q.Resolve(ctx, "missing", ""))
}

func TestWithMaxRetries(t *testing.T) {
	store := inmem.New()
	dlq := WithMaxRetries(store, 2)

	require.NoError(t, dlq.StoreDLQMessage(context.Background(), models.DLQMessage{MessageID: "m1", Topic: "t", Value: "{}"}))
	require.NoError(t, dlq.StoreDLQMessage(context.Background(), models.DLQMessage{MessageID: "m2", Topic: "t", Value: "{}", MaxRetries: 7}))

	m1, err := store.GetDLQMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, m1.MaxRetries)
	m2, _ := store.GetDLQMessage(context.Background(), "m2")
	assert.Equal(t, 7, m2.MaxRetries)

	assert.Equal(t, DeadLetterStore(store), WithMaxRetries(store, 0))
}
