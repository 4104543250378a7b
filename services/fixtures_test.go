package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"enrollment-crm/models"
	"enrollment-crm/repository/inmem"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

type published struct {
	Topic string
	Name  string
	Key   string
	Data  interface{}
}

// recordingPublisher keeps every event instead of sending it.
type recordingPublisher struct {
	mutex  sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, name, key string, data interface{}) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, published{Topic: topic, Name: name, Key: key, Data: data})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

func (p *recordingPublisher) find(name string) (published, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, e := range p.events {
		if e.Name == name {
			return e, true
		}
	}
	return published{}, false
}

type testEnv struct {
	store  *inmem.Store
	events *recordingPublisher
	deps   *Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := inmem.New()
	events := &recordingPublisher{}
	deps := &Deps{
		Store:  store,
		Events: events,
		Topics: Topics{Leads: "crm.leads", Finance: "crm.finance", Notifications: "crm.notifications"},
		Cache:  NewMemoryCache(),
		Now:    func() time.Time { return fixedNow },
		NewID:  sequentialIDs(),
	}
	return &testEnv{store: store, events: events, deps: deps}
}

func (e *testEnv) addCourse(t *testing.T, c models.Course) {
	t.Helper()
	row := c.ToRow()
	row.CreatedAt = fixedNow
	row.UpdatedAt = fixedNow
	require.NoError(t, e.store.CreateCourse(context.Background(), row))
}

func (e *testEnv) addLead(t *testing.T, l models.Lead) {
	t.Helper()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = fixedNow
	}
	if l.Status == "" {
		l.Status = models.LeadStatusNew
	}
	require.NoError(t, e.store.CreateLead(context.Background(), l.ToRow()))
}

func direito() models.Course {
	return models.Course{
		ID: "C1", Name: "Direito", Price: 1000, EnrollmentFee: 500,
		EnrollmentDiscount: 100, Scholarship: 20, Duration: "5 Anos", Active: true,
	}
}
