package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"enrollment-crm/models"
	"enrollment-crm/services/kafka"
	"enrollment-crm/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	mutex sync.Mutex
	sent  []Email
	err   error
}

func (m *captureMailer) Send(e Email) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func TestNotification_EnrollmentEmailWithStatement(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, direito())
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana <b>", Email: "ana@x.com", CourseIDs: []string{"C1"}})
	_, err := NewEnrollmentService(env.deps).Enroll(context.Background(), "L1")
	require.NoError(t, err)

	mailer := &captureMailer{}
	svc := NewNotificationService(env.deps, mailer)
	d := kafka.NewDispatcher()
	svc.Register(d)

	ev, err := kafka.NewEvent(utils.EventNotifyEnrollment, "L1", EnrollmentEvent{LeadID: "L1"})
	require.NoError(t, err)
	require.NoError(t, d.DispatchEvent(context.Background(), ev))

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, "ana@x.com", mail.To)
	assert.Contains(t, mail.HTML, "Ana &lt;b&gt;")
	assert.Contains(t, mail.HTML, "R$ 800,00")
	require.Len(t, mail.Attachments, 1)
	assert.Equal(t, "extrato.pdf", mail.Attachments[0].Name)
}

func TestNotification_LeadAssigned(t *testing.T) {
	env := newTestEnv(t)
	addUser(t, env, "U1", "rafa@escola.com", "s3cret-pass", models.RoleConsultant)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", Phone: "11987654321"})

	mailer := &captureMailer{}
	require.NoError(t, NewNotificationService(env.deps, mailer).SendLeadAssigned(context.Background(), "L1", "U1"))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "rafa@escola.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "Ana")
}

func TestNotification_SkipsWithoutMailerOrEmail(t *testing.T) {
	env := newTestEnv(t)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana"})

	assert.NoError(t, NewNotificationService(env.deps, nil).SendEnrollmentConfirmation(context.Background(), "L1"))

	mailer := &captureMailer{}
	assert.NoError(t, NewNotificationService(env.deps, mailer).SendEnrollmentConfirmation(context.Background(), "L1"))
	assert.Empty(t, mailer.sent)
}

// Without a broker, a failing notification handler ends up in the dead
// letter table and is replayed from there.
func TestNotification_InProcessFailureIsDeadLettered(t *testing.T) {
	env := newTestEnv(t)
	env.addLead(t, models.Lead{ID: "L1", Name: "Ana", Email: "ana@x.com"})

	mailer := &captureMailer{err: errors.New("smtp down")}
	d := kafka.NewDispatcher()
	NewNotificationService(env.deps, mailer).Register(d)
	bus := kafka.NewBus(nil, d, env.store)

	require.NoError(t, bus.Publish(context.Background(), "crm.notifications", utils.EventNotifyEnrollment, "L1", EnrollmentEvent{LeadID: "L1"}))

	require.Eventually(t, func() bool {
		stats, _ := env.store.DLQStats(context.Background())
		return stats.Unresolved == 1
	}, 2*time.Second, 10*time.Millisecond)

	mailer.mutex.Lock()
	mailer.err = nil
	mailer.mutex.Unlock()

	q := kafka.NewDLQ(env.store, nil, d)
	processed, resolved, err := q.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, resolved)
	assert.Len(t, mailer.sent, 1)
}
