package services

import (
	"fmt"
	"io"

	"enrollment-crm/config"
	"enrollment-crm/logger"
	"enrollment-crm/metrics"

	"gopkg.in/gomail.v2"
)

// Attachment is an in-memory file attached to an email.
type Attachment struct {
	Name string
	Data []byte
}

// Email is one outgoing HTML message.
type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers emails.
type Mailer interface {
	Send(e Email) error
}

// SMTPMailer sends through an SMTP relay with gomail.
type SMTPMailer struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewSMTPMailer returns nil when SMTP is not configured.
func NewSMTPMailer(cfg config.Config) *SMTPMailer {
	from := cfg.EmailFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	if cfg.SMTPHost == "" || from == "" {
		logger.Warn("SMTP is not configured, notification emails are disabled")
		return nil
	}
	return &SMTPMailer{host: cfg.SMTPHost, port: cfg.SMTPPort, user: cfg.SMTPUser, pass: cfg.SMTPPass, from: from}
}

func (m *SMTPMailer) Send(e Email) error {
	logger.Info("Sending email via SMTP - Recipient: %s", e.To)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/html", e.HTML)

	for _, a := range e.Attachments {
		data := a.Data
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	d := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	if err := d.DialAndSend(msg); err != nil {
		logger.Error("Failed to send email to %s: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Email successfully sent to: %s", e.To)
	return nil
}

// sendCounted sends through m and records the outcome under kind.
func sendCounted(m Mailer, kind string, e Email) error {
	err := m.Send(e)
	metrics.NotificationsSent.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	return err
}
