// Package mail sends plain-text operational notifications over SMTP.
// Every send is best-effort: callers log failures and move on.
package mail

import (
	mailv2 "github.com/go-mail/mail"
)

// Config carries SMTP connection settings. An empty Host disables sending.
type Config struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// Mailer sends notification emails.
type Mailer struct {
	cfg Config
}

// New constructs a Mailer. A nil-equivalent (disabled) mailer is valid.
func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != ""
}

// Send delivers a plain-text message to the given recipients. It returns
// nil without side effects when the mailer is disabled or there are no
// recipients.
func (m *Mailer) Send(to []string, subject, body string) error {
	if !m.Enabled() || len(to) == 0 {
		return nil
	}

	msg := mailv2.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := mailv2.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return dialer.DialAndSend(msg)
}
