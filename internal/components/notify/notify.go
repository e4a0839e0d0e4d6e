package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// API delivers a short message to whoever operates the bumper.
//
// note: fault injection point
type API interface {
	Notify(subject, body string) error
}

// Noop drops every notification, it is used when no smtp server is configured.
type Noop struct{}

func (Noop) Notify(string, string) error {
	return nil
}

type SmtpConfig struct {
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	Address  string   `json:"address"`
	Password string   `json:"password"`
	To       []string `json:"to"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && c.Address != "" && len(c.To) > 0
}

// Email sends notifications through an smtp server with jordan-wright/email.
type Email struct {
	config SmtpConfig
}

func NewEmail(config SmtpConfig) Email {
	return Email{config: config}
}

// FromConfig returns an Email notifier if config is usable and Noop otherwise.
func FromConfig(config SmtpConfig) API {
	if !config.Enabled() {
		return Noop{}
	}
	return NewEmail(config)
}

func (e Email) Notify(subject, body string) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("listingbump <%s>", e.config.Address)
	mail.To = e.config.To
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", e.config.Address, e.config.Password, e.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
