package notify

import (
	"context"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/reminder-api/config"
)

type emailChannel struct {
	from string
	to   []string
	send func(m ...*gomail.Message) error
}

func NewEmail(cfg config.EmailConfig) Channel {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &emailChannel{
		from: cfg.From,
		to:   cfg.To,
		send: d.DialAndSend,
	}
}

func (e *emailChannel) Name() string { return platformEmail }

func (e *emailChannel) Send(_ context.Context, msg Message) Outcome {
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", msg.Body)

	if err := e.send(m); err != nil {
		return failed(platformEmail, err)
	}
	return Outcome{
		Platform: platformEmail,
		Success:  true,
		Result:   map[string]interface{}{"recipients": len(e.to)},
	}
}
