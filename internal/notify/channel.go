// Package notify fans a fired reminder out to the configured channels.
package notify

import (
	"context"

	"github.com/jwalitptl/reminder-api/pkg/errors"
)

const (
	platformTelegram = "telegram"
	platformWeCom    = "wecom"
	platformBark     = "bark"
	platformFeishu   = "feishu"
	platformDingTalk = "dingtalk"
	platformEmail    = "email"
	platformWhatsApp = "whatsapp"
)

// Outcome is the per-channel result reported back to the trigger caller.
type Outcome struct {
	Platform string      `json:"platform"`
	Success  bool        `json:"success"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Channel is one outbound notification target. Send must not panic on
// transport failures; it reports them in the Outcome.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) Outcome
}

// failed reports err as a channel error, e.g.
// "bark notification failed: 503 from upstream".
func failed(platform string, err error) Outcome {
	return Outcome{Platform: platform, Success: false, Error: errors.NewChannel(platform, err).Error()}
}
