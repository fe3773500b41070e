package notify

import (
	"context"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST API the channel uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type whatsAppChannel struct {
	api  messageCreator
	from string
	to   string
}

func NewWhatsApp(accountSID, authToken, from, to string) Channel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &whatsAppChannel{
		api:  client.Api,
		from: whatsAppAddress(from),
		to:   whatsAppAddress(to),
	}
}

func (w *whatsAppChannel) Name() string { return platformWhatsApp }

func (w *whatsAppChannel) Send(_ context.Context, msg Message) Outcome {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(w.from)
	params.SetTo(w.to)
	params.SetBody(msg.Text())

	resp, err := w.api.CreateMessage(params)
	if err != nil {
		return failed(platformWhatsApp, err)
	}

	result := map[string]interface{}{}
	if resp.Sid != nil {
		result["sid"] = *resp.Sid
	}
	if resp.Status != nil {
		result["status"] = *resp.Status
	}
	return Outcome{Platform: platformWhatsApp, Success: true, Result: result}
}

// whatsAppAddress adds the whatsapp: scheme and a leading + when missing.
func whatsAppAddress(number string) string {
	n := strings.TrimSpace(number)
	switch {
	case n == "", strings.HasPrefix(n, "whatsapp:"):
		return n
	case strings.HasPrefix(n, "+"):
		return "whatsapp:" + n
	default:
		return "whatsapp:+" + n
	}
}
