package notify

import (
	"context"
	"fmt"
	"net/http"

	tele "gopkg.in/telebot.v4"
)

// chatRecipient addresses a chat by id or @username.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

type telegramChannel struct {
	bot  *tele.Bot
	chat chatRecipient
}

// NewTelegram builds an offline bot: it only sends and never polls, so no
// getMe round trip happens at startup. apiURL may be empty.
func NewTelegram(token, chatID, apiURL string, client *http.Client) (Channel, error) {
	bot, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
		Client:  client,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &telegramChannel{bot: bot, chat: chatRecipient(chatID)}, nil
}

func (t *telegramChannel) Name() string { return platformTelegram }

func (t *telegramChannel) Send(_ context.Context, msg Message) Outcome {
	sent, err := t.bot.Send(t.chat, msg.Text())
	if err != nil {
		return failed(platformTelegram, err)
	}

	result := map[string]interface{}{"message_id": sent.ID}
	if sent.Chat != nil {
		result["chat_id"] = sent.Chat.ID
	}
	return Outcome{Platform: platformTelegram, Success: true, Result: result}
}
