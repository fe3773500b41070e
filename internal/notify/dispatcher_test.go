package notify

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/reminder-api/config"
	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
)

type fakeChannel struct {
	name  string
	err   error
	panic bool
	delay time.Duration
	calls int32
	got   Message
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, msg Message) Outcome {
	atomic.AddInt32(&f.calls, 1)
	f.got = msg
	if f.panic {
		panic("transport exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return failed(f.name, ctx.Err())
		}
	}
	if f.err != nil {
		return failed(f.name, f.err)
	}
	return Outcome{Platform: f.name, Success: true, Result: "ok"}
}

func testReminder() *model.Reminder {
	return &model.Reminder{
		ID:         "r-1",
		Title:      "Pay rent",
		Content:    "Transfer to landlord",
		RemindTime: time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
		CycleType:  model.CycleMonthly,
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	channels := []Channel{
		&fakeChannel{name: "a"},
		&fakeChannel{name: "b", err: errors.New("503 from upstream")},
		&fakeChannel{name: "c", panic: true},
		&fakeChannel{name: "d"},
	}
	m := metrics.New("test")
	d := NewDispatcher(channels, time.UTC, time.Second, m, nil)

	outcomes := d.Dispatch(context.Background(), testReminder())

	require.Len(t, outcomes, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{
		outcomes[0].Platform, outcomes[1].Platform, outcomes[2].Platform, outcomes[3].Platform,
	})
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Equal(t, "b notification failed: 503 from upstream", outcomes[1].Error)
	assert.False(t, outcomes[2].Success)
	assert.Contains(t, outcomes[2].Error, "panic")
	assert.True(t, outcomes[3].Success)

	for _, ch := range channels {
		assert.EqualValues(t, 1, ch.(*fakeChannel).calls, ch.Name())
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("b", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("d", "success")))
}

func TestDispatchWithoutChannels(t *testing.T) {
	d := NewDispatcher(nil, time.UTC, 0, nil, nil)
	outcomes := d.Dispatch(context.Background(), testReminder())
	assert.NotNil(t, outcomes)
	assert.Empty(t, outcomes)
}

func TestDispatchSharesOneMessage(t *testing.T) {
	a, b := &fakeChannel{name: "a"}, &fakeChannel{name: "b"}
	d := NewDispatcher([]Channel{a, b}, time.UTC, 0, nil, nil)
	d.Dispatch(context.Background(), testReminder())

	assert.Equal(t, a.got, b.got)
	assert.Equal(t, "🔔 Reminder: Pay rent", a.got.Title)
}

func TestDispatchTimesOutSlowChannel(t *testing.T) {
	slow := &fakeChannel{name: "slow", delay: time.Minute}
	fast := &fakeChannel{name: "fast"}
	d := NewDispatcher([]Channel{slow, fast}, time.UTC, 50*time.Millisecond, nil, nil)

	start := time.Now()
	outcomes := d.Dispatch(context.Background(), testReminder())

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, "slow notification failed: "+context.DeadlineExceeded.Error(), outcomes[0].Error)
	assert.True(t, outcomes[1].Success)
}

func TestBuildSelectsConfiguredChannels(t *testing.T) {
	channels, err := Build(config.ChannelsConfig{}, http.DefaultClient)
	require.NoError(t, err)
	assert.Empty(t, channels)

	channels, err = Build(config.ChannelsConfig{
		Telegram:    config.TelegramConfig{BotToken: "123:abc", ChatID: "42"},
		WeComURL:    "https://qyapi.example.com/send?key=k",
		Bark:        config.BarkConfig{Key: "bk"},
		FeishuURL:   "https://open.example.com/hook/f",
		DingTalkURL: "https://oapi.example.com/robot/send?access_token=t",
		Email: config.EmailConfig{
			Host: "smtp.example.com", Port: 587, From: "bot@example.com", To: []string{"me@example.com"},
		},
		WhatsApp: config.WhatsAppConfig{AccountSID: "AC1", AuthToken: "tok", From: "+100", To: "+200"},
	}, http.DefaultClient)
	require.NoError(t, err)

	d := NewDispatcher(channels, time.UTC, 0, nil, nil)
	assert.Equal(t,
		[]string{"telegram", "wecom", "bark", "feishu", "dingtalk", "email", "whatsapp"},
		d.Channels())
}

func TestBuildSkipsPartialCredentials(t *testing.T) {
	channels, err := Build(config.ChannelsConfig{
		Telegram: config.TelegramConfig{BotToken: "123:abc"},
		WhatsApp: config.WhatsAppConfig{AccountSID: "AC1"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, channels)
}
