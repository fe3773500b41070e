package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jwalitptl/reminder-api/config"
	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/pkg/logger"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
)

// Build turns the channel configuration into the active channel set. A
// channel without credentials is left out entirely. Order is fixed so that
// outcomes are reported in the same order on every trigger.
func Build(cfg config.ChannelsConfig, client *http.Client) ([]Channel, error) {
	var channels []Channel

	if cfg.Telegram.Enabled() {
		tg, err := NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIURL, client)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	if cfg.WeComURL != "" {
		channels = append(channels, NewWeCom(cfg.WeComURL, client))
	}
	if cfg.Bark.Enabled() {
		channels = append(channels, NewBark(cfg.Bark.ServerURL, cfg.Bark.Key, client))
	}
	if cfg.FeishuURL != "" {
		channels = append(channels, NewFeishu(cfg.FeishuURL, client))
	}
	if cfg.DingTalkURL != "" {
		channels = append(channels, NewDingTalk(cfg.DingTalkURL, client))
	}
	if cfg.Email.Enabled() {
		channels = append(channels, NewEmail(cfg.Email))
	}
	if cfg.WhatsApp.Enabled() {
		w := cfg.WhatsApp
		channels = append(channels, NewWhatsApp(w.AccountSID, w.AuthToken, w.From, w.To))
	}

	return channels, nil
}

type Dispatcher struct {
	channels []Channel
	loc      *time.Location
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher over channels. loc is the zone used to
// render fire times; timeout bounds each send and may be zero.
func NewDispatcher(channels []Channel, loc *time.Location, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		channels: channels,
		loc:      loc,
		timeout:  timeout,
		metrics:  m,
		log:      log.With("notify"),
	}
}

// Channels lists the active channel names in dispatch order.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Dispatch sends r to every channel concurrently and waits for all of them.
// The result has one outcome per channel, in channel order, whatever each
// channel did.
func (d *Dispatcher) Dispatch(ctx context.Context, r *model.Reminder) []Outcome {
	outcomes := make([]Outcome, len(d.channels))
	if len(d.channels) == 0 {
		return outcomes
	}

	start := time.Now()
	msg := Format(r, d.loc)

	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			outcomes[i] = d.send(ctx, ch, msg)
		}(i, ch)
	}
	wg.Wait()

	for _, o := range outcomes {
		if d.metrics != nil {
			d.metrics.Notifications.WithLabelValues(o.Platform, metrics.Status(o.Success)).Inc()
		}
		if !o.Success {
			d.log.Warn("notification failed", "reminder_id", r.ID, "platform", o.Platform, "error", o.Error)
		}
	}
	if d.metrics != nil {
		d.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}
	return outcomes
}

// send runs one channel under the per-channel timeout. Some transports ignore
// the context, so the wait itself is bounded as well.
func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) Outcome {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- failed(ch.Name(), fmt.Errorf("panic: %v", rec))
			}
		}()
		o := ch.Send(ctx, msg)
		if o.Platform == "" {
			o.Platform = ch.Name()
		}
		done <- o
	}()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		return failed(ch.Name(), ctx.Err())
	}
}
