// Package cronsync keeps cron-job.org in step with reminder fire times.
package cronsync

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/reminder-api/config"
	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/pkg/circuitbreaker"
	"github.com/jwalitptl/reminder-api/pkg/errors"
	"github.com/jwalitptl/reminder-api/pkg/logger"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
)

// ErrDisabled is returned by Register when no API key is configured.
var ErrDisabled = stderrors.New("scheduler sync disabled")

const (
	opRegister   = "register"
	opCancel     = "cancel"
	opReschedule = "reschedule"

	// requestMethodGet is cron-job.org's enum value for GET.
	requestMethodGet = 0
	// wildcard matches every value of a schedule field.
	wildcard = -1
)

// RegisterRequest describes the job to create for a new reminder.
type RegisterRequest struct {
	ReminderID string
	Title      string
	FireAt     time.Time
	Cycle      model.CycleType
	// Origin is the public scheme://host the trigger endpoint is reachable on.
	Origin string
}

type Schedule struct {
	Timezone  string `json:"timezone"`
	ExpiresAt int64  `json:"expiresAt"`
	Hours     []int  `json:"hours"`
	Minutes   []int  `json:"minutes"`
	MDays     []int  `json:"mdays"`
	Months    []int  `json:"months"`
	WDays     []int  `json:"wdays"`
}

type job struct {
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	Enabled       bool         `json:"enabled"`
	SaveResponses bool         `json:"saveResponses"`
	Schedule      Schedule     `json:"schedule"`
	RequestMethod int          `json:"requestMethod"`
	ExtendedData  extendedData `json:"extendedData"`
}

type extendedData struct {
	Headers []string `json:"headers"`
}

type Client struct {
	baseURL     string
	apiKey      string
	secret      string
	tzName      string
	loc         *time.Location
	expireAfter time.Duration
	http        *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// NewClient creates a scheduler client. secret is embedded in every
// trigger URL so the callback can authenticate.
func NewClient(cfg config.SchedulerConfig, secret string, httpClient *http.Client, m *metrics.Metrics, log *logger.Logger) (*Client, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.cron-job.org"
	}

	return &Client{
		baseURL:     strings.TrimRight(base, "/"),
		apiKey:      cfg.APIKey,
		secret:      secret,
		tzName:      cfg.Timezone,
		loc:         loc,
		expireAfter: cfg.ExpireAfter,
		http:        httpClient,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "cron-job.org",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		metrics: m,
		log:     log.With("cronsync"),
	}, nil
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// TriggerURL is the callback the scheduler invokes for a reminder.
func (c *Client) TriggerURL(origin, reminderID string) string {
	q := url.Values{}
	q.Set("key", c.secret)
	q.Set("id", reminderID)
	return strings.TrimRight(origin, "/") + "/api/notify?" + q.Encode()
}

// ScheduleFor breaks fireAt into the calendar fields for cycle. A one-shot
// job pins every field and expires shortly after firing; recurring jobs
// leave the fields that vary between occurrences as wildcards and never
// expire.
func ScheduleFor(fireAt time.Time, cycle model.CycleType, loc *time.Location, tzName string, expireAfter time.Duration) Schedule {
	local := fireAt.In(loc)
	wday := int(local.Weekday())
	if wday == 0 {
		wday = 7
	}

	s := Schedule{
		Timezone: tzName,
		Hours:    []int{local.Hour()},
		Minutes:  []int{local.Minute()},
		MDays:    []int{wildcard},
		Months:   []int{wildcard},
		WDays:    []int{wildcard},
	}

	switch cycle {
	case model.CycleWeekly:
		s.WDays = []int{wday}
	case model.CycleMonthly:
		s.MDays = []int{local.Day()}
	case model.CycleYearly:
		s.MDays = []int{local.Day()}
		s.Months = []int{int(local.Month())}
	default:
		s.MDays = []int{local.Day()}
		s.Months = []int{int(local.Month())}
		s.WDays = []int{wday}
		expires := local.Add(expireAfter)
		s.ExpiresAt, _ = strconv.ParseInt(expires.Format("20060102150405"), 10, 64)
	}
	return s
}

// Register creates the scheduler job and returns its id.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	if !c.Enabled() {
		return 0, ErrDisabled
	}

	body := struct {
		Job job `json:"job"`
	}{
		Job: job{
			URL:           c.TriggerURL(req.Origin, req.ReminderID),
			Title:         "Reminder: " + req.Title,
			Enabled:       true,
			SaveResponses: true,
			Schedule:      ScheduleFor(req.FireAt, req.Cycle.Normalize(), c.loc, c.tzName, c.expireAfter),
			RequestMethod: requestMethodGet,
			ExtendedData:  extendedData{Headers: []string{}},
		},
	}

	var result struct {
		JobID int64 `json:"jobId"`
	}
	err := c.call(ctx, opRegister, http.MethodPut, "/jobs", body, &result)
	if err != nil {
		return 0, err
	}

	c.log.Info("scheduler job registered", "reminder_id", req.ReminderID, "job_id", result.JobID)
	return result.JobID, nil
}

// Cancel deletes a job. A disabled client does nothing, and a job that is
// already gone counts as cancelled.
func (c *Client) Cancel(ctx context.Context, jobID int64) error {
	if !c.Enabled() {
		return nil
	}
	return c.call(ctx, opCancel, http.MethodDelete, "/jobs/"+strconv.FormatInt(jobID, 10), nil, nil)
}

// Reschedule moves an existing job from the occurrence at prev to the one at
// next. Month-end and leap-day clamping changes the day of month between
// occurrences, and a job left on the old day would never call back for the
// clamped date. Nothing is sent when the schedule fields are unchanged or the
// client is disabled.
func (c *Client) Reschedule(ctx context.Context, jobID int64, prev, next time.Time, cycle model.CycleType) error {
	if !c.Enabled() {
		return nil
	}
	cycle = cycle.Normalize()
	from := ScheduleFor(prev, cycle, c.loc, c.tzName, c.expireAfter)
	to := ScheduleFor(next, cycle, c.loc, c.tzName, c.expireAfter)
	if sameFields(from, to) {
		return nil
	}

	body := struct {
		Job struct {
			Schedule Schedule `json:"schedule"`
		} `json:"job"`
	}{}
	body.Job.Schedule = to

	if err := c.call(ctx, opReschedule, http.MethodPatch, "/jobs/"+strconv.FormatInt(jobID, 10), body, nil); err != nil {
		return err
	}
	c.log.Info("scheduler job moved", "job_id", jobID, "mdays", to.MDays, "months", to.Months)
	return nil
}

func sameFields(a, b Schedule) bool {
	return a.ExpiresAt == b.ExpiresAt &&
		slices.Equal(a.Hours, b.Hours) &&
		slices.Equal(a.Minutes, b.Minutes) &&
		slices.Equal(a.MDays, b.MDays) &&
		slices.Equal(a.Months, b.Months) &&
		slices.Equal(a.WDays, b.WDays)
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out interface{}) error {
	err := c.breaker.Execute(func() error {
		return c.do(ctx, method, path, in, out)
	})
	if c.metrics != nil {
		c.metrics.SchedulerSync.WithLabelValues(op, metrics.Status(err == nil)).Inc()
	}
	if err != nil {
		return errors.NewSchedulerSync(op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
