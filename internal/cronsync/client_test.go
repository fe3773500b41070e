package cronsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/reminder-api/config"
	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/pkg/errors"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
)

func newTestClient(t *testing.T, baseURL, apiKey string) *Client {
	t.Helper()
	c, err := NewClient(config.SchedulerConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Timezone:    "Asia/Shanghai",
		ExpireAfter: 5 * time.Minute,
	}, "s3cret", nil, metrics.New("test"), nil)
	require.NoError(t, err)
	return c
}

func TestRegisterSendsJob(t *testing.T) {
	var got struct {
		Job struct {
			URL           string   `json:"url"`
			Title         string   `json:"title"`
			Enabled       bool     `json:"enabled"`
			SaveResponses bool     `json:"saveResponses"`
			RequestMethod int      `json:"requestMethod"`
			Schedule      Schedule `json:"schedule"`
		} `json:"job"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"jobId": 4242}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "api-key")
	// 2024-03-03 is a Sunday in Shanghai.
	fireAt := time.Date(2024, 3, 3, 1, 30, 0, 0, time.UTC)

	id, err := c.Register(context.Background(), RegisterRequest{
		ReminderID: "abc 1",
		Title:      "Dentist",
		FireAt:     fireAt,
		Origin:     "https://reminders.example.com/",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4242, id)

	assert.Equal(t, "https://reminders.example.com/api/notify?id=abc+1&key=s3cret", got.Job.URL)
	assert.Equal(t, "Reminder: Dentist", got.Job.Title)
	assert.True(t, got.Job.Enabled)
	assert.True(t, got.Job.SaveResponses)
	assert.Equal(t, 0, got.Job.RequestMethod)
	assert.Equal(t, Schedule{
		Timezone:  "Asia/Shanghai",
		ExpiresAt: 20240303093500,
		Hours:     []int{9},
		Minutes:   []int{30},
		MDays:     []int{3},
		Months:    []int{3},
		WDays:     []int{7},
	}, got.Job.Schedule)
}

func TestScheduleForRecurringCycles(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Shanghai")
	fireAt := time.Date(2024, 1, 31, 20, 15, 0, 0, loc) // Wednesday

	weekly := ScheduleFor(fireAt, model.CycleWeekly, loc, "Asia/Shanghai", time.Minute)
	assert.Equal(t, []int{3}, weekly.WDays)
	assert.Equal(t, []int{-1}, weekly.MDays)
	assert.Equal(t, []int{-1}, weekly.Months)
	assert.Zero(t, weekly.ExpiresAt)

	monthly := ScheduleFor(fireAt, model.CycleMonthly, loc, "Asia/Shanghai", time.Minute)
	assert.Equal(t, []int{31}, monthly.MDays)
	assert.Equal(t, []int{-1}, monthly.Months)
	assert.Equal(t, []int{-1}, monthly.WDays)

	yearly := ScheduleFor(fireAt, model.CycleYearly, loc, "Asia/Shanghai", time.Minute)
	assert.Equal(t, []int{31}, yearly.MDays)
	assert.Equal(t, []int{1}, yearly.Months)
	assert.Equal(t, []int{20}, yearly.Hours)
	assert.Equal(t, []int{15}, yearly.Minutes)
	assert.Zero(t, yearly.ExpiresAt)
}

func TestRegisterFailureIsSchedulerSyncError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "wrong")
	_, err := c.Register(context.Background(), RegisterRequest{ReminderID: "1", FireAt: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSchedulerSync))
	assert.Contains(t, err.Error(), "401")
}

func TestDisabledClient(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "")
	assert.False(t, c.Enabled())

	_, err := c.Register(context.Background(), RegisterRequest{ReminderID: "1"})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, c.Cancel(context.Background(), 1))
	assert.NoError(t, c.Reschedule(context.Background(), 1, time.Now(), time.Now().AddDate(0, 0, 1), model.CycleMonthly))
}

func TestCancel(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/jobs/404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "api-key")
	require.NoError(t, c.Cancel(context.Background(), 17))
	require.NoError(t, c.Cancel(context.Background(), 404))
	assert.Equal(t, []string{"/jobs/17", "/jobs/404"}, paths)
}

func TestRescheduleFollowsClampedDay(t *testing.T) {
	type patch struct {
		path     string
		schedule Schedule
	}
	var got []patch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body struct {
			Job struct {
				Schedule Schedule `json:"schedule"`
			} `json:"job"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, patch{path: r.URL.Path, schedule: body.Job.Schedule})
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "api-key")
	sh := c.loc
	ctx := context.Background()

	// Monthly Jan 31 clamps to Feb 29; the job has to follow.
	require.NoError(t, c.Reschedule(ctx, 77,
		time.Date(2024, 1, 31, 8, 0, 0, 0, sh), time.Date(2024, 2, 29, 8, 0, 0, 0, sh), model.CycleMonthly))
	// Monthly Feb 29 to Mar 29 keeps the day, nothing to send.
	require.NoError(t, c.Reschedule(ctx, 77,
		time.Date(2024, 2, 29, 8, 0, 0, 0, sh), time.Date(2024, 3, 29, 8, 0, 0, 0, sh), model.CycleMonthly))
	// Weekly never changes its fields.
	require.NoError(t, c.Reschedule(ctx, 78,
		time.Date(2024, 3, 1, 8, 0, 0, 0, sh), time.Date(2024, 3, 8, 8, 0, 0, 0, sh), model.CycleWeekly))
	// Yearly leap day clamps to Feb 28.
	require.NoError(t, c.Reschedule(ctx, 79,
		time.Date(2024, 2, 29, 8, 0, 0, 0, sh), time.Date(2025, 2, 28, 8, 0, 0, 0, sh), model.CycleYearly))

	require.Len(t, got, 2)
	assert.Equal(t, "/jobs/77", got[0].path)
	assert.Equal(t, []int{29}, got[0].schedule.MDays)
	assert.Equal(t, []int{wildcard}, got[0].schedule.Months)
	assert.Equal(t, []int{8}, got[0].schedule.Hours)
	assert.Equal(t, "/jobs/79", got[1].path)
	assert.Equal(t, []int{28}, got[1].schedule.MDays)
	assert.Equal(t, []int{2}, got[1].schedule.Months)
}

func TestRescheduleFailureIsSchedulerSyncError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "api-key")
	err := c.Reschedule(context.Background(), 5,
		time.Date(2024, 1, 31, 8, 0, 0, 0, c.loc), time.Date(2024, 2, 29, 8, 0, 0, 0, c.loc), model.CycleMonthly)
	assert.True(t, errors.Is(err, errors.ErrSchedulerSync))
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "api-key")
	for i := 0; i < 7; i++ {
		_ = c.Cancel(context.Background(), 1)
	}
	assert.Equal(t, 5, calls)
	assert.Equal(t, "open", c.breaker.State())
}

func TestNewClientRejectsBadTimezone(t *testing.T) {
	_, err := NewClient(config.SchedulerConfig{Timezone: "Mars/Olympus"}, "s", nil, nil, nil)
	assert.Error(t, err)
}
