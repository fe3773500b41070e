package model

import (
	"fmt"
	"strings"
	"time"
)

// CycleType is the recurrence policy attached to a reminder.
type CycleType string

const (
	CycleOnce    CycleType = "once"
	CycleWeekly  CycleType = "weekly"
	CycleMonthly CycleType = "monthly"
	CycleYearly  CycleType = "yearly"
)

var cycleLabels = map[CycleType]string{
	CycleOnce:    "single reminder",
	CycleWeekly:  "weekly recurring",
	CycleMonthly: "monthly recurring",
	CycleYearly:  "yearly recurring",
}

// Normalize maps an absent cycle type to once.
func (c CycleType) Normalize() CycleType {
	if strings.TrimSpace(string(c)) == "" {
		return CycleOnce
	}
	return c
}

func (c CycleType) Valid() bool {
	_, ok := cycleLabels[c.Normalize()]
	return ok
}

// Recurring is false for once and for anything unrecognised.
func (c CycleType) Recurring() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleYearly:
		return true
	}
	return false
}

// Label is the human readable name; unknown values read as a single reminder.
func (c CycleType) Label() string {
	if l, ok := cycleLabels[c.Normalize()]; ok {
		return l
	}
	return cycleLabels[CycleOnce]
}

// ReminderStatus is stored as an integer column.
type ReminderStatus int

const (
	StatusPending ReminderStatus = 0
	StatusSent    ReminderStatus = 1
)

func (s ReminderStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Reminder struct {
	ID         string         `json:"id" db:"id"`
	Title      string         `json:"title" db:"title"`
	Content    string         `json:"content" db:"content"`
	RemindTime time.Time      `json:"remind_time" db:"remind_time"`
	CycleType  CycleType      `json:"cycle_type" db:"cycle_type"`
	Link       *string        `json:"link" db:"link"`
	Status     ReminderStatus `json:"status" db:"status"`
	CronJobID  *int64         `json:"cron_job_id" db:"cron_job_id"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// HasLink reports whether a non-blank link is attached.
func (r *Reminder) HasLink() bool {
	return r.Link != nil && strings.TrimSpace(*r.Link) != ""
}

// CreateReminderRequest is the body accepted by the create endpoint.
type CreateReminderRequest struct {
	ID         string    `json:"id"`
	Title      string    `json:"title" validate:"required"`
	Content    string    `json:"content" validate:"required"`
	RemindTime string    `json:"remind_time" validate:"required"`
	CycleType  CycleType `json:"cycle_type" validate:"omitempty,oneof=once weekly monthly yearly"`
	Link       string    `json:"link"`

	// Origin is the scheme://host the request arrived on, filled in by the
	// handler for building scheduler callbacks.
	Origin string `json:"-"`
}

var remindTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseRemindTime accepts RFC 3339 (with any zone) or a zone-less local
// date-time, which is read in loc.
func ParseRemindTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range remindTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
