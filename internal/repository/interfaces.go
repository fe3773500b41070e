package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/reminder-api/internal/model"
)

// ErrNotFound is returned when no row matches the given id.
var ErrNotFound = errors.New("record not found")

type (
	// ReminderRepository persists reminders. Implementations must make
	// MarkSent a conditional update so that only one caller can flip a
	// given reminder from pending to sent.
	ReminderRepository interface {
		Create(ctx context.Context, reminder *model.Reminder) error
		Get(ctx context.Context, id string) (*model.Reminder, error)
		// List returns every reminder ordered by remind_time ascending.
		List(ctx context.Context) ([]*model.Reminder, error)
		SetCronJobID(ctx context.Context, id string, jobID int64) error
		// MarkSent reports whether this call performed the transition.
		MarkSent(ctx context.Context, id string) (bool, error)
		// Reschedule moves a sent reminder back to pending at next.
		Reschedule(ctx context.Context, id string, next time.Time) error
		Ping(ctx context.Context) error
	}
)
