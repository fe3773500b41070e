// Package sqlstore implements the reminder repository on top of sqlx. The
// queries are written with ? placeholders and rebound for the driver in use,
// so the same code serves postgres and sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/internal/repository"
	"github.com/jwalitptl/reminder-api/pkg/metrics"
)

const reminderColumns = `id, title, content, remind_time, cycle_type, link, status, cron_job_id, created_at, updated_at`

type reminderRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewReminderRepository wraps db. m may be nil.
func NewReminderRepository(db *sqlx.DB, m *metrics.Metrics) repository.ReminderRepository {
	return &reminderRepository{db: db, metrics: m, now: time.Now}
}

func (r *reminderRepository) observe(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.DatabaseOperations.WithLabelValues(op, metrics.Status(err == nil)).Inc()
	r.metrics.DatabaseLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *reminderRepository) Create(ctx context.Context, reminder *model.Reminder) (err error) {
	start := time.Now()
	defer func() { r.observe("create", start, err) }()

	query := r.db.Rebind(`
		INSERT INTO reminders (
			id, title, content, remind_time, cycle_type, link,
			status, cron_job_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	now := r.now().UTC()
	reminder.RemindTime = reminder.RemindTime.UTC()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, query,
		reminder.ID,
		reminder.Title,
		reminder.Content,
		reminder.RemindTime,
		reminder.CycleType,
		reminder.Link,
		reminder.Status,
		reminder.CronJobID,
		reminder.CreatedAt,
		reminder.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *reminderRepository) Get(ctx context.Context, id string) (_ *model.Reminder, err error) {
	start := time.Now()
	defer func() { r.observe("get", start, err) }()

	query := r.db.Rebind(`SELECT ` + reminderColumns + ` FROM reminders WHERE id = ?`)

	var reminder model.Reminder
	err = r.db.GetContext(ctx, &reminder, query, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return &reminder, nil
}

func (r *reminderRepository) List(ctx context.Context) (_ []*model.Reminder, err error) {
	start := time.Now()
	defer func() { r.observe("list", start, err) }()

	query := `SELECT ` + reminderColumns + ` FROM reminders ORDER BY remind_time ASC, id ASC`

	reminders := []*model.Reminder{}
	if err = r.db.SelectContext(ctx, &reminders, query); err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) SetCronJobID(ctx context.Context, id string, jobID int64) (err error) {
	start := time.Now()
	defer func() { r.observe("set_cron_job_id", start, err) }()

	query := r.db.Rebind(`UPDATE reminders SET cron_job_id = ?, updated_at = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, jobID, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set cron job id: %w", err)
	}
	return requireRow(result)
}

func (r *reminderRepository) MarkSent(ctx context.Context, id string) (_ bool, err error) {
	start := time.Now()
	defer func() { r.observe("mark_sent", start, err) }()

	query := r.db.Rebind(`
		UPDATE reminders
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	result, err := r.db.ExecContext(ctx, query, model.StatusSent, r.now().UTC(), id, model.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *reminderRepository) Reschedule(ctx context.Context, id string, next time.Time) (err error) {
	start := time.Now()
	defer func() { r.observe("reschedule", start, err) }()

	query := r.db.Rebind(`
		UPDATE reminders
		SET status = ?, remind_time = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, model.StatusPending, next.UTC(), r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule reminder: %w", err)
	}
	return requireRow(result)
}

func (r *reminderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
