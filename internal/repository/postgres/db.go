package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/reminder-api/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS reminders (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	remind_time  TIMESTAMPTZ NOT NULL,
	cycle_type   TEXT NOT NULL DEFAULT 'once',
	link         TEXT,
	status       SMALLINT NOT NULL DEFAULT 0,
	cron_job_id  BIGINT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reminders_remind_time ON reminders (remind_time);
`

// NewDB connects to postgres and makes sure the reminders table exists.
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}
