package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQL runs one statement per Exec unless multiStatements is set, and has
// no CREATE INDEX IF NOT EXISTS, so the index lives in the table definition.
const schema = `
CREATE TABLE IF NOT EXISTS reminders (
	id           VARCHAR(191) NOT NULL PRIMARY KEY,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	remind_time  DATETIME(6) NOT NULL,
	cycle_type   VARCHAR(16) NOT NULL DEFAULT 'once',
	link         TEXT NULL,
	status       SMALLINT NOT NULL DEFAULT 0,
	cron_job_id  BIGINT NULL,
	created_at   DATETIME(6) NOT NULL,
	updated_at   DATETIME(6) NOT NULL,
	INDEX idx_reminders_remind_time (remind_time)
)`

// NewDB connects with a go-sql-driver DSN. Times are always scanned into
// time.Time and interpreted as UTC, whatever the DSN says.
func NewDB(ctx context.Context, dsn string) (*sqlx.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sqlx.ConnectContext(ctx, "mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}
