package mysql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBRejectsMalformedDSN(t *testing.T) {
	_, err := NewDB(context.Background(), "no-database-name")
	assert.ErrorContains(t, err, "invalid mysql dsn")
}

// Runs against a real server when MYSQL_DSN is set.
func TestNewDBAppliesSchema(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reminders WHERE id = ?`, "missing"))
	assert.Zero(t, n)
}
