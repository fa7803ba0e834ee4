// Package databasetest opens migrated in-memory databases for tests.
package databasetest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ChannelPassBot/internal/config"
	"github.com/digkill/ChannelPassBot/internal/database"
	"github.com/digkill/ChannelPassBot/pkg/logger"
)

// Open returns a fresh SQLite database with every migration applied. It is
// closed when the test ends.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{DBDriver: config.DriverSQLite}
	require.NoError(t, database.Migrate(cfg, db, logger.Discard()))
	return db
}
