package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ChannelPassBot/internal/config"
	"github.com/digkill/ChannelPassBot/pkg/logger"
)

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	db, err := ConnectSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	cfg := config.Config{DBDriver: config.DriverSQLite}
	require.NoError(t, Migrate(cfg, db, logger.Discard()))
	require.NoError(t, Migrate(cfg, db, logger.Discard()))

	for _, table := range []string{"users", "payment_claims", "messages_log", "broadcast_log"} {
		var n int
		err := db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestMySQLDSNForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("bot:secret@tcp(db:3306)/channelpass", true)
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")

	_, err = mysqlDSN("::not a dsn", false)
	assert.Error(t, err)
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect(config.Config{DBDriver: "postgres"})
	assert.Error(t, err)
}
