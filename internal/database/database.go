package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/digkill/ChannelPassBot/internal/config"
)

//go:embed migrations
var migrations embed.FS

// Connect opens the configured database with sensible pooling defaults.
func Connect(cfg config.Config) (*sqlx.DB, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return ConnectSQLite(cfg.SQLitePath)
	case config.DriverMySQL:
		return connectMySQL(cfg.MySQLDSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

func connectMySQL(dsn string) (*sqlx.DB, error) {
	normalized, err := mysqlDSN(dsn, false)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(config.DriverMySQL, normalized)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetConnMaxLifetime(time.Minute * 5)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := ping(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// ConnectSQLite opens a SQLite database file; ":memory:" gives a private
// in-memory database. SQLite allows one writer, so the pool keeps a single
// connection that never expires.
func ConnectSQLite(path string) (*sqlx.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open(config.DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ping(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func ping(db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	return db.PingContext(ctx)
}

// mysqlDSN forces UTC time parsing; migrations additionally need
// multi-statement support.
func mysqlDSN(dsn string, multiStatements bool) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.MultiStatements = multiStatements
	return mc.FormatDSN(), nil
}

// Migrate applies the embedded migrations for the configured driver.
func Migrate(cfg config.Config, db *sqlx.DB, log *slog.Logger) error {
	src, err := iofs.New(migrations, "migrations/"+cfg.DBDriver)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	var driver migratedb.Driver
	switch cfg.DBDriver {
	case config.DriverSQLite:
		// The in-memory database lives on the single pooled connection, so the
		// migrator must share it and must not close it.
		driver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("sqlite migrate driver: %w", err)
		}
	case config.DriverMySQL:
		dsn, err := mysqlDSN(cfg.MySQLDSN, true)
		if err != nil {
			return err
		}
		migrationDB, err := sqlx.Open(config.DriverMySQL, dsn)
		if err != nil {
			return fmt.Errorf("open mysql for migrations: %w", err)
		}
		driver, err = migratemysql.WithInstance(migrationDB.DB, &migratemysql.Config{})
		if err != nil {
			migrationDB.Close()
			return fmt.Errorf("mysql migrate driver: %w", err)
		}
		defer driver.Close()
	default:
		return fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.DBDriver, driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	fromVer, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	toVer, _, _ := m.Version()

	log.Info("migrations applied",
		"driver", cfg.DBDriver,
		"from_ver", fromVer,
		"to_ver", toVer,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
