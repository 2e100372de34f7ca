package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

//go:embed migrations
var migrationsFS embed.FS

// Open opens (creating if needed) the SQLite database at dbPath and applies
// pending migrations.
func Open(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	return open(DriverSQLite, dsn)
}

// OpenPostgres connects to Postgres through pgx and applies pending migrations.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return open(DriverPostgres, dsn)
}

// OpenForTesting returns a fresh, migrated in-memory SQLite database. Every
// call gets its own database.
func OpenForTesting() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:test_%s?mode=memory&cache=shared", ulid.Make().String())
	db, err := open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close db: %v)", err, cerr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applyMigrations(db, driver, dsn); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("failed to run migrations: %w (also failed to close db: %v)", err, cerr)
		}
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// applyMigrations migrates a freshly opened database. The pgx migration
// driver holds a dedicated connection until it is closed, so Postgres is
// migrated over a short-lived pool of its own.
func applyMigrations(db *sql.DB, driver, dsn string) error {
	if driver != DriverPostgres {
		return Migrate(db, driver)
	}
	mdb, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = mdb.Close() }()
	return migrateOwned(mdb, driver, true)
}

// Migrate applies every pending up migration for driver. For Postgres one
// connection of db stays reserved by the migration driver until db is closed.
func Migrate(db *sql.DB, driver string) error {
	return migrateOwned(db, driver, false)
}

// migrateOwned runs the migrations; when owned is set the migration driver,
// and with it any connection it reserved, is closed afterwards.
func migrateOwned(db *sql.DB, driver string, owned bool) error {
	var (
		target database.Driver
		dir    string
		err    error
	)
	switch driver {
	case DriverSQLite:
		dir = "migrations/sqlite"
		target, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverPostgres:
		dir = "migrations/postgres"
		target, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	if owned {
		defer func() { _ = target.Close() }()
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	// m.Close would also close the driver, so only the source is closed here.
	defer func() { _ = src.Close() }()

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
