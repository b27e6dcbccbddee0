package db

import (
	"embed"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Repository provides a centralized structure for database operations, embedding the database connection.
// It acts as a receiver for methods that implement the various repository interfaces defined in the domain package.
type Repository struct {
	dbConn *sqlx.DB // dbConn is the active database connection pool.
}

// NewRepository initializes a new Repository with the given sqlx.DB database connection.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		dbConn: db,
	}
}

// Close terminates the database connection.
func (repo *Repository) Close() error {
	err := repo.dbConn.Close()
	if err != nil {
		return fmt.Errorf("closing repo : %w", err)
	}
	return nil
}

// New connects to the database and applies all pending migrations.
//
// For the sqlite driver dsn is the database file path, the connection is opened in WAL mode
// with foreign keys enabled and limited to a single writer. For the mysql driver dsn is a
// go-sql-driver DSN, parseTime is forced on so DATETIME columns scan into time.Time.
func New(driver, dsn string) (*sqlx.DB, error) {
	var (
		db      *sqlx.DB
		dialect goose.Dialect
		err     error
	)

	switch driver {
	case DriverSQLite, "":
		db, err = sqlx.Connect("sqlite", fmt.Sprintf("%s?_journal=WAL&_timeout=5000&_fk=true", dsn))
		if err != nil {
			return nil, fmt.Errorf("connecting to db : %w", err)
		}
		db.SetMaxOpenConns(1)

		_, err = db.Exec("PRAGMA foreign_keys = ON;")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
		dialect = goose.DialectSQLite3
	case DriverMySQL:
		db, err = sqlx.Connect("mysql", withParseTime(dsn))
		if err != nil {
			return nil, fmt.Errorf("connecting to db : %w", err)
		}
		dialect = goose.DialectMySQL
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(dialect)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting dialect for migrations : %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migration : %w", err)
	}
	return db, nil
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
