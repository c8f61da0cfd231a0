// Package sqlstore implements the counter stores on database/sql through sqlx,
// for SQLite (single-node deployments, development) and PostgreSQL via lib/pq.
// Queries are named SQL kept in embedded files and loaded with dotsql.
package sqlstore

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialects understood by Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// sqliteParams make writers queue on the file lock instead of failing:
// BEGIN IMMEDIATE takes the write lock up front and busy_timeout bounds the wait.
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"

// Open establishes a database connection from a URL and configures pooling.
// Supported URL schemes: sqlite://, postgres://
// SQLite URLs: sqlite://path/to/file.db or sqlite:///absolute/path
func Open(dbURL string) (*sqlx.DB, string, error) {
	driverName, dataSource, dialect, err := parseURL(dbURL)
	if err != nil {
		return nil, "", err
	}

	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	return db, dialect, nil
}

// OpenDB opens a plain database/sql handle for dbURL without pool tuning.
// golang-migrate takes ownership of it and closes it with the migrator.
func OpenDB(dbURL string) (*sql.DB, string, error) {
	driverName, dataSource, dialect, err := parseURL(dbURL)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driverName, dataSource)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	return db, dialect, nil
}

func parseURL(dbURL string) (driverName, dataSource, dialect string, err error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite":
		// sqlite://file.db is relative (host+path), sqlite:///abs/path is absolute.
		path := u.Path
		if u.Host != "" {
			path = u.Host + u.Path
		}
		params := sqliteParams
		if u.RawQuery != "" {
			params = u.RawQuery + "&" + params
		}
		return "sqlite3", "file:" + path + "?" + params, DialectSQLite, nil
	case "postgres", "postgresql":
		return "postgres", dbURL, DialectPostgres, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}
