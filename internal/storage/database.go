package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"gymchat/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
)

// NormalizeDriver maps configured driver aliases onto registered driver names.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "mysql":
		return DriverMySQL, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", name)
	}
}

// Open prepares a handle for the configured database. It does not require the
// server to be reachable; callers decide whether a failed Ping is fatal.
func Open(dbCfg config.DatabaseConfig) (*sql.DB, string, error) {
	driver, err := NormalizeDriver(dbCfg.Driver)
	if err != nil {
		return nil, "", err
	}
	dsn, err := buildDSN(driver, dbCfg)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, driver, nil
}

func buildDSN(driver string, dbCfg config.DatabaseConfig) (string, error) {
	if dbCfg.DSN != "" {
		return dbCfg.DSN, nil
	}
	switch driver {
	case DriverPostgres:
		return postgresURL(dbCfg)
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		), nil
	default:
		return "", fmt.Errorf("%s dsn must be provided", driver)
	}
}

// postgresURL builds a postgres:// connection URL so credentials are escaped.
// Params may be a query string or space separated key=value pairs.
func postgresURL(dbCfg config.DatabaseConfig) (string, error) {
	query, err := url.ParseQuery(strings.Join(strings.Fields(dbCfg.Params), "&"))
	if err != nil {
		return "", fmt.Errorf("parse postgres params: %w", err)
	}
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(dbCfg.Host, strconv.Itoa(dbCfg.Port)),
		Path:     "/" + dbCfg.DBName,
		RawQuery: query.Encode(),
	}
	if dbCfg.Username != "" {
		u.User = url.UserPassword(dbCfg.Username, dbCfg.Password)
	}
	return u.String(), nil
}

// Ping checks connectivity.
func Ping(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Migrate ensures the uploaded_files table is present.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS uploaded_files (
				id SERIAL PRIMARY KEY,
				filename VARCHAR(255) NOT NULL,
				mimetype VARCHAR(100),
				file_data BYTEA NOT NULL,
				uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				file_size INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_uploaded_files_uploaded_at ON uploaded_files(uploaded_at)`,
		}
	case DriverSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS uploaded_files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				filename TEXT NOT NULL,
				mimetype TEXT,
				file_data BLOB NOT NULL,
				uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				file_size INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_uploaded_files_uploaded_at ON uploaded_files(uploaded_at)`,
		}
	case DriverMySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS uploaded_files (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				filename VARCHAR(255) NOT NULL,
				mimetype VARCHAR(100),
				file_data LONGBLOB NOT NULL,
				uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				file_size BIGINT,
				PRIMARY KEY (id),
				INDEX idx_uploaded_files_uploaded_at (uploaded_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
