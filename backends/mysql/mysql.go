// Package mysql opens MySQL databases for constraint validation.
package mysql

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/quern-db/quern/dialect"
)

// Dialect is the dialect served by this backend.
var Dialect = dialect.MySQL

// Open validates the DSN and opens a MySQL database. ParseTime is
// forced on so timestamp columns scan into time.Time.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	return db, nil
}
