// Package sqlite opens SQLite databases for constraint validation.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quern-db/quern/dialect"
)

// Dialect is the dialect served by this backend.
var Dialect = dialect.SQLite

// Open opens a SQLite database. A ":memory:" dsn gives a private
// in-memory database bound to one connection; callers that share it
// across queries should cap the pool at a single connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return db, nil
}
