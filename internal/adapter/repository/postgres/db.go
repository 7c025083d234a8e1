package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB is the shared connection pool behind every goalflow repository. Derived
// reads fan out several queries per asset (events, targets, snapshots), so
// the pool is bounded rather than left at the driver default.
type DB struct {
	*sql.DB
}

// NewDB opens a pool against the goalflow database and verifies connectivity.
// connectionString uses lib/pq keyword form, e.g.
// "host=localhost port=5432 user=postgres password=postgres dbname=goalflow sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close releases the connection pool
func (db *DB) Close() error {
	return db.DB.Close()
}
