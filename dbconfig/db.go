package dbconfig

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"
)

// DBConfig reads chain and RPC definitions from the configuration database.
type DBConfig struct {
	db *sql.DB
}

// NewDBConfig creates a new DBConfig instance with the provided connection string.
//
// Parameters:
// - ctx: the context for the connectivity check.
// - connStr: the database connection string.
//
// Returns:
// - *DBConfig: a pointer to the newly created DBConfig instance.
// - error: ErrDatabaseConnect if the database cannot be reached.
func NewDBConfig(ctx context.Context, connStr string) (*DBConfig, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(ErrDatabaseConnect, err.Error())
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(ErrDatabaseConnect, err.Error())
	}
	return &DBConfig{db: db}, nil
}

// Close releases the database connections.
func (r *DBConfig) Close() error {
	return r.db.Close()
}
