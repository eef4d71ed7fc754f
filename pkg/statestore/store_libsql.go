//go:build cgo

package statestore

import (
	"context"
	"database/sql"

	_ "github.com/tursodatabase/go-libsql"
)

const driverName = "libsql"

// Open connects to the configured state database. The libsql driver serves
// both local files and remote libsql/Turso URLs.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	return openDB(ctx, driverName, dsn)
}
