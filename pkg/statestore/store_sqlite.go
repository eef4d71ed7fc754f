//go:build !cgo

package statestore

import (
	"context"
	"database/sql"
	"errors"

	sqlite "modernc.org/sqlite"
)

const driverName = "skycrane-sqlite"

func init() {
	sql.Register(driverName, &sqlite.Driver{})
}

// Open connects to the configured state database.
//
// This build uses the pure-Go sqlite driver, so only local files work;
// remote libsql URLs need a cgo-enabled build.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.remote() {
		return nil, errors.New("remote state store url requires a cgo-enabled build")
	}
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	return openDB(ctx, driverName, dsn)
}
