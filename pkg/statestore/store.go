// Package statestore persists server records and deployment history in a
// SQLite-backed database, local by default or remote via a libsql URL.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// Path is a local database file. Parent directories are created on open.
	Path string

	// URL is a remote libsql/Turso database, e.g. libsql://orch.turso.io.
	// Takes precedence over Path when both are set.
	URL string

	// AuthToken authenticates URL connections.
	AuthToken string
}

// remote reports whether the config points at a network database rather
// than a local file.
func (c Config) remote() bool {
	return strings.TrimSpace(c.URL) != ""
}

// dsn renders the config as a driver DSN, creating parent directories for
// local files along the way.
func (c Config) dsn() (string, error) {
	if c.remote() {
		return remoteDSN(c.URL, c.AuthToken)
	}
	return localDSN(c.Path)
}

func remoteDSN(rawURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		q := u.Query()
		if q.Get("authToken") == "" {
			q.Set("authToken", token)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func localDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", errors.New("state store path or url is required")
	case path == ":memory:":
		return path, nil
	case strings.HasPrefix(path, "file:"):
		// Already a DSN; still make sure the directory exists.
		u, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid store path: %w", err)
		}
		file := u.Path
		if file == "" {
			file = u.Opaque
		}
		if err := ensureParentDir(strings.TrimPrefix(file, "//")); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := ensureParentDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func ensureParentDir(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

// openDB is the driver-independent half of Open: connect, verify, and tune
// local files for single-writer use.
func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping state store: %w", err)
	}

	if strings.HasPrefix(dsn, "file:") {
		if err := tuneLocal(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// tuneLocal applies WAL journaling and a busy timeout, and pins the pool to
// one connection: SQLite serializes writers anyway, and a single connection
// avoids database-locked errors between the HTTP surface and job tasks.
func tuneLocal(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var timeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&timeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}
