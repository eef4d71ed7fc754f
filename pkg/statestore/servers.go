package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for state store operations.
var (
	// ErrServerNotFound indicates the named server has no record.
	ErrServerNotFound = errors.New("server not found")
)

// IsServerNotFound returns true if the error indicates a missing server record.
func IsServerNotFound(err error) bool {
	return errors.Is(err, ErrServerNotFound)
}

// Server statuses.
//
// NOTE: These values are persisted and are part of the stable schema contract.
const (
	ServerStatusProvisioning = "provisioning"
	ServerStatusReady        = "ready"
	ServerStatusError        = "error"
	ServerStatusDeleting     = "deleting"
)

// ServerRecord is the persisted state for one managed server.
type ServerRecord struct {
	Name       string    `json:"name"`
	Provider   string    `json:"provider,omitempty"`
	ServerType string    `json:"server_type,omitempty"`
	Region     string    `json:"region,omitempty"`
	Image      string    `json:"image,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Status     string    `json:"status"`
	Apps       []string  `json:"apps"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasApp reports whether name is in the server's installed-application set.
func (r *ServerRecord) HasApp(name string) bool {
	for _, a := range r.Apps {
		if a == name {
			return true
		}
	}
	return false
}

// Store provides access to server records and deployment history.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that manage its lifecycle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// UpsertServer inserts or replaces a server record. CreatedAt is preserved
// on replace; UpdatedAt is always stamped.
func (s *Store) UpsertServer(ctx context.Context, rec *ServerRecord) error {
	if rec == nil || strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("server name is required")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	apps, err := marshalApps(rec.Apps)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO servers (name, provider, server_type, region, image, ip_address, status, apps, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			provider = excluded.provider,
			server_type = excluded.server_type,
			region = excluded.region,
			image = excluded.image,
			ip_address = excluded.ip_address,
			status = excluded.status,
			apps = excluded.apps,
			updated_at = excluded.updated_at`,
		rec.Name, rec.Provider, rec.ServerType, rec.Region, rec.Image, rec.IPAddress,
		rec.Status, apps, rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert server %s: %w", rec.Name, err)
	}
	return nil
}

// GetServer returns the record for name.
func (s *Store) GetServer(ctx context.Context, name string) (*ServerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, provider, server_type, region, image, ip_address, status, apps, created_at, updated_at
		FROM servers WHERE name = ?`, name)

	rec, err := scanServer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("server %q: %w", name, ErrServerNotFound)
		}
		return nil, fmt.Errorf("get server %s: %w", name, err)
	}
	return rec, nil
}

// ListServers returns all server records ordered by name.
func (s *Store) ListServers(ctx context.Context) ([]*ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, provider, server_type, region, image, ip_address, status, apps, created_at, updated_at
		FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteServer removes a server record. Deleting an unknown server returns
// ErrServerNotFound.
func (s *Store) DeleteServer(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete server %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete server %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("server %q: %w", name, ErrServerNotFound)
	}
	return nil
}

// SetServerApps replaces the server's installed-application set in a single
// write. Callers compute the full new set (additions and bundle-superseded
// removals together) so the record can never be observed holding a bundle
// alongside a component it replaced.
func (s *Store) SetServerApps(ctx context.Context, name string, apps []string) error {
	payload, err := marshalApps(apps)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE servers SET apps = ?, updated_at = ? WHERE name = ?`,
		payload, time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("update server apps %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update server apps %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("server %q: %w", name, ErrServerNotFound)
	}
	return nil
}

// marshalApps stores the application set as a sorted, de-duplicated JSON
// array so records are stable regardless of install order.
func marshalApps(apps []string) (string, error) {
	set := make(map[string]bool, len(apps))
	for _, a := range apps {
		a = strings.TrimSpace(a)
		if a != "" {
			set[a] = true
		}
	}
	uniq := make([]string, 0, len(set))
	for a := range set {
		uniq = append(uniq, a)
	}
	sort.Strings(uniq)

	b, err := json.Marshal(uniq)
	if err != nil {
		return "", fmt.Errorf("marshal apps: %w", err)
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*ServerRecord, error) {
	var rec ServerRecord
	var apps, createdAt, updatedAt string
	if err := row.Scan(&rec.Name, &rec.Provider, &rec.ServerType, &rec.Region, &rec.Image,
		&rec.IPAddress, &rec.Status, &apps, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(apps), &rec.Apps); err != nil {
		return nil, fmt.Errorf("parse apps column: %w", err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}
