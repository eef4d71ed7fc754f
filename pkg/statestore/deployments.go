package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Deployment statuses.
const (
	DeploymentStatusInstalled = "installed"
	DeploymentStatusFailed    = "failed"
	DeploymentStatusRemoved   = "removed"
)

// DeploymentRecord is one immutable history row, written once per
// installation attempt and never mutated in place.
type DeploymentRecord struct {
	DeploymentID string    `json:"deployment_id"`
	Server       string    `json:"server"`
	App          string    `json:"app"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AddDeployment appends a history row. The id and timestamp are assigned
// here when the caller leaves them zero.
func (s *Store) AddDeployment(ctx context.Context, rec *DeploymentRecord) error {
	if rec == nil {
		return fmt.Errorf("deployment record is nil")
	}
	if rec.DeploymentID == "" {
		rec.DeploymentID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (deployment_id, server, app, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.DeploymentID, rec.Server, rec.App, rec.Status, rec.Error,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add deployment %s/%s: %w", rec.Server, rec.App, err)
	}
	return nil
}

// ListDeployments returns history rows for a server, newest first. A zero
// limit returns everything.
func (s *Store) ListDeployments(ctx context.Context, server string, limit int) ([]*DeploymentRecord, error) {
	q := `
		SELECT deployment_id, server, app, status, error, created_at
		FROM deployments WHERE server = ? ORDER BY created_at DESC`
	args := []any{server}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDeployments(rows)
}

func scanDeployments(rows *sql.Rows) ([]*DeploymentRecord, error) {
	var out []*DeploymentRecord
	for rows.Next() {
		var rec DeploymentRecord
		var errText sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.DeploymentID, &rec.Server, &rec.App, &rec.Status, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		rec.Error = errText.String
		var err error
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
