package repository

import (
	"context"

	"devicebound-auth/backend/internal/audit/domain"
	"devicebound-auth/backend/internal/db"
)

// PostgresRepository is the pgx implementation of Repository.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit repository bound to conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the audit log entry. Metadata must be empty or a JSON document.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var metadata any
	if a.Metadata != "" {
		metadata = a.Metadata
	}
	_, err := r.db.Exec(ctx, `INSERT INTO audit_logs
		(id, user_id, device_id, action, resource, ip, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7::jsonb, $8)`,
		a.ID, a.UserID, a.DeviceID, a.Action, a.Resource, a.IP, metadata, a.CreatedAt)
	return err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, COALESCE(user_id, ''), COALESCE(device_id, ''), action, resource, ip,
		COALESCE(metadata::text, ''), created_at
		FROM audit_logs WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.DeviceID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
