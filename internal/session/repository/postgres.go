package repository

import (
	"context"
	"errors"

	"devicebound-auth/backend/internal/db"
	"devicebound-auth/backend/internal/session/domain"

	"github.com/jackc/pgx/v5"
)

// PostgresRepository is the pgx implementation of Repository.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a session repository bound to conn (a pool or a transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `INSERT INTO device_sessions
		(id, secret_hash, device_id, user_id, expires_at, valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.SecretHash, s.DeviceID, s.UserID, s.ExpiresAt, s.Valid, s.CreatedAt)
	return err
}

func (r *PostgresRepository) GetBySecretHashForUpdate(ctx context.Context, secretHash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRow(ctx, `SELECT id, secret_hash, device_id, user_id, expires_at, valid, created_at
		FROM device_sessions WHERE secret_hash = $1 FOR UPDATE`, secretHash).Scan(
		&s.ID, &s.SecretHash, &s.DeviceID, &s.UserID, &s.ExpiresAt, &s.Valid, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) Invalidate(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE device_sessions SET valid = FALSE WHERE id = $1 AND valid`, id)
	return err
}

func (r *PostgresRepository) InvalidateByDevice(ctx context.Context, deviceID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE device_sessions SET valid = FALSE WHERE device_id = $1 AND valid`, deviceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) InvalidateByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE device_sessions SET valid = FALSE WHERE user_id = $1 AND valid`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) CountValidByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM device_sessions WHERE user_id = $1 AND valid AND expires_at > now()`,
		userID).Scan(&n)
	return n, err
}
