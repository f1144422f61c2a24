package repository

import (
	"context"
	"errors"
	"time"

	"devicebound-auth/backend/internal/db"
	"devicebound-auth/backend/internal/legacytoken/domain"

	"github.com/jackc/pgx/v5"
)

const tokenColumns = `id, user_id, token_hash, device_id, expires_at, valid, created_at`

// PostgresRepository is the pgx implementation of Repository.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a legacy token repository bound to conn (a pool or a transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := r.db.Exec(ctx, `INSERT INTO legacy_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.TokenHash, t.DeviceID, t.ExpiresAt, t.Valid, t.CreatedAt)
	return err
}

func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM legacy_tokens WHERE token_hash = $1`, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) Invalidate(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE legacy_tokens SET valid = FALSE WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) InvalidateByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE legacy_tokens SET valid = FALSE WHERE user_id = $1 AND valid`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Token, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tokenColumns+` FROM legacy_tokens
		WHERE user_id = $1 AND valid AND expires_at > $2
		ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM legacy_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceID, &t.ExpiresAt, &t.Valid, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
