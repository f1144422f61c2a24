package repository

import (
	"context"
	"errors"
	"time"

	"devicebound-auth/backend/internal/db"
	"devicebound-auth/backend/internal/device/domain"

	"github.com/jackc/pgx/v5"
)

const deviceColumns = `id, user_id, secret_hash, label, fingerprint, platform, source_address, active, last_seen_at, created_at`

// PostgresRepository is the pgx implementation of Repository.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a device repository bound to conn (a pool or a transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the device for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	return scanOne(row)
}

func (r *PostgresRepository) GetActiveByUserAndFingerprintForUpdate(ctx context.Context, userID, fingerprint string) (*domain.Device, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices
		WHERE user_id = $1 AND fingerprint = $2 AND active
		FOR UPDATE`, userID, fingerprint)
	return scanOne(row)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	rows, err := r.db.Query(ctx, `SELECT `+deviceColumns+` FROM devices
		WHERE user_id = $1
		ORDER BY last_seen_at DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create persists d. The device must have ID set. When an active device for
// the same (user, fingerprint) already exists nothing is written and
// ErrActiveDeviceExists is returned; the surrounding transaction stays usable.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.Device) error {
	tag, err := r.db.Exec(ctx, `INSERT INTO devices
		(id, user_id, secret_hash, label, fingerprint, platform, source_address, active, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, fingerprint) WHERE active DO NOTHING`,
		d.ID, d.UserID, d.SecretHash, d.Label, d.Fingerprint, d.Platform, d.SourceAddress,
		d.Active, d.LastSeenAt, d.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActiveDeviceExists
	}
	return nil
}

func (r *PostgresRepository) Rotate(ctx context.Context, id, secretHash, sourceAddress string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE devices
		SET secret_hash = $2, source_address = $3, last_seen_at = $4
		WHERE id = $1`, id, secretHash, sourceAddress, at)
	return err
}

func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE devices SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE devices SET active = FALSE WHERE id = $1`, id)
	return err
}

func scanOne(row pgx.Row) (*domain.Device, error) {
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	if err := row.Scan(
		&d.ID, &d.UserID, &d.SecretHash, &d.Label, &d.Fingerprint, &d.Platform,
		&d.SourceAddress, &d.Active, &d.LastSeenAt, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
