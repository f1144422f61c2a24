package repository

import (
	"context"
	"errors"
	"time"

	"devicebound-auth/backend/internal/db"
	"devicebound-auth/backend/internal/user/domain"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, email, password_hash, COALESCE(legacy_fingerprint, ''), last_login_at, created_at, updated_at`

// PostgresRepository is the pgx implementation of Repository.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository bound to conn (a pool or a transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users
		WHERE username = $1 OR email = $1
		ORDER BY (username = $1) DESC
		LIMIT 1`, identifier)
}

func (r *PostgresRepository) GetByLegacyFingerprint(ctx context.Context, fingerprint string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE legacy_fingerprint = $1`, fingerprint)
}

func (r *PostgresRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`,
		username, email).Scan(&exists)
	return exists, err
}

// Create inserts u. Returns ErrDuplicate on a unique constraint violation.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	var fp *string
	if u.LegacyFingerprint != "" {
		fp = &u.LegacyFingerprint
	}
	_, err := r.db.Exec(ctx, `INSERT INTO users
		(id, username, email, password_hash, legacy_fingerprint, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.PasswordHash, fp, u.LastLoginAt, u.CreatedAt, u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SetLegacyFingerprint binds fingerprint to the user. Returns ErrDuplicate when another user holds it.
func (r *PostgresRepository) SetLegacyFingerprint(ctx context.Context, id, fingerprint string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET legacy_fingerprint = $2, updated_at = now() WHERE id = $1`,
		id, fingerprint)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`,
		id, at)
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.LegacyFingerprint,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
