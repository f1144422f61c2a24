package store

import (
	"context"
	"errors"
	"fmt"

	"devicebound-auth/backend/internal/db"
	devicerepo "devicebound-auth/backend/internal/device/repository"
	legacyrepo "devicebound-auth/backend/internal/legacytoken/repository"
	sessionrepo "devicebound-auth/backend/internal/session/repository"
	userrepo "devicebound-auth/backend/internal/user/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
	conn db.DBTX
	inTx bool
}

// NewPostgres returns a Store on pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, conn: pool}
}

func (p *Postgres) Users() userrepo.Repository { return userrepo.NewPostgresRepository(p.conn) }

func (p *Postgres) Devices() devicerepo.Repository { return devicerepo.NewPostgresRepository(p.conn) }

func (p *Postgres) Sessions() sessionrepo.Repository {
	return sessionrepo.NewPostgresRepository(p.conn)
}

func (p *Postgres) LegacyTokens() legacyrepo.Repository {
	return legacyrepo.NewPostgresRepository(p.conn)
}

// InTx begins a read-committed transaction. Row locks taken with FOR UPDATE
// inside fn are held until commit or rollback.
func (p *Postgres) InTx(ctx context.Context, fn func(Store) error) (err error) {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(&Postgres{pool: p.pool, conn: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
