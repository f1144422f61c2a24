// Package store groups the repositories behind one transactional handle.
package store

import (
	"context"

	devicerepo "devicebound-auth/backend/internal/device/repository"
	legacyrepo "devicebound-auth/backend/internal/legacytoken/repository"
	sessionrepo "devicebound-auth/backend/internal/session/repository"
	userrepo "devicebound-auth/backend/internal/user/repository"
)

// Store exposes the repositories. InTx runs fn against a Store whose
// repositories share one transaction; fn's error rolls it back. Calling InTx on
// the Store handed to fn reuses the open transaction.
type Store interface {
	Users() userrepo.Repository
	Devices() devicerepo.Repository
	Sessions() sessionrepo.Repository
	LegacyTokens() legacyrepo.Repository
	InTx(ctx context.Context, fn func(Store) error) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
