package store

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	devicedomain "devicebound-auth/backend/internal/device/domain"
	devicerepo "devicebound-auth/backend/internal/device/repository"
	legacydomain "devicebound-auth/backend/internal/legacytoken/domain"
	legacyrepo "devicebound-auth/backend/internal/legacytoken/repository"
	sessiondomain "devicebound-auth/backend/internal/session/domain"
	sessionrepo "devicebound-auth/backend/internal/session/repository"
	userdomain "devicebound-auth/backend/internal/user/domain"
	userrepo "devicebound-auth/backend/internal/user/repository"
)

// ErrDuplicateSecret is returned by the in-memory store when a session or
// legacy token digest is inserted twice.
var ErrDuplicateSecret = errors.New("duplicate secret hash")

// Memory is an in-process Store for tests and local runs without a database.
// A transaction holds the store-wide lock for its whole duration, so
// transactions are fully serialized, and a failed transaction restores the
// snapshot taken when it began.
type Memory struct {
	state *memState
	inTx  bool
}

type memState struct {
	mu       sync.Mutex
	users    map[string]userdomain.User
	devices  map[string]devicedomain.Device
	sessions map[string]sessiondomain.Session
	tokens   map[string]legacydomain.Token
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{state: &memState{
		users:    make(map[string]userdomain.User),
		devices:  make(map[string]devicedomain.Device),
		sessions: make(map[string]sessiondomain.Session),
		tokens:   make(map[string]legacydomain.Token),
	}}
}

func (m *Memory) Users() userrepo.Repository { return memUsers{m} }
func (m *Memory) Devices() devicerepo.Repository { return memDevices{m} }
func (m *Memory) Sessions() sessionrepo.Repository { return memSessions{m} }
func (m *Memory) LegacyTokens() legacyrepo.Repository { return memTokens{m} }

func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	users, devices := maps.Clone(s.users), maps.Clone(s.devices)
	sessions, tokens := maps.Clone(s.sessions), maps.Clone(s.tokens)

	if err := fn(&Memory{state: s, inTx: true}); err != nil {
		s.users, s.devices, s.sessions, s.tokens = users, devices, sessions, tokens
		return err
	}
	return nil
}

func (m *Memory) do(ctx context.Context, f func(s *memState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.inTx {
		return f(m.state)
	}
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return f(m.state)
}

type memUsers struct{ m *Memory }

func (r memUsers) find(ctx context.Context, match func(userdomain.User) bool) (*userdomain.User, error) {
	var out *userdomain.User
	err := r.m.do(ctx, func(s *memState) error {
		for _, u := range s.users {
			if match(u) {
				u := u
				out = &u
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return r.find(ctx, func(u userdomain.User) bool { return u.ID == id })
}

func (r memUsers) GetByIDForUpdate(ctx context.Context, id string) (*userdomain.User, error) {
	return r.GetByID(ctx, id)
}

func (r memUsers) GetByIdentifier(ctx context.Context, identifier string) (*userdomain.User, error) {
	u, err := r.find(ctx, func(u userdomain.User) bool { return u.Username == identifier })
	if u != nil || err != nil {
		return u, err
	}
	return r.find(ctx, func(u userdomain.User) bool { return u.Email == identifier })
}

func (r memUsers) GetByLegacyFingerprint(ctx context.Context, fingerprint string) (*userdomain.User, error) {
	if fingerprint == "" {
		return nil, nil
	}
	return r.find(ctx, func(u userdomain.User) bool { return u.LegacyFingerprint == fingerprint })
}

func (r memUsers) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	u, err := r.find(ctx, func(u userdomain.User) bool { return u.Username == username || u.Email == email })
	return u != nil, err
}

func (r memUsers) Create(ctx context.Context, u *userdomain.User) error {
	return r.m.do(ctx, func(s *memState) error {
		for _, existing := range s.users {
			if existing.ID == u.ID || existing.Username == u.Username || existing.Email == u.Email ||
				(u.LegacyFingerprint != "" && existing.LegacyFingerprint == u.LegacyFingerprint) {
				return userrepo.ErrDuplicate
			}
		}
		s.users[u.ID] = *u
		return nil
	})
}

func (r memUsers) SetLegacyFingerprint(ctx context.Context, id, fingerprint string) error {
	return r.m.do(ctx, func(s *memState) error {
		for _, existing := range s.users {
			if existing.ID != id && fingerprint != "" && existing.LegacyFingerprint == fingerprint {
				return userrepo.ErrDuplicate
			}
		}
		u, ok := s.users[id]
		if !ok {
			return nil
		}
		u.LegacyFingerprint = fingerprint
		u.UpdatedAt = time.Now().UTC()
		s.users[id] = u
		return nil
	})
}

func (r memUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.m.do(ctx, func(s *memState) error {
		if u, ok := s.users[id]; ok {
			u.LastLoginAt = &at
			u.UpdatedAt = at
			s.users[id] = u
		}
		return nil
	})
}

type memDevices struct{ m *Memory }

func (r memDevices) GetByID(ctx context.Context, id string) (*devicedomain.Device, error) {
	var out *devicedomain.Device
	err := r.m.do(ctx, func(s *memState) error {
		if d, ok := s.devices[id]; ok {
			out = &d
		}
		return nil
	})
	return out, err
}

func (r memDevices) GetActiveByUserAndFingerprintForUpdate(ctx context.Context, userID, fingerprint string) (*devicedomain.Device, error) {
	var out *devicedomain.Device
	err := r.m.do(ctx, func(s *memState) error {
		for _, d := range s.devices {
			if d.UserID == userID && d.Fingerprint == fingerprint && d.Active {
				d := d
				out = &d
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r memDevices) ListByUser(ctx context.Context, userID string) ([]*devicedomain.Device, error) {
	var out []*devicedomain.Device
	err := r.m.do(ctx, func(s *memState) error {
		for _, d := range s.devices {
			if d.UserID == userID {
				d := d
				out = append(out, &d)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (r memDevices) Create(ctx context.Context, d *devicedomain.Device) error {
	return r.m.do(ctx, func(s *memState) error {
		for _, existing := range s.devices {
			if d.Active && existing.Active && existing.UserID == d.UserID && existing.Fingerprint == d.Fingerprint {
				return devicerepo.ErrActiveDeviceExists
			}
		}
		s.devices[d.ID] = *d
		return nil
	})
}

func (r memDevices) update(ctx context.Context, id string, f func(d *devicedomain.Device)) error {
	return r.m.do(ctx, func(s *memState) error {
		if d, ok := s.devices[id]; ok {
			f(&d)
			s.devices[id] = d
		}
		return nil
	})
}

func (r memDevices) Rotate(ctx context.Context, id, secretHash, sourceAddress string, at time.Time) error {
	return r.update(ctx, id, func(d *devicedomain.Device) {
		d.SecretHash = secretHash
		d.SourceAddress = sourceAddress
		d.LastSeenAt = at
	})
}

func (r memDevices) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(d *devicedomain.Device) { d.LastSeenAt = at })
}

func (r memDevices) Deactivate(ctx context.Context, id string) error {
	return r.update(ctx, id, func(d *devicedomain.Device) { d.Active = false })
}

type memSessions struct{ m *Memory }

func (r memSessions) Create(ctx context.Context, sess *sessiondomain.Session) error {
	return r.m.do(ctx, func(s *memState) error {
		for _, existing := range s.sessions {
			if existing.SecretHash == sess.SecretHash {
				return ErrDuplicateSecret
			}
		}
		s.sessions[sess.ID] = *sess
		return nil
	})
}

func (r memSessions) GetBySecretHashForUpdate(ctx context.Context, secretHash string) (*sessiondomain.Session, error) {
	var out *sessiondomain.Session
	err := r.m.do(ctx, func(s *memState) error {
		for _, sess := range s.sessions {
			if sess.SecretHash == secretHash {
				sess := sess
				out = &sess
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r memSessions) invalidateWhere(ctx context.Context, match func(sessiondomain.Session) bool) (int64, error) {
	var n int64
	err := r.m.do(ctx, func(s *memState) error {
		for id, sess := range s.sessions {
			if sess.Valid && match(sess) {
				sess.Valid = false
				s.sessions[id] = sess
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memSessions) Invalidate(ctx context.Context, id string) error {
	_, err := r.invalidateWhere(ctx, func(sess sessiondomain.Session) bool { return sess.ID == id })
	return err
}

func (r memSessions) InvalidateByDevice(ctx context.Context, deviceID string) (int64, error) {
	return r.invalidateWhere(ctx, func(sess sessiondomain.Session) bool { return sess.DeviceID == deviceID })
}

func (r memSessions) InvalidateByUser(ctx context.Context, userID string) (int64, error) {
	return r.invalidateWhere(ctx, func(sess sessiondomain.Session) bool { return sess.UserID == userID })
}

func (r memSessions) CountValidByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	now := time.Now()
	err := r.m.do(ctx, func(s *memState) error {
		for _, sess := range s.sessions {
			if sess.UserID == userID && sess.Usable(now) {
				n++
			}
		}
		return nil
	})
	return n, err
}

type memTokens struct{ m *Memory }

func (r memTokens) Create(ctx context.Context, t *legacydomain.Token) error {
	return r.m.do(ctx, func(s *memState) error {
		for _, existing := range s.tokens {
			if existing.TokenHash == t.TokenHash {
				return ErrDuplicateSecret
			}
		}
		s.tokens[t.ID] = *t
		return nil
	})
}

func (r memTokens) GetByHash(ctx context.Context, tokenHash string) (*legacydomain.Token, error) {
	var out *legacydomain.Token
	err := r.m.do(ctx, func(s *memState) error {
		for _, t := range s.tokens {
			if t.TokenHash == tokenHash {
				t := t
				out = &t
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r memTokens) Invalidate(ctx context.Context, id string) error {
	return r.m.do(ctx, func(s *memState) error {
		if t, ok := s.tokens[id]; ok {
			t.Valid = false
			s.tokens[id] = t
		}
		return nil
	})
}

func (r memTokens) InvalidateByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.m.do(ctx, func(s *memState) error {
		for id, t := range s.tokens {
			if t.UserID == userID && t.Valid {
				t.Valid = false
				s.tokens[id] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memTokens) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*legacydomain.Token, error) {
	var out []*legacydomain.Token
	err := r.m.do(ctx, func(s *memState) error {
		for _, t := range s.tokens {
			if t.UserID == userID && t.Valid && !t.Expired(now) {
				t := t
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r memTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.m.do(ctx, func(s *memState) error {
		for id, t := range s.tokens {
			if t.Expired(now) {
				delete(s.tokens, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
