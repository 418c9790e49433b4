// Package memory provides process-local AccountStore and RevocationStore
// implementations for tests, demos and single-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/lockout"
)

// Accounts is a mutex-guarded AccountStore. Every method copies records in
// and out so callers never share memory with the store.
type Accounts struct {
	mu      sync.Mutex
	byID    map[string]*medAuth.Account
	byEmail map[string]string
}

var _ medAuth.AccountStore = (*Accounts)(nil)

// NewAccounts returns an empty store.
func NewAccounts() *Accounts {
	return &Accounts{
		byID:    make(map[string]*medAuth.Account),
		byEmail: make(map[string]string),
	}
}

// Put inserts or replaces acc without uniqueness checks. It is meant for
// seeding.
func (s *Accounts) Put(acc medAuth.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc.Email = medAuth.NormalizeEmail(acc.Email)
	if old, ok := s.byID[acc.ID]; ok {
		delete(s.byEmail, old.Email)
	}
	s.byID[acc.ID] = &acc
	s.byEmail[acc.Email] = acc.ID
}

func (s *Accounts) GetByID(_ context.Context, id string) (*medAuth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, medAuth.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *Accounts) GetByEmail(_ context.Context, email string) (*medAuth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[medAuth.NormalizeEmail(email)]
	if !ok {
		return nil, medAuth.ErrAccountNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *Accounts) Create(_ context.Context, acc *medAuth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := medAuth.NormalizeEmail(acc.Email)
	if _, ok := s.byEmail[email]; ok {
		return medAuth.ErrDuplicateEmail
	}
	if _, ok := s.byID[acc.ID]; ok {
		return medAuth.ErrDuplicateEmail
	}
	cp := *acc
	cp.Email = email
	s.byID[cp.ID] = &cp
	s.byEmail[email] = cp.ID
	return nil
}

// update runs fn on the stored record under the lock.
func (s *Accounts) update(id string, fn func(*medAuth.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return medAuth.ErrAccountNotFound
	}
	fn(acc)
	return nil
}

func (s *Accounts) SetStatus(_ context.Context, id string, status medAuth.AccountStatus, now time.Time) error {
	return s.update(id, func(a *medAuth.Account) {
		a.Status = status
		if status == medAuth.StatusActive {
			a.FailedLoginCount = 0
			a.LockedUntil = time.Time{}
		}
		a.UpdatedAt = now
	})
}

func (s *Accounts) UpdatePassword(_ context.Context, id, hash string, now time.Time) error {
	return s.update(id, func(a *medAuth.Account) {
		a.PasswordHash = hash
		a.UpdatedAt = now
	})
}

func (s *Accounts) SetResetToken(_ context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	return s.update(id, func(a *medAuth.Account) {
		a.ResetTokenHash = tokenHash
		a.ResetTokenExpiresAt = expiresAt
		a.UpdatedAt = now
	})
}

func (s *Accounts) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*medAuth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokenHash == "" {
		return nil, medAuth.ErrAccountNotFound
	}
	for _, acc := range s.byID {
		if acc.ResetTokenHash == tokenHash && now.Before(acc.ResetTokenExpiresAt) {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, medAuth.ErrAccountNotFound
}

func (s *Accounts) CompletePasswordReset(_ context.Context, id, tokenHash, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok || tokenHash == "" || acc.ResetTokenHash != tokenHash {
		return medAuth.ErrAccountNotFound
	}
	acc.PasswordHash = hash
	acc.ResetTokenHash = ""
	acc.ResetTokenExpiresAt = time.Time{}
	acc.FailedLoginCount = 0
	acc.LockedUntil = time.Time{}
	acc.Status = medAuth.StatusActive
	acc.UpdatedAt = now
	return nil
}

func (s *Accounts) RecordLoginFailure(_ context.Context, id string, now time.Time, policy lockout.Policy) (lockout.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return lockout.Outcome{}, medAuth.ErrAccountNotFound
	}
	out := lockout.RecordFailure(acc.LockState(), now, policy)
	acc.FailedLoginCount = out.State.FailedCount
	acc.LockedUntil = out.State.LockedUntil
	if out.Cleared && acc.Status == medAuth.StatusLocked {
		acc.Status = medAuth.StatusActive
	}
	if out.Tripped {
		acc.Status = medAuth.StatusLocked
	}
	acc.UpdatedAt = now
	return out, nil
}

func (s *Accounts) ClearExpiredLock(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return false, medAuth.ErrAccountNotFound
	}
	state, cleared := lockout.ClearIfExpired(acc.LockState(), now)
	if !cleared {
		return false, nil
	}
	acc.FailedLoginCount = state.FailedCount
	acc.LockedUntil = state.LockedUntil
	if acc.Status == medAuth.StatusLocked {
		acc.Status = medAuth.StatusActive
	}
	acc.UpdatedAt = now
	return true, nil
}

func (s *Accounts) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return medAuth.ErrAccountNotFound
	}
	if acc.Status != medAuth.StatusActive || acc.LockState().Locked(now) {
		return medAuth.ErrAccountStateChanged
	}
	state := lockout.RecordSuccess()
	acc.FailedLoginCount = state.FailedCount
	acc.LockedUntil = state.LockedUntil
	acc.LastLoginAt = now
	acc.UpdatedAt = now
	return nil
}

func (s *Accounts) Unlock(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(a *medAuth.Account) {
		a.FailedLoginCount = 0
		a.LockedUntil = time.Time{}
		a.Status = medAuth.StatusActive
		a.UpdatedAt = now
	})
}

// Revocations is a process-local RevocationStore. Entries expire lazily on
// read and on each write.
type Revocations struct {
	mu      sync.Mutex
	now     func() time.Time
	tokens  map[string]time.Time
	cutoffs map[string]cutoff
}

type cutoff struct {
	at      time.Time
	expires time.Time
}

var _ medAuth.RevocationStore = (*Revocations)(nil)

// NewRevocations returns an empty store. A nil clock uses time.Now.
func NewRevocations(now func() time.Time) *Revocations {
	if now == nil {
		now = time.Now
	}
	return &Revocations{
		now:     now,
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]cutoff),
	}
}

func (r *Revocations) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	r.tokens[jti] = now.Add(ttl)
	return nil
}

func (r *Revocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.tokens[jti]
	return ok && r.now().Before(exp), nil
}

func (r *Revocations) RevokeAllBefore(_ context.Context, accountID string, at time.Time, ttl time.Duration) error {
	if accountID == "" || ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	if prev, ok := r.cutoffs[accountID]; ok && prev.at.After(at) {
		return nil
	}
	r.cutoffs[accountID] = cutoff{at: at, expires: now.Add(ttl)}
	return nil
}

func (r *Revocations) RevokedBefore(_ context.Context, accountID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cutoffs[accountID]
	if !ok || !r.now().Before(c.expires) {
		return time.Time{}, nil
	}
	return c.at, nil
}

func (r *Revocations) sweep(now time.Time) {
	for jti, exp := range r.tokens {
		if !now.Before(exp) {
			delete(r.tokens, jti)
		}
	}
	for id, c := range r.cutoffs {
		if !now.Before(c.expires) {
			delete(r.cutoffs, id)
		}
	}
}
