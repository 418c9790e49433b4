// Package redis implements medAuth.AccountStore and medAuth.RevocationStore on
// Redis. Each account is a hash; lockout and reset transitions run as Lua
// scripts so they are atomic per account.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/permission"
)

// ErrRedisUnavailable wraps every Redis transport failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	fieldEmail        = "email"
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldPassword     = "password_hash"
	fieldRole         = "role"
	fieldStatus       = "status"
	fieldFailed       = "failed"
	fieldLockedUntil  = "locked_until"
	fieldLastLogin    = "last_login_at"
	fieldResetHash    = "reset_hash"
	fieldResetExpires = "reset_expires_at"
	fieldCreated      = "created_at"
	fieldUpdated      = "updated_at"
)

const createScript = `
if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
return 1
`

const updateIfExistsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

// recordFailureScript returns {failed, locked_until_ms, flags}. flags bit 1:
// already locked, bit 2: tripped, bit 4: expired lock cleared first. A
// missing account returns failed = -1.
const recordFailureScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0, 0}
end
local failed = tonumber(redis.call("HGET", KEYS[1], "failed") or "0")
local locked = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
local status = redis.call("HGET", KEYS[1], "status")
local now = tonumber(ARGV[1])
local flags = 0
if locked > 0 and now >= locked then
  failed = 0
  locked = 0
  flags = 4
  if status == "LOCKED" then
    status = "ACTIVE"
  end
end
if locked > 0 then
  return {failed, locked, 1}
end
failed = failed + 1
if failed >= tonumber(ARGV[2]) then
  locked = now + tonumber(ARGV[3])
  status = "LOCKED"
  flags = flags + 2
end
redis.call("HSET", KEYS[1], "failed", failed, "locked_until", locked, "status", status, "updated_at", now)
return {failed, locked, flags}
`

const clearExpiredScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local locked = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
local now = tonumber(ARGV[1])
if locked == 0 or now < locked then
  return 0
end
local status = redis.call("HGET", KEYS[1], "status")
if status == "LOCKED" then
  status = "ACTIVE"
end
redis.call("HSET", KEYS[1], "failed", 0, "locked_until", 0, "status", status, "updated_at", now)
return 1
`

// setResetScript replaces the account's reset token and its lookup key.
// ARGV: index prefix, token hash, expiry ms, account id, now ms.
const setResetScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local old = redis.call("HGET", KEYS[1], "reset_hash")
if old and old ~= "" then
  redis.call("DEL", ARGV[1] .. old)
end
redis.call("HSET", KEYS[1], "reset_hash", ARGV[2], "reset_expires_at", ARGV[3], "updated_at", ARGV[5])
redis.call("SET", KEYS[2], ARGV[4])
redis.call("PEXPIREAT", KEYS[2], ARGV[3])
return 1
`

// completeResetScript consumes the reset token when it is still ARGV[4].
// ARGV: index prefix, password hash, now ms, token hash.
const completeResetScript = `
local hash = redis.call("HGET", KEYS[1], "reset_hash")
if not hash or hash == "" or hash ~= ARGV[4] then
  return 0
end
redis.call("DEL", ARGV[1] .. hash)
redis.call("HSET", KEYS[1],
  "password_hash", ARGV[2], "reset_hash", "", "reset_expires_at", 0,
  "failed", 0, "locked_until", 0, "status", "ACTIVE", "updated_at", ARGV[3])
return 1
`

// loginSuccessScript returns -1 for a missing account and 0 when the account
// is not ACTIVE or a lock is in force at ARGV[1].
const loginSuccessScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local status = redis.call("HGET", KEYS[1], "status")
local locked = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if status ~= "ACTIVE" or locked > tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "failed", 0, "locked_until", 0, "last_login_at", ARGV[1], "updated_at", ARGV[1])
return 1
`

var (
	createLua         = redis.NewScript(createScript)
	updateIfExistsLua = redis.NewScript(updateIfExistsScript)
	recordFailureLua  = redis.NewScript(recordFailureScript)
	clearExpiredLua   = redis.NewScript(clearExpiredScript)
	setResetLua       = redis.NewScript(setResetScript)
	completeResetLua  = redis.NewScript(completeResetScript)
	loginSuccessLua   = redis.NewScript(loginSuccessScript)
)

// Accounts is a Redis AccountStore.
type Accounts struct {
	redis  redis.UniversalClient
	prefix string
}

var _ medAuth.AccountStore = (*Accounts)(nil)

// NewAccounts returns a store namespaced under prefix ("medauth" when empty).
func NewAccounts(client redis.UniversalClient, prefix string) *Accounts {
	if prefix == "" {
		prefix = "medauth"
	}
	return &Accounts{redis: client, prefix: prefix}
}

func (s *Accounts) key(id string) string             { return s.prefix + ":acc:" + id }
func (s *Accounts) emailKey(email string) string     { return s.prefix + ":acc:email:" + email }
func (s *Accounts) resetPrefix() string              { return s.prefix + ":acc:reset:" }
func (s *Accounts) resetKey(tokenHash string) string { return s.resetPrefix() + tokenHash }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func decodeAccount(id string, h map[string]string) (*medAuth.Account, error) {
	role, err := permission.ParseRole(h[fieldRole])
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	failed, _ := strconv.Atoi(h[fieldFailed])
	return &medAuth.Account{
		ID:                  id,
		Email:               h[fieldEmail],
		FirstName:           h[fieldFirstName],
		LastName:            h[fieldLastName],
		PasswordHash:        h[fieldPassword],
		Role:                role,
		Status:              medAuth.AccountStatus(h[fieldStatus]),
		FailedLoginCount:    failed,
		LockedUntil:         fromMillis(h[fieldLockedUntil]),
		LastLoginAt:         fromMillis(h[fieldLastLogin]),
		ResetTokenHash:      h[fieldResetHash],
		ResetTokenExpiresAt: fromMillis(h[fieldResetExpires]),
		CreatedAt:           fromMillis(h[fieldCreated]),
		UpdatedAt:           fromMillis(h[fieldUpdated]),
	}, nil
}

func (s *Accounts) GetByID(ctx context.Context, id string) (*medAuth.Account, error) {
	h, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(h) == 0 {
		return nil, medAuth.ErrAccountNotFound
	}
	return decodeAccount(id, h)
}

func (s *Accounts) GetByEmail(ctx context.Context, email string) (*medAuth.Account, error) {
	id, err := s.redis.Get(ctx, s.emailKey(medAuth.NormalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, medAuth.ErrAccountNotFound
		}
		return nil, unavailable(err)
	}
	return s.GetByID(ctx, id)
}

func (s *Accounts) Create(ctx context.Context, acc *medAuth.Account) error {
	email := medAuth.NormalizeEmail(acc.Email)
	args := []any{
		acc.ID,
		fieldEmail, email,
		fieldFirstName, acc.FirstName,
		fieldLastName, acc.LastName,
		fieldPassword, acc.PasswordHash,
		fieldRole, acc.Role.String(),
		fieldStatus, string(acc.Status),
		fieldFailed, 0,
		fieldLockedUntil, 0,
		fieldLastLogin, 0,
		fieldResetHash, "",
		fieldResetExpires, 0,
		fieldCreated, millis(acc.CreatedAt),
		fieldUpdated, millis(acc.UpdatedAt),
	}
	created, err := createLua.Run(ctx, s.redis, []string{s.key(acc.ID), s.emailKey(email)}, args...).Int()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return medAuth.ErrDuplicateEmail
	}
	return nil
}

func (s *Accounts) updateIfExists(ctx context.Context, id string, fields ...any) error {
	ok, err := updateIfExistsLua.Run(ctx, s.redis, []string{s.key(id)}, fields...).Int()
	if err != nil {
		return unavailable(err)
	}
	if ok == 0 {
		return medAuth.ErrAccountNotFound
	}
	return nil
}

func (s *Accounts) SetStatus(ctx context.Context, id string, status medAuth.AccountStatus, now time.Time) error {
	fields := []any{fieldStatus, string(status), fieldUpdated, millis(now)}
	if status == medAuth.StatusActive {
		fields = append(fields, fieldFailed, 0, fieldLockedUntil, 0)
	}
	return s.updateIfExists(ctx, id, fields...)
}

func (s *Accounts) UpdatePassword(ctx context.Context, id, hash string, now time.Time) error {
	return s.updateIfExists(ctx, id, fieldPassword, hash, fieldUpdated, millis(now))
}

func (s *Accounts) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	ok, err := setResetLua.Run(ctx, s.redis,
		[]string{s.key(id), s.resetKey(tokenHash)},
		s.resetPrefix(), tokenHash, millis(expiresAt), id, millis(now)).Int()
	if err != nil {
		return unavailable(err)
	}
	if ok == 0 {
		return medAuth.ErrAccountNotFound
	}
	return nil
}

func (s *Accounts) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*medAuth.Account, error) {
	id, err := s.redis.Get(ctx, s.resetKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, medAuth.ErrAccountNotFound
		}
		return nil, unavailable(err)
	}
	acc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.ResetTokenHash != tokenHash || !now.Before(acc.ResetTokenExpiresAt) {
		return nil, medAuth.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Accounts) CompletePasswordReset(ctx context.Context, id, tokenHash, hash string, now time.Time) error {
	if tokenHash == "" {
		return medAuth.ErrAccountNotFound
	}
	ok, err := completeResetLua.Run(ctx, s.redis, []string{s.key(id)}, s.resetPrefix(), hash, millis(now), tokenHash).Int()
	if err != nil {
		return unavailable(err)
	}
	if ok == 0 {
		return medAuth.ErrAccountNotFound
	}
	return nil
}

func (s *Accounts) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy lockout.Policy) (lockout.Outcome, error) {
	res, err := recordFailureLua.Run(ctx, s.redis, []string{s.key(id)},
		millis(now), policy.Threshold, policy.Duration.Milliseconds()).Int64Slice()
	if err != nil {
		return lockout.Outcome{}, unavailable(err)
	}
	if len(res) != 3 {
		return lockout.Outcome{}, fmt.Errorf("record failure: unexpected reply %v", res)
	}
	if res[0] < 0 {
		return lockout.Outcome{}, medAuth.ErrAccountNotFound
	}

	out := lockout.Outcome{
		State: lockout.State{
			FailedCount: int(res[0]),
			LockedUntil: fromMillis(strconv.FormatInt(res[1], 10)),
		},
		AlreadyLocked: res[2]&1 != 0,
		Tripped:       res[2]&2 != 0,
		Cleared:       res[2]&4 != 0,
	}
	return out, nil
}

func (s *Accounts) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := clearExpiredLua.Run(ctx, s.redis, []string{s.key(id)}, millis(now)).Int()
	if err != nil {
		return false, unavailable(err)
	}
	if res < 0 {
		return false, medAuth.ErrAccountNotFound
	}
	return res == 1, nil
}

func (s *Accounts) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	res, err := loginSuccessLua.Run(ctx, s.redis, []string{s.key(id)}, millis(now)).Int()
	if err != nil {
		return unavailable(err)
	}
	switch res {
	case -1:
		return medAuth.ErrAccountNotFound
	case 0:
		return medAuth.ErrAccountStateChanged
	}
	return nil
}

func (s *Accounts) Unlock(ctx context.Context, id string, now time.Time) error {
	return s.updateIfExists(ctx, id,
		fieldFailed, 0, fieldLockedUntil, 0, fieldStatus, string(medAuth.StatusActive),
		fieldUpdated, millis(now))
}
