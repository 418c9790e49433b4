package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/medAuth"
)

// raiseCutoffScript stores ARGV[1] unless a later cutoff is already set and
// extends the key's lifetime to ARGV[2] ms.
const raiseCutoffScript = `
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if tonumber(ARGV[1]) > cur then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < tonumber(ARGV[2]) then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
  end
end
return 1
`

var raiseCutoffLua = redis.NewScript(raiseCutoffScript)

// Revocations is a Redis RevocationStore. Revoked jtis are plain keys that
// expire with the token; account cutoffs hold unix milliseconds.
type Revocations struct {
	redis  redis.UniversalClient
	prefix string
}

var _ medAuth.RevocationStore = (*Revocations)(nil)

// NewRevocations returns a store namespaced under prefix ("medauth" when
// empty).
func NewRevocations(client redis.UniversalClient, prefix string) *Revocations {
	if prefix == "" {
		prefix = "medauth"
	}
	return &Revocations{redis: client, prefix: prefix}
}

func (r *Revocations) tokenKey(jti string) string         { return r.prefix + ":trl:jti:" + jti }
func (r *Revocations) accountKey(accountID string) string { return r.prefix + ":trl:acct:" + accountID }

func (r *Revocations) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, r.tokenKey(jti), "1", ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.tokenKey(jti)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (r *Revocations) RevokeAllBefore(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := raiseCutoffLua.Run(ctx, r.redis, []string{r.accountKey(accountID)},
		cutoff.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Revocations) RevokedBefore(ctx context.Context, accountID string) (time.Time, error) {
	raw, err := r.redis.Get(ctx, r.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, unavailable(err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}
