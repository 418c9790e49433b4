package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/permission"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

func newTestStores(t *testing.T) (*miniredis.Miniredis, *Accounts, *Revocations) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	mr.SetTime(testNow)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, NewAccounts(client, "t"), NewRevocations(client, "t")
}

func createNurse(t *testing.T, s *Accounts) {
	t.Helper()
	err := s.Create(context.Background(), &medAuth.Account{
		ID:           "u1",
		Email:        "Nurse@Example.org",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "$2a$12$hash",
		Role:         permission.Nurse,
		Status:       medAuth.StatusActive,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	})
	require.NoError(t, err)
}

func TestAccountsCreateAndLookup(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	ctx := context.Background()

	acc, err := s.GetByEmail(ctx, " NURSE@example.org")
	require.NoError(t, err)
	require.Equal(t, "u1", acc.ID)
	require.Equal(t, "nurse@example.org", acc.Email)
	require.Equal(t, permission.Nurse, acc.Role)
	require.Equal(t, medAuth.StatusActive, acc.Status)
	require.True(t, acc.CreatedAt.Equal(testNow))
	require.True(t, acc.LockedUntil.IsZero())

	err = s.Create(ctx, &medAuth.Account{ID: "u2", Email: "nurse@example.org", Role: permission.Patient})
	require.ErrorIs(t, err, medAuth.ErrDuplicateEmail)

	_, err = s.GetByID(ctx, "missing")
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
	_, err = s.GetByEmail(ctx, "nobody@example.org")
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
}

func TestAccountsLockoutTransitions(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	ctx := context.Background()
	policy := lockout.DefaultPolicy()

	for i := 1; i < policy.Threshold; i++ {
		out, err := s.RecordLoginFailure(ctx, "u1", testNow, policy)
		require.NoError(t, err)
		require.Equal(t, i, out.State.FailedCount)
		require.False(t, out.Tripped)
	}

	out, err := s.RecordLoginFailure(ctx, "u1", testNow, policy)
	require.NoError(t, err)
	require.True(t, out.Tripped)
	require.True(t, out.State.LockedUntil.Equal(testNow.Add(policy.Duration)))

	acc, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, medAuth.StatusLocked, acc.Status)

	out, err = s.RecordLoginFailure(ctx, "u1", testNow.Add(time.Minute), policy)
	require.NoError(t, err)
	require.True(t, out.AlreadyLocked)
	require.Equal(t, policy.Threshold, out.State.FailedCount)

	cleared, err := s.ClearExpiredLock(ctx, "u1", testNow.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, cleared)

	cleared, err = s.ClearExpiredLock(ctx, "u1", testNow.Add(policy.Duration))
	require.NoError(t, err)
	require.True(t, cleared)

	acc, err = s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, medAuth.StatusActive, acc.Status)
	require.Zero(t, acc.FailedLoginCount)

	_, err = s.RecordLoginFailure(ctx, "missing", testNow, policy)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
}

func TestAccountsExpiredLockClearedBeforeCounting(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	ctx := context.Background()
	policy := lockout.DefaultPolicy()

	for i := 0; i < policy.Threshold; i++ {
		_, err := s.RecordLoginFailure(ctx, "u1", testNow, policy)
		require.NoError(t, err)
	}

	out, err := s.RecordLoginFailure(ctx, "u1", testNow.Add(policy.Duration+time.Second), policy)
	require.NoError(t, err)
	require.True(t, out.Cleared)
	require.False(t, out.Tripped)
	require.Equal(t, 1, out.State.FailedCount)
}

func TestAccountsConcurrentFailuresTripOnce(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	policy := lockout.DefaultPolicy()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		trips int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.RecordLoginFailure(context.Background(), "u1", testNow, policy)
			if err != nil {
				t.Errorf("RecordLoginFailure: %v", err)
				return
			}
			if out.Tripped {
				mu.Lock()
				trips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, trips)
}

func TestAccountsResetTokenIsSingleUse(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	ctx := context.Background()
	expires := testNow.Add(time.Hour)

	require.NoError(t, s.SetResetToken(ctx, "u1", "old", expires, testNow))
	require.NoError(t, s.SetResetToken(ctx, "u1", "digest", expires, testNow))

	_, err := s.GetByResetToken(ctx, "old", testNow)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound, "replaced token must not resolve")

	acc, err := s.GetByResetToken(ctx, "digest", testNow)
	require.NoError(t, err)
	require.Equal(t, "u1", acc.ID)

	_, err = s.GetByResetToken(ctx, "digest", expires)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound, "expiry is exclusive")

	err = s.CompletePasswordReset(ctx, "u1", "old", "$2a$12$stale", testNow)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound, "superseded token must not complete")

	require.NoError(t, s.CompletePasswordReset(ctx, "u1", "digest", "$2a$12$new", testNow))
	err = s.CompletePasswordReset(ctx, "u1", "digest", "$2a$12$again", testNow)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)

	acc, err = s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "$2a$12$new", acc.PasswordHash)
	require.Empty(t, acc.ResetTokenHash)

	_, err = s.GetByResetToken(ctx, "digest", testNow)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
}

func TestAccountsStatusUpdates(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	ctx := context.Background()

	require.NoError(t, s.SetStatus(ctx, "u1", medAuth.StatusSuspended, testNow))
	acc, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, medAuth.StatusSuspended, acc.Status)

	err = s.RecordLoginSuccess(ctx, "u1", testNow.Add(time.Hour))
	require.ErrorIs(t, err, medAuth.ErrAccountStateChanged)
	acc, err = s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, medAuth.StatusSuspended, acc.Status, "login success must not lift a suspension")
	require.True(t, acc.LastLoginAt.IsZero())

	require.NoError(t, s.SetStatus(ctx, "u1", medAuth.StatusActive, testNow))
	require.NoError(t, s.RecordLoginSuccess(ctx, "u1", testNow.Add(time.Hour)))
	acc, err = s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, acc.LastLoginAt.Equal(testNow.Add(time.Hour)))
	require.ErrorIs(t, s.RecordLoginSuccess(ctx, "missing", testNow), medAuth.ErrAccountNotFound)

	err = s.SetStatus(ctx, "missing", medAuth.StatusActive, testNow)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
	err = s.UpdatePassword(ctx, "missing", "x", testNow)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
}

func TestRecordLoginSuccessKeepsLockInForce(t *testing.T) {
	_, s, _ := newTestStores(t)
	createNurse(t, s)
	ctx := context.Background()
	policy := lockout.Policy{Threshold: 2, Duration: time.Hour}

	for i := 0; i < policy.Threshold; i++ {
		_, err := s.RecordLoginFailure(ctx, "u1", testNow, policy)
		require.NoError(t, err)
	}
	err := s.RecordLoginSuccess(ctx, "u1", testNow.Add(time.Minute))
	require.ErrorIs(t, err, medAuth.ErrAccountStateChanged)

	acc, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, medAuth.StatusLocked, acc.Status)
	require.Equal(t, policy.Threshold, acc.FailedLoginCount)
	require.True(t, acc.LockedUntil.Equal(testNow.Add(time.Hour)))
}

func TestRevocations(t *testing.T) {
	mr, _, r := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, r.RevokeToken(ctx, "jti-1", time.Minute))
	revoked, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	cutoff, err := r.RevokedBefore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, cutoff.IsZero())

	require.NoError(t, r.RevokeAllBefore(ctx, "u1", testNow, time.Hour))
	require.NoError(t, r.RevokeAllBefore(ctx, "u1", testNow.Add(-time.Minute), time.Hour))
	cutoff, err = r.RevokedBefore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, cutoff.Equal(testNow), "cutoff never moves backwards")
}

func TestRedisFailureIsWrapped(t *testing.T) {
	mr, s, r := newTestStores(t)
	mr.Close()

	_, err := s.GetByID(context.Background(), "u1")
	require.True(t, errors.Is(err, ErrRedisUnavailable))
	_, err = r.IsRevoked(context.Background(), "jti")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
