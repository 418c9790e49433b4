package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/permission"
)

var accountCols = []string{
	"id", "email", "first_name", "last_name", "password_hash", "role", "status",
	"failed_login_count", "locked_until", "last_login_at", "reset_token_hash", "reset_token_expires_at",
	"created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestGetByEmailScansAccount(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(`(?s)SELECT .* FROM accounts WHERE email = \$1`).
		WithArgs("doc@example.org").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(
			"u1", "doc@example.org", "Ada", "Lovelace", "hash", "DOCTOR", "ACTIVE",
			2, nil, now, nil, nil, now, now))

	acc, err := NewAccounts(db).GetByEmail(context.Background(), " Doc@Example.org")
	require.NoError(t, err)
	require.Equal(t, "u1", acc.ID)
	require.Equal(t, permission.Doctor, acc.Role)
	require.Equal(t, medAuth.StatusActive, acc.Status)
	require.Equal(t, 2, acc.FailedLoginCount)
	require.True(t, acc.LockedUntil.IsZero())
	require.True(t, acc.LastLoginAt.Equal(now))
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM accounts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := NewAccounts(db).GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := NewAccounts(db).Create(context.Background(), &medAuth.Account{
		ID: "u1", Email: "a@example.org", Role: permission.Patient, Status: medAuth.StatusActive,
	})
	require.ErrorIs(t, err, medAuth.ErrDuplicateEmail)
}

func TestRecordLoginFailureTripsLock(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy := lockout.DefaultPolicy()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_count, locked_until, status FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked_until", "status"}).AddRow(4, nil, "ACTIVE"))
	mock.ExpectExec(`UPDATE accounts SET failed_login_count = \$2`).
		WithArgs("u1", 5, sqlmock.AnyArg(), "LOCKED", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := NewAccounts(db).RecordLoginFailure(context.Background(), "u1", now, policy)
	require.NoError(t, err)
	require.True(t, out.Tripped)
	require.Equal(t, now.Add(policy.Duration), out.State.LockedUntil)
}

func TestRecordLoginFailureWhileLockedWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked_until", "status"}).
			AddRow(5, now.Add(time.Hour), "LOCKED"))
	mock.ExpectCommit()

	out, err := NewAccounts(db).RecordLoginFailure(context.Background(), "u1", now, lockout.DefaultPolicy())
	require.NoError(t, err)
	require.True(t, out.AlreadyLocked)
	require.Equal(t, 5, out.State.FailedCount)
}

func TestClearExpiredLockRestoresActive(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked_until", "status"}).
			AddRow(5, now.Add(-time.Second), "LOCKED"))
	mock.ExpectExec(`UPDATE accounts SET failed_login_count = \$2`).
		WithArgs("u1", 0, sqlmock.AnyArg(), "ACTIVE", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cleared, err := NewAccounts(db).ClearExpiredLock(context.Background(), "u1", now)
	require.NoError(t, err)
	require.True(t, cleared)
}

func TestRecordLoginFailureRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := NewAccounts(db).RecordLoginFailure(context.Background(), "u1", now, lockout.DefaultPolicy())
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestCompletePasswordResetIsSingleUse(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectExec(`UPDATE accounts SET password_hash = \$3.* WHERE id = \$1 AND reset_token_hash = \$2`).
		WithArgs("u1", "digest", "newhash", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewAccounts(db).CompletePasswordReset(context.Background(), "u1", "digest", "newhash", now)
	require.ErrorIs(t, err, medAuth.ErrAccountNotFound)
}

func TestRecordLoginSuccessIsConditional(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	const update = `UPDATE accounts SET failed_login_count = 0, locked_until = NULL,.* WHERE id = \$1 AND status = 'ACTIVE' AND \(locked_until IS NULL OR locked_until <= \$2\)`

	cases := []struct {
		name    string
		matched int64
		exists  bool
		want    error
	}{
		{"active", 1, true, nil},
		{"state changed", 0, true, medAuth.ErrAccountStateChanged},
		{"missing", 0, false, medAuth.ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(update).WithArgs("u1", now).WillReturnResult(sqlmock.NewResult(0, tc.matched))
			if tc.matched == 0 {
				rows := sqlmock.NewRows([]string{"?column?"})
				if tc.exists {
					rows.AddRow(1)
				}
				mock.ExpectQuery(`SELECT 1 FROM accounts WHERE id = \$1`).WithArgs("u1").WillReturnRows(rows)
			}

			err := NewAccounts(db).RecordLoginSuccess(context.Background(), "u1", now)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRevocations(t *testing.T) {
	db, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	r := NewRevocations(db, func() time.Time { return now })

	mock.ExpectExec(`INSERT INTO token_revocations`).
		WithArgs("jti-1", now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.RevokeToken(context.Background(), "jti-1", time.Hour))

	mock.ExpectQuery(`SELECT expires_at FROM token_revocations`).
		WithArgs("jti-2").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}))
	revoked, err := r.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)

	mock.ExpectQuery(`SELECT revoked_before, expires_at FROM account_revocations`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"revoked_before", "expires_at"}).
			AddRow(now.Add(-time.Hour), now.Add(-time.Second)))
	cutoff, err := r.RevokedBefore(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, cutoff.IsZero(), "expired cutoff must be ignored")
}
