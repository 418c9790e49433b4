// Package postgres implements medAuth.AccountStore and
// medAuth.RevocationStore on PostgreSQL through database/sql and the pgx
// driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/medAuth"
	"github.com/MrEthical07/medAuth/lockout"
	"github.com/MrEthical07/medAuth/permission"
)

const pgErrUniqueViolation = "23505"

// Schema creates the tables used by this package. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                     TEXT PRIMARY KEY,
	email                  TEXT NOT NULL UNIQUE,
	first_name             TEXT NOT NULL DEFAULT '',
	last_name              TEXT NOT NULL DEFAULT '',
	password_hash          TEXT NOT NULL,
	role                   TEXT NOT NULL,
	status                 TEXT NOT NULL,
	failed_login_count     INTEGER NOT NULL DEFAULT 0 CHECK (failed_login_count >= 0),
	locked_until           TIMESTAMPTZ,
	last_login_at          TIMESTAMPTZ,
	reset_token_hash       TEXT,
	reset_token_expires_at TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS accounts_reset_token_idx ON accounts (reset_token_hash) WHERE reset_token_hash IS NOT NULL;

CREATE TABLE IF NOT EXISTS token_revocations (
	jti        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS account_revocations (
	account_id     TEXT PRIMARY KEY,
	revoked_before TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL
);
`

const accountColumns = `id, email, first_name, last_name, password_hash, role, status,
	failed_login_count, locked_until, last_login_at, reset_token_hash, reset_token_expires_at,
	created_at, updated_at`

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Accounts is a PostgreSQL AccountStore. Lockout transitions lock the
// account row for the duration of one transaction.
type Accounts struct {
	db *sql.DB
}

var _ medAuth.AccountStore = (*Accounts)(nil)

// NewAccounts wraps db.
func NewAccounts(db *sql.DB) *Accounts {
	return &Accounts{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*medAuth.Account, error) {
	var (
		acc          medAuth.Account
		role, status string
		lockedUntil  sql.NullTime
		lastLogin    sql.NullTime
		resetHash    sql.NullString
		resetExpires sql.NullTime
	)
	err := row.Scan(&acc.ID, &acc.Email, &acc.FirstName, &acc.LastName, &acc.PasswordHash, &role, &status,
		&acc.FailedLoginCount, &lockedUntil, &lastLogin, &resetHash, &resetExpires,
		&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, medAuth.ErrAccountNotFound
		}
		return nil, err
	}
	r, err := permission.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", acc.ID, err)
	}
	acc.Role = r
	acc.Status = medAuth.AccountStatus(status)
	acc.LockedUntil = lockedUntil.Time
	acc.LastLoginAt = lastLogin.Time
	acc.ResetTokenHash = resetHash.String
	acc.ResetTokenExpiresAt = resetExpires.Time
	return &acc, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *Accounts) GetByID(ctx context.Context, id string) (*medAuth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil && !errors.Is(err, medAuth.ErrAccountNotFound) {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, err
}

func (s *Accounts) GetByEmail(ctx context.Context, email string) (*medAuth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, medAuth.NormalizeEmail(email)))
	if err != nil && !errors.Is(err, medAuth.ErrAccountNotFound) {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return acc, err
}

func (s *Accounts) Create(ctx context.Context, acc *medAuth.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, first_name, last_name, password_hash, role, status,
			failed_login_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)`,
		acc.ID, medAuth.NormalizeEmail(acc.Email), acc.FirstName, acc.LastName, acc.PasswordHash,
		acc.Role.String(), string(acc.Status), acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return medAuth.ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// exec runs a single-row update and maps zero affected rows to not-found.
func (s *Accounts) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return medAuth.ErrAccountNotFound
	}
	return nil
}

func (s *Accounts) SetStatus(ctx context.Context, id string, status medAuth.AccountStatus, now time.Time) error {
	return s.exec(ctx, "set status", `
		UPDATE accounts SET status = $2,
			failed_login_count = CASE WHEN $2 = 'ACTIVE' THEN 0 ELSE failed_login_count END,
			locked_until = CASE WHEN $2 = 'ACTIVE' THEN NULL ELSE locked_until END,
			updated_at = $3
		WHERE id = $1`, id, string(status), now)
}

func (s *Accounts) UpdatePassword(ctx context.Context, id, hash string, now time.Time) error {
	return s.exec(ctx, "update password",
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, now)
}

func (s *Accounts) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	return s.exec(ctx, "set reset token", `
		UPDATE accounts SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4
		WHERE id = $1`, id, tokenHash, expiresAt, now)
}

func (s *Accounts) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*medAuth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2`, tokenHash, now))
	if err != nil && !errors.Is(err, medAuth.ErrAccountNotFound) {
		return nil, fmt.Errorf("get account by reset token: %w", err)
	}
	return acc, err
}

// CompletePasswordReset only matches a row that still holds tokenHash, so
// neither a second completion nor a superseded token can succeed.
func (s *Accounts) CompletePasswordReset(ctx context.Context, id, tokenHash, hash string, now time.Time) error {
	return s.exec(ctx, "complete password reset", `
		UPDATE accounts SET password_hash = $3,
			reset_token_hash = NULL, reset_token_expires_at = NULL,
			failed_login_count = 0, locked_until = NULL,
			status = 'ACTIVE', updated_at = $4
		WHERE id = $1 AND reset_token_hash = $2`, id, tokenHash, hash, now)
}

// withLockedState loads the lockout columns under FOR UPDATE, lets fn
// compute the next state and writes it back in the same transaction.
func (s *Accounts) withLockedState(ctx context.Context, id string, now time.Time, fn func(state lockout.State, status medAuth.AccountStatus) (lockout.State, medAuth.AccountStatus, bool)) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		state       lockout.State
		status      string
		lockedUntil sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT failed_login_count, locked_until, status FROM accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&state.FailedCount, &lockedUntil, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return medAuth.ErrAccountNotFound
		}
		return fmt.Errorf("select lockout state: %w", err)
	}
	state.LockedUntil = lockedUntil.Time

	next, nextStatus, write := fn(state, medAuth.AccountStatus(status))
	if write {
		_, err = tx.ExecContext(ctx, `
			UPDATE accounts SET failed_login_count = $2, locked_until = $3, status = $4, updated_at = $5
			WHERE id = $1`, id, next.FailedCount, nullTime(next.LockedUntil), string(nextStatus), now)
		if err != nil {
			return fmt.Errorf("update lockout state: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Accounts) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy lockout.Policy) (lockout.Outcome, error) {
	var out lockout.Outcome
	err := s.withLockedState(ctx, id, now, func(state lockout.State, status medAuth.AccountStatus) (lockout.State, medAuth.AccountStatus, bool) {
		out = lockout.RecordFailure(state, now, policy)
		if out.AlreadyLocked {
			return state, status, false
		}
		if out.Cleared && status == medAuth.StatusLocked {
			status = medAuth.StatusActive
		}
		if out.Tripped {
			status = medAuth.StatusLocked
		}
		return out.State, status, true
	})
	return out, err
}

func (s *Accounts) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	var cleared bool
	err := s.withLockedState(ctx, id, now, func(state lockout.State, status medAuth.AccountStatus) (lockout.State, medAuth.AccountStatus, bool) {
		var next lockout.State
		next, cleared = lockout.ClearIfExpired(state, now)
		if !cleared {
			return state, status, false
		}
		if status == medAuth.StatusLocked {
			status = medAuth.StatusActive
		}
		return next, status, true
	})
	return cleared, err
}

// RecordLoginSuccess matches only an ACTIVE row with no lock in force. When
// nothing matches, a second lookup tells a missing account from one whose
// state changed.
func (s *Accounts) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	err := s.exec(ctx, "record login success", `
		UPDATE accounts SET failed_login_count = 0, locked_until = NULL,
			last_login_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'ACTIVE' AND (locked_until IS NULL OR locked_until <= $2)`, id, now)
	if !errors.Is(err, medAuth.ErrAccountNotFound) {
		return err
	}
	var one int
	switch err := s.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, id).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return medAuth.ErrAccountNotFound
	case err != nil:
		return fmt.Errorf("record login success: %w", err)
	}
	return medAuth.ErrAccountStateChanged
}

func (s *Accounts) Unlock(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, "unlock", `
		UPDATE accounts SET failed_login_count = 0, locked_until = NULL, status = 'ACTIVE', updated_at = $2
		WHERE id = $1`, id, now)
}

// Revocations is a PostgreSQL RevocationStore. Expired rows are ignored on
// read; Purge deletes them.
type Revocations struct {
	db    *sql.DB
	clock func() time.Time
}

var _ medAuth.RevocationStore = (*Revocations)(nil)

// NewRevocations wraps db. A nil clock uses time.Now.
func NewRevocations(db *sql.DB, clock func() time.Time) *Revocations {
	if clock == nil {
		clock = time.Now
	}
	return &Revocations{db: db, clock: clock}
}

func (r *Revocations) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_revocations (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		jti, r.clock().Add(ttl))
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `SELECT expires_at FROM token_revocations WHERE jti = $1`, jti).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return r.clock().Before(expiresAt), nil
}

// RevokeAllBefore never moves an existing cutoff backwards.
func (r *Revocations) RevokeAllBefore(ctx context.Context, accountID string, cutoff time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO account_revocations (account_id, revoked_before, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			revoked_before = GREATEST(account_revocations.revoked_before, EXCLUDED.revoked_before),
			expires_at = GREATEST(account_revocations.expires_at, EXCLUDED.expires_at)`,
		accountID, cutoff, r.clock().Add(ttl))
	if err != nil {
		return fmt.Errorf("revoke account tokens: %w", err)
	}
	return nil
}

func (r *Revocations) RevokedBefore(ctx context.Context, accountID string) (time.Time, error) {
	var cutoff, expiresAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT revoked_before, expires_at FROM account_revocations WHERE account_id = $1`, accountID).
		Scan(&cutoff, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get account revocation: %w", err)
	}
	if !r.clock().Before(expiresAt) {
		return time.Time{}, nil
	}
	return cutoff, nil
}

// Purge deletes expired revocation rows and returns how many were removed.
func (r *Revocations) Purge(ctx context.Context) (int64, error) {
	now := r.clock()
	var total int64
	for _, q := range []string{
		`DELETE FROM token_revocations WHERE expires_at <= $1`,
		`DELETE FROM account_revocations WHERE expires_at <= $1`,
	} {
		res, err := r.db.ExecContext(ctx, q, now)
		if err != nil {
			return total, fmt.Errorf("purge revocations: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
