package medAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/medAuth/internal"
	"github.com/MrEthical07/medAuth/password"
)

// ForgotPassword starts a password reset. It returns [ForgotPasswordMessage]
// whether or not the email belongs to an account. Only ACTIVE accounts get a
// token; the plaintext token goes to the notifier and only its SHA-256 digest
// is stored.
func (e *Engine) ForgotPassword(ctx context.Context, email, ip string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	meta := requestMeta(ctx, ip, "")
	email = NormalizeEmail(email)

	if e.limited(ctx, "reset", e.resetLimiter.CheckRequest(ctx, email, meta.IP)) {
		e.emitAudit(ctx, auditRecord{
			action:   auditActionPasswordResetRequest,
			category: CategorySecurity,
			actor:    auditActor{email: email},
			meta:     meta,
			err:      ErrRateLimited,
		})
		return "", ErrRateLimited
	}
	e.metricInc(MetricPasswordResetRequest)

	acc, err := e.findByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			e.logger.ErrorContext(ctx, "reset lookup failed", "error", err)
			return "", upstream(err)
		}
		e.emitAudit(ctx, auditRecord{
			action:   auditActionPasswordResetRequest,
			category: CategorySecurity,
			actor:    auditActor{email: email},
			meta:     meta,
			err:      ErrAccountNotFound,
		})
		return ForgotPasswordMessage, nil
	}
	if !acc.IsActive() {
		e.emitAudit(ctx, auditRecord{
			action:   auditActionPasswordResetRequest,
			category: CategorySecurity,
			actor:    actorOf(acc),
			meta:     meta,
			err:      ErrAccountInactive,
		})
		return ForgotPasswordMessage, nil
	}

	token, err := internal.NewResetToken()
	if err != nil {
		return "", err
	}
	now := e.now()
	expiresAt := now.Add(e.config.Reset.TokenTTL)

	wctx, cancel := e.writeCtx(ctx)
	err = e.accounts.SetResetToken(wctx, acc.ID, internal.HashToken(token), expiresAt, now)
	cancel()
	if err != nil {
		e.logger.ErrorContext(ctx, "reset token not stored", "account_id", acc.ID, "error", err)
		return "", upstream(err)
	}

	e.emitAudit(ctx, auditRecord{
		action:   auditActionPasswordResetRequest,
		category: CategorySecurity,
		success:  true,
		actor:    actorOf(acc),
		meta:     meta,
		metadata: func() map[string]string {
			return map[string]string{"expiresAt": formatTime(expiresAt)}
		},
	})

	public := *acc.Sanitize()
	e.sendNotification("password_reset", func(ctx context.Context, n Notifier) error {
		return n.SendPasswordReset(ctx, public, token, expiresAt)
	})

	return ForgotPasswordMessage, nil
}

// ResetPassword completes a reset with the token from ForgotPassword. The
// token is single-use. On success the lockout state is cleared, the account
// is ACTIVE and every refresh token issued before now is revoked.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword, ip string) error {
	if err := e.ready(); err != nil {
		return err
	}
	meta := requestMeta(ctx, ip, "")

	fail := func(actor auditActor, err error) error {
		e.emitAudit(ctx, auditRecord{
			action:   auditActionPasswordResetFailed,
			category: CategorySecurity,
			actor:    actor,
			meta:     meta,
			err:      err,
		})
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}

	if e.limited(ctx, "reset", e.resetLimiter.CheckConfirm(ctx, meta.IP)) {
		return fail(auditActor{}, ErrRateLimited)
	}
	if err := internal.ParseResetToken(token); err != nil {
		return fail(auditActor{}, ErrInvalidOrExpiredResetToken)
	}

	now := e.now()
	rctx, cancel := e.readCtx(ctx)
	tokenHash := internal.HashToken(token)
	acc, err := e.accounts.GetByResetToken(rctx, tokenHash, now)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fail(auditActor{}, ErrInvalidOrExpiredResetToken)
		}
		return fail(auditActor{}, upstream(err))
	}
	actor := actorOf(acc)

	if res := password.ValidateStrength(newPassword); !res.Valid {
		return fail(actor, &WeakPasswordError{Violations: res.Errors})
	}
	digest, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return fail(actor, err)
	}

	wctx, cancel := e.writeCtx(ctx)
	err = e.accounts.CompletePasswordReset(wctx, acc.ID, tokenHash, digest, now)
	cancel()
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fail(actor, ErrInvalidOrExpiredResetToken)
		}
		return fail(actor, upstream(err))
	}
	e.revokeAccountSessions(ctx, acc.ID)

	e.emitAudit(ctx, auditRecord{
		action:   auditActionPasswordReset,
		category: CategorySecurity,
		success:  true,
		actor:    actor,
		meta:     meta,
	})
	e.metricInc(MetricPasswordResetConfirmSuccess)

	public := *acc.Sanitize()
	e.sendNotification("password_changed", func(ctx context.Context, n Notifier) error {
		return n.SendPasswordChanged(ctx, public)
	})
	return nil
}

// ChangePassword replaces the password of an authenticated account after
// verifying the current one. Other sessions are revoked.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next, ip string) error {
	if err := e.ready(); err != nil {
		return err
	}
	meta := requestMeta(ctx, ip, "")

	fail := func(actor auditActor, err error) error {
		e.emitAudit(ctx, auditRecord{
			action:   auditActionPasswordChangeFailed,
			category: CategorySecurity,
			actor:    actor,
			meta:     meta,
			err:      err,
		})
		e.metricInc(MetricPasswordChangeFailure)
		return err
	}

	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return fail(auditActor{id: accountID}, storeErr(err))
	}
	actor := actorOf(acc)
	if !acc.IsActive() {
		return fail(actor, ErrAccountInactive)
	}

	ok, err := e.pool.Verify(ctx, current, acc.PasswordHash)
	if err != nil {
		return fail(actor, upstream(err))
	}
	if !ok {
		return fail(actor, ErrInvalidCredentials)
	}
	if current == next {
		return fail(actor, ErrSamePassword)
	}
	if res := password.ValidateStrength(next); !res.Valid {
		return fail(actor, &WeakPasswordError{Violations: res.Errors})
	}
	digest, err := e.hashPassword(ctx, next)
	if err != nil {
		return fail(actor, err)
	}

	wctx, cancel := e.writeCtx(ctx)
	err = e.accounts.UpdatePassword(wctx, acc.ID, digest, e.now())
	cancel()
	if err != nil {
		return fail(actor, storeErr(err))
	}
	e.revokeAccountSessions(ctx, acc.ID)

	e.emitAudit(ctx, auditRecord{
		action:   auditActionPasswordChange,
		category: CategorySecurity,
		success:  true,
		actor:    actor,
		meta:     meta,
	})
	e.metricInc(MetricPasswordChangeSuccess)

	public := *acc.Sanitize()
	e.sendNotification("password_changed", func(ctx context.Context, n Notifier) error {
		return n.SendPasswordChanged(ctx, public)
	})
	return nil
}
