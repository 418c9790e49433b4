package medAuth

import (
	"context"
	"strconv"

	"github.com/MrEthical07/medAuth/internal/flows"
)

// Login authenticates an email/password pair and issues a token pair.
//
// Credential and lockout failures are returned as *LoginError whose message
// is safe to show the end user. An unknown email yields the same error as a
// first wrong password for an existing account.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	meta := requestMeta(ctx, req.IP, req.UserAgent)

	if e.limited(ctx, "login", e.loginLimiter.Check(ctx, email, meta.IP)) {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginRateLimited,
			category: CategorySecurity,
			actor:    auditActor{email: email},
			meta:     meta,
			err:      ErrLoginRateLimited,
		})
		return nil, ErrLoginRateLimited
	}

	out := e.flows.Login(ctx, email, req.Password)
	actor := auditActor{id: out.Account.ID, email: out.Account.Email, role: out.Account.Role}
	if actor.email == "" {
		actor.email = email
	}

	if out.LockCleared {
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLockCleared,
			category: CategorySecurity,
			success:  true,
			actor:    actor,
			meta:     meta,
		})
	}

	var err error
	switch out.Kind {
	case flows.LoginOK:
		return e.completeLogin(ctx, out.Account, req.Password, meta)
	case flows.LoginUnknownEmail:
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginFailed,
			category: CategoryAuthentication,
			actor:    actor,
			meta:     meta,
			err:      ErrAccountNotFound,
		})
		err = invalidCredentials(e.config.Lockout.MaxAttempts - 1)
	case flows.LoginBadPassword:
		remaining := out.Lock.Remaining(e.config.lockoutPolicy())
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginFailed,
			category: CategoryAuthentication,
			actor:    actor,
			meta:     meta,
			err:      ErrInvalidCredentials,
			metadata: func() map[string]string {
				return map[string]string{"failedAttempts": strconv.Itoa(out.Lock.State.FailedCount)}
			},
		})
		err = invalidCredentials(remaining)
	case flows.LoginLockTripped:
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginFailed,
			category: CategoryAuthentication,
			actor:    actor,
			meta:     meta,
			err:      ErrInvalidCredentials,
		})
		e.emitAudit(ctx, auditRecord{
			action:   auditActionAccountLocked,
			category: CategorySecurity,
			success:  true,
			actor:    actor,
			meta:     meta,
			metadata: func() map[string]string {
				return map[string]string{
					"lockedUntil":    formatTime(out.Lock.State.LockedUntil),
					"failedAttempts": strconv.Itoa(out.Lock.State.FailedCount),
				}
			},
		})
		e.metricInc(MetricLoginLocked)
		err = lockTripped(out.Lock.State.LockedUntil, out.Now)
	case flows.LoginLocked:
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginFailed,
			category: CategoryAuthentication,
			actor:    actor,
			meta:     meta,
			err:      ErrAccountLocked,
		})
		e.metricInc(MetricLoginLocked)
		err = accountLocked(out.Account.LockedUntil, out.Now)
	case flows.LoginInactive:
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginFailed,
			category: CategoryAuthentication,
			actor:    actor,
			meta:     meta,
			err:      ErrAccountInactive,
			metadata: func() map[string]string {
				return map[string]string{"status": out.Account.Status}
			},
		})
		err = accountInactive(AccountStatus(out.Account.Status))
	default:
		e.logger.ErrorContext(ctx, "login store failure", "error", out.Err)
		e.metricInc(MetricUpstreamUnavailable)
		err = upstream(out.Err)
		e.emitAudit(ctx, auditRecord{
			action:   auditActionLoginFailed,
			category: CategoryAuthentication,
			actor:    actor,
			meta:     meta,
			err:      err,
		})
	}

	e.metricInc(MetricLoginFailure)
	return nil, err
}

func (e *Engine) completeLogin(ctx context.Context, acc flows.Account, plain string, meta RequestMeta) (*LoginResult, error) {
	pair, err := e.tokens.IssuePair(e.subjectFor(acc))
	if err != nil {
		e.logger.ErrorContext(ctx, "token issue failed", "error", err)
		e.metricInc(MetricLoginFailure)
		return nil, internalErr(err)
	}

	e.maybeRehash(ctx, acc, plain)
	if err := e.loginLimiter.Reset(ctx, acc.Email); err != nil {
		e.logger.WarnContext(ctx, "login limiter reset failed", "error", err)
	}

	full, err := e.loadAccount(ctx, acc.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "account reload after login failed", "error", err)
		full = &Account{ID: acc.ID, Email: acc.Email, Role: acc.Role, Status: StatusActive}
	}

	e.emitAudit(ctx, auditRecord{
		action:   auditActionLogin,
		category: CategoryAuthentication,
		success:  true,
		actor:    actorOf(full),
		meta:     meta,
		metadata: func() map[string]string {
			return map[string]string{"sessionId": pair.RefreshID}
		},
	})
	e.metricInc(MetricLoginSuccess)

	return &LoginResult{
		Account: full.Sanitize(),
		Tokens: TokenPair{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
			TokenType:    tokenTypeBearer,
			SessionID:    pair.RefreshID,
		},
	}, nil
}

// maybeRehash upgrades a digest produced with a different cost. Failures are
// logged; the login has already succeeded.
func (e *Engine) maybeRehash(ctx context.Context, acc flows.Account, plain string) {
	if !e.hasher.NeedsRehash(acc.PasswordHash) {
		return
	}
	digest, err := e.pool.Hash(ctx, plain)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "account_id", acc.ID, "error", err)
		return
	}
	wctx, cancel := e.writeCtx(ctx)
	defer cancel()
	if err := e.accounts.UpdatePassword(wctx, acc.ID, digest, e.now()); err != nil {
		e.logger.WarnContext(ctx, "password rehash not stored", "account_id", acc.ID, "error", err)
	}
}
