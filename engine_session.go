package medAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/medAuth/internal/flows"
)

// RefreshToken exchanges a refresh token for a new access token. The account
// is re-read so the new token carries the current role and permissions;
// revoked tokens and missing or inactive accounts yield ErrInvalidToken.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	meta := requestMeta(ctx, "", "")

	out := e.flows.Refresh(ctx, refreshToken)
	actor := auditActor{id: out.Account.ID, email: out.Account.Email, role: out.Account.Role}
	if actor.id == "" && out.Claims != nil {
		actor.id = out.Claims.Subject
	}

	var err error
	reason := ""
	switch out.Failure {
	case flows.RefreshFailureNone:
		e.emitAudit(ctx, auditRecord{
			action:   auditActionTokenRefresh,
			category: CategoryAuthentication,
			success:  true,
			actor:    actor,
			meta:     meta,
		})
		e.metricInc(MetricRefreshSuccess)
		return &RefreshResult{
			AccessToken: out.AccessToken,
			ExpiresIn:   int64(e.tokens.AccessTTL().Seconds()),
			TokenType:   tokenTypeBearer,
		}, nil
	case flows.RefreshFailureExpired:
		err = ErrTokenExpired
	case flows.RefreshFailureRevoked:
		err, reason = ErrInvalidToken, string(auditReasonTokenRevoked)
	case flows.RefreshFailureAccountGone:
		err, reason = ErrInvalidToken, string(auditReasonUserNotFound)
	case flows.RefreshFailureAccountInactive:
		err, reason = ErrInvalidToken, string(auditReasonAccountInactive)
	case flows.RefreshFailureUpstream:
		e.logger.ErrorContext(ctx, "refresh store failure", "error", out.Err)
		e.metricInc(MetricUpstreamUnavailable)
		err = upstream(out.Err)
	case flows.RefreshFailureIssueAccess:
		e.logger.ErrorContext(ctx, "access token issue failed", "error", out.Err)
		err = internalErr(out.Err)
	default:
		err = ErrInvalidToken
	}

	e.emitAudit(ctx, auditRecord{
		action:   auditActionTokenRefreshFailed,
		category: CategoryAuthentication,
		actor:    actor,
		meta:     meta,
		err:      err,
		metadata: func() map[string]string {
			if reason == "" {
				return nil
			}
			return map[string]string{"reason": reason}
		},
	})
	e.metricInc(MetricRefreshFailure)
	return nil, err
}

// Authenticate verifies a bearer access token and re-loads the account it
// names. The returned principal reflects the live role and status.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { e.metricObserve(MetricAuthenticateLatency, time.Since(start)) }()

	out := e.flows.Authenticate(ctx, accessToken)
	switch out.Failure {
	case flows.AuthenticateFailureNone:
		return &Principal{
			ID:     out.Account.ID,
			Email:  out.Account.Email,
			Role:   out.Account.Role,
			Status: AccountStatus(out.Account.Status),
		}, nil
	case flows.AuthenticateFailureNoToken:
		return nil, ErrNoToken
	case flows.AuthenticateFailureExpired:
		return nil, ErrTokenExpired
	case flows.AuthenticateFailureNotFound:
		return nil, ErrAccountNotFound
	case flows.AuthenticateFailureInactive:
		return nil, ErrAccountInactive
	case flows.AuthenticateFailureUpstream:
		e.logger.ErrorContext(ctx, "authenticate store failure", "error", out.Err)
		e.metricInc(MetricUpstreamUnavailable)
		return nil, upstream(out.Err)
	default:
		return nil, ErrInvalidToken
	}
}

// Logout ends sessions. With a refresh token only that token is revoked;
// with a session id only that session; with neither, every refresh token the
// account holds. Revocation store failures are logged and not returned.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	meta := requestMeta(ctx, req.IP, req.UserAgent)

	out := e.flows.Logout(ctx, flows.LogoutInput{
		AccountID:    req.AccountID,
		RefreshToken: req.RefreshToken,
		SessionID:    req.SessionID,
	})
	if out.Err != nil {
		e.logger.WarnContext(ctx, "token revocation failed", "account_id", out.AccountID, "error", out.Err)
	}

	scope := "none"
	switch out.Scope {
	case flows.LogoutToken, flows.LogoutSession:
		scope = "session"
		e.metricInc(MetricLogout)
	case flows.LogoutAll:
		scope = "all"
		e.metricInc(MetricLogoutAll)
	}

	e.emitAudit(ctx, auditRecord{
		action:   auditActionLogout,
		category: CategoryAuthentication,
		success:  true,
		actor:    auditActor{id: out.AccountID},
		meta:     meta,
		metadata: func() map[string]string {
			m := map[string]string{"scope": scope}
			if out.SessionID != "" {
				m["sessionId"] = out.SessionID
			}
			return m
		},
	})
	return nil
}

// revokeAccountSessions ends every refresh token of accountID issued up to
// now. Failures are logged.
func (e *Engine) revokeAccountSessions(ctx context.Context, accountID string) {
	wctx, cancel := e.writeCtx(ctx)
	defer cancel()
	if err := e.revocations.RevokeAllBefore(wctx, accountID, e.now(), e.tokens.RefreshTTL()); err != nil {
		e.logger.WarnContext(ctx, "session revocation failed", "account_id", accountID, "error", err)
	}
}
