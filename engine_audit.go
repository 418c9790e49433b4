package medAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/medAuth/internal"
	"github.com/MrEthical07/medAuth/permission"
)

const (
	auditActionLogin                = "LOGIN"
	auditActionLoginFailed          = "LOGIN_FAILED"
	auditActionLoginRateLimited     = "LOGIN_RATE_LIMITED"
	auditActionAccountLocked        = "ACCOUNT_LOCKED"
	auditActionLockCleared          = "ACCOUNT_LOCK_EXPIRED"
	auditActionLogout               = "LOGOUT"
	auditActionTokenRefresh         = "TOKEN_REFRESH"
	auditActionTokenRefreshFailed   = "TOKEN_REFRESH_FAILED"
	auditActionUserCreate           = "USER_CREATE"
	auditActionUserCreateFailed     = "USER_CREATE_FAILED"
	auditActionUserApprove          = "USER_APPROVE"
	auditActionUserSuspend          = "USER_SUSPEND"
	auditActionUserDeactivate       = "USER_DEACTIVATE"
	auditActionUserUnlock           = "USER_UNLOCK"
	auditActionPasswordResetRequest = "PASSWORD_RESET_REQUEST"
	auditActionPasswordReset        = "PASSWORD_RESET"
	auditActionPasswordResetFailed  = "PASSWORD_RESET_FAILED"
	auditActionPasswordChange       = "PASSWORD_CHANGE"
	auditActionPasswordChangeFailed = "PASSWORD_CHANGE_FAILED"
	auditActionPatientDataAccess    = "PATIENT_DATA_ACCESS"
	auditActionEmergencyAccess      = "EMERGENCY_ACCESS"
	auditActionAccessDenied         = "ACCESS_DENIED"
)

const (
	auditResourceAuth    = "auth"
	auditResourceUser    = "user"
	auditResourcePatient = "patient"
)

// AuditErrorCode is the reason code recorded in failed audit events under the
// "reason" metadata key.
type AuditErrorCode string

const (
	auditReasonUserNotFound        AuditErrorCode = "USER_NOT_FOUND"
	auditReasonInvalidPassword     AuditErrorCode = "INVALID_PASSWORD"
	auditReasonAccountLocked       AuditErrorCode = "ACCOUNT_LOCKED"
	auditReasonAccountInactive     AuditErrorCode = "ACCOUNT_INACTIVE"
	auditReasonRateLimited         AuditErrorCode = "RATE_LIMITED"
	auditReasonInvalidToken        AuditErrorCode = "INVALID_TOKEN"
	auditReasonTokenExpired        AuditErrorCode = "TOKEN_EXPIRED"
	auditReasonTokenRevoked        AuditErrorCode = "TOKEN_REVOKED"
	auditReasonDuplicateEmail      AuditErrorCode = "DUPLICATE_EMAIL"
	auditReasonWeakPassword        AuditErrorCode = "WEAK_PASSWORD"
	auditReasonSamePassword        AuditErrorCode = "SAME_PASSWORD"
	auditReasonInsufficientPerms   AuditErrorCode = "INSUFFICIENT_PERMISSIONS"
	auditReasonInvalidRole         AuditErrorCode = "INVALID_ROLE"
	auditReasonInvalidResetToken   AuditErrorCode = "INVALID_RESET_TOKEN"
	auditReasonUpstreamFailure     AuditErrorCode = "UPSTREAM_UNAVAILABLE"
	auditReasonInvalidAccountState AuditErrorCode = "INVALID_ACCOUNT_STATE"
	auditReasonInternal            AuditErrorCode = "INTERNAL_ERROR"
)

// auditActor is who performed the action, when known.
type auditActor struct {
	id    string
	email string
	role  permission.Role
}

func actorOf(acc *Account) auditActor {
	if acc == nil {
		return auditActor{}
	}
	return auditActor{id: acc.ID, email: acc.Email, role: acc.Role}
}

func principalActor(p *Principal) auditActor {
	if p == nil {
		return auditActor{}
	}
	return auditActor{id: p.ID, email: p.Email, role: p.Role}
}

// criticalAuditActions cannot be triggered at will by an anonymous caller and
// must survive audit back-pressure.
var criticalAuditActions = map[string]bool{
	auditActionEmergencyAccess: true,
	auditActionAccountLocked:   true,
	auditActionPasswordReset:   true,
	auditActionPasswordChange:  true,
	auditActionUserApprove:     true,
	auditActionUserSuspend:     true,
	auditActionUserDeactivate:  true,
	auditActionUserUnlock:      true,
}

type auditRecord struct {
	action     string
	category   AuditCategory
	success    bool
	actor      auditActor
	resource   string
	resourceID string
	meta       RequestMeta
	err        error
	metadata   func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if rec.metadata != nil {
		metadata = rec.metadata()
	}
	if code := auditErrorCode(rec.err); code != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		if _, set := metadata["reason"]; !set {
			metadata["reason"] = string(code)
		}
	}
	resource := rec.resource
	if resource == "" {
		resource = auditResourceAuth
	}

	event := AuditEvent{
		ID:         internal.NewID(),
		Action:     rec.action,
		UserID:     rec.actor.id,
		UserEmail:  rec.actor.email,
		IPAddress:  rec.meta.IP,
		UserAgent:  rec.meta.UserAgent,
		Resource:   resource,
		ResourceID: rec.resourceID,
		Success:    rec.success,
		Category:   rec.category,
		Metadata:   metadata,
		Timestamp:  e.now().UTC(),
		Critical:   criticalAuditActions[rec.action],
	}
	if rec.actor.role.Valid() {
		event.UserRole = rec.actor.role.String()
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountNotFound):
		return auditReasonUserNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return auditReasonInvalidPassword
	case errors.Is(err, ErrAccountLocked):
		return auditReasonAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return auditReasonAccountInactive
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRateLimited):
		return auditReasonRateLimited
	case errors.Is(err, ErrTokenExpired):
		return auditReasonTokenExpired
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNoToken):
		return auditReasonInvalidToken
	case errors.Is(err, ErrDuplicateEmail):
		return auditReasonDuplicateEmail
	case errors.Is(err, ErrWeakPassword):
		return auditReasonWeakPassword
	case errors.Is(err, ErrSamePassword):
		return auditReasonSamePassword
	case errors.Is(err, ErrInsufficientPermissions):
		return auditReasonInsufficientPerms
	case errors.Is(err, ErrInvalidRole):
		return auditReasonInvalidRole
	case errors.Is(err, ErrInvalidOrExpiredResetToken):
		return auditReasonInvalidResetToken
	case errors.Is(err, ErrInvalidAccountState):
		return auditReasonInvalidAccountState
	case errors.Is(err, ErrUpstreamUnavailable):
		return auditReasonUpstreamFailure
	default:
		return auditReasonInternal
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
