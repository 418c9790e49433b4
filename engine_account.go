package medAuth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/MrEthical07/medAuth/internal"
	"github.com/MrEthical07/medAuth/internal/flows"
	"github.com/MrEthical07/medAuth/password"
	"github.com/MrEthical07/medAuth/permission"
)

// RegisterUser creates an account.
//
// Without an actor (self-service sign-up) a PATIENT account is ACTIVE
// immediately, other staff roles start PENDING_APPROVAL, and administrative
// roles are refused. With an actor the actor must outrank the new role and
// hold the matching USERS.REGISTER_* permission; the account is ACTIVE.
//
// Password rules are checked before the duplicate lookup and every violated
// rule is reported in *WeakPasswordError. Welcome notification failures are
// logged and never affect the result.
func (e *Engine) RegisterUser(ctx context.Context, req RegisterRequest, actor *Principal) (*PublicAccount, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	meta := requestMeta(ctx, req.IP, req.UserAgent)
	email := NormalizeEmail(req.Email)

	fail := func(err error) (*PublicAccount, error) {
		e.emitAudit(ctx, auditRecord{
			action:   auditActionUserCreateFailed,
			category: CategoryUserManagement,
			actor:    principalActor(actor),
			resource: auditResourceUser,
			meta:     meta,
			err:      err,
			metadata: func() map[string]string {
				return map[string]string{"email": email}
			},
		})
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			e.metricInc(MetricRegistrationDuplicate)
		default:
			e.metricInc(MetricRegistrationRejected)
		}
		return nil, err
	}

	if actor == nil && e.limited(ctx, "register", e.registerLimiter.Check(ctx, meta.IP)) {
		return fail(ErrRateLimited)
	}
	if !validEmail(email) {
		return fail(ErrInvalidEmail)
	}

	role := req.Role
	if role == 0 {
		role = permission.Patient
	}
	if !role.Valid() {
		return fail(ErrInvalidRole)
	}
	status, err := e.registrationStatus(role, actor)
	if err != nil {
		return fail(err)
	}

	if res := password.ValidateStrength(req.Password); !res.Valid {
		return fail(&WeakPasswordError{Violations: res.Errors})
	}

	switch _, err := e.findByEmail(ctx, email); {
	case err == nil:
		return fail(ErrDuplicateEmail)
	case !errors.Is(err, ErrAccountNotFound):
		return fail(upstream(err))
	}

	digest, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return fail(err)
	}

	now := e.now().UTC()
	acc := &Account{
		ID:           internal.NewID(),
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: digest,
		Role:         role,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	wctx, cancel := e.writeCtx(ctx)
	err = e.accounts.Create(wctx, acc)
	cancel()
	if err != nil {
		return fail(storeErr(err))
	}

	public := acc.Sanitize()
	auditActorInfo := principalActor(actor)
	if actor == nil {
		auditActorInfo = actorOf(acc)
	}
	e.emitAudit(ctx, auditRecord{
		action:     auditActionUserCreate,
		category:   CategoryUserManagement,
		success:    true,
		actor:      auditActorInfo,
		resource:   auditResourceUser,
		resourceID: acc.ID,
		meta:       meta,
		metadata: func() map[string]string {
			return map[string]string{"role": role.String(), "status": string(status)}
		},
	})
	e.metricInc(MetricRegistrationSuccess)

	welcome := *public
	e.sendNotification("welcome", func(ctx context.Context, n Notifier) error {
		return n.SendWelcome(ctx, welcome)
	})

	return public, nil
}

func (e *Engine) registrationStatus(role permission.Role, actor *Principal) (AccountStatus, error) {
	if actor == nil {
		switch {
		case role.SelfRegistering():
			return StatusActive, nil
		case role == permission.SuperAdmin, role == permission.Admin:
			return "", ErrInsufficientPermissions
		default:
			return StatusPendingApproval, nil
		}
	}

	if !e.catalog.CanCreateRole(actor.Role, role) {
		return "", ErrInsufficientPermissions
	}
	if !e.catalog.HasPermission(actor.Role, registerPermission(role)) {
		return "", ErrInsufficientPermissions
	}
	return StatusActive, nil
}

func registerPermission(role permission.Role) permission.Permission {
	switch role {
	case permission.Patient:
		return permission.UsersRegisterPatient
	case permission.SuperAdmin, permission.Admin:
		return permission.UsersRegisterAdmin
	default:
		return permission.UsersRegisterStaff
	}
}

// hashPassword hashes user input through the bounded pool. Inputs bcrypt
// cannot take, and input that already looks like a digest, are reported as
// weak passwords.
func (e *Engine) hashPassword(ctx context.Context, plain string) (string, error) {
	if password.IsHashed(plain) {
		return "", &WeakPasswordError{Violations: []string{password.ErrLooksHashed.Error()}}
	}
	digest, err := e.pool.Hash(ctx, plain)
	switch {
	case err == nil:
		return digest, nil
	case errors.Is(err, password.ErrTooLong), errors.Is(err, password.ErrWeakInput):
		return "", &WeakPasswordError{Violations: []string{err.Error()}}
	default:
		return "", upstream(err)
	}
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// GetAccount returns the sanitized account for id.
func (e *Engine) GetAccount(ctx context.Context, id string) (*PublicAccount, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return acc.Sanitize(), nil
}

// ApproveAccount activates a PENDING_APPROVAL account. The actor needs
// USERS.APPROVE and must outrank the target.
func (e *Engine) ApproveAccount(ctx context.Context, actor *Principal, targetID string) (*PublicAccount, error) {
	return e.changeStatus(ctx, actor, statusChange{
		action:     auditActionUserApprove,
		permission: permission.UsersApprove,
		targetID:   targetID,
		from:       []AccountStatus{StatusPendingApproval},
		to:         StatusActive,
	})
}

// SuspendAccount suspends the target and revokes its sessions.
func (e *Engine) SuspendAccount(ctx context.Context, actor *Principal, targetID string) (*PublicAccount, error) {
	return e.changeStatus(ctx, actor, statusChange{
		action:     auditActionUserSuspend,
		permission: permission.UsersUpdate,
		targetID:   targetID,
		to:         StatusSuspended,
		revoke:     true,
	})
}

// DeactivateAccount marks the target INACTIVE and revokes its sessions.
func (e *Engine) DeactivateAccount(ctx context.Context, actor *Principal, targetID string) (*PublicAccount, error) {
	return e.changeStatus(ctx, actor, statusChange{
		action:     auditActionUserDeactivate,
		permission: permission.UsersUpdate,
		targetID:   targetID,
		to:         StatusInactive,
		revoke:     true,
	})
}

// UnlockAccount clears a lockout before it expires.
func (e *Engine) UnlockAccount(ctx context.Context, actor *Principal, targetID string) (*PublicAccount, error) {
	return e.changeStatus(ctx, actor, statusChange{
		action:     auditActionUserUnlock,
		permission: permission.UsersUnlock,
		targetID:   targetID,
		from:       []AccountStatus{StatusLocked},
		to:         StatusActive,
	})
}

type statusChange struct {
	action     string
	permission permission.Permission
	targetID   string
	from       []AccountStatus
	to         AccountStatus
	revoke     bool
}

func (e *Engine) changeStatus(ctx context.Context, actor *Principal, c statusChange) (*PublicAccount, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	meta := requestMeta(ctx, "", "")
	record := func(err error, previous string) {
		e.emitAudit(ctx, auditRecord{
			action:     c.action,
			category:   CategoryUserManagement,
			success:    err == nil,
			actor:      principalActor(actor),
			resource:   auditResourceUser,
			resourceID: c.targetID,
			meta:       meta,
			err:        err,
			metadata: func() map[string]string {
				m := map[string]string{"to": string(c.to)}
				if previous != "" {
					m["from"] = previous
				}
				return m
			},
		})
	}

	if actor == nil || !e.catalog.HasPermission(actor.Role, c.permission) {
		e.metricInc(MetricAuthorizationDenied)
		record(ErrInsufficientPermissions, "")
		return nil, ErrInsufficientPermissions
	}

	from := make([]string, len(c.from))
	for i, s := range c.from {
		from[i] = string(s)
	}
	out := e.flows.ChangeStatus(ctx, flows.StatusChange{
		ActorRole:      actor.Role,
		TargetID:       c.targetID,
		From:           from,
		To:             string(c.to),
		RevokeSessions: c.revoke,
	})

	var err error
	switch out.Failure {
	case flows.StatusFailureNone:
	case flows.StatusFailureNotFound:
		err = ErrAccountNotFound
	case flows.StatusFailureForbidden:
		e.metricInc(MetricAuthorizationDenied)
		err = ErrInsufficientPermissions
	case flows.StatusFailureInvalidState:
		err = ErrInvalidAccountState
	default:
		e.logger.ErrorContext(ctx, "status change store failure", "target_id", c.targetID, "error", out.Err)
		err = upstream(out.Err)
	}
	record(err, out.Previous)
	if err != nil {
		return nil, err
	}
	if out.RevokeErr != nil {
		e.logger.WarnContext(ctx, "session revocation failed", "account_id", c.targetID, "error", out.RevokeErr)
	}
	if !out.Unchanged {
		e.metricInc(MetricAccountStatusChange)
	}

	acc, err := e.loadAccount(ctx, c.targetID)
	if err != nil {
		return nil, storeErr(err)
	}
	return acc.Sanitize(), nil
}
