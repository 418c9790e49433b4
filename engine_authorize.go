package medAuth

import (
	"context"
	"strconv"

	"github.com/MrEthical07/medAuth/permission"
)

// HasPermission reports whether the principal's live role holds perm.
func (e *Engine) HasPermission(p *Principal, perm permission.Permission) bool {
	if e == nil || p == nil {
		return false
	}
	return e.catalog.HasPermission(p.Role, perm)
}

// AuthorizePatientData decides whether p may read patientID's records.
//
// A granted emergency override is audited as EMERGENCY_ACCESS, any other
// grant as PATIENT_DATA_ACCESS and a denial as ACCESS_DENIED. A denial
// returns ErrInsufficientPermissions together with the decision.
func (e *Engine) AuthorizePatientData(ctx context.Context, p *Principal, patientID string, emergencyRequested bool, meta RequestMeta) (permission.Decision, error) {
	if p == nil {
		return permission.Decision{Reason: permission.ReasonDenied}, ErrNoToken
	}
	meta = requestMeta(ctx, meta.IP, meta.UserAgent)

	decision := e.catalog.CanAccessPatientData(p.Role, patientID, p.ID, emergencyRequested)

	var err error
	action := auditActionPatientDataAccess
	switch {
	case decision.Emergency:
		action = auditActionEmergencyAccess
		e.metricInc(MetricEmergencyAccess)
		e.logger.WarnContext(ctx, "emergency patient data access",
			"account_id", p.ID, "role", p.Role.String(), "patient_id", patientID)
	case !decision.Allowed:
		action = auditActionAccessDenied
		err = ErrInsufficientPermissions
		e.metricInc(MetricAuthorizationDenied)
	}

	category := CategoryDataAccess
	if !decision.Allowed {
		category = CategoryAuthorization
	}
	e.emitAudit(ctx, auditRecord{
		action:     action,
		category:   category,
		success:    decision.Allowed,
		actor:      principalActor(p),
		resource:   auditResourcePatient,
		resourceID: patientID,
		meta:       meta,
		err:        err,
		metadata: func() map[string]string {
			return map[string]string{
				"decision":           string(decision.Reason),
				"isEmergency":        strconv.FormatBool(decision.Emergency),
				"emergencyRequested": strconv.FormatBool(emergencyRequested),
			}
		},
	})

	return decision, err
}
