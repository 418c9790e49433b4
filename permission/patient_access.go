package permission

// AccessReason names the rule that produced a patient-data decision.
type AccessReason string

const (
	ReasonEmergencyOverride     AccessReason = "EMERGENCY_OVERRIDE"
	ReasonSelfAccess            AccessReason = "SELF_ACCESS"
	ReasonClinicalAccess        AccessReason = "CLINICAL_ACCESS"
	ReasonAdministrativeAccess  AccessReason = "ADMINISTRATIVE_ACCESS"
	ReasonDenied                AccessReason = "DENIED"
	ReasonPatientOwnershipCheck AccessReason = "NOT_OWNER"
)

// Decision is the outcome of CanAccessPatientData. Emergency is true only
// when the emergency override granted access; callers must audit it.
type Decision struct {
	Allowed   bool
	Reason    AccessReason
	Emergency bool
}

// CanAccessPatientData decides whether a requester with role may read the
// records of patientID.
//
// Rules are evaluated in fixed order and the first applicable one wins:
// emergency override, patient self-access, clinical record view,
// administrative patient view. Anything else is denied.
func (c *Catalog) CanAccessPatientData(role Role, patientID, requesterID string, emergency bool) Decision {
	if emergency && c.HasPermission(role, MedicalRecordsEmergencyAccess) {
		return Decision{Allowed: true, Reason: ReasonEmergencyOverride, Emergency: true}
	}

	switch role.Class() {
	case ClassPatient:
		if patientID != "" && patientID == requesterID {
			return Decision{Allowed: true, Reason: ReasonSelfAccess}
		}
		return Decision{Reason: ReasonPatientOwnershipCheck}
	case ClassClinical:
		if c.HasPermission(role, MedicalRecordsView) {
			return Decision{Allowed: true, Reason: ReasonClinicalAccess}
		}
	case ClassAdministrative:
		if c.HasPermission(role, PatientsView) {
			return Decision{Allowed: true, Reason: ReasonAdministrativeAccess}
		}
	}

	return Decision{Reason: ReasonDenied}
}
