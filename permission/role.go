package permission

import (
	"errors"
	"strings"
)

// Role is a closed enumeration of hospital roles. The zero value is not a
// valid role.
type Role uint8

const (
	// SuperAdmin holds every permission in the catalog.
	SuperAdmin Role = iota + 1
	Admin
	Doctor
	Nurse
	Pharmacist
	LabTechnician
	Receptionist
	Accountant
	Patient

	roleEnd
)

// RoleClass groups roles for the patient-data decision.
type RoleClass uint8

const (
	ClassUnknown RoleClass = iota
	ClassPatient
	ClassClinical
	ClassAdministrative
)

// ErrUnknownRole is returned by ParseRole for names outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

// Roles returns every valid role ordered from highest to lowest level.
func Roles() []Role {
	return []Role{SuperAdmin, Admin, Doctor, Nurse, Pharmacist, LabTechnician, Receptionist, Accountant, Patient}
}

// ParseRole converts a role name such as "DOCTOR" into a Role.
// Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, r := range Roles() {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, ErrUnknownRole
}

// Valid reports whether r is a member of the enumeration.
func (r Role) Valid() bool {
	return r >= SuperAdmin && r < roleEnd
}

func (r Role) String() string {
	switch r {
	case SuperAdmin:
		return "SUPER_ADMIN"
	case Admin:
		return "ADMIN"
	case Doctor:
		return "DOCTOR"
	case Nurse:
		return "NURSE"
	case Pharmacist:
		return "PHARMACIST"
	case LabTechnician:
		return "LAB_TECHNICIAN"
	case Receptionist:
		return "RECEPTIONIST"
	case Accountant:
		return "ACCOUNTANT"
	case Patient:
		return "PATIENT"
	default:
		return "UNKNOWN"
	}
}

// Level returns the role's position in the hierarchy. Unknown roles are 0.
func (r Role) Level() int {
	switch r {
	case SuperAdmin:
		return 100
	case Admin:
		return 90
	case Doctor:
		return 70
	case Nurse:
		return 60
	case Pharmacist, LabTechnician:
		return 50
	case Receptionist, Accountant:
		return 40
	case Patient:
		return 10
	default:
		return 0
	}
}

// Class returns the role's access class.
func (r Role) Class() RoleClass {
	switch r {
	case Patient:
		return ClassPatient
	case Doctor, Nurse, Pharmacist, LabTechnician:
		return ClassClinical
	case SuperAdmin, Admin, Receptionist, Accountant:
		return ClassAdministrative
	default:
		return ClassUnknown
	}
}

// SelfRegistering reports whether accounts with this role may sign up
// without administrative onboarding.
func (r Role) SelfRegistering() bool {
	return r == Patient
}

// MarshalText encodes the role as its name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
