package permission

import "strings"

// Permission is a capability name in MODULE.ACTION form.
type Permission string

// Module returns the MODULE part of the permission name.
func (p Permission) Module() string {
	if i := strings.IndexByte(string(p), '.'); i > 0 {
		return string(p[:i])
	}
	return ""
}

// Valid reports whether p has a non-empty module and action.
func (p Permission) Valid() bool {
	i := strings.IndexByte(string(p), '.')
	return i > 0 && i < len(p)-1
}

const (
	UsersView            Permission = "USERS.VIEW"
	UsersCreate          Permission = "USERS.CREATE"
	UsersUpdate          Permission = "USERS.UPDATE"
	UsersDelete          Permission = "USERS.DELETE"
	UsersRegisterPatient Permission = "USERS.REGISTER_PATIENT"
	UsersRegisterStaff   Permission = "USERS.REGISTER_STAFF"
	UsersRegisterAdmin   Permission = "USERS.REGISTER_ADMIN"
	UsersApprove         Permission = "USERS.APPROVE"
	UsersUnlock          Permission = "USERS.UNLOCK"

	PatientsView   Permission = "PATIENTS.VIEW"
	PatientsCreate Permission = "PATIENTS.CREATE"
	PatientsUpdate Permission = "PATIENTS.UPDATE"
	PatientsDelete Permission = "PATIENTS.DELETE"

	MedicalRecordsView            Permission = "MEDICAL_RECORDS.VIEW"
	MedicalRecordsViewOwn         Permission = "MEDICAL_RECORDS.VIEW_OWN"
	MedicalRecordsCreate          Permission = "MEDICAL_RECORDS.CREATE"
	MedicalRecordsUpdate          Permission = "MEDICAL_RECORDS.UPDATE"
	MedicalRecordsEmergencyAccess Permission = "MEDICAL_RECORDS.EMERGENCY_ACCESS"

	AppointmentsView   Permission = "APPOINTMENTS.VIEW"
	AppointmentsCreate Permission = "APPOINTMENTS.CREATE"
	AppointmentsUpdate Permission = "APPOINTMENTS.UPDATE"
	AppointmentsCancel Permission = "APPOINTMENTS.CANCEL"

	PrescriptionsView     Permission = "PRESCRIPTIONS.VIEW"
	PrescriptionsViewOwn  Permission = "PRESCRIPTIONS.VIEW_OWN"
	PrescriptionsCreate   Permission = "PRESCRIPTIONS.CREATE"
	PrescriptionsUpdate   Permission = "PRESCRIPTIONS.UPDATE"
	PrescriptionsDispense Permission = "PRESCRIPTIONS.DISPENSE"

	LabView    Permission = "LAB.VIEW"
	LabViewOwn Permission = "LAB.VIEW_OWN"
	LabOrder   Permission = "LAB.ORDER"
	LabCreate  Permission = "LAB.CREATE"
	LabUpdate  Permission = "LAB.UPDATE"

	PharmacyView   Permission = "PHARMACY.VIEW"
	PharmacyManage Permission = "PHARMACY.MANAGE"

	BillingView    Permission = "BILLING.VIEW"
	BillingViewOwn Permission = "BILLING.VIEW_OWN"
	BillingCreate  Permission = "BILLING.CREATE"
	BillingUpdate  Permission = "BILLING.UPDATE"

	InventoryView   Permission = "INVENTORY.VIEW"
	InventoryUpdate Permission = "INVENTORY.UPDATE"

	ReportsView     Permission = "REPORTS.VIEW"
	ReportsGenerate Permission = "REPORTS.GENERATE"

	AuditView Permission = "AUDIT.VIEW"

	SystemConfigure Permission = "SYSTEM.CONFIGURE"
)

// All returns every permission known to the default catalog in registration
// order.
func All() []Permission {
	return []Permission{
		UsersView, UsersCreate, UsersUpdate, UsersDelete,
		UsersRegisterPatient, UsersRegisterStaff, UsersRegisterAdmin, UsersApprove, UsersUnlock,
		PatientsView, PatientsCreate, PatientsUpdate, PatientsDelete,
		MedicalRecordsView, MedicalRecordsViewOwn, MedicalRecordsCreate, MedicalRecordsUpdate, MedicalRecordsEmergencyAccess,
		AppointmentsView, AppointmentsCreate, AppointmentsUpdate, AppointmentsCancel,
		PrescriptionsView, PrescriptionsViewOwn, PrescriptionsCreate, PrescriptionsUpdate, PrescriptionsDispense,
		LabView, LabViewOwn, LabOrder, LabCreate, LabUpdate,
		PharmacyView, PharmacyManage,
		BillingView, BillingViewOwn, BillingCreate, BillingUpdate,
		InventoryView, InventoryUpdate,
		ReportsView, ReportsGenerate,
		AuditView,
		SystemConfigure,
	}
}
