package permission

// Table maps each role to its granted permissions. SuperAdmin must not appear:
// it holds the root grant.
type Table map[Role][]Permission

// DefaultTable returns the hospital role to permission assignment.
func DefaultTable() Table {
	return Table{
		Admin: {
			UsersView, UsersCreate, UsersUpdate, UsersDelete,
			UsersRegisterPatient, UsersRegisterStaff, UsersApprove, UsersUnlock,
			PatientsView, PatientsCreate, PatientsUpdate,
			AppointmentsView, AppointmentsCreate, AppointmentsUpdate, AppointmentsCancel,
			BillingView, InventoryView,
			ReportsView, ReportsGenerate,
			AuditView,
		},
		Doctor: {
			PatientsView, PatientsUpdate,
			MedicalRecordsView, MedicalRecordsCreate, MedicalRecordsUpdate, MedicalRecordsEmergencyAccess,
			AppointmentsView, AppointmentsUpdate,
			PrescriptionsView, PrescriptionsCreate, PrescriptionsUpdate,
			LabView, LabOrder,
			ReportsView,
		},
		Nurse: {
			PatientsView, PatientsUpdate,
			MedicalRecordsView, MedicalRecordsUpdate, MedicalRecordsEmergencyAccess,
			AppointmentsView,
			PrescriptionsView,
			LabView,
		},
		Pharmacist: {
			PatientsView,
			MedicalRecordsView,
			PrescriptionsView, PrescriptionsDispense,
			PharmacyView, PharmacyManage,
			InventoryView, InventoryUpdate,
		},
		LabTechnician: {
			PatientsView,
			MedicalRecordsView,
			LabView, LabCreate, LabUpdate,
		},
		Receptionist: {
			UsersView, UsersRegisterPatient,
			PatientsView, PatientsCreate, PatientsUpdate,
			AppointmentsView, AppointmentsCreate, AppointmentsUpdate, AppointmentsCancel,
			BillingView,
		},
		Accountant: {
			PatientsView,
			BillingView, BillingCreate, BillingUpdate,
			InventoryView,
			ReportsView, ReportsGenerate,
		},
		Patient: {
			AppointmentsView, AppointmentsCreate, AppointmentsCancel,
			MedicalRecordsViewOwn,
			PrescriptionsViewOwn,
			LabViewOwn,
			BillingViewOwn,
		},
	}
}

// DefaultCatalog builds the catalog from All and DefaultTable.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(All(), DefaultTable())
	if err != nil {
		panic("permission: default catalog invalid: " + err.Error())
	}
	return c
}
