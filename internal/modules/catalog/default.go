package catalog

import "complyhub/internal/modules/models"

// Default returns the descriptors of the modules shipped with the platform.
// Each feature area owns its entry; the registry only consumes the list.
func Default() []models.Descriptor {
	return []models.Descriptor{
		{
			Type:             models.UserManagement,
			DisplayName:      "User Management",
			Description:      "Users, roles and organisational units. Every other module builds on it.",
			Icon:             "users",
			DisplayOrder:     0,
			EnabledByDefault: true,
			CanBeDisabled:    false,
		},
		{
			Type:                 models.IncidentManagement,
			DisplayName:          "Incident Management",
			Description:          "Report, investigate and close workplace incidents and near misses.",
			Icon:                 "alert-triangle",
			DisplayOrder:         10,
			EnabledByDefault:     true,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement},
			OptionalDependencies: []models.ModuleType{models.AuditManagement, models.HealthManagement},
		},
		{
			Type:                 models.AuditManagement,
			DisplayName:          "Audit Management",
			Description:          "Plan audits, record findings and track corrective actions.",
			Icon:                 "clipboard-check",
			DisplayOrder:         20,
			EnabledByDefault:     true,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement},
			OptionalDependencies: []models.ModuleType{models.IncidentManagement, models.InspectionManagement},
		},
		{
			Type:                 models.InspectionManagement,
			DisplayName:          "Inspection Management",
			Description:          "Checklists and scheduled site inspections whose findings feed audits.",
			Icon:                 "search",
			DisplayOrder:         30,
			EnabledByDefault:     true,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement, models.AuditManagement},
		},
		{
			Type:                 models.TrainingManagement,
			DisplayName:          "Training Management",
			Description:          "Courses, attendance and competence records.",
			Icon:                 "graduation-cap",
			DisplayOrder:         40,
			EnabledByDefault:     true,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement},
			OptionalDependencies: []models.ModuleType{models.LicenseManagement},
		},
		{
			Type:                 models.LicenseManagement,
			DisplayName:          "License Management",
			Description:          "Operating licences and certifications with expiry tracking.",
			Icon:                 "id-card",
			DisplayOrder:         50,
			EnabledByDefault:     false,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement, models.TrainingManagement},
		},
		{
			Type:                 models.PPEManagement,
			DisplayName:          "PPE Management",
			Description:          "Personal protective equipment issuance, stock and inspections.",
			Icon:                 "hard-hat",
			DisplayOrder:         60,
			EnabledByDefault:     false,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement},
			OptionalDependencies: []models.ModuleType{models.TrainingManagement, models.IncidentManagement},
		},
		{
			Type:                 models.WasteManagement,
			DisplayName:          "Waste Management",
			Description:          "Waste streams, manifests and disposal contractors.",
			Icon:                 "recycle",
			DisplayOrder:         70,
			EnabledByDefault:     false,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement, models.InspectionManagement},
		},
		{
			Type:                 models.HealthManagement,
			DisplayName:          "Occupational Health",
			Description:          "Medical surveillance, exposures and fitness-for-work assessments.",
			Icon:                 "heart-pulse",
			DisplayOrder:         80,
			EnabledByDefault:     false,
			CanBeDisabled:        true,
			RequiredDependencies: []models.ModuleType{models.UserManagement, models.IncidentManagement},
			OptionalDependencies: []models.ModuleType{models.PPEManagement},
		},
	}
}
