package handler

import "complyhub/internal/modules/models"

type ListModulesResponse struct {
	Modules []models.ModuleView `json:"modules"`
	Total   int                 `json:"total"`
}

type DependentsResponse struct {
	Module     models.ModuleType      `json:"module"`
	Dependents []models.DependentView `json:"dependents"`
}

type PlanResponse struct {
	Module models.ModuleType `json:"module"`
	Steps  []models.PlanStep `json:"steps"`
}
