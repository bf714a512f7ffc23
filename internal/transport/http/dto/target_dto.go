package dto

import "github.com/booner/backend/internal/domain"

type TargetResponse struct {
	ID      string   `json:"id"`
	Host    string   `json:"host"`
	Role    string   `json:"role"`
	Specs   string   `json:"specs,omitempty"`
	Actions []string `json:"actions"`
}

func TargetsToResponse(targets []domain.DeploymentTarget) []TargetResponse {
	responses := make([]TargetResponse, len(targets))
	for i, t := range targets {
		responses[i] = TargetResponse{
			ID:      t.ID,
			Host:    t.Address(),
			Role:    t.Role,
			Specs:   t.Specs,
			Actions: t.Actions,
		}
	}
	return responses
}
