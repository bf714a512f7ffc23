package domain

import "time"

const (
	TargetStatusActive   = "active"
	TargetStatusInactive = "inactive"
)

type MainServerStatus struct {
	CPU         string  `json:"cpu"`
	GPU         string  `json:"gpu"`
	RAM         string  `json:"ram"`
	Disk        string  `json:"disk"`
	CPUPercent  float64 `json:"cpu_percent"`
	RAMPercent  float64 `json:"ram_percent"`
	DiskPercent float64 `json:"disk_percent"`
	Status      string  `json:"status"`
}

type TargetStatus struct {
	ID     string  `json:"id"`
	Host   string  `json:"host"`
	Role   string  `json:"role,omitempty"`
	Status string  `json:"status"`
	Active bool    `json:"active"`
	Load   float64 `json:"load"`
	Specs  string  `json:"specs"`
	Error  string  `json:"error,omitempty"`
}

// SystemSnapshot is rebuilt wholesale on every aggregation tick.
type SystemSnapshot struct {
	MainServer        MainServerStatus `json:"main_server"`
	DeploymentTargets []TargetStatus   `json:"deployment_targets"`
	CollectedAt       time.Time        `json:"collected_at"`
}

func (s *SystemSnapshot) Clone() *SystemSnapshot {
	c := *s
	c.DeploymentTargets = append([]TargetStatus(nil), s.DeploymentTargets...)
	return &c
}

// TargetProbe is what a prober reports about a single reachable target.
type TargetProbe struct {
	Load  float64
	Specs string
}
