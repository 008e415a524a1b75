package models

import "time"

// HealthCheck is returned by the health endpoints
// swagger:model HealthCheck
type HealthCheck struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
