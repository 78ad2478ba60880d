package model

import "time"

// HealthStatus is a collector's supervision state.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailed   HealthStatus = "failed"
	HealthDisabled HealthStatus = "disabled"
)

// HealthRecord tracks one registered collector.
type HealthRecord struct {
	Name                string       `json:"name"`
	LastHeartbeat       time.Time    `json:"last_heartbeat"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	ErrorCount          int          `json:"error_count"`
	LastError           string       `json:"last_error,omitempty"`
	Status              HealthStatus `json:"status"`
	RestartCount        int          `json:"restart_count"`
	RestartTimes        []time.Time  `json:"restart_times"`
	NextRestartAt       time.Time    `json:"next_restart_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Clone returns a deep copy safe to hand outside a lock.
func (r HealthRecord) Clone() HealthRecord {
	out := r
	out.RestartTimes = make([]time.Time, len(r.RestartTimes))
	copy(out.RestartTimes, r.RestartTimes)
	return out
}

// HealthReport summarizes all records.
type HealthReport struct {
	Total    int            `json:"total"`
	Counts   map[string]int `json:"counts"`
	Records  []HealthRecord `json:"records"`
	Overall  HealthStatus   `json:"overall"`
	Disabled []string       `json:"disabled"`
}
