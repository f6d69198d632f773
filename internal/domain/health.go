package domain

import "time"

// HealthStatus summarises the state of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK marks a healthy dependency.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded marks a dependency answering with errors.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError marks a dependency that is unreachable.
	HealthStatusError HealthStatus = "error"
)

// HealthCheck is the outcome of probing a single dependency.
type HealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}
