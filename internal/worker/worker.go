// Package worker owns the lifecycle of a single AI-assistant worker:
// launch, health-probe, bidirectional stream, stop, cleanup (spec.md §4.2).
package worker

import "time"

// Status is one of the five lifecycle states a Worker can be in
// (spec.md §3).
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusDegraded Status = "degraded"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// Health is the worker's last-known liveness/readiness verdict
// (spec.md §3).
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// Worker is an immutable point-in-time snapshot of one worker's state.
// The Registry stores these by value so a reader never observes a torn
// record (spec.md §5); the Supervisor is the only writer, publishing a
// fresh Worker snapshot on every transition.
type Worker struct {
	ID              string
	Provider        string
	Port            int
	Status          Status
	Health          Health
	Model           string
	AvailableModels []string
	CreatedAt       time.Time
}

// IsSelectable reports whether a worker may appear in a ProviderPool
// (spec.md Invariant 6).
func (w Worker) IsSelectable() bool {
	return w.Status != StatusStopped && w.Status != StatusFailed && w.Health == HealthHealthy
}

// EventKind distinguishes the three lifecycle events the Supervisor/Registry
// emit (spec.md §4.3).
type EventKind string

const (
	EventStarted EventKind = "WorkerStarted"
	EventStopped EventKind = "WorkerStopped"
	EventFailed  EventKind = "WorkerFailed"
)

// Event is a lifecycle notification fanned out to the Registry's
// subscribers (e.g. ProviderPool).
type Event struct {
	Kind   EventKind
	Worker Worker
}
