// Package health implements liveness/readiness probing for workers.
//
// Grounded on cuemby/warren's pkg/health: a small Checker interface with
// a Result value type, so HTTP (and, in principle, other) probe strategies
// compose the same way.
package health

import (
	"context"
	"time"
)

// Result is the outcome of one health probe.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker performs a single probe against a worker.
type Checker interface {
	Check(ctx context.Context) Result
}

// WorkerStatus is the decoded body of a worker's /health endpoint
// (spec.md §6, worker contract step 2).
type WorkerStatus struct {
	Status        string  `json:"status"`
	Ready         bool    `json:"ready"`
	Authenticated bool    `json:"authenticated"`
	Uptime        float64 `json:"uptime"`
}

// ProbeStatus is the decoded body of a worker's /status endpoint.
type ProbeStatus struct {
	Model           string   `json:"model"`
	AvailableModels []string `json:"availableModels"`
	SessionID       string   `json:"sessionId"`
}
