package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// HTTPChecker probes a worker's /health endpoint, grounded on
// cuemby/warren's pkg/health/http.go.
type HTTPChecker struct {
	URL    string
	Client *http.Client
}

// NewHTTPChecker builds a checker for host:port/health with a sane
// default timeout (spec.md §4.5: "short-timeout status request").
func NewHTTPChecker(host string, port int, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		URL:    fmt.Sprintf("http://%s:%d/health", host, port),
		Client: &http.Client{Timeout: timeout},
	}
}

// Check performs the HTTP probe and decodes the worker's health payload.
func (c *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("unexpected status %d", resp.StatusCode),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	var body WorkerStatus
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{Healthy: false, Message: "malformed /health body", CheckedAt: start, Duration: time.Since(start)}
	}

	return Result{
		Healthy:   body.Status == "ok" && body.Ready,
		Message:   body.Status,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// FetchStatus retrieves the worker's /status document (model,
// availableModels, sessionId) for Supervisor to cache on first readiness.
func FetchStatus(ctx context.Context, client *http.Client, host string, port int) (ProbeStatus, error) {
	url := fmt.Sprintf("http://%s:%d/status", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeStatus{}, errors.Wrap(err, "build /status request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return ProbeStatus{}, errors.Wrap(err, "fetch /status")
	}
	defer resp.Body.Close()

	var out ProbeStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ProbeStatus{}, errors.Wrap(err, "decode /status")
	}
	return out, nil
}
