package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstrix/zeusgate/internal/worker"
)

func healthyWorker(id, provider string) worker.Worker {
	return worker.Worker{ID: id, Provider: provider, Status: worker.StatusRunning, Health: worker.HealthHealthy}
}

func TestUpsertAndGet(t *testing.T) {
	r := New()
	w := healthyWorker("w1", "claude")
	r.Upsert(w, worker.EventStarted)

	got, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, w, got)
}

func TestListFiltersByProvider(t *testing.T) {
	r := New()
	r.Upsert(healthyWorker("w1", "claude"), worker.EventStarted)
	r.Upsert(healthyWorker("w2", "codex"), worker.EventStarted)
	r.Upsert(healthyWorker("w3", "claude"), worker.EventStarted)

	claude := r.List("claude")
	require.Len(t, claude, 2)
	assert.Equal(t, "w1", claude[0].ID)
	assert.Equal(t, "w3", claude[1].ID)

	all := r.List("")
	assert.Len(t, all, 3)
}

func TestRemoveDropsFromProviderIndex(t *testing.T) {
	r := New()
	r.Upsert(healthyWorker("w1", "claude"), worker.EventStarted)
	r.Remove("w1")

	_, ok := r.Get("w1")
	assert.False(t, ok)
	assert.Empty(t, r.List("claude"))
	assert.Equal(t, 0, r.Count("claude"))
}

func TestHealthyExcludesUnselectable(t *testing.T) {
	r := New()
	r.Upsert(healthyWorker("w1", "claude"), worker.EventStarted)
	degraded := healthyWorker("w2", "claude")
	degraded.Status = worker.StatusDegraded
	degraded.Health = worker.HealthUnhealthy
	r.Upsert(degraded, worker.EventFailed)

	healthy := r.Healthy("claude")
	require.Len(t, healthy, 1)
	assert.Equal(t, "w1", healthy[0].ID)
}

func TestUpsertReindexesOnProviderChange(t *testing.T) {
	r := New()
	r.Upsert(healthyWorker("w1", "claude"), worker.EventStarted)
	r.Upsert(healthyWorker("w1", "codex"), worker.EventStarted)

	assert.Empty(t, r.List("claude"))
	assert.Len(t, r.List("codex"), 1)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	r := New()
	var received []worker.Event
	r.Subscribe(func(e worker.Event) { received = append(received, e) })

	r.Upsert(healthyWorker("w1", "claude"), worker.EventStarted)
	r.Remove("w1")

	require.Len(t, received, 2)
	assert.Equal(t, worker.EventStarted, received[0].Kind)
	assert.Equal(t, worker.EventStopped, received[1].Kind)
}
