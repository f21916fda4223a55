package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/worker"
)

func TestSelectReturnsFalseWhenEmpty(t *testing.T) {
	p := New(registry.New(), 1)
	_, ok := p.Select("claude")
	assert.False(t, ok)
}

func TestSelectOnlyReturnsHealthyMembers(t *testing.T) {
	reg := registry.New()
	reg.Upsert(worker.Worker{ID: "w1", Provider: "claude", Status: worker.StatusRunning, Health: worker.HealthHealthy}, worker.EventStarted)
	degraded := worker.Worker{ID: "w2", Provider: "claude", Status: worker.StatusDegraded, Health: worker.HealthUnhealthy}
	reg.Upsert(degraded, worker.EventFailed)

	p := New(reg, 1)
	for i := 0; i < 20; i++ {
		id, ok := p.Select("claude")
		require.True(t, ok)
		assert.Equal(t, "w1", id)
	}
}

func TestSelectDistributesAcrossMembers(t *testing.T) {
	reg := registry.New()
	reg.Upsert(worker.Worker{ID: "w1", Provider: "claude", Status: worker.StatusRunning, Health: worker.HealthHealthy}, worker.EventStarted)
	reg.Upsert(worker.Worker{ID: "w2", Provider: "claude", Status: worker.StatusRunning, Health: worker.HealthHealthy}, worker.EventStarted)

	p := New(reg, 7)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, ok := p.Select("claude")
		require.True(t, ok)
		seen[id] = true
	}
	assert.Len(t, seen, 2)
}

func TestMembersExcludesStoppedWorkers(t *testing.T) {
	reg := registry.New()
	reg.Upsert(worker.Worker{ID: "w1", Provider: "claude", Status: worker.StatusStopped, Health: worker.HealthUnhealthy}, worker.EventStopped)
	p := New(reg, 1)
	assert.Empty(t, p.Members("claude"))
}
