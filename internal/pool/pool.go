// Package pool maintains, per provider, the set of currently-selectable
// workers and picks one for a new chat turn (spec.md §4.4).
package pool

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/worker"
)

// ProviderPool tracks, per provider, the ids of workers currently
// selectable (spec.md Invariant 6), recomputed from the Registry on every
// lifecycle/health event rather than maintained incrementally — the
// Registry is already the source of truth, so the Pool just re-derives
// its view (grounded on the teacher's Pool.refreshHealthy, generalized
// per-provider).
type ProviderPool struct {
	reg *registry.Registry

	mu   sync.RWMutex
	rand *rand.Rand
}

// New builds a ProviderPool backed by reg, subscribing to its lifecycle
// events. rngSeed lets tests make selection deterministic; pass 0 for a
// fixed, reproducible seed (selection is a steady-state load-balancing
// choice, not a security boundary — spec.md §4.4 rationale).
func New(reg *registry.Registry, rngSeed int64) *ProviderPool {
	p := &ProviderPool{
		reg:  reg,
		rand: rand.New(rand.NewSource(rngSeed)),
	}
	reg.Subscribe(func(worker.Event) {
		// No cached state to invalidate: Members/Select always reread the
		// Registry directly, so this subscription only exists to make the
		// dependency explicit and to give tests/metrics a recompute point
		// to hook if they need one later.
	})
	return p
}

// Members returns the ids of every selectable worker for provider, sorted
// for deterministic test assertions.
func (p *ProviderPool) Members(provider string) []string {
	healthy := p.reg.Healthy(provider)
	ids := make([]string, 0, len(healthy))
	for _, w := range healthy {
		ids = append(ids, w.ID)
	}
	sort.Strings(ids)
	return ids
}

// Select returns a uniformly random member for provider, or "", false if
// the pool is empty (spec.md §4.4: "return nil if empty").
func (p *ProviderPool) Select(provider string) (string, bool) {
	ids := p.Members(provider)
	if len(ids) == 0 {
		return "", false
	}
	p.mu.Lock()
	idx := p.rand.Intn(len(ids))
	p.mu.Unlock()
	return ids[idx], true
}
