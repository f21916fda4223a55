// Package clienthub tracks connected clients, their subscriptions, and
// their in-flight worker affinity (spec.md §4.7).
package clienthub

import (
	"sync"

	"github.com/google/uuid"
)

// SubscriptionKind distinguishes a subscription to one worker's events
// from a subscription to an entire provider pool's events.
type SubscriptionKind int

const (
	SubWorker SubscriptionKind = iota
	SubProvider
)

// Sub is one subscription entry: kind plus the worker id or provider tag
// it targets.
type Sub struct {
	Kind SubscriptionKind
	Key  string
}

// Sender delivers a raw frame to one client's stream. Implementations
// MUST serialize writes per client (spec.md §5: "a single writer per
// client stream") — the websocket Conn the gateway wires in here already
// does, via its own outbound queue.
type Sender interface {
	Send(frame []byte) error
}

// client is the Hub's private record; callers only ever see Client
// (a value snapshot) or the id.
type client struct {
	id          string
	sender      Sender
	currentWork string // currentWorkerId, "" when none
	subs        map[Sub]struct{}
}

// Client is a point-in-time snapshot of one connection's state.
type Client struct {
	ID              string
	CurrentWorkerID string
	Subs            []Sub
}

// Hub is the client connection table plus subscription/affinity state.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	// reverse indexes consumed by Fanout, kept in lockstep with each
	// client's subs set under the same mutex.
	workerSubs   map[string]map[string]struct{} // workerId -> clientIds
	providerSubs map[string]map[string]struct{} // provider -> clientIds
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{
		clients:      make(map[string]*client),
		workerSubs:   make(map[string]map[string]struct{}),
		providerSubs: make(map[string]map[string]struct{}),
	}
}

// Attach registers a newly connected client and returns its id
// (spec.md §4.7).
func (h *Hub) Attach(sender Sender) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = &client{id: id, sender: sender, subs: make(map[Sub]struct{})}
	h.mu.Unlock()
	return id
}

// Detach removes clientID and every one of its subscriptions from the
// Fanout indexes atomically, and clears its affinity (spec.md §4.7:
// "MUST remove the client from every Fanout index before returning").
func (h *Hub) Detach(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	for s := range c.subs {
		h.unindexLocked(clientID, s)
	}
	delete(h.clients, clientID)
}

// SetCurrentWorker records or clears (workerID == "") the worker
// producing events for clientID's in-flight request.
func (h *Hub) SetCurrentWorker(clientID, workerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.currentWork = workerID
	}
}

// AddSub adds a subscription for clientID and indexes it.
func (h *Hub) AddSub(clientID string, s Sub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if _, already := c.subs[s]; already {
		return
	}
	c.subs[s] = struct{}{}
	h.indexLocked(clientID, s)
}

// RemoveSub removes one subscription. Removing a subscription clientID
// does not hold is a no-op; see RemoveAllSubs for unsubscribe-all.
func (h *Hub) RemoveSub(clientID string, s Sub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if _, present := c.subs[s]; !present {
		return
	}
	delete(c.subs, s)
	h.unindexLocked(clientID, s)
}

// RemoveAllSubs removes every subscription of kind k for clientID.
func (h *Hub) RemoveAllSubs(clientID string, k SubscriptionKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	for s := range c.subs {
		if s.Kind != k {
			continue
		}
		delete(c.subs, s)
		h.unindexLocked(clientID, s)
	}
}

// SubscriptionsOf returns a snapshot of clientID's subscriptions.
func (h *Hub) SubscriptionsOf(clientID string) []Sub {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return nil
	}
	out := make([]Sub, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}

// Get returns a snapshot of clientID's current state.
func (h *Hub) Get(clientID string) (Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return Client{}, false
	}
	return toSnapshot(c), true
}

// ClientsWithAffinity returns the ids of every client whose
// currentWorkerId equals workerID (consumed by Fanout step 1).
func (h *Hub) ClientsWithAffinity(workerID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for id, c := range h.clients {
		if c.currentWork == workerID {
			out = append(out, id)
		}
	}
	return out
}

// WorkerSubscribers returns the client ids subscribed to workerID
// (Fanout step 2).
func (h *Hub) WorkerSubscribers(workerID string) []string {
	return h.setSnapshot(h.workerSubs, workerID)
}

// ProviderSubscribers returns the client ids subscribed to provider
// (Fanout step 3).
func (h *Hub) ProviderSubscribers(provider string) []string {
	return h.setSnapshot(h.providerSubs, provider)
}

// ClientCount returns the number of currently attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SenderFor returns the Sender for clientID, if still attached.
func (h *Hub) SenderFor(clientID string) (Sender, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return nil, false
	}
	return c.sender, true
}

// ClearAffinityTo clears currentWorkerId for every client pointing at
// workerID (called when a worker dies, spec.md Invariant 4).
func (h *Hub) ClearAffinityTo(workerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if c.currentWork == workerID {
			c.currentWork = ""
		}
	}
}

func (h *Hub) setSnapshot(idx map[string]map[string]struct{}, key string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := idx[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (h *Hub) indexLocked(clientID string, s Sub) {
	idx := h.indexFor(s.Kind)
	set, ok := idx[s.Key]
	if !ok {
		set = make(map[string]struct{})
		idx[s.Key] = set
	}
	set[clientID] = struct{}{}
}

func (h *Hub) unindexLocked(clientID string, s Sub) {
	idx := h.indexFor(s.Kind)
	set, ok := idx[s.Key]
	if !ok {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(idx, s.Key)
	}
}

func (h *Hub) indexFor(k SubscriptionKind) map[string]map[string]struct{} {
	if k == SubProvider {
		return h.providerSubs
	}
	return h.workerSubs
}

func toSnapshot(c *client) Client {
	subs := make([]Sub, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	return Client{ID: c.id, CurrentWorkerID: c.currentWork, Subs: subs}
}
