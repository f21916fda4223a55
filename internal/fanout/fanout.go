// Package fanout delivers worker events to the clients that should see
// them — affinity, worker subscribers, provider subscribers — with
// dedup across the three so a client never sees one event twice
// (spec.md §4.9).
package fanout

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/clienthub"
	"github.com/hackstrix/zeusgate/internal/logging"
	"github.com/hackstrix/zeusgate/internal/metrics"
	"github.com/hackstrix/zeusgate/internal/wire"
)

// ProcessInfo resolves a worker id to the metadata the wrapped
// subscription envelope needs (provider, a human process name).
type ProcessInfo struct {
	Provider    string
	ProcessName string
}

// Resolver looks up a worker's ProcessInfo at delivery time, so Fanout
// never has to hold its own copy of Registry state.
type Resolver func(workerID string) (ProcessInfo, bool)

// Fanout owns no state of its own: it reads ClientHub's affinity and
// subscription indexes and writes to each client's Sender, grounded on
// the teacher's SessionManager broadcast helper generalized to three
// delivery tiers.
type Fanout struct {
	hub      *clienthub.Hub
	resolve  Resolver
	logger   zerolog.Logger
}

// New builds a Fanout over hub, using resolve to annotate subscription
// deliveries.
func New(hub *clienthub.Hub, resolve Resolver) *Fanout {
	return &Fanout{
		hub:     hub,
		resolve: resolve,
		logger:  logging.WithComponent("fanout"),
	}
}

// streamEnvelope is the wrapped shape delivered to worker/provider
// subscribers (spec.md §6).
type streamEnvelope struct {
	Type        string          `json:"type"`
	Source      string          `json:"source"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Provider    string          `json:"provider"`
	ProcessID   string          `json:"processId"`
	ProcessName string          `json:"processName"`
}

// Deliver routes one worker event from workerID per spec.md §4.9's
// three-tier dedup order.
func (f *Fanout) Deliver(workerID string, e wire.Envelope) {
	served := make(map[string]struct{})

	for _, clientID := range f.hub.ClientsWithAffinity(workerID) {
		f.write(clientID, e)
		served[clientID] = struct{}{}
		if wire.IsTerminal(e.Type) {
			f.hub.SetCurrentWorker(clientID, "")
		}
	}

	info, _ := f.resolve(workerID)

	for _, clientID := range f.hub.WorkerSubscribers(workerID) {
		if _, done := served[clientID]; done {
			continue
		}
		f.writeWrapped(clientID, "process", workerID, info, e)
		served[clientID] = struct{}{}
	}

	for _, clientID := range f.hub.ProviderSubscribers(info.Provider) {
		if _, done := served[clientID]; done {
			continue
		}
		f.writeWrapped(clientID, "provider", workerID, info, e)
		served[clientID] = struct{}{}
	}
}

func (f *Fanout) write(clientID string, e wire.Envelope) {
	sender, ok := f.hub.SenderFor(clientID)
	if !ok {
		return
	}
	raw, err := e.Bytes()
	if err != nil {
		f.logger.Warn().Err(err).Str("client", clientID).Msg("failed to encode envelope for delivery")
		return
	}
	if err := sender.Send(raw); err != nil {
		f.logger.Debug().Err(err).Str("client", clientID).Msg("delivery failed; client likely disconnected")
		return
	}
	metrics.FanoutDeliveries.WithLabelValues("affinity").Inc()
}

func (f *Fanout) writeWrapped(clientID, source, workerID string, info ProcessInfo, e wire.Envelope) {
	sender, ok := f.hub.SenderFor(clientID)
	if !ok {
		return
	}
	wrapped := streamEnvelope{
		Type:        "stream",
		Source:      source,
		Event:       e.Type,
		Payload:     e.Payload,
		Provider:    info.Provider,
		ProcessID:   workerID,
		ProcessName: info.ProcessName,
	}
	raw, err := json.Marshal(wrapped)
	if err != nil {
		f.logger.Warn().Err(err).Str("client", clientID).Msg("failed to encode wrapped envelope")
		return
	}
	if err := sender.Send(raw); err != nil {
		f.logger.Debug().Err(err).Str("client", clientID).Msg("delivery failed; client likely disconnected")
		return
	}
	metrics.FanoutDeliveries.WithLabelValues(source).Inc()
}
