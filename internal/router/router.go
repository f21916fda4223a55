// Package router parses client envelopes and dispatches them to the
// right handler: introspection, spawn/stop/scale, chat, subscriptions,
// and the orchestration-forward command family (spec.md §4.8).
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/clienthub"
	"github.com/hackstrix/zeusgate/internal/fanout"
	"github.com/hackstrix/zeusgate/internal/fleet"
	"github.com/hackstrix/zeusgate/internal/logging"
	"github.com/hackstrix/zeusgate/internal/pool"
	"github.com/hackstrix/zeusgate/internal/provider"
	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/wire"
	"github.com/hackstrix/zeusgate/internal/worker"
)

// Router wires every component the command taxonomy touches.
type Router struct {
	reg       *registry.Registry
	pool      *pool.ProviderPool
	hub       *clienthub.Hub
	fan       *fanout.Fanout
	fl        *fleet.Fleet
	cfg       *provider.Store
	providers []string
	autoSpawn map[string]bool
	startedAt time.Time
	logger    zerolog.Logger
}

// Options bundles Router's dependencies and static policy.
type Options struct {
	Registry           *registry.Registry
	Pool               *pool.ProviderPool
	Hub                *clienthub.Hub
	Fanout             *fanout.Fanout
	Fleet              *fleet.Fleet
	Config             *provider.Store
	Providers          []string
	AutoSpawnProviders []string
}

// New builds a Router.
func New(opts Options) *Router {
	allow := make(map[string]bool, len(opts.AutoSpawnProviders))
	for _, p := range opts.AutoSpawnProviders {
		allow[p] = true
	}
	return &Router{
		reg:       opts.Registry,
		pool:      opts.Pool,
		hub:       opts.Hub,
		fan:       opts.Fanout,
		fl:        opts.Fleet,
		cfg:       opts.Config,
		providers: opts.Providers,
		autoSpawn: allow,
		startedAt: time.Now(),
		logger:    logging.WithComponent("router"),
	}
}

// Handle parses and dispatches one client envelope, replying on the
// client's own sender via r.reply.
func (r *Router) Handle(ctx context.Context, clientID string, env wire.Envelope) {
	switch env.Type {
	case wire.CmdPing:
		r.handlePing(clientID)
	case wire.CmdStatus:
		r.handleStatus(clientID)
	case wire.CmdListProcesses:
		r.handleListProcesses(clientID, env)
	case wire.CmdListProviders:
		r.handleListProviders(clientID)
	case wire.CmdListModels:
		r.handleListModels(clientID, env)
	case wire.CmdListSubscriptions:
		r.handleListSubscriptions(clientID)
	case wire.CmdSpawn:
		r.handleSpawn(ctx, clientID, env)
	case wire.CmdStop:
		r.handleStop(ctx, clientID, env)
	case wire.CmdScale:
		r.handleScale(ctx, clientID, env)
	case wire.CmdChat:
		r.handleChat(ctx, clientID, env)
	case wire.CmdSubscribe:
		r.handleSubscribe(clientID, env, true)
	case wire.CmdUnsubscribe:
		r.handleSubscribe(clientID, env, false)
	case wire.CmdGetLogs:
		r.handleGetLogs(ctx, clientID, env)
	default:
		if wire.IsOrchestrationForward(env.Type) {
			r.handleForward(clientID, env)
			return
		}
		r.replyError(clientID, fmt.Sprintf("Unknown command %q", env.Type), nil)
	}
}

func (r *Router) handlePing(clientID string) {
	r.reply(clientID, wire.EvtPong, wire.PongPayload{Timestamp: time.Now().UnixMilli()})
}

func (r *Router) handleStatus(clientID string) {
	all := r.reg.List("")
	workers := make([]wire.WorkerInfo, 0, len(all))
	for _, w := range all {
		workers = append(workers, toWorkerInfo(w))
	}
	r.reply(clientID, wire.EvtStatus, wire.StatusPayload{
		Providers: r.providers,
		Workers:   workers,
		Clients:   r.hub.ClientCount(),
		Uptime:    time.Since(r.startedAt).Seconds(),
	})
}

func (r *Router) handleListProcesses(clientID string, env wire.Envelope) {
	var p wire.StopPayload // reuses the {processId?, provider?} shape
	_ = env.DecodePayload(&p)
	all := r.reg.List(p.Provider)
	workers := make([]wire.WorkerInfo, 0, len(all))
	for _, w := range all {
		workers = append(workers, toWorkerInfo(w))
	}
	r.reply(clientID, wire.EvtProcesses, workers)
}

func (r *Router) handleListProviders(clientID string) {
	r.reply(clientID, wire.EvtProviders, r.providers)
}

func (r *Router) handleListModels(clientID string, env wire.Envelope) {
	var p wire.StopPayload
	_ = env.DecodePayload(&p)
	seen := map[string]bool{}
	var models []string
	for _, w := range r.reg.List(p.Provider) {
		for _, m := range w.AvailableModels {
			if !seen[m] {
				seen[m] = true
				models = append(models, m)
			}
		}
	}
	r.reply(clientID, wire.EvtModels, models)
}

func (r *Router) handleListSubscriptions(clientID string) {
	subs := r.hub.SubscriptionsOf(clientID)
	payload := wire.SubscriptionsPayload{}
	for _, s := range subs {
		if s.Kind == clienthub.SubWorker {
			payload.Processes = append(payload.Processes, s.Key)
		} else {
			payload.Providers = append(payload.Providers, s.Key)
		}
	}
	r.reply(clientID, wire.EvtSubscriptions, payload)
}

func (r *Router) handleSpawn(ctx context.Context, clientID string, env wire.Envelope) {
	var p wire.SpawnPayload
	if err := env.DecodePayload(&p); err != nil || p.Provider == "" {
		r.replyError(clientID, "spawn requires a provider", nil)
		return
	}
	r.reply(clientID, wire.EvtSpawning, map[string]string{"provider": p.Provider})

	w, err := r.fl.Spawn(ctx, p.Provider, p.Model, p.Port)
	if err != nil {
		r.replyError(clientID, fmt.Sprintf("failed to spawn worker for %q: %v", p.Provider, err), nil)
		return
	}
	r.reply(clientID, wire.EvtSpawned, toWorkerInfo(w))
}

func (r *Router) handleStop(ctx context.Context, clientID string, env wire.Envelope) {
	var p wire.StopPayload
	if err := env.DecodePayload(&p); err != nil {
		r.replyError(clientID, "malformed stop request", nil)
		return
	}
	if p.ProcessID != "" {
		if err := r.fl.Stop(ctx, p.ProcessID); err != nil {
			r.replyError(clientID, fmt.Sprintf("failed to stop %q: %v", p.ProcessID, err), nil)
			return
		}
		r.reply(clientID, wire.EvtStopped, wire.StoppedPayload{ProcessID: p.ProcessID, Count: 1})
		return
	}
	if p.Provider != "" {
		n := r.fl.StopProvider(ctx, p.Provider)
		r.reply(clientID, wire.EvtStopped, wire.StoppedPayload{Provider: p.Provider, Count: n})
		return
	}
	r.replyError(clientID, "stop requires processId or provider", nil)
}

func (r *Router) handleScale(ctx context.Context, clientID string, env wire.Envelope) {
	var p wire.ScalePayload
	if err := env.DecodePayload(&p); err != nil || p.Provider == "" || p.Count < 0 {
		r.replyError(clientID, "scale requires a provider and a non-negative count", nil)
		return
	}
	current := r.fl.CountForProvider(p.Provider)
	previous := current

	switch {
	case p.Count > current:
		for i := current; i < p.Count; i++ {
			if _, err := r.fl.Spawn(ctx, p.Provider, "", 0); err != nil {
				r.logger.Warn().Err(err).Str("provider", p.Provider).Msg("scale-up spawn failed")
				break
			}
		}
	case p.Count < current:
		toStop := r.fl.IDsForProvider(p.Provider)
		for i := 0; i < current-p.Count && i < len(toStop); i++ {
			_ = r.fl.Stop(ctx, toStop[i])
		}
	}

	r.reply(clientID, wire.EvtScaled, wire.ScaledPayload{
		Provider: p.Provider,
		Previous: previous,
		Current:  r.fl.CountForProvider(p.Provider),
	})
}

// handleChat implements spec.md §4.8's chat algorithm.
func (r *Router) handleChat(ctx context.Context, clientID string, env wire.Envelope) {
	var p wire.ChatPayload
	if err := env.DecodePayload(&p); err != nil || p.Provider == "" {
		r.replyError(clientID, "chat requires a provider", nil)
		return
	}

	workerID, ok := r.pool.Select(p.Provider)
	if !ok {
		if !r.autoSpawn[p.Provider] {
			r.replyError(clientID, fmt.Sprintf("no healthy worker available for provider %q", p.Provider), nil)
			return
		}
		w, err := r.fl.Spawn(ctx, p.Provider, p.Model, 0)
		if err != nil {
			r.replyError(clientID, fmt.Sprintf("auto-spawn failed for provider %q", p.Provider),
				wire.SpawnHint{Type: "spawn", Provider: p.Provider})
			return
		}
		workerID = w.ID
	}

	r.hub.SetCurrentWorker(clientID, workerID)

	if err := r.fl.Send(workerID, env); err != nil {
		r.hub.SetCurrentWorker(clientID, "")
		r.replyError(clientID, "worker may still be starting; try again shortly", nil)
		return
	}
}

func (r *Router) handleSubscribe(clientID string, env wire.Envelope, subscribe bool) {
	var p wire.SubscribePayload
	if err := env.DecodePayload(&p); err != nil {
		r.replyError(clientID, "malformed subscription request", nil)
		return
	}

	if !subscribe && p.All {
		r.hub.RemoveAllSubs(clientID, clienthub.SubWorker)
		r.hub.RemoveAllSubs(clientID, clienthub.SubProvider)
		r.reply(clientID, wire.EvtUnsubscribed, map[string]bool{"all": true})
		return
	}

	switch {
	case p.ProcessID != "":
		s := clienthub.Sub{Kind: clienthub.SubWorker, Key: p.ProcessID}
		if subscribe {
			r.hub.AddSub(clientID, s)
			r.reply(clientID, wire.EvtSubscribed, wire.SubscribePayload{ProcessID: p.ProcessID})
		} else {
			r.hub.RemoveSub(clientID, s)
			r.reply(clientID, wire.EvtUnsubscribed, wire.SubscribePayload{ProcessID: p.ProcessID})
		}
	case p.Provider != "":
		s := clienthub.Sub{Kind: clienthub.SubProvider, Key: p.Provider}
		if subscribe {
			r.hub.AddSub(clientID, s)
			r.reply(clientID, wire.EvtSubscribed, wire.SubscribePayload{Provider: p.Provider})
		} else {
			r.hub.RemoveSub(clientID, s)
			r.reply(clientID, wire.EvtUnsubscribed, wire.SubscribePayload{Provider: p.Provider})
		}
	default:
		r.replyError(clientID, "subscribe requires processId or provider", nil)
	}
}

func (r *Router) handleGetLogs(ctx context.Context, clientID string, env wire.Envelope) {
	var p wire.GetLogsPayload
	if err := env.DecodePayload(&p); err != nil || p.ProcessID == "" {
		r.replyError(clientID, "get_logs requires processId", nil)
		return
	}
	logs, err := r.fl.Logs(ctx, p.ProcessID, p.Tail)
	if err != nil {
		r.replyError(clientID, fmt.Sprintf("failed to read logs for %q: %v", p.ProcessID, err), nil)
		return
	}
	r.reply(clientID, wire.EvtLogs, wire.LogsPayload{ProcessID: p.ProcessID, Logs: logs})
}

// handleForward implements the orchestration-forward family: select a
// worker by explicit processId or by provider and forward the envelope
// unchanged; the reply travels back via Fanout affinity.
func (r *Router) handleForward(clientID string, env wire.Envelope) {
	var p wire.ProcessIDPayload
	_ = env.DecodePayload(&p)

	workerID := p.ProcessID
	if workerID == "" {
		var byProvider struct {
			Provider string `json:"provider"`
		}
		_ = env.DecodePayload(&byProvider)
		if byProvider.Provider == "" {
			r.replyError(clientID, fmt.Sprintf("%s requires processId or provider", env.Type), nil)
			return
		}
		id, ok := r.pool.Select(byProvider.Provider)
		if !ok {
			r.replyError(clientID, fmt.Sprintf("no healthy worker available for provider %q", byProvider.Provider), nil)
			return
		}
		workerID = id
	}

	r.hub.SetCurrentWorker(clientID, workerID)
	if err := r.fl.Send(workerID, env); err != nil {
		r.replyError(clientID, fmt.Sprintf("worker %q is not reachable", workerID), nil)
	}
}

func (r *Router) reply(clientID, typ string, payload interface{}) {
	sender, ok := r.hub.SenderFor(clientID)
	if !ok {
		return
	}
	env, err := wire.New(typ, payload)
	if err != nil {
		r.logger.Warn().Err(err).Str("type", typ).Msg("failed to encode reply")
		return
	}
	raw, err := env.Bytes()
	if err != nil {
		return
	}
	_ = sender.Send(raw)
}

func (r *Router) replyError(clientID, message string, hint interface{}) {
	r.reply(clientID, wire.EvtError, wire.ErrorPayload{Message: message, Hint: hint})
}

// ToWorkerInfo converts a Worker snapshot to its wire representation,
// exported so the HTTP status surface can reuse it.
func ToWorkerInfo(w worker.Worker) wire.WorkerInfo {
	return toWorkerInfo(w)
}

func toWorkerInfo(w worker.Worker) wire.WorkerInfo {
	return wire.WorkerInfo{
		ID:              w.ID,
		Provider:        w.Provider,
		Port:            w.Port,
		Status:          string(w.Status),
		Health:          string(w.Health),
		Model:           w.Model,
		AvailableModels: w.AvailableModels,
		CreatedAt:       w.CreatedAt,
	}
}
