// Package fleet owns the set of running WorkerSupervisors: spawning,
// stopping, scaling, and forwarding envelopes to them (spec.md §4.2,
// "start"/"stop" operations lifted to the whole-gateway level that the
// Router needs).
package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/clienthub"
	"github.com/hackstrix/zeusgate/internal/health"
	"github.com/hackstrix/zeusgate/internal/logging"
	"github.com/hackstrix/zeusgate/internal/ports"
	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/wire"
	"github.com/hackstrix/zeusgate/internal/worker"
)

// ErrWorkerNotFound is returned when an operation names an unknown id.
var ErrWorkerNotFound = errors.New("worker not found")

// Options are the Fleet's gateway-wide static dependencies, shared by
// every Supervisor it creates.
type Options struct {
	Launcher       worker.Launcher
	Ports          *ports.Allocator
	Config         worker.ConfigMaterializer
	Monitor        *health.Monitor
	Registry       *registry.Registry
	Hub            *clienthub.Hub
	WorkspaceRoot  string
	PromptsDir     string
	ContainerImage string
	WorkerBinary   string
	SpawnTimeout   time.Duration
	StopGrace      time.Duration
	HealthTimeout  time.Duration

	// OnWorkerFrame receives every frame a worker emits, fed to Fanout.
	OnWorkerFrame func(workerID string, env wire.Envelope)
}

// Fleet tracks every live Supervisor by id.
type Fleet struct {
	opts   Options
	logger zerolog.Logger

	mu  sync.RWMutex
	sup map[string]*worker.Supervisor
}

// New builds an empty Fleet.
func New(opts Options) *Fleet {
	return &Fleet{
		opts:   opts,
		logger: logging.WithComponent("fleet"),
		sup:    make(map[string]*worker.Supervisor),
	}
}

// Spawn launches a new worker for provider and waits for it to become
// healthy (spec.md §4.2 start). The worker's id embeds its port
// (`zeus-<provider>-<port>`, spec.md §3), so the port is resolved before
// the Supervisor is constructed: if the caller did not pin one, Spawn
// allocates-then-releases a candidate port purely to learn its number,
// and hands it to the Supervisor as a pinned port, which reserves it for
// real. A concurrent Spawn could in principle grab that exact port in
// the gap; Reserve simply fails and the caller may retry.
func (f *Fleet) Spawn(ctx context.Context, provider, model string, port int) (worker.Worker, error) {
	assignedPort := port
	if assignedPort == 0 {
		p, err := f.opts.Ports.Allocate("fleet-spawn-probe")
		if err != nil {
			return worker.Worker{}, errors.Wrap(err, "allocate worker port")
		}
		f.opts.Ports.Release(p)
		assignedPort = p
	}
	id := fmt.Sprintf("zeus-%s-%d", provider, assignedPort)

	sv := worker.New(id, provider, worker.Options{
		Launcher:       f.opts.Launcher,
		Ports:          f.opts.Ports,
		Config:         f.opts.Config,
		WorkspaceRoot:  f.opts.WorkspaceRoot,
		PromptsDir:     f.opts.PromptsDir,
		ContainerImage: f.opts.ContainerImage,
		WorkerBinary:   f.opts.WorkerBinary,
		SpawnTimeout:   f.opts.SpawnTimeout,
		StopGrace:      f.opts.StopGrace,
		HealthTimeout:  f.opts.HealthTimeout,
		OnEvent: func(e worker.Event) {
			// Stopped and failed are always terminal (Status=Failed is set
			// only when Start fails, never by ApplyTransition, whose
			// degraded-health transition sets Degraded), so only those two
			// drop the worker from the Registry; a degraded worker stays
			// listed so the pool/introspection surfaces still see it.
			if e.Worker.Status == worker.StatusStopped || e.Worker.Status == worker.StatusFailed {
				f.opts.Registry.Remove(e.Worker.ID)
				f.remove(e.Worker.ID)
				f.opts.Monitor.Unwatch(e.Worker.ID)
				if f.opts.Hub != nil {
					f.opts.Hub.ClearAffinityTo(e.Worker.ID)
				}
				return
			}
			f.opts.Registry.Upsert(e.Worker, e.Kind)
		},
		OnWorkerFrame: f.opts.OnWorkerFrame,
	})

	f.mu.Lock()
	f.sup[id] = sv
	f.mu.Unlock()

	w, err := sv.Start(ctx, worker.StartParams{Model: model, Port: assignedPort})
	if err != nil {
		f.remove(id)
		return worker.Worker{}, err
	}

	f.opts.Monitor.Watch(sv)
	return w, nil
}

// Get returns the Supervisor for id.
func (f *Fleet) Get(id string) (*worker.Supervisor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	sv, ok := f.sup[id]
	return sv, ok
}

// Stop stops one worker by id and stops tracking it. Returns
// ErrWorkerNotFound if id is not tracked: never spawned by this Fleet, or
// already stopped.
func (f *Fleet) Stop(ctx context.Context, id string) error {
	sv, ok := f.Get(id)
	if !ok {
		return ErrWorkerNotFound
	}
	err := sv.Stop(ctx)
	f.remove(id)
	f.opts.Monitor.Unwatch(id)
	return err
}

// StopProvider stops every worker of provider, returning how many were
// stopped (spec.md §4.8 "stop{provider?}").
func (f *Fleet) StopProvider(ctx context.Context, provider string) int {
	ids := f.idsForProvider(provider)
	for _, id := range ids {
		_ = f.Stop(ctx, id)
	}
	return len(ids)
}

// Send forwards env to worker id's outbound stream.
func (f *Fleet) Send(id string, env wire.Envelope) error {
	sv, ok := f.Get(id)
	if !ok {
		return ErrWorkerNotFound
	}
	return sv.Send(env)
}

// Logs returns the tail of worker id's captured output.
func (f *Fleet) Logs(ctx context.Context, id string, tail int) ([]string, error) {
	sv, ok := f.Get(id)
	if !ok {
		return nil, ErrWorkerNotFound
	}
	return sv.Logs(ctx, tail)
}

// CountForProvider returns how many workers of provider this Fleet
// currently tracks (used by "scale" to compute the delta).
func (f *Fleet) CountForProvider(provider string) int {
	return len(f.idsForProvider(provider))
}

// IDsForProvider returns the ids of every worker of provider this Fleet
// currently tracks, in no particular order (used by "scale" to pick
// which workers to stop on scale-down).
func (f *Fleet) IDsForProvider(provider string) []string {
	return f.idsForProvider(provider)
}

// StopAll stops every tracked worker in parallel (spec.md §4.10 stop
// sequence).
func (f *Fleet) StopAll(ctx context.Context) {
	f.mu.RLock()
	ids := make([]string, 0, len(f.sup))
	for id := range f.sup {
		ids = append(ids, id)
	}
	f.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = f.Stop(ctx, id)
		}(id)
	}
	wg.Wait()
}

func (f *Fleet) idsForProvider(provider string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for id, sv := range f.sup {
		if sv.Provider() == provider {
			out = append(out, id)
		}
	}
	return out
}

func (f *Fleet) remove(id string) {
	f.mu.Lock()
	delete(f.sup, id)
	f.mu.Unlock()
}
