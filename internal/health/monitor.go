package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/logging"
	"github.com/hackstrix/zeusgate/internal/metrics"
)

// Transition is the liveness/readiness verdict for one worker on one
// tick (spec.md §4.5): alive+endpoint OK, alive+endpoint fail, or not
// alive. The Monitor leaves the mapping onto Worker Status/Health to its
// caller (the Supervisor), since only the Supervisor may mutate a Worker.
type Transition int

const (
	TransitionHealthy Transition = iota
	TransitionDegraded
	TransitionDead
)

// ProbeTarget is anything the Monitor can probe: alive-check plus an
// HTTP health endpoint.
type ProbeTarget interface {
	WorkerID() string
	Provider() string
	Alive(ctx context.Context) bool
	Checker() Checker
}

// OnTransition is invoked once per tick per worker with the computed
// Transition. The callback must not block (spec.md §4.5: "independent
// per-worker... MUST not block each other").
type OnTransition func(target ProbeTarget, t Transition, result Result)

// Monitor periodically probes every registered worker on its own
// goroutine, grounded on the teacher's Pool.healthCheckLoop but
// generalized to per-worker tickers instead of one shared loop so a slow
// probe for one worker never delays another's (spec.md §4.5).
type Monitor struct {
	interval time.Duration
	timeout  time.Duration
	onTrans  OnTransition
	logger   zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewMonitor builds a Monitor with the given probe interval/timeout
// (spec.md §4.5 default: interval 30s).
func NewMonitor(interval, timeout time.Duration, onTrans OnTransition) *Monitor {
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		onTrans:  onTrans,
		logger:   logging.WithComponent("health.monitor"),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Watch starts probing target on its own ticking goroutine. Calling
// Watch twice for the same worker id replaces the previous goroutine.
func (m *Monitor) Watch(target ProbeTarget) {
	m.mu.Lock()
	if cancel, ok := m.cancels[target.WorkerID()]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[target.WorkerID()] = cancel
	m.mu.Unlock()

	go m.loop(ctx, target)
}

// Unwatch stops probing a worker, called when the Supervisor removes it.
func (m *Monitor) Unwatch(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[workerID]; ok {
		cancel()
		delete(m.cancels, workerID)
	}
}

// Stop halts all probing goroutines (gateway shutdown).
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
}

func (m *Monitor) loop(ctx context.Context, target ProbeTarget) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx, target)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context, target ProbeTarget) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if !target.Alive(probeCtx) {
		m.onTrans(target, TransitionDead, Result{Healthy: false, Message: "process/container not alive", CheckedAt: time.Now()})
		return
	}

	result := target.Checker().Check(probeCtx)
	if result.Healthy {
		m.onTrans(target, TransitionHealthy, result)
		return
	}

	metrics.HealthProbeFailures.WithLabelValues(target.Provider()).Inc()
	m.onTrans(target, TransitionDegraded, result)
}
