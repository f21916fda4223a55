// Package gatewaysvc is the GatewayFacade: the client-facing websocket
// acceptor plus the auxiliary HTTP status/control surface, and the
// start/stop sequencing that owns every other component's lifecycle
// (spec.md §4.10).
package gatewaysvc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/clienthub"
	"github.com/hackstrix/zeusgate/internal/fanout"
	"github.com/hackstrix/zeusgate/internal/fleet"
	"github.com/hackstrix/zeusgate/internal/health"
	"github.com/hackstrix/zeusgate/internal/logging"
	"github.com/hackstrix/zeusgate/internal/metrics"
	"github.com/hackstrix/zeusgate/internal/pool"
	"github.com/hackstrix/zeusgate/internal/provider"
	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/router"
	"github.com/hackstrix/zeusgate/internal/wire"
	"github.com/hackstrix/zeusgate/internal/worker"
)

const (
	clientWriteWait = 10 * time.Second
	clientPongWait  = 60 * time.Second
	clientPingPer   = (clientPongWait * 9) / 10
)

// Deps bundles every component the Facade wires together.
type Deps struct {
	Registry  *registry.Registry
	Pool      *pool.ProviderPool
	Hub       *clienthub.Hub
	Fanout    *fanout.Fanout
	Fleet     *fleet.Fleet
	Config    *provider.Store
	Monitor   *health.Monitor
	Launcher  worker.Launcher
	Router    *router.Router
	Providers []string

	WorkspaceRoot string
	NamingPrefix  string
}

// Facade owns the gateway's network surfaces.
type Facade struct {
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	shutdown chan struct{}
}

// New builds a Facade; call Start to begin serving.
func New(deps Deps) *Facade {
	return &Facade{
		deps:     deps,
		logger:   logging.WithComponent("gatewaysvc"),
		shutdown: make(chan struct{}),
	}
}

// Start runs the full start sequence (spec.md §4.10): cleanup stale
// artifacts, start HealthMonitor (already running, just begins
// accepting Watch calls as workers spawn), open listeners, accept.
// Start blocks until the listener exits (ListenAndServe semantics).
func (f *Facade) Start(ctx context.Context, addr string) error {
	if err := f.deps.Launcher.CleanupStale(ctx, f.deps.NamingPrefix); err != nil {
		f.logger.Warn().Err(err).Msg("stale artifact cleanup reported an error; continuing")
	}

	mux := http.NewServeMux()
	f.registerRoutes(mux)

	f.mu.Lock()
	f.server = &http.Server{Addr: addr, Handler: withCORS(blockPathTraversal(mux))}
	f.mu.Unlock()

	f.logger.Info().Str("addr", addr).Msg("gateway listening")
	if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop runs the stop sequence (spec.md §4.10): stop accepting, close
// client streams, stop HealthMonitor, stop all workers in parallel,
// close listeners.
func (f *Facade) Stop(ctx context.Context) error {
	close(f.shutdown)

	f.mu.Lock()
	server := f.server
	f.mu.Unlock()
	if server != nil {
		_ = server.Shutdown(ctx)
	}

	f.deps.Monitor.Stop()
	f.deps.Fleet.StopAll(ctx)
	return nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection, attaches it to the ClientHub, sends
// the initial "connected" frame, and runs the client's read/write pumps
// until the connection closes (spec.md §4.10, §6).
func (f *Facade) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sender := newClientConn(conn, f.logger)
	clientID := f.deps.Hub.Attach(sender)
	metrics.ClientsConnected.Inc()

	defer func() {
		f.deps.Hub.Detach(clientID)
		metrics.ClientsConnected.Dec()
		sender.Close()
	}()

	// Close this client's stream when the gateway shuts down; the read
	// loop below then ends and the deferred cleanup runs.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-f.shutdown:
			sender.Close()
		case <-done:
		}
	}()

	hello := wire.MustNew(wire.EvtConnected, wire.ConnectedPayload{
		SessionID: clientID,
		ClientID:  clientID,
		Providers: f.deps.Providers,
	})
	raw, _ := hello.Bytes()
	_ = sender.Send(raw)

	go sender.writePump()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(raw)
		if err != nil {
			f.logger.Debug().Err(err).Str("client", clientID).Msg("dropped malformed client frame")
			continue
		}
		f.deps.Router.Handle(r.Context(), clientID, env)
	}
}
