// Command zeusgate runs the AI-worker gateway: it accepts client
// websocket connections, spawns and supervises per-provider worker
// processes, and routes chat traffic and orchestration commands between
// the two.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hackstrix/zeusgate/internal/clienthub"
	"github.com/hackstrix/zeusgate/internal/config"
	"github.com/hackstrix/zeusgate/internal/fanout"
	"github.com/hackstrix/zeusgate/internal/fleet"
	"github.com/hackstrix/zeusgate/internal/gatewaysvc"
	"github.com/hackstrix/zeusgate/internal/health"
	"github.com/hackstrix/zeusgate/internal/logging"
	"github.com/hackstrix/zeusgate/internal/pool"
	"github.com/hackstrix/zeusgate/internal/ports"
	"github.com/hackstrix/zeusgate/internal/provider"
	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/router"
	"github.com/hackstrix/zeusgate/internal/wire"
	"github.com/hackstrix/zeusgate/internal/worker"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:     "zeusgate",
	Short:   "zeusgate - multi-tenant AI coding-agent gateway",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("zeusgate version %s\ncommit: %s\n", Version, Commit))
	config.BindFlags(rootCmd.Flags(), v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:      logging.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := logging.WithComponent("main")

	portAlloc := ports.New(cfg.WorkerPortLow, cfg.WorkerPortHigh)

	var launcher worker.Launcher
	switch cfg.Launcher {
	case config.LauncherContainerd:
		launcher, err = worker.NewContainerdLauncher("", "")
		if err != nil {
			return fmt.Errorf("start containerd launcher: %w", err)
		}
	default:
		launcher = worker.NewSubprocessLauncher()
	}

	reg := registry.New()

	store, err := provider.Open(cfg.ConfigDBPath, cfg.PromptsDir, reg)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	providerPool := pool.New(reg, int64(os.Getpid()))
	hub := clienthub.New()

	fan := fanout.New(hub, func(workerID string) (fanout.ProcessInfo, bool) {
		w, ok := reg.Get(workerID)
		if !ok {
			return fanout.ProcessInfo{}, false
		}
		return fanout.ProcessInfo{Provider: w.Provider, ProcessName: w.ID}, true
	})

	monitor := health.NewMonitor(cfg.HealthInterval, cfg.HealthProbeTO, func(target health.ProbeTarget, t health.Transition, _ health.Result) {
		if sv, ok := target.(*worker.Supervisor); ok {
			sv.ApplyTransition(t)
		}
	})

	fl := fleet.New(fleet.Options{
		Launcher:       launcher,
		Ports:          portAlloc,
		Config:         store,
		Monitor:        monitor,
		Registry:       reg,
		Hub:            hub,
		WorkspaceRoot:  cfg.WorkspaceRoot,
		PromptsDir:     cfg.PromptsDir,
		ContainerImage: cfg.ContainerImage,
		WorkerBinary:   cfg.WorkerBinary,
		SpawnTimeout:   cfg.SpawnTimeout,
		StopGrace:      cfg.StopGrace,
		HealthTimeout:  cfg.HealthProbeTO,
		OnWorkerFrame: func(workerID string, env wire.Envelope) {
			fan.Deliver(workerID, env)
		},
	})

	providerNames := []string{"claude", "codex", "gemini"}

	rt := router.New(router.Options{
		Registry:           reg,
		Pool:               providerPool,
		Hub:                hub,
		Fanout:             fan,
		Fleet:              fl,
		Config:             store,
		Providers:          providerNames,
		AutoSpawnProviders: cfg.AutoSpawnProviders,
	})

	facade := gatewaysvc.New(gatewaysvc.Deps{
		Registry:      reg,
		Pool:          providerPool,
		Hub:           hub,
		Fanout:        fan,
		Fleet:         fl,
		Config:        store,
		Monitor:       monitor,
		Launcher:      launcher,
		Router:        rt,
		Providers:     providerNames,
		WorkspaceRoot: cfg.WorkspaceRoot,
		NamingPrefix:  "zeus-",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.ClientPort)
	errCh := make(chan error, 1)
	go func() {
		if err := facade.Start(ctx, addr); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Str("addr", addr).Msg("zeusgate started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("gateway listener failed")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.StopGrace)
	defer stopCancel()
	if err := facade.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}
