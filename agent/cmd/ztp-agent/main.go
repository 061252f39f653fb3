// Package main is the entry point for the ztp-agent binary.
// It wires all internal packages together and starts the tick/transport
// loops.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Load the INI config file
//  3. Build logger
//  4. Build inventory, switch lock registry, SSH dialer
//  5. Build the ZTP engine and its gocron-backed scheduler
//  6. Build the transport client and rpcexec executor
//  7. Wire transport's Configure/Control channels into the engine and its
//     RPCCalls channel into the rpcexec executor
//  8. Start heartbeat loop, scheduler, and transport concurrently
//  9. Block until SIGINT/SIGTERM; SIGHUP is not handled, and the config
//     file is read only once, at startup
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/config"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/hoststat"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/inventory"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/metrics"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/rpcexec"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/switchlock"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/transport"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/ztp"
	"github.com/neuralconfig/ruckus-ztp/shared/authhash"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const heartbeatInterval = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ztp-agent",
		Short: "ztp-agent — zero-touch provisioning agent for RUCKUS ICX switches and APs",
		Long: `ztp-agent runs on a machine with management-network reach to a block of
RUCKUS ICX switches. It logs into seed switches over SSH, walks LLDP
neighbors outward to find more switches and access points, applies
configuration, and reports discovered inventory to a ztp-dashboard over a
persistent WebSocket connection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newHashPasswordCmd())
	root.PersistentFlags().StringVar(&configPath, "config", envOrDefault("ZTP_AGENT_CONFIG", "/etc/ztp-agent/agent.ini"), "Path to the agent's INI config file")

	return root
}

// newHashPasswordCmd prints the Argon2id hash of a locally generated secret
// for the operator to paste into [agent] password_hash at install time —
// the dashboard only ever sees this hash, never the plaintext (§4.8).
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <plaintext>",
		Short: "Hash a per-agent secret for use as [agent] password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := authhash.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ztp-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting ztp-agent",
		zap.String("version", version),
		zap.String("agent_id", cfg.Agent.AgentID),
		zap.String("server", cfg.Backend.ServerURL),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	inv := inventory.New()
	locks := switchlock.NewRegistry()
	dialer := ztp.NewSSHDialer(logger)

	tc := transport.New(transport.Config{
		URL:          cfg.Backend.ServerURL + cfg.Backend.WebSocketPath,
		AgentID:      cfg.Agent.AgentID,
		Hostname:     cfg.Network.Hostname,
		Subnet:       cfg.Network.Subnet,
		Version:      version,
		AuthToken:    cfg.Agent.AuthToken,
		PasswordHash: cfg.Agent.PasswordHash,
	}, logger)

	engine := ztp.New(inv, dialer, locks, tc.SendEvent, logger)
	engine.SetRunning(cfg.ZTP.EnableZTP)

	scheduler, err := ztp.NewScheduler(engine, cfg.ZTP.PollInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}
	reconfigured := make(chan struct{}, 1)

	exec := rpcexec.New(dialer, locks, func() []wire.Credential {
		return engine.ConfigSnapshot().Credentials
	}, func() string {
		return engine.ConfigSnapshot().PreferredPassword
	}, logger)

	tc.OnConnected = func() {
		tc.SendInventory(true, inv.Snapshot())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return tc.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx, reconfigured) })
	g.Go(func() error { return runConfigureLoop(gctx, tc, engine, reconfigured) })
	g.Go(func() error { return runRPCLoop(gctx, tc, exec) })
	g.Go(func() error { return runHeartbeatLoop(gctx, tc, engine) })

	if cfg.Metrics.Enabled {
		g.Go(func() error { return runMetricsServer(gctx, cfg.Metrics.ListenAddr, logger) })
	}

	err = g.Wait()
	logger.Info("ztp-agent stopped")
	if err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// runConfigureLoop applies incoming dashboard configure/control frames to
// the engine and signals the scheduler when the poll interval may have
// changed, per spec §4.5.
func runConfigureLoop(ctx context.Context, tc *transport.Client, engine *ztp.Engine, reconfigured chan<- struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg := <-tc.Configure:
			engine.ApplyConfigure(cfg)
			select {
			case reconfigured <- struct{}{}:
			default:
			}
		case ctrl := <-tc.Control:
			engine.SetRunning(ctrl.Action == wire.ControlStart)
		}
	}
}

// runRPCLoop runs each on-demand RPC call in its own goroutine as it
// arrives; rpcexec's own switchlock.TryAcquire guards against interleaving
// with the engine, so no additional queue is kept here.
func runRPCLoop(ctx context.Context, tc *transport.Client, exec *rpcexec.Executor) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case call := <-tc.RPCCalls:
			go func(call wire.RPCCallPayload) {
				tc.SendRPCResult(exec.Execute(ctx, call))
			}(call)
		}
	}
}

func runHeartbeatLoop(ctx context.Context, tc *transport.Client, engine *ztp.Engine) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sample := hoststat.Collect(ctx)
			tc.SendHeartbeat(wire.HeartbeatPayload{
				ZTPRunning: engine.IsRunning(),
				CPUPercent: sample.CPUPercent,
				MemPercent: sample.MemPercent,
				LoadAvg1:   sample.LoadAvg1,
			})
		}
	}
}

// runMetricsServer serves the agent's local /metrics endpoint until ctx is
// cancelled. It is opt-in (see [metrics] in the INI config) since most
// installs scrape the dashboard's fleet-wide endpoint instead.
func runMetricsServer(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("serving local metrics", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
