// Package main is the entry point for the ztp-dashboard binary.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Build registry, event log, session store, token manager, RPC registry
//  4. Build the Chi router (agent WebSocket, JSON API, HTML pages, metrics)
//  5. Start the HTTP server and the offline-reaper scheduler concurrently
//  6. Block until SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/api"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/rpc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// heartbeatInterval must match the agent's own heartbeat period — the
// registry reaps an agent offline after 3x this interval with no
// heartbeat, per spec §4.6.
const heartbeatInterval = 30 * time.Second

const reapTag = "agent-reap"

type config struct {
	httpAddr        string
	agentPathPrefix string
	jwtSecret       string
	logLevel        string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "ztp-dashboard",
		Short: "ztp-dashboard — central aggregator for ztp-agent fleets",
		Long: `ztp-dashboard accepts persistent WebSocket connections from ztp-agent
processes, tracks their connectivity and shadow inventory, serves a JSON
API and a small operator HTML view, and relays on-demand commands,
configuration pushes, and start/stop control back down to an agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMintTokenCmd(cfg))

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("ZTP_DASHBOARD_HTTP_ADDR", ":8080"), "HTTP listen address for the API, WebSocket endpoint, and HTML pages")
	root.PersistentFlags().StringVar(&cfg.agentPathPrefix, "agent-path-prefix", envOrDefault("ZTP_DASHBOARD_AGENT_PATH", "/ws/agent"), "Path edge agents dial in on")
	root.PersistentFlags().StringVar(&cfg.jwtSecret, "jwt-secret", envOrDefault("ZTP_DASHBOARD_JWT_SECRET", ""), "HMAC secret used to mint and validate agent bearer tokens (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("ZTP_DASHBOARD_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ztp-dashboard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// newMintTokenCmd prints a long-lived bearer token for a given agent_id, to
// be installed as that agent's [backend] auth_token at provisioning time —
// analogous to the agent's own hash-password subcommand.
func newMintTokenCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "mint-token <agent_id>",
		Short: "Mint a bearer token for an edge agent's [backend] auth_token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.jwtSecret == "" {
				return fmt.Errorf("--jwt-secret or ZTP_DASHBOARD_JWT_SECRET is required")
			}
			tokens := auth.NewTokenManager([]byte(cfg.jwtSecret), "ztp-dashboard")
			token, err := tokens.Mint(args[0])
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.jwtSecret == "" {
		return fmt.Errorf("agent bearer token secret is required — set --jwt-secret or ZTP_DASHBOARD_JWT_SECRET")
	}

	logger.Info("starting ztp-dashboard",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("agent_path_prefix", cfg.agentPathPrefix),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(logger)
	events := eventlog.New(eventlog.DefaultCapacity)
	rpcs := rpc.New()
	sessions := auth.NewSessionStore()
	tokens := auth.NewTokenManager([]byte(cfg.jwtSecret), "ztp-dashboard")

	router := api.NewRouter(api.RouterConfig{
		Registry:    reg,
		Events:      events,
		RPCs:        rpcs,
		Sessions:    sessions,
		Tokens:      tokens,
		Logger:      logger,
		AgentWSPath: cfg.agentPathPrefix,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	reaper, err := buildReaper(reg, logger)
	if err != nil {
		return fmt.Errorf("failed to build offline reaper: %w", err)
	}
	reaper.Start()
	defer func() {
		if err := reaper.Shutdown(); err != nil {
			logger.Warn("reaper shutdown error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down ztp-dashboard")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("ztp-dashboard stopped")
	return nil
}

// buildReaper wraps registry.ReapOffline in a gocron singleton-mode job,
// symmetric to the agent's own ztp.Scheduler — a slow reap pass can never
// overlap with the next one firing.
func buildReaper(reg *registry.Registry, logger *zap.Logger) (gocron.Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("gocron.NewScheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DurationJob(heartbeatInterval),
		gocron.NewTask(func() {
			reg.ReapOffline(heartbeatInterval)
		}),
		gocron.WithTags(reapTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule reap job: %w", err)
	}

	logger.Info("offline reaper scheduled", zap.Duration("interval", heartbeatInterval))
	return cron, nil
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
